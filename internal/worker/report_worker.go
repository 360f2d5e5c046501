package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"parkpass/internal/database"
	"parkpass/internal/metrics"
	"parkpass/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskExportOccupancy = "export_occupancy"
	TaskReconcileWallet = "reconcile_wallet"
)

// reportTaskPayload is persisted in ReportTask.Payload as JSON.
type reportTaskPayload struct {
	LotID  int64     `json:"lot_id,omitempty"`
	UserID int64     `json:"user_id,omitempty"`
	From   time.Time `json:"from,omitempty"`
	To     time.Time `json:"to,omitempty"`
}

// ReportBuilder renders occupancy reports to files.
type ReportBuilder interface {
	BuildOccupancyReport(ctx context.Context, lotID int64, from, to time.Time) (string, error)
}

// ReportWorker consumes report_tasks and runs exports and wallet
// reconciliation sweeps. Tasks survive restarts in sqlite; redis carries the
// hot path, the in-memory channel covers a dead redis, and polling catches
// anything both missed.
type ReportWorker struct {
	db            *database.DB
	builder       ReportBuilder
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.ReportTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewReportWorker builds a worker with sane defaults.
func NewReportWorker(db *database.DB, builder ReportBuilder, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *ReportWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &ReportWorker{
		db:            db,
		builder:       builder,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.ReportTask, models.WorkerQueueSize),
		redisQueueKey: "reports:queue",
		deadLetterKey: "reports:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// EnqueueExport schedules an occupancy report for the lot.
func (w *ReportWorker) EnqueueExport(ctx context.Context, lotID int64, from, to time.Time) error {
	if lotID == 0 {
		return errors.New("lot id is required")
	}
	return w.enqueue(ctx, TaskExportOccupancy, reportTaskPayload{LotID: lotID, From: from, To: to})
}

// EnqueueReconcile schedules a wallet reconciliation sweep for the user.
func (w *ReportWorker) EnqueueReconcile(ctx context.Context, userID int64) error {
	if userID == 0 {
		return errors.New("user id is required")
	}
	return w.enqueue(ctx, TaskReconcileWallet, reportTaskPayload{UserID: userID})
}

func (w *ReportWorker) enqueue(ctx context.Context, taskType string, payload reportTaskPayload) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.ReportTask{
		TaskType:  taskType,
		UserID:    payload.UserID,
		LotID:     payload.LotID,
		Payload:   string(payloadBytes),
		Status:    "pending",
		CreatedAt: time.Now(),
	}

	if err := w.db.CreateReportTask(ctx, &task); err != nil {
		return fmt.Errorf("persist report task: %w", err)
	}

	// Try redis first for prompt pickup.
	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}

	return nil
}

// Start launches main loop; stops when ctx is done.
func (w *ReportWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("report worker started")
	defer w.logger.Info().Msg("report worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingReportTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending report tasks")
			time.Sleep(w.pollInterval)
			continue
		}
		if len(tasks) == 0 {
			time.Sleep(w.pollInterval)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *ReportWorker) tryLocalQueue() (models.ReportTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.ReportTask{}, false
	}
}

func (w *ReportWorker) tryRedis(ctx context.Context) (models.ReportTask, bool) {
	if w.redis == nil {
		return models.ReportTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return models.ReportTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.ReportTask{}, false
	}
	if len(res) != 2 {
		return models.ReportTask{}, false
	}
	var task models.ReportTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.ReportTask{}, false
	}
	return task, true
}

func (w *ReportWorker) processTask(ctx context.Context, task *models.ReportTask) {
	payload, err := w.decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateReportTaskStatus(ctx, task.ID, "completed", "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
}

func (w *ReportWorker) handleTask(ctx context.Context, taskType string, payload reportTaskPayload) error {
	switch taskType {
	case TaskExportOccupancy:
		if payload.LotID == 0 {
			return errors.New("lot id missing")
		}
		if w.builder == nil {
			return errors.New("report builder not configured")
		}
		path, err := w.builder.BuildOccupancyReport(ctx, payload.LotID, payload.From, payload.To)
		if err != nil {
			return err
		}
		w.logger.Info().Int64("lot_id", payload.LotID).Str("path", path).Msg("occupancy report written")
		return nil
	case TaskReconcileWallet:
		if payload.UserID == 0 {
			return errors.New("user id missing")
		}
		return w.reconcileWallet(ctx, payload.UserID)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

// reconcileWallet recomputes the balance from the ledger; a divergence is an
// invariant violation worth waking someone up for.
func (w *ReportWorker) reconcileWallet(ctx context.Context, userID int64) error {
	stored, derived, err := w.db.RecomputeBalance(ctx, userID)
	if err != nil {
		return err
	}
	if stored != derived {
		metrics.IncBalanceMismatch()
		w.logger.Error().
			Int64("user_id", userID).
			Int64("stored", stored).
			Int64("derived", derived).
			Msg("wallet balance diverged from ledger")
	}
	return nil
}

func (w *ReportWorker) retryOrFail(ctx context.Context, task *models.ReportTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		if err := w.db.UpdateReportTaskStatus(ctx, task.ID, "failed", cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
		}
		w.pushDeadLetter(ctx, task)
		return
	}

	nextDelay := w.retryPolicy.NextDelay(attempt)
	nextTime := time.Now().Add(nextDelay)
	if err := w.db.UpdateReportTaskStatus(ctx, task.ID, "retry", cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
}

func (w *ReportWorker) failTask(ctx context.Context, task *models.ReportTask, err error) {
	if updateErr := w.db.UpdateReportTaskStatus(ctx, task.ID, "failed", err.Error(), nil); updateErr != nil {
		w.logger.Error().Err(updateErr).Int64("task_id", task.ID).Msg("mark failed")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *ReportWorker) decodePayload(raw string) (reportTaskPayload, error) {
	var payload reportTaskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *ReportWorker) pushRedis(ctx context.Context, task models.ReportTask) error {
	if w.redis == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *ReportWorker) pushDeadLetter(ctx context.Context, task *models.ReportTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("dead letter push failed")
	}
}
