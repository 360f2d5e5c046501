package service

import (
	"context"

	"parkpass/internal/database"
	"parkpass/internal/domain"
	"parkpass/internal/events"
	"parkpass/internal/metrics"
	"parkpass/internal/models"

	"github.com/rs/zerolog"
)

type WalletService struct {
	store        domain.Store
	eventBus     domain.EventPublisher
	reportWorker domain.ReportWorker
	logger       *zerolog.Logger
}

func NewWalletService(store domain.Store, eventBus domain.EventPublisher, reportWorker domain.ReportWorker, logger *zerolog.Logger) *WalletService {
	return &WalletService{
		store:        store,
		eventBus:     eventBus,
		reportWorker: reportWorker,
		logger:       logger,
	}
}

// Register creates a user with an empty wallet.
func (s *WalletService) Register(ctx context.Context, name, email string, isAdmin bool) (*models.User, error) {
	user := &models.User{Name: name, Email: email, IsAdmin: isAdmin}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", user.ID).Bool("is_admin", isAdmin).Msg("user registered")
	return user, nil
}

// GetUser loads a user with the denormalized balance.
func (s *WalletService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return s.store.GetUser(ctx, userID)
}

// TopUp credits the wallet and returns the new balance.
func (s *WalletService) TopUp(ctx context.Context, userID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, database.ErrInvalidAmount
	}

	if _, err := s.store.Credit(ctx, userID, amount, models.ReasonTopUp, nil); err != nil {
		return 0, err
	}

	metrics.IncLedgerOp(string(models.DirectionCredit), models.ReasonTopUp)

	balance, err := s.store.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}

	if s.eventBus != nil {
		payload := events.LedgerEventPayload{
			UserID:    userID,
			Amount:    amount,
			Direction: string(models.DirectionCredit),
			Reason:    models.ReasonTopUp,
			Balance:   balance,
		}
		if err := s.eventBus.PublishJSON(events.EventWalletTopUp, payload); err != nil {
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("publish event error")
		}
	}

	return balance, nil
}

func (s *WalletService) Balance(ctx context.Context, userID int64) (int64, error) {
	return s.store.Balance(ctx, userID)
}

// Statement returns the user's ledger entries, newest first.
func (s *WalletService) Statement(ctx context.Context, userID int64) ([]*models.LedgerEntry, error) {
	return s.store.LedgerEntries(ctx, userID)
}

// Verify recomputes the balance from the ledger and compares it against the
// stored value.
func (s *WalletService) Verify(ctx context.Context, userID int64) (bool, int64, int64, error) {
	stored, derived, err := s.store.RecomputeBalance(ctx, userID)
	if err != nil {
		return false, 0, 0, err
	}

	if stored != derived {
		metrics.IncBalanceMismatch()
		s.logger.Error().
			Int64("user_id", userID).
			Int64("stored", stored).
			Int64("derived", derived).
			Msg("wallet balance diverged from ledger")
		return false, stored, derived, nil
	}
	return true, stored, derived, nil
}

// RequestReconcile queues a background reconciliation sweep for the user.
func (s *WalletService) RequestReconcile(ctx context.Context, userID int64) error {
	if s.reportWorker == nil {
		return nil
	}
	return s.reportWorker.EnqueueReconcile(ctx, userID)
}
