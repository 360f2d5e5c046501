package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"parkpass/internal/config"
	"parkpass/internal/database"
	"parkpass/internal/metrics"
	"parkpass/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPServer exposes the reservation, wallet and refund operations over HTTP.
type HTTPServer struct {
	cfg      config.APIConfig
	bookings *service.BookingService
	wallets  *service.WalletService
	refunds  *service.RefundService
	server   *http.Server
	auth     *HTTPAuth
	logger   *zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	bookings *service.BookingService,
	wallets *service.WalletService,
	refunds *service.RefundService,
	logger *zerolog.Logger,
) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:      cfg,
		bookings: bookings,
		wallets:  wallets,
		refunds:  refunds,
		auth:     NewHTTPAuth(cfg),
		logger:   logger,
	}

	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("/api/v1/bookings/", srv.handleBookingByID)
	mux.HandleFunc("/api/v1/users", srv.handleCreateUser)
	mux.HandleFunc("/api/v1/users/", srv.handleUsers)
	mux.HandleFunc("/api/v1/wallets/", srv.handleWallets)
	mux.HandleFunc("/api/v1/availability/", srv.handleAvailability)
	mux.HandleFunc("/api/v1/refunds", srv.handleRefunds)
	mux.HandleFunc("/api/v1/refunds/", srv.handleRefundByID)
	mux.HandleFunc("/api/v1/exports/occupancy", srv.handleExportOccupancy)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the full middleware chain, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type reserveRequest struct {
	UserID       int64  `json:"user_id"`
	LotID        int64  `json:"lot_id"`
	SlotID       int64  `json:"slot_id,omitempty"`
	VehicleClass string `json:"vehicle_class,omitempty"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Price        int64  `json:"price"`
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var body reserveRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if body.UserID == 0 || body.LotID == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "user_id and lot_id are required")
		return
	}

	start, err := time.Parse(time.RFC3339, body.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid start_time; expected RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, body.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid end_time; expected RFC3339")
		return
	}

	booking, err := s.bookings.Reserve(r.Context(), database.ReserveRequest{
		UserID:       body.UserID,
		LotID:        body.LotID,
		SlotID:       body.SlotID,
		VehicleClass: body.VehicleClass,
		Start:        start.UTC(),
		End:          end.UTC(),
		Price:        body.Price,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"booking": booking})
}

func (s *HTTPServer) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/v1/bookings/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid booking id")
			return
		}
		booking, err := s.bookings.GetBooking(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"booking": booking})

	case len(parts) == 2 && r.Method == http.MethodPost && parts[1] == "cancel":
		s.handleCancel(w, r, parts[0])

	case len(parts) == 2 && r.Method == http.MethodPost && parts[1] == "checkout":
		s.handleCheckout(w, r, parts[0])

	default:
		writeError(w, http.StatusNotFound, "not_found", "not found")
	}
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid booking id")
		return
	}

	var body struct {
		UserID int64 `json:"user_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if body.UserID == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "user_id is required")
		return
	}

	booking, refund, err := s.bookings.Cancel(r.Context(), id, body.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"booking": booking,
		"refund":  refund,
	})
}

func (s *HTTPServer) handleCheckout(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid booking id")
		return
	}

	var body struct {
		UserID int64 `json:"user_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if body.UserID == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "user_id is required")
		return
	}

	booking, penalty, err := s.bookings.Checkout(r.Context(), id, body.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"booking": booking,
		"penalty": penalty,
	})
}

func (s *HTTPServer) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var body struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		IsAdmin bool   `json:"is_admin"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "name is required")
		return
	}

	user, err := s.wallets.Register(r.Context(), body.Name, body.Email, body.IsAdmin)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (s *HTTPServer) handleUsers(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/v1/users/")
	if len(parts) == 0 || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}

	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}

	switch {
	case len(parts) == 1:
		user, err := s.wallets.GetUser(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user})

	case len(parts) == 2 && parts[1] == "bookings":
		bookings, err := s.bookings.GetUserBookings(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})

	default:
		writeError(w, http.StatusNotFound, "not_found", "not found")
	}
}

func (s *HTTPServer) handleWallets(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/v1/wallets/")
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}

	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		balance, err := s.wallets.Balance(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": balance})

	case len(parts) == 2 && parts[1] == "topup" && r.Method == http.MethodPost:
		var body struct {
			Amount int64 `json:"amount"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		balance, err := s.wallets.TopUp(r.Context(), userID, body.Amount)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": balance})

	case len(parts) == 2 && parts[1] == "statement" && r.Method == http.MethodGet:
		entries, err := s.wallets.Statement(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "entries": entries})

	case len(parts) == 2 && parts[1] == "reconcile" && r.Method == http.MethodPost:
		if err := s.wallets.RequestReconcile(r.Context(), userID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})

	default:
		writeError(w, http.StatusNotFound, "not_found", "not found")
	}
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	parts := pathParts(r.URL.Path, "/api/v1/availability/")
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	lotID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid lot id")
		return
	}

	vehicleClass := strings.TrimSpace(r.URL.Query().Get("class"))
	if vehicleClass == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "class is required")
		return
	}

	startDate := time.Now().UTC().Truncate(24 * time.Hour)
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		startDate, err = time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid date format; expected YYYY-MM-DD")
			return
		}
	}

	days := 7
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days < 1 || days > 31 {
			writeError(w, http.StatusBadRequest, "bad_request", "days must be between 1 and 31")
			return
		}
	}

	grid, err := s.bookings.Availability(r.Context(), lotID, vehicleClass, startDate, days)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"availability": grid})
}

func (s *HTTPServer) handleRefunds(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var body struct {
			BookingID int64  `json:"booking_id"`
			UserID    int64  `json:"user_id"`
			Reason    string `json:"reason"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		if body.BookingID == 0 || body.UserID == 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "booking_id and user_id are required")
			return
		}
		request, err := s.refunds.Request(r.Context(), body.BookingID, body.UserID, body.Reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"request": request})

	case http.MethodGet:
		adminID, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("admin_id")), 10, 64)
		if err != nil || adminID == 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "admin_id is required")
			return
		}
		pending, err := s.refunds.Pending(r.Context(), adminID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"requests": pending})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (s *HTTPServer) handleRefundByID(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/v1/refunds/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid request id")
			return
		}
		request, err := s.refunds.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"request": request})

	case len(parts) == 2 && parts[1] == "resolve" && r.Method == http.MethodPost:
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid request id")
			return
		}
		var body struct {
			AdminID  int64  `json:"admin_id"`
			Approve  bool   `json:"approve"`
			Amount   int64  `json:"amount"`
			Response string `json:"response"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		if body.AdminID == 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "admin_id is required")
			return
		}
		request, err := s.refunds.Resolve(r.Context(), id, body.AdminID, body.Approve, body.Amount, body.Response)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"request": request})

	default:
		writeError(w, http.StatusNotFound, "not_found", "not found")
	}
}

func (s *HTTPServer) handleExportOccupancy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var body struct {
		LotID int64  `json:"lot_id"`
		From  string `json:"from"`
		To    string `json:"to"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if body.LotID == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "lot_id is required")
		return
	}

	from, err := time.Parse("2006-01-02", body.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid from date; expected YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", body.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid to date; expected YYYY-MM-DD")
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "bad_request", "to must not precede from")
		return
	}

	if err := s.bookings.RequestOccupancyExport(r.Context(), body.LotID, from, to); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(endpointLabel(r.URL.Path))
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// endpointLabel collapses paths with ids into a fixed label set so the
// metric cardinality stays bounded.
func endpointLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/bookings"):
		return "bookings"
	case strings.HasPrefix(path, "/api/v1/users"):
		return "users"
	case strings.HasPrefix(path, "/api/v1/wallets"):
		return "wallets"
	case strings.HasPrefix(path, "/api/v1/availability"):
		return "availability"
	case strings.HasPrefix(path, "/api/v1/refunds"):
		return "refunds"
	case strings.HasPrefix(path, "/api/v1/exports"):
		return "exports"
	case path == "/health":
		return "health"
	}
	return "other"
}

func pathParts(path, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, map[string]string{"code": code, "error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
