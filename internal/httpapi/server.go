package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/checkout"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/payment"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/recovery"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	headerUserID         = "X-User-ID"
	headerIdempotencyKey = "Idempotency-Key"
)

type Checkouts interface {
	Checkout(ctx context.Context, userID, idempotencyKey string) (checkout.Result, error)
	RetryPayment(ctx context.Context, orderID string) (checkout.Result, error)
}

type Orders interface {
	Timeline(ctx context.Context, orderID string) (*order.Timeline, error)
	Cancel(ctx context.Context, orderID, reason string) error
}

type Server struct {
	checkouts Checkouts
	orders    Orders
	payments  recovery.Job
	refunds   recovery.Job
	ws        http.Handler
	logger    *slog.Logger
	router    chi.Router
}

type Deps struct {
	Checkouts        Checkouts
	Orders           Orders
	PaymentRecovery  recovery.Job
	RefundRecovery   recovery.Job
	TimelineStreamer http.Handler
}

func NewServer(deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		checkouts: deps.Checkouts,
		orders:    deps.Orders,
		payments:  deps.PaymentRecovery,
		refunds:   deps.RefundRecovery,
		ws:        deps.TimelineStreamer,
		logger:    logger,
		router:    chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(tracing)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/checkout", s.checkout)
		r.Get("/{orderID}/timeline", s.timeline)
		r.Post("/{orderID}/cancel", s.cancel)
		r.Post("/{orderID}/payments", s.retryPayment)
		if s.ws != nil {
			r.Get("/{orderID}/ws", s.ws.ServeHTTP)
		}
	})

	r.Post("/admin/recovery/payments", s.runJob(s.payments))
	r.Post("/admin/recovery/refunds", s.runJob(s.refunds))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get(headerUserID))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing "+headerUserID+" header")
		return
	}

	key := r.Header.Get(headerIdempotencyKey)
	if key == "" {
		var req struct {
			IdempotencyKey string `json:"idempotency_key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		key = req.IdempotencyKey
	}

	res, err := s.checkouts.Checkout(r.Context(), userID, key)
	if err != nil {
		s.writePaymentResult(w, r, res, err)
		return
	}
	if res.Replayed {
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) retryPayment(w http.ResponseWriter, r *http.Request) {
	res, err := s.checkouts.RetryPayment(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writePaymentResult(w, r, res, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// writePaymentResult reports a failed workflow. A gateway error means the
// order and its FAILED payment outcome were committed, so the caller gets
// the ids with 202.
func (s *Server) writePaymentResult(w http.ResponseWriter, r *http.Request, res checkout.Result, err error) {
	var gwErr *payment.GatewayError
	if errors.As(err, &gwErr) && res.OrderID != "" {
		writeJSON(w, http.StatusAccepted, struct {
			checkout.Result
			Error string `json:"error"`
		}{res, err.Error()})
		return
	}
	s.writeServiceError(w, r, err)
}

func (s *Server) timeline(w http.ResponseWriter, r *http.Request) {
	tl, err := s.orders.Timeline(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by user"
	}

	if err := s.orders.Cancel(r.Context(), chi.URLParam(r, "orderID"), req.Reason); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) runJob(job recovery.Job) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := job.Run(r.Context())
		if err != nil {
			s.logger.ErrorContext(r.Context(), "recovery run failed", "job", job.Name(), "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"job":       job.Name(),
			"claimed":   report.Claimed,
			"processed": report.Processed,
			"failed":    report.Failed,
		})
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var invalid *order.InvalidTransitionError
	switch {
	case errors.Is(err, order.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrConflict), errors.As(err, &invalid):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func WithServer(ctx context.Context, addr string, srv http.Handler) *http.Server {
	return &http.Server{
		Addr:        addr,
		Handler:     srv,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
}
