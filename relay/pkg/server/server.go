package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	relayapi "github.com/malbeclabs/orerelay/relay/pkg/api"
	"github.com/malbeclabs/orerelay/relay/pkg/client"
	"github.com/malbeclabs/orerelay/relay/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission outcomes.
const (
	statusSuccess  = "success"
	statusAborted  = "aborted"
	statusRejected = "rejected"
	statusError    = "error"
)

type Server struct {
	log     *slog.Logger
	cfg     Config
	limiter *RateLimiter
	httpSrv *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		log:     cfg.Logger,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateBurst, nil),
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
	return s, nil
}

// Handler is the routed HTTP surface of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthzHandler)
	r.Get("/version", s.versionHandler)
	r.Get(client.SlotPath, s.slotHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.With(RateLimitMiddleware(s.limiter)).Post(client.SubmitPath, s.submitHandler)
	return r
}

func (s *Server) Run(ctx context.Context) error {
	go s.limiter.Run(ctx)

	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server: http server error", "error", err)
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.log.Info("server: http listening", "address", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		s.log.Info("server: stopping", "reason", ctx.Err(), "address", s.cfg.ListenAddr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		s.log.Info("server: http server shutdown complete")
		return nil
	case err := <-serveErrCh:
		return err
	}
}

func (s *Server) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("failed to write healthz response", "error", err)
	}
}

func (s *Server) versionHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.VersionInfo)
}

func (s *Server) slotHandler(w http.ResponseWriter, r *http.Request) {
	slot, err := s.cfg.Executor.RecentSlot(r.Context())
	if err != nil {
		s.log.Error("server: failed to read slot", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, relayapi.SubmitError{Error: "ledger unavailable", Index: -1})
		return
	}
	s.writeJSON(w, http.StatusOK, relayapi.SlotResponse{Slot: slot})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("server: failed to write response", "status", status, "error", err)
	}
}

func (s *Server) submitHandler(w http.ResponseWriter, r *http.Request) {
	span := sentry.StartSpan(r.Context(), "relay.submit", sentry.WithDescription("submit transaction"))
	defer span.Finish()
	ctx := span.Context()

	var req relayapi.SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)).Decode(&req); err != nil {
		s.reject(w, span, fmt.Errorf("invalid request body: %w", err))
		return
	}
	tx, err := relayapi.DecodeTransaction(req)
	if err != nil {
		s.reject(w, span, err)
		return
	}
	span.SetData("instructions", len(tx.Instructions))

	receipt, err := s.cfg.Executor.Execute(ctx, tx)
	if err != nil {
		var txErr *host.TransactionError
		if !errors.As(err, &txErr) {
			s.log.Error("server: transaction execution failed", "error", err)
			metrics.SubmissionsTotal.WithLabelValues(statusError).Inc()
			span.Status = sentry.SpanStatusUnavailable
			s.writeJSON(w, http.StatusServiceUnavailable, relayapi.SubmitError{Error: "ledger unavailable", Index: -1})
			return
		}
		s.abort(w, span, txErr)
		return
	}

	metrics.SubmissionsTotal.WithLabelValues(statusSuccess).Inc()
	span.Status = sentry.SpanStatusOK
	s.writeJSON(w, http.StatusOK, relayapi.SubmitResponse{
		ID:   receipt.ID.String(),
		Slot: receipt.Slot,
		Logs: receipt.Logs,
	})
}

func (s *Server) reject(w http.ResponseWriter, span *sentry.Span, err error) {
	metrics.SubmissionsTotal.WithLabelValues(statusRejected).Inc()
	span.Status = sentry.SpanStatusInvalidArgument
	s.writeJSON(w, http.StatusBadRequest, relayapi.SubmitError{Error: err.Error(), Index: -1})
}

// abort reports a transaction that the ledger refused or rolled back.
func (s *Server) abort(w http.ResponseWriter, span *sentry.Span, txErr *host.TransactionError) {
	body := relayapi.SubmitError{
		Error: txErr.Err.Error(),
		Code:  txErr.Code(),
		Index: txErr.Index,
		Class: relayapi.Classify(txErr.Err).String(),
		Logs:  txErr.Logs,
	}
	status := http.StatusBadRequest
	if txErr.Index >= 0 {
		body.ProgramID = txErr.ProgramID.String()
		status = http.StatusUnprocessableEntity
	}
	s.log.Debug("server: transaction aborted", "index", txErr.Index, "program", body.ProgramID, "code", body.Code, "class", body.Class)
	metrics.SubmissionsTotal.WithLabelValues(statusAborted).Inc()
	span.Status = sentry.SpanStatusFailedPrecondition
	s.writeJSON(w, status, body)
}
