package webhook

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/forgehook/forgehook/internal/store"
)

// Server receives provider webhook deliveries and runs the ingestion
// pipeline. Each delivery is one independent, synchronous unit of work; the
// server holds no cross-request state beyond the durable store.
type Server struct {
	config Config
	store  RecordStore
	logger *slog.Logger
	server *http.Server
}

// New creates a new webhook server instance.
func New(config Config, recordStore RecordStore, logger *slog.Logger) *Server {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = 1 << 20
	}
	return &Server{
		config: config,
		store:  recordStore,
		logger: logger,
	}
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "provider", s.config.Provider)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Post("/webhook", s.handleDelivery)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	})

	return r
}

// loggingMiddleware logs HTTP requests (excludes sensitive payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// delivery carries the per-request trail while the pipeline runs.
type delivery struct {
	id         string
	digest     string
	event      string
	externalID string
}

// handleDelivery runs the ingestion pipeline for one webhook delivery.
//
// Authentication and validation failures are decided as early as possible
// (signature before secret before event type) and all answer a uniform 400
// without leaking which check failed; detail goes to the log only.
func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	d := delivery{id: uuid.NewString()}
	logger := s.logger.With(slog.String("delivery_id", d.id))

	signature := r.Header.Get(s.config.SignatureHeader)
	d.event = r.Header.Get(s.config.EventHeader)

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		logger.Error("failed to read request body", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		logger.Warn("webhook payload too large", "size", len(body))
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}
	digest := blake3.Sum256(body)
	d.digest = hex.EncodeToString(digest[:])

	if signature == "" {
		logger.Info("webhook signature missing", "header", s.config.SignatureHeader)
		s.finish(ctx, w, d, http.StatusBadRequest, outcomeMissingSignature)
		return
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		logger.Info("webhook body is not valid JSON")
		s.finish(ctx, w, d, http.StatusBadRequest, outcomeInvalidJSON)
		return
	}

	// The HMAC key is the full composite secret field; it is verified before
	// the field is split so that a tampered body is rejected ahead of any
	// secret parsing.
	if !verifySignature(body, event.Secret, signature) {
		logger.Info("webhook signature verification failed")
		s.finish(ctx, w, d, http.StatusBadRequest, outcomeInvalidSignature)
		return
	}

	externalID, webhookSecret, ok := splitCompositeSecret(event.Secret)
	if !ok {
		logger.Info("webhook secret field is malformed")
		s.finish(ctx, w, d, http.StatusBadRequest, outcomeInvalidSecret)
		return
	}
	d.externalID = externalID

	inst, err := s.store.InstallationByExternalID(ctx, s.config.Provider, externalID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Info("no installation for delivery", "external_id", externalID)
		s.finish(ctx, w, d, http.StatusBadRequest, outcomeUnknownInstallation)
		return
	}
	if err != nil {
		logger.Error("installation lookup failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	// Second layer: the split secret half must match stored configuration
	// even though the composite already keyed the HMAC. Both checks stand on
	// their own.
	if !constantTimeEquals(webhookSecret, inst.Metadata["webhook_secret"]) {
		logger.Info("webhook secret mismatch", "installation_id", inst.ID)
		s.finish(ctx, w, d, http.StatusBadRequest, outcomeSecretMismatch)
		return
	}

	var handler func(context.Context, *store.Installation, store.Organization, *Event) error
	switch d.event {
	case EventTypePush:
		handler = s.handlePushEvent
	case EventTypePullRequest:
		handler = s.handlePullRequestEvent
	default:
		logger.Info("unknown webhook event type", "event", d.event)
		s.finish(ctx, w, d, http.StatusBadRequest, outcomeUnknownEvent)
		return
	}

	orgs, err := s.store.OrganizationsForInstallation(ctx, inst.ID)
	if err != nil {
		logger.Error("organization fan-out lookup failed", "installation_id", inst.ID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	// One delivery may fan out to many organizations. Each invocation is
	// isolated: a write failure for one organization is logged and the next
	// organization is still processed.
	for _, org := range orgs {
		if err := handler(ctx, inst, org, &event); err != nil {
			if errors.Is(err, errNotActionable) {
				s.finish(ctx, w, d, http.StatusNotFound, outcomeNotActionable)
				return
			}
			logger.Error("event handler failed",
				"event", d.event,
				"installation_id", inst.ID,
				"organization_id", org.ID,
				"error", err,
			)
		}
	}

	s.finish(ctx, w, d, http.StatusNoContent, outcomeProcessed)
}

// finish writes the response status and appends the delivery trail row.
// Responses carry no body; diagnostics are operator-facing only.
func (s *Server) finish(ctx context.Context, w http.ResponseWriter, d delivery, status int, outcome string) {
	if err := s.store.RecordDelivery(ctx, store.Delivery{
		ID:                     d.id,
		Digest:                 d.digest,
		Event:                  d.event,
		InstallationExternalID: d.externalID,
		Outcome:                outcome,
		Status:                 status,
		CreatedAt:              time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("delivery trail write failed", "delivery_id", d.id, "error", err)
	}
	w.WriteHeader(status)
}
