// Package collector is a reference implementation of the collection service:
// client registration, fingerprint checkins and per-URL engagement counters.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telemetry-client/internal/config"
	"telemetry-client/internal/models"
	"telemetry-client/internal/storage"
)

const (
	maxBodyBytes = 64 << 10
	maxBulkURLs  = 100

	shutdownTimeout = 5 * time.Second
)

// Service serves the collection protocol
type Service struct {
	clients  *storage.ClientStore
	counters *storage.CounterStore
	limiter  *RateLimiter
	logger   zerolog.Logger
}

// NewService creates a collection service over an opened collector database
func NewService(db *storage.Database, cfg *config.CollectorConfig, logger zerolog.Logger) *Service {
	logger = logger.With().Str("component", "collector").Logger()
	return &Service{
		clients:  storage.NewClientStore(db),
		counters: storage.NewCounterStore(db),
		limiter:  NewRateLimiter(cfg.WritesPerHour, logger),
		logger:   logger,
	}
}

// Routes returns the protocol router
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/client", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/status", s.handleStatus)
		r.Post("/checkin", s.handleCheckin)
		r.Post("/view", s.handleEvent(models.ActionTypeView))
		r.Post("/like", s.handleEvent(models.ActionTypeLike))
	})

	r.Get("/view/count", s.handleCount(models.ActionTypeView))
	r.Get("/like/count", s.handleCount(models.ActionTypeLike))
	r.Post("/counts/bulk", s.handleBulk)

	return r
}

// Serve listens on addr until ctx is cancelled
func (s *Service) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Collector listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("collector stopped: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down collector")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	token, err := newToken()
	if err != nil {
		s.internalError(w, err)
		return
	}

	id := uuid.NewString()
	if _, err := s.clients.Create(id, hashToken(token)); err != nil {
		s.internalError(w, err)
		return
	}

	s.logger.Info().Str("clientID", id).Msg("Client registered")
	writeJSON(w, http.StatusCreated, models.ClientIdentity{ID: id, Token: token})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req models.StatusRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	client, err := s.authenticate(req.ID, req.Token)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if client == nil {
		writeError(w, http.StatusUnauthorized, "unknown client")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      client.ID,
		"last_fp": client.LastFP,
	})
}

func (s *Service) handleCheckin(w http.ResponseWriter, r *http.Request) {
	var req models.CheckinRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	client, err := s.authenticate(req.ClientID, req.ClientToken)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if client == nil {
		writeError(w, http.StatusUnauthorized, "unknown client")
		return
	}
	if req.FP == "" || req.FPV < 1 {
		writeError(w, http.StatusBadRequest, "fp and fpv are required")
		return
	}
	if !s.limiter.Allow(client.ID, models.ActionTypeCheckin) {
		writeError(w, http.StatusTooManyRequests, "hourly checkin limit reached")
		return
	}

	var uad string
	if req.UAD != nil {
		data, err := json.Marshal(req.UAD)
		if err != nil {
			s.internalError(w, err)
			return
		}
		uad = string(data)
	}

	err = s.clients.RecordCheckin(&models.Checkin{
		ClientID: client.ID,
		FP:       req.FP,
		FPV:      req.FPV,
		Version:  req.Version,
		UA:       req.UA,
		UAD:      uad,
	})
	if err != nil {
		s.internalError(w, err)
		return
	}

	s.logger.Info().Str("clientID", client.ID).Str("fp", req.FP).Msg("Client checked in")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleEvent(action models.ActionType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.EventRequest
		if !s.decodeBody(w, r, &req) {
			return
		}

		client, err := s.authenticate(req.ClientID, req.ClientToken)
		if err != nil {
			s.internalError(w, err)
			return
		}
		if client == nil {
			writeError(w, http.StatusUnauthorized, "unknown client")
			return
		}
		if req.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}
		if !s.limiter.Allow(client.ID, action) {
			writeError(w, http.StatusTooManyRequests, "hourly write limit reached")
			return
		}

		switch action {
		case models.ActionTypeLike:
			added, err := s.counters.RecordLike(client.ID, req.URL)
			if err != nil {
				s.internalError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"url": req.URL, "added": added})
		default:
			if err := s.counters.RecordView(client.ID, req.URL); err != nil {
				s.internalError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"url": req.URL, "added": true})
		}
	}
}

func (s *Service) handleCount(action models.ActionType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url := r.URL.Query().Get("url")
		if url == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}

		rec, err := s.counters.Get(url)
		if err != nil {
			s.internalError(w, err)
			return
		}
		if rec == nil {
			writeError(w, http.StatusNotFound, "unknown url")
			return
		}

		count := rec.ViewCount
		if action == models.ActionTypeLike {
			count = rec.LikeCount
		}
		writeJSON(w, http.StatusOK, models.URLCount{URL: rec.URL, Count: count})
	}
}

func (s *Service) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req models.BulkCountsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.URLs) > maxBulkURLs {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d urls per request", maxBulkURLs))
		return
	}

	results, err := s.counters.GetMany(req.URLs)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.BulkCountsResponse{Results: results})
}

// decodeBody reads a size-limited JSON body, answering 400 or 413 on failure
func (s *Service) decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Service) internalError(w http.ResponseWriter, err error) {
	s.logger.Error().Err(err).Msg("Request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Service) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("requestID", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
