// Package api exposes the engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ppiankov/claimguard/internal/cache"
	"github.com/ppiankov/claimguard/internal/criteria"
	"github.com/ppiankov/claimguard/internal/errs"
	"github.com/ppiankov/claimguard/internal/logging"
	"github.com/ppiankov/claimguard/internal/model"
)

const maxBodyBytes = 1 << 20

// Engine is what the server needs from the prediction engine
type Engine interface {
	Predict(ctx context.Context, claimID string, req criteria.Request) (*model.PredictionResult, error)
	Correct(ctx context.Context, claimID string) (*model.CorrectionReport, error)
}

// PredictRequest carries the claim id and optional criteria overrides at the top level
type PredictRequest struct {
	ClaimID string `json:"claim_id"`
	criteria.Request
}

// CorrectRequest names the claim to correct
type CorrectRequest struct {
	ClaimID string `json:"claim_id"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error       string   `json:"error"`
	Message     string   `json:"message"`
	ClaimID     string   `json:"claim_id,omitempty"`
	Query       string   `json:"query,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
	RequestID   string   `json:"request_id,omitempty"`
}

// Server routes HTTP requests to the engine
type Server struct {
	engine   Engine
	cache    cache.Cache
	cacheTTL time.Duration
	log      logrus.FieldLogger
}

// NewServer creates a server. A nil cache disables response caching.
func NewServer(engine Engine, c cache.Cache, log logrus.FieldLogger) *Server {
	return &Server{
		engine: engine,
		cache:  c,
		log:    logging.OrDiscard(log),
	}
}

// WithCacheTTL sets the lifetime of cached predictions; zero uses the cache default
func (s *Server) WithCacheTTL(ttl time.Duration) *Server {
	s.cacheTTL = ttl
	return s
}

// Handler returns the routed handler with request logging and panic recovery
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/v1/predict", s.handlePredict).Methods(http.MethodPost)
	r.HandleFunc("/v1/correct", s.handleCorrect).Methods(http.MethodPost)
	r.HandleFunc("/v1/presets", s.handlePresets).Methods(http.MethodGet)
	r.HandleFunc("/v1/presets/{name}", s.handlePreset).Methods(http.MethodGet)

	r.Use(s.requestID, s.recovery, s.logging)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.ClaimID = strings.TrimSpace(req.ClaimID)
	if req.ClaimID == "" {
		s.badRequest(w, r, "claim_id is required")
		return
	}

	key := ""
	if s.cache != nil {
		crit, _ := json.Marshal(req.Request)
		key = cache.Key("predict", req.ClaimID, string(crit))
		if body, ok := s.cache.Get(key); ok {
			w.Header().Set("X-Cache", "HIT")
			writeRaw(w, http.StatusOK, body)
			return
		}
	}

	result, err := s.engine.Predict(r.Context(), req.ClaimID, req.Request)
	if err != nil {
		s.fail(w, r, req.ClaimID, err)
		return
	}

	body, err := json.Marshal(result)
	if err != nil {
		s.fail(w, r, req.ClaimID, err)
		return
	}
	if s.cache != nil {
		if err := s.cache.Set(key, body, s.cacheTTL); err != nil {
			s.log.WithError(err).Warn("Failed to cache prediction")
		}
		w.Header().Set("X-Cache", "MISS")
	}
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	var req CorrectRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.ClaimID = strings.TrimSpace(req.ClaimID)
	if req.ClaimID == "" {
		s.badRequest(w, r, "claim_id is required")
		return
	}

	report, err := s.engine.Correct(r.Context(), req.ClaimID)
	if err != nil {
		s.fail(w, r, req.ClaimID, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	names := criteria.Presets()
	out := make([]model.CriteriaApplied, 0, len(names))
	for _, name := range names {
		p, _ := criteria.Preset(name)
		out = append(out, p.Applied())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePreset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	p, ok := criteria.Preset(strings.ToLower(name))
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:     string(errs.KindNotFound),
			Message:   "unknown preset " + name,
			RequestID: requestIDFrom(r),
		})
		return
	}
	writeJSON(w, http.StatusOK, p.Applied())
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.badRequest(w, r, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:     "BadRequest",
		Message:   msg,
		RequestID: requestIDFrom(r),
	})
}

// fail maps an engine error onto a status code and structured body
func (s *Server) fail(w http.ResponseWriter, r *http.Request, claimID string, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{
		Error:       string(errs.KindOf(err)),
		Message:     err.Error(),
		ClaimID:     claimID,
		Diagnostics: errs.Diagnostics(err),
		RequestID:   requestIDFrom(r),
	}
	var e *errs.Error
	if errors.As(err, &e) {
		resp.Query = e.Query
	}
	if resp.Error == "" {
		resp.Error = "Internal"
	}

	entry := s.log.WithFields(logrus.Fields{
		"claim_id":   claimID,
		"request_id": resp.RequestID,
		"kind":       resp.Error,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Info("Request rejected")
	}
	writeJSON(w, status, resp)
}

// StatusFor maps an error kind to its HTTP status
func StatusFor(err error) int {
	// a deadline inside any kind still means the upstream did not answer in time
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindInvalidCriteria:
		return http.StatusBadRequest
	case errs.KindQueryConstructionError:
		return http.StatusBadGateway
	case errs.KindRepositoryUnavailable, errs.KindReasoningUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// ListenAndServe runs the handler until ctx is cancelled, then shuts down gracefully
func ListenAndServe(ctx context.Context, cfg model.ServerConfig, handler http.Handler, log logrus.FieldLogger) error {
	log = logging.OrDiscard(log)
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr).Info("API server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("API server stopped")
	return nil
}
