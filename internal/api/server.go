// Package api exposes the pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/boq-extractor/internal/learning"
	"github.com/sells-group/boq-extractor/internal/model"
	"github.com/sells-group/boq-extractor/internal/pipeline"
	"github.com/sells-group/boq-extractor/internal/store"
)

// Service is the pipeline surface served over HTTP.
type Service interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	GetExtraction(ctx context.Context, id string) (*model.Extraction, error)
	ListClarifications(ctx context.Context, extractionID string, status model.ClarificationStatus) ([]model.Clarification, error)
	AnswerClarification(ctx context.Context, req pipeline.AnswerRequest) (*pipeline.AnswerResult, error)
	SkipClarification(ctx context.Context, id string) (*pipeline.AnswerResult, error)
	RecordCorrection(ctx context.Context, req pipeline.CorrectionRequest) (*model.LearningRule, error)
	SeedRule(ctx context.Context, r learning.SeedRule) (*model.LearningRule, error)
	ListRules(ctx context.Context, t model.LearningType, activeOnly bool) ([]model.LearningRule, error)
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	MaxUploadBytes int64
	// ProviderStates reports circuit breaker state per AI provider on
	// /health. Nil omits the field.
	ProviderStates func() map[string]string
}

// Server holds the HTTP handlers.
type Server struct {
	svc  Service
	opts Options
}

// NewServer creates a Server.
func NewServer(svc Service, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{svc: svc, opts: opts}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/extractions", s.handleExtract)
	r.Get("/extractions/{id}", s.handleGetExtraction)
	r.Get("/extractions/{id}/clarifications", s.handleListClarifications)
	r.Post("/clarifications/{id}/answer", s.handleAnswer)
	r.Post("/clarifications/{id}/skip", s.handleSkip)
	r.Post("/corrections", s.handleCorrection)
	r.Post("/rules", s.handleSeedRule)
	r.Get("/rules", s.handleListRules)
	return r
}

type healthResponse struct {
	Status    string            `json:"status"`
	Providers map[string]string `json:"providers,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.opts.ProviderStates != nil {
		resp.Providers = s.opts.ProviderStates()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExtract runs one extraction synchronously.
// POST /extractions (multipart: file, provider, product_type...)
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "file could not be read")
		return
	}

	res, err := s.svc.Process(r.Context(), pipeline.Request{
		Filename:     header.Filename,
		Data:         data,
		Provider:     r.FormValue("provider"),
		ProductTypes: r.MultipartForm.Value["product_type"],
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetExtraction(w http.ResponseWriter, r *http.Request) {
	ext, err := s.svc.GetExtraction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ext)
}

// GET /extractions/{id}/clarifications?status=pending
func (s *Server) handleListClarifications(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.svc.GetExtraction(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	cs, err := s.svc.ListClarifications(r.Context(), id, model.ClarificationStatus(r.URL.Query().Get("status")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if cs == nil {
		cs = []model.Clarification{}
	}
	writeJSON(w, http.StatusOK, cs)
}

// POST /clarifications/{id}/answer
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req pipeline.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ClarificationID = chi.URLParam(r, "id")
	if req.ResponseType == "" {
		req.ResponseType = model.ResponseText
	}

	res, err := s.svc.AnswerClarification(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.SkipClarification(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCorrection(w http.ResponseWriter, r *http.Request) {
	var req pipeline.CorrectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := s.svc.RecordCorrection(r.Context(), req); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type seedRuleRequest struct {
	Category               string   `json:"category"`
	PatternKey             string   `json:"patternKey"`
	LearnedValue           string   `json:"learnedValue"`
	ApplicableProductTypes []string `json:"applicableProductTypes,omitempty"`
}

func (s *Server) handleSeedRule(w http.ResponseWriter, r *http.Request) {
	var req seedRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rule, err := s.svc.SeedRule(r.Context(), learning.SeedRule{
		Category:               req.Category,
		PatternKey:             req.PatternKey,
		LearnedValue:           req.LearnedValue,
		ApplicableProductTypes: req.ApplicableProductTypes,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// GET /rules?type=correction&active=true
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rules, err := s.svc.ListRules(r.Context(), model.LearningType(q.Get("type")), q.Get("active") == "true")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rules == nil {
		rules = []model.LearningRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

// fail maps pipeline errors to status codes. Unclassified errors are logged
// and reported without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case pipeline.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found")
	case eris.Is(err, pipeline.ErrClarificationResolved):
		writeError(w, http.StatusConflict, "clarification already resolved")
	case eris.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "an active rule already exists for this key")
	case eris.Is(err, pipeline.ErrInvalidAnswer), eris.Is(err, learning.ErrInvalidRule):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
