// Package api exposes the extraction pipeline over HTTP. It is a thin
// adapter: decode the request, call the pipeline entry points, encode the
// result. All extraction semantics live in the pipeline package.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/kit"
	"github.com/hazyhaar/textract/observability"
	"github.com/hazyhaar/textract/pipeline"
)

// maxUploadSize bounds request bodies (1 GiB).
const maxUploadSize = 1 << 30

// Server wires the pipeline to a chi router.
type Server struct {
	pipe    *pipeline.Pipeline
	logger  *slog.Logger
	metrics *observability.MetricsManager
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics enables recording of request metrics.
func WithMetrics(mm *observability.MetricsManager) Option {
	return func(s *Server) { s.metrics = mm }
}

// NewServer creates a Server around pipe.
func NewServer(pipe *pipeline.Pipeline, opts ...Option) *Server {
	s := &Server{pipe: pipe, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes returns the HTTP router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Post("/extract", s.handleExtract)
	r.Post("/extract/batch", s.handleExtractBatch)
	r.Get("/formats", s.handleFormats)
	r.Get("/cache/stats", s.handleCacheStats)
	r.Post("/cache/clear", s.handleCacheClear)
	r.Get("/healthz", s.handleHealth)
	return r
}

// handleExtract accepts either a multipart form (one "file" part plus an
// optional "config" JSON part) or the raw document as the request body
// with the filename in X-Filename.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	ctx := kit.WithRequestID(r.Context(), reqID)
	start := time.Now()

	src, cfg, err := s.decodeRequest(r)
	if err != nil {
		s.writeError(w, reqID, http.StatusBadRequest, err)
		return
	}

	res, err := s.pipe.Extract(ctx, src, cfg)
	s.recordExtract(time.Since(start), err)
	if err != nil {
		s.writeError(w, reqID, statusFor(err), err)
		return
	}

	s.writeJSON(w, reqID, http.StatusOK, res)
}

// handleExtractBatch accepts a multipart form with repeated "file" parts
// and returns one slot per file, in upload order.
func (s *Server) handleExtractBatch(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	ctx := kit.WithRequestID(r.Context(), reqID)
	start := time.Now()

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		s.writeError(w, reqID, http.StatusBadRequest, err)
		return
	}
	cfg, err := configFromForm(r)
	if err != nil {
		s.writeError(w, reqID, http.StatusBadRequest, err)
		return
	}

	var srcs []*textract.Source
	for _, fh := range r.MultipartForm.File["file"] {
		src, err := sourceFromPart(fh)
		if err != nil {
			s.writeError(w, reqID, http.StatusBadRequest, err)
			return
		}
		srcs = append(srcs, src)
	}
	if len(srcs) == 0 {
		s.writeError(w, reqID, http.StatusBadRequest, errors.New("no file parts in request"))
		return
	}

	items := s.pipe.ExtractBatch(ctx, srcs, cfg)
	if s.metrics != nil {
		s.metrics.RecordSimple(observability.MetricBatchSize, float64(len(items)), "count")
	}
	s.recordExtract(time.Since(start), nil)

	type slot struct {
		Result *textract.Result `json:"result,omitempty"`
		Error  string           `json:"error,omitempty"`
	}
	out := make([]slot, len(items))
	for i, item := range items {
		out[i].Result = item.Result
		if item.Err != nil {
			out[i].Error = item.Err.Error()
		}
	}
	s.writeJSON(w, reqID, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "", http.StatusOK, map[string]any{"formats": s.pipe.SupportedFormats()})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := s.pipe.CacheStats()
	if s.metrics != nil {
		s.metrics.RecordSimple(observability.MetricCacheHits, float64(stats.Hits), "count")
		s.metrics.RecordSimple(observability.MetricCacheMisses, float64(stats.Misses), "count")
	}
	s.writeJSON(w, "", http.StatusOK, stats)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.pipe.ClearCache()
	s.writeJSON(w, "", http.StatusOK, map[string]any{"cleared": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "", http.StatusOK, map[string]any{"status": "ok"})
}

// decodeRequest builds a Source (and optional per-request config) from
// either a multipart form or the raw body.
func (s *Server) decodeRequest(r *http.Request) (*textract.Source, *textract.Config, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/") {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			return nil, nil, err
		}
		files := r.MultipartForm.File["file"]
		if len(files) == 0 {
			return nil, nil, errors.New("missing file part")
		}
		src, err := sourceFromPart(files[0])
		if err != nil {
			return nil, nil, err
		}
		cfg, err := configFromForm(r)
		if err != nil {
			return nil, nil, err
		}
		return src, cfg, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize))
	if err != nil {
		return nil, nil, err
	}
	return &textract.Source{
		Data:     data,
		Filename: r.Header.Get("X-Filename"),
		MIMEType: contentType,
	}, nil, nil
}

func sourceFromPart(fh *multipart.FileHeader) (*textract.Source, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
	if err != nil {
		return nil, err
	}
	return &textract.Source{
		Data:     data,
		Filename: fh.Filename,
		MIMEType: fh.Header.Get("Content-Type"),
	}, nil
}

// configFromForm parses the optional "config" JSON form value.
func configFromForm(r *http.Request) (*textract.Config, error) {
	raw := r.FormValue("config")
	if raw == "" {
		return nil, nil
	}
	var cfg textract.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Server) recordExtract(elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordDuration(observability.MetricExtractDurationMs, elapsed, nil)
	s.metrics.RecordSimple(observability.MetricExtractCount, 1, "count")
	if err != nil {
		s.metrics.RecordSimple(observability.MetricExtractErrors, 1, "count")
	}
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var cfgErr *textract.ConfigError
	var valErr *textract.ValidationError
	switch {
	case errors.Is(err, textract.ErrUnknownFormat),
		errors.Is(err, textract.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.As(err, &valErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, textract.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, reqID string, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if reqID != "" {
		w.Header().Set("X-Request-ID", reqID)
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, reqID string, status int, err error) {
	s.logger.Warn("request failed", "request_id", reqID, "status", status, "error", err)
	s.writeJSON(w, reqID, status, map[string]string{"error": err.Error()})
}
