// Package mockserver is an in-memory implementation of the generation service
// contract, used for local development and end-to-end tests.
package mockserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"mapgen/internal/model"
)

// Options tunes the simulated lifecycle.
type Options struct {
	QueueFor   time.Duration // time a task reports "queued"
	ProcessFor time.Duration // time a task then reports "processing"
	Logger     *zerolog.Logger
	Now        func() time.Time
}

// Server holds submitted tasks and serves the contract over chi.
type Server struct {
	mu    sync.Mutex
	tasks map[string]*task

	queueFor   time.Duration
	processFor time.Duration
	now        func() time.Time
	logger     zerolog.Logger

	registry  *prometheus.Registry
	submitted *prometheus.CounterVec
	polled    *prometheus.CounterVec
	downloads prometheus.Counter
}

type task struct {
	id          string
	created     time.Time
	settings    model.Document
	queueFor    time.Duration
	processFor  time.Duration
	fail        bool
	previewFail bool
}

// New constructs a Server with defaults for unset options.
func New(opts Options) *Server {
	if opts.QueueFor <= 0 {
		opts.QueueFor = 6 * time.Second
	}
	if opts.ProcessFor <= 0 {
		opts.ProcessFor = 12 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	s := &Server{
		tasks:      make(map[string]*task),
		queueFor:   opts.QueueFor,
		processFor: opts.ProcessFor,
		now:        opts.Now,
		logger:     logger.With().Str("component", "mockserver").Logger(),
		registry:   prometheus.NewRegistry(),
		submitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapgen_mock_submissions_total",
				Help: "Generation submissions by outcome (queued, silent, rejected).",
			},
			[]string{"outcome"},
		),
		polled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapgen_mock_status_requests_total",
				Help: "Status requests by reported status.",
			},
			[]string{"status"},
		),
		downloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mapgen_mock_downloads_total",
			Help: "Archives streamed to clients.",
		}),
	}
	s.registry.MustRegister(s.submitted, s.polled, s.downloads)
	return s
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)
		r.Get("/status/{id}", s.handleStatus)
		r.Get("/previews/{id}", s.handlePreviews)
		r.Get("/previews/{id}/{file}", s.handlePreviewFile)
		r.Get("/download/{id}", s.handleDownload)
	})
	return r
}

// TaskCount reports how many tasks have been accepted.
func (s *Server) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

type generateRequest struct {
	Settings      model.Document `json:"settings"`
	AuxiliaryData model.Document `json:"auxiliaryData"`
	Template      model.Document `json:"template"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.submitted.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   fmt.Sprintf("invalid request body: %v", err),
		})
		return
	}
	if req.Settings == nil {
		s.submitted.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "settings are required"})
		return
	}
	if boolSetting(req.Settings, "silent") {
		s.submitted.WithLabelValues("silent").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	t := &task{
		id:          uuid.NewString(),
		created:     s.now(),
		settings:    req.Settings,
		queueFor:    durationSetting(req.Settings, "queue_seconds", s.queueFor),
		processFor:  durationSetting(req.Settings, "process_seconds", s.processFor),
		fail:        boolSetting(req.Settings, "fail"),
		previewFail: boolSetting(req.Settings, "preview_fail"),
	}
	s.mu.Lock()
	s.tasks[t.id] = t
	s.mu.Unlock()

	s.submitted.WithLabelValues("queued").Inc()
	s.logger.Info().Str("task_id", t.id).Dur("queue_for", t.queueFor).Dur("process_for", t.processFor).Msg("task accepted")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "taskId": t.id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "task not found"})
		return
	}
	status := s.statusOf(t)
	s.polled.WithLabelValues(status).Inc()
	body := map[string]any{"status": status}
	if status == "failed" {
		body["error"] = "terrain generation failed: simulated failure"
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handlePreviews(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "task not found"})
		return
	}
	if s.statusOf(t) != "completed" {
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": "task is not completed"})
		return
	}
	if t.previewFail {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "preview renderer unavailable"})
		return
	}
	heightmap, err := renderHeightmap(t.settings)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"previews": []model.PreviewArtifact{{
			URL:      "api/previews/" + t.id + "/heightmap.png",
			Filename: "heightmap.png",
			Size:     int64(len(heightmap)),
			Kind:     "image",
		}},
	})
}

func (s *Server) handlePreviewFile(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok || s.statusOf(t) != "completed" || chi.URLParam(r, "file") != "heightmap.png" {
		http.NotFound(w, r)
		return
	}
	png, err := renderHeightmap(t.settings)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "task not found"})
		return
	}
	if s.statusOf(t) != "completed" {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "task is not completed"})
		return
	}
	archive, err := buildArchive(t)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	s.downloads.Inc()
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, archiveName(t)))
	w.Header().Set("Content-Length", fmt.Sprint(len(archive)))
	_, _ = w.Write(archive)
}

func (s *Server) lookup(id string) (*task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

func (s *Server) statusOf(t *task) string {
	elapsed := s.now().Sub(t.created)
	switch {
	case elapsed < t.queueFor:
		return "queued"
	case elapsed < t.queueFor+t.processFor:
		return "processing"
	case t.fail:
		return "failed"
	default:
		return "completed"
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := s.now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", s.now().Sub(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func boolSetting(doc model.Document, key string) bool {
	v, ok := doc[key].(bool)
	return ok && v
}

func durationSetting(doc model.Document, key string, def time.Duration) time.Duration {
	switch v := doc[key].(type) {
	case float64:
		if v >= 0 {
			return time.Duration(v * float64(time.Second))
		}
	case int:
		if v >= 0 {
			return time.Duration(v) * time.Second
		}
	}
	return def
}
