package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	log "github.com/sirupsen/logrus"
)

const maxRequestBytes = 64 << 10

// Scanner runs one scan request to completion.
type Scanner interface {
	Execute(ctx context.Context, req usecase.ScanRequest) (*usecase.ScanResult, error)
}

// AdapterInfo describes an analyzer in GET /v1/adapters.
type AdapterInfo struct {
	Name     domain.ToolName `json:"name"`
	Category string          `json:"category"`
	Enabled  bool            `json:"enabled"`
}

// Server exposes scans over HTTP. Scans run synchronously within the
// request; at most MaxConcurrent run at once and further requests get 429.
type Server struct {
	Scanner  Scanner
	Adapters []AdapterInfo
	Log      *log.Entry

	sem chan struct{}
}

func NewServer(s Scanner, adapters []AdapterInfo, maxConcurrent int, l *log.Entry) *Server {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if l == nil {
		l = log.NewEntry(log.StandardLogger())
	}
	return &Server{Scanner: s, Adapters: adapters, Log: l, sem: make(chan struct{}, maxConcurrent)}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/adapters", s.listAdapters)
		r.Post("/scans", s.runScan)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) listAdapters(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{"adapters": s.Adapters})
}

func (s *Server) runScan(w http.ResponseWriter, r *http.Request) {
	var req usecase.ScanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "invalid json"})
		return
	}
	if _, err := usecase.ValidateURL(req.URL); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": err.Error()})
		return
	}
	for _, t := range req.Tools {
		if _, err := domain.ParseToolName(string(t)); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": err.Error()})
			return
		}
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	default:
		render.Status(r, http.StatusTooManyRequests)
		render.JSON(w, r, map[string]string{"error": "scan capacity exhausted, retry later"})
		return
	}

	res, err := s.Scanner.Execute(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, usecase.ErrInvalidURL) {
			status = http.StatusBadRequest
		}
		s.Log.WithError(err).WithField("url", req.URL).Error("Scan failed")
		render.Status(r, status)
		render.JSON(w, r, map[string]string{"error": err.Error()})
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, res)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}
