package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"glucolog/reporter/defs"
	"glucolog/reporter/pkg/notes"
	"glucolog/reporter/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glucolog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "glucolog_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	notesSavedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "glucolog_notes_saved_total",
			Help: "Total number of note overrides saved",
		},
	)
)

type httpStore interface {
	store.DayStore
	store.GlucoseStore
}

type HttpServer struct {
	Store      httpStore
	Notes      notes.Store
	ReportPath string
	Logger     *zap.Logger

	// OnNoteChange runs after an override is saved or deleted, typically to
	// rebuild the report. Failures are logged only.
	OnNoteChange func(ctx context.Context) error

	// ReportSource, when set, is tried before ReportPath.
	ReportSource func(ctx context.Context) (io.Reader, error)

	router *gin.Engine
}

type noteRequest struct {
	Timestamp string `json:"timestamp"`
	Note      string `json:"note"`
}

func New(s httpStore, ns notes.Store, reportPath string, logger *zap.Logger) *HttpServer {
	hs := &HttpServer{
		Store:      s,
		Notes:      ns,
		ReportPath: reportPath,
		Logger:     logger,
	}
	hs.routes()
	return hs
}

func (s *HttpServer) Handler() http.Handler {
	return s.router
}

func (s *HttpServer) routes() {
	r := gin.New()
	r.Use(gin.Recovery(), s.instrument)

	r.GET("/", s.report)
	r.POST("/save_note", s.saveNote)
	r.DELETE("/notes/:timestamp", s.deleteNote)
	r.GET("/days/:date", s.day)
	r.GET("/glucose", s.glucose)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router = r
}

func (s *HttpServer) instrument(c *gin.Context) {
	start := time.Now()
	c.Next()

	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = "unmatched"
	}
	status := strconv.Itoa(c.Writer.Status())

	httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
	requestDurationSeconds.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())

	s.Logger.Debug("handled request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("status", status),
		zap.Duration("took", time.Since(start)),
	)
}

func (s *HttpServer) report(c *gin.Context) {
	if s.ReportSource != nil {
		b, err := s.storedReport(c.Request.Context())
		if err == nil {
			c.Data(http.StatusOK, "text/html; charset=utf-8", b)
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			s.Logger.Warn("unable to read stored report, serving file", zap.Error(err))
		}
	}

	if _, err := os.Stat(s.ReportPath); err != nil {
		c.String(http.StatusNotFound, "report not generated yet")
		return
	}
	c.File(s.ReportPath)
}

func (s *HttpServer) storedReport(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, defs.TimeoutInterval)
	defer cancel()

	r, err := s.ReportSource(ctx)
	if err != nil {
		return nil, err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read report: %w", err)
	}
	return b, nil
}

func (s *HttpServer) saveNote(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid JSON"})
		return
	}

	if req.Timestamp == "" || req.Note == "" {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "Missing data"})
		return
	}

	if err := s.Notes.Set(req.Timestamp, req.Note); err != nil {
		s.Logger.Error("unable to save note", zap.String("timestamp", req.Timestamp), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	notesSavedTotal.Inc()

	s.noteChanged(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *HttpServer) deleteNote(c *gin.Context) {
	timestamp := c.Param("timestamp")
	if err := s.Notes.Delete(timestamp); err != nil {
		s.Logger.Error("unable to delete note", zap.String("timestamp", timestamp), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	s.noteChanged(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *HttpServer) noteChanged(ctx context.Context) {
	if s.OnNoteChange == nil {
		return
	}
	if err := s.OnNoteChange(ctx); err != nil {
		s.Logger.Warn("unable to refresh after note change", zap.Error(err))
	}
}

func (s *HttpServer) day(c *gin.Context) {
	date := c.Param("date")
	if _, err := time.Parse(defs.DateLayout, date); err != nil {
		c.String(http.StatusBadRequest, "expected date as YYYY-MM-DD")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), defs.TimeoutInterval)
	defer cancel()

	day, err := s.Store.ReadDay(ctx, date)
	if errors.Is(err, store.ErrNotFound) {
		c.String(http.StatusNotFound, "no data for %s", date)
		return
	}
	if err != nil {
		c.String(http.StatusInternalServerError, "something went wrong reading day: %v", err)
		return
	}

	c.JSON(http.StatusOK, notes.ApplyToDay(s.Notes, *day))
}

func (s *HttpServer) glucose(c *gin.Context) {
	end := c.DefaultQuery("end", "")
	endUnix, err := strconv.ParseInt(end, 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "expected unix timestamp for end")
		return
	}

	start := c.DefaultQuery("start", "")
	startUnix, err := strconv.ParseInt(start, 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "expected unix timestamp for start")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), defs.TimeoutInterval)
	defer cancel()

	ms, err := s.Store.ReadMeasurements(ctx, time.Unix(startUnix, 0), time.Unix(endUnix, 0))
	if err != nil {
		c.String(http.StatusInternalServerError, "something went wrong reading glucose: %v", err)
		return
	}

	c.JSON(http.StatusOK, notes.ApplyOverrides(s.Notes, ms))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within defs.ShutdownInterval.
func (s *HttpServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errc := make(chan error, 1)
	go func() {
		s.Logger.Info("serving http", zap.String("address", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Logger.Info("shutting down http server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defs.ShutdownInterval)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
