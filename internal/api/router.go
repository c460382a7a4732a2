// Package api exposes generation, library, settings and setup over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"songgen-studio/internal/catalog"
	"songgen-studio/internal/domain"
	"songgen-studio/internal/jobs"
	"songgen-studio/internal/models"
)

// Service is the application behavior the handlers call into.
type Service interface {
	StartGeneration(ctx context.Context, input domain.GenerationInput) (domain.Job, *jobs.Stream, error)
	CancelJob(jobID string) error
	JobStatus(jobID string, since int64) (domain.Job, []jobs.Event, error)
	Jobs() []domain.Job

	ListSongs(ctx context.Context, q catalog.ListQuery) (catalog.Page, error)
	GetSong(ctx context.Context, id string) (*domain.Song, error)
	UpdateSongTitle(ctx context.Context, id, title string) (*domain.Song, error)
	DeleteSong(ctx context.Context, id string) error

	Settings() (domain.Settings, error)
	UpdateSettings(update domain.SettingsUpdate) (domain.Settings, error)

	GPUInfo(ctx context.Context) domain.GPUInfo
	Diagnostics() (domain.DiagnosticReport, error)
	FixDiagnostic(ctx context.Context, itemID string) (domain.DiagnosticReport, error)

	SetupStatus() (domain.SetupStatus, error)
	StartModelDownload(name string) (*jobs.Stream, error)
	SelectModel(name string) error
}

// Options tunes transport behavior.
type Options struct {
	AllowedOrigins []string
	// IdleTimeout is how long a stream waits before sending a keepalive.
	IdleTimeout time.Duration
	// CancelOnDisconnect kills a job when its only subscriber goes away.
	CancelOnDisconnect bool
	// MaxUploadBytes bounds the reference audio upload.
	MaxUploadBytes int64
}

const defaultMaxUploadBytes = 50 << 20

type handler struct {
	svc    Service
	opts   Options
	logger *slog.Logger
}

// NewRouter builds the Echo server with every /api route registered.
func NewRouter(svc Service, opts Options, logger *slog.Logger) *echo.Echo {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = jobs.DefaultIdleTimeout
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	h := &handler{svc: svc, opts: opts, logger: logger}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = h.errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     opts.AllowedOrigins,
		AllowCredentials: true,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				logger.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Debug("request", attrs...)
			return nil
		},
	}))

	g := e.Group("/api")
	g.GET("/health", h.health)

	g.POST("/generate", h.generate)
	g.GET("/generate/ws", h.generateWS)
	g.GET("/generate/status/:jobId", h.jobStatus)
	g.POST("/generate/:jobId/cancel", h.cancelJob)
	g.GET("/jobs", h.listJobs)

	g.GET("/library", h.listSongs)
	g.GET("/library/:id", h.getSong)
	g.PATCH("/library/:id", h.updateSong)
	g.DELETE("/library/:id", h.deleteSong)
	g.GET("/library/:id/audio", h.audio)
	g.GET("/library/:id/download", h.download)

	g.GET("/settings", h.getSettings)
	g.PUT("/settings", h.updateSettings)
	g.GET("/gpu", h.gpu)
	g.GET("/diagnostics", h.diagnostics)
	g.POST("/diagnostics/:id/fix", h.fixDiagnostic)

	g.GET("/setup/status", h.setupStatus)
	g.POST("/setup/download", h.downloadModel)
	g.POST("/setup/select-model", h.selectModel)

	return e
}

// errorResponse mirrors the {"detail": "..."} body clients expect.
type errorResponse struct {
	Detail string `json:"detail"`
}

// errorHandler maps domain errors to status codes.
func (h *handler) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, detail := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("handler error", "path", c.Path(), "error", err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, errorResponse{Detail: detail})
}

func statusFor(err error) (int, string) {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		if msg, ok := httpErr.Message.(string); ok {
			return httpErr.Code, msg
		}
		return httpErr.Code, http.StatusText(httpErr.Code)
	case errors.Is(err, catalog.ErrSongNotFound):
		return http.StatusNotFound, "Song not found"
	case errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound, "Job not found"
	case errors.Is(err, jobs.ErrNoRunningJob):
		return http.StatusConflict, "Job is not running"
	case errors.Is(err, jobs.ErrServerBusy):
		return http.StatusServiceUnavailable, "Server busy, another generation is running"
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidStemType),
		errors.Is(err, domain.ErrInvalidSettings):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, models.ErrUnknownModel):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotInstalled):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrDownloadInProgress):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (h *handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
