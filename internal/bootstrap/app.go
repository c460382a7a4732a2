package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"songgen-studio/internal/api"
	"songgen-studio/internal/catalog"
	"songgen-studio/internal/config"
	"songgen-studio/internal/diagnostics"
	"songgen-studio/internal/domain"
	"songgen-studio/internal/generate"
	"songgen-studio/internal/jobs"
	"songgen-studio/internal/models"
	"songgen-studio/internal/process"
)

const (
	shutdownTimeout = 15 * time.Second
	streamBuffer    = 64
	eventHistory    = 2000
)

// App wires configuration, jobs, generation, the catalog and the HTTP server.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	settings     *config.JSONStore
	songs        *catalog.Store
	models       *models.Catalog
	downloader   *models.Downloader
	jobs         *jobs.Manager
	events       *jobs.EventBus
	orchestrator *generate.Orchestrator
	checker      *diagnostics.Checker
	gpu          *diagnostics.GPUProbe
	janitor      *jobs.Janitor
	executor     process.Executor
	lookPath     func(string) (string, error)

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	newID   func() string
	now     func() time.Time
}

var _ api.Service = (*App)(nil)

// deps are the process boundaries of the app, swapped out in tests.
type deps struct {
	runner   process.Runner
	executor process.Executor
	logOut   io.Writer
}

// New builds the application from cfg using real external processes.
func New(cfg *config.Config) (*App, error) {
	return build(cfg, deps{
		runner:   process.NewExecRunner(),
		executor: process.NewExecExecutor(),
		logOut:   os.Stderr,
	})
}

func build(cfg *config.Config, d deps) (*App, error) {
	logger := newLogger(cfg, d.logOut)
	slog.SetDefault(logger)

	for _, dir := range []string{cfg.DataDir, cfg.TempDir, cfg.OutputDir, cfg.ModelsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	defaults := config.DefaultSettings(cfg.DataDir)
	defaults.OutputDir = cfg.OutputDir
	store := config.NewJSONStore(cfg.SettingsPath, defaults)
	if _, err := store.Load(); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	db, err := catalog.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	songs := catalog.NewStore(db)
	if err := songs.Migrate(context.Background()); err != nil {
		_ = songs.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}

	baseCtx, stop := context.WithCancel(context.Background())
	manager := jobs.NewManager(cfg.MaxConcurrentJobs)
	modelCatalog := models.NewCatalog(cfg.ModelsDir)

	app := &App{
		cfg:      cfg,
		logger:   logger,
		settings: store,
		songs:    songs,
		models:   modelCatalog,
		jobs:     manager,
		events:   jobs.NewEventBus(eventHistory),
		checker:  diagnostics.NewChecker(),
		gpu:      diagnostics.NewGPUProbe(cfg.NvidiaSMIPath, d.executor),
		janitor:  jobs.NewJanitor(cfg.TempDir, cfg.JanitorMaxAge, manager, logger.With("component", "janitor")),
		executor: d.executor,
		lookPath: exec.LookPath,
		baseCtx:  baseCtx,
		stop:     stop,
		newID:    func() string { return uuid.NewString()[:8] },
		now:      time.Now,
	}

	app.downloader = models.NewDownloader(modelCatalog, cfg.HFCLIPath, d.runner, app, logger.With("component", "downloader"))
	app.orchestrator = generate.NewOrchestrator(
		generate.Config{
			Generator: process.Command{
				Path: cfg.GeneratorCmd[0],
				Args: cfg.GeneratorCmd[1:],
				Dir:  cfg.GeneratorDir,
			},
			TempRoot:   cfg.TempDir,
			OutputRoot: cfg.OutputDir,
			KeepFailed: cfg.KeepFailedJobs,
		},
		d.runner,
		generate.NewPostProcessor(cfg.FFmpegPath, cfg.FFprobePath, d.executor, nil, logger.With("component", "postprocess")),
		modelCatalog,
		songs,
		manager,
		logger.With("component", "orchestrator"),
	)

	return app, nil
}

// Run serves HTTP until SIGINT or SIGTERM, then shuts down gracefully.
func (a *App) Run() error {
	if err := a.janitor.Start(a.cfg.JanitorSchedule); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}
	defer a.janitor.Stop()

	e := api.NewRouter(a, api.Options{
		AllowedOrigins:     a.cfg.AllowedOrigins,
		IdleTimeout:        a.cfg.StreamIdleTimeout,
		CancelOnDisconnect: a.cfg.CancelOnDisconnect,
	}, a.logger.With("component", "http"))

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.cfg.Addr)
		if err := e.Start(a.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			_ = a.Close()
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		a.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}
	return a.Close()
}

// Close cancels running jobs and downloads, waits for them and closes the
// catalog.
func (a *App) Close() error {
	a.stop()
	a.wg.Wait()
	return a.songs.Close()
}

// StartGeneration validates input, reserves a slot and runs the job in the
// background. The returned stream carries the job's events.
func (a *App) StartGeneration(ctx context.Context, input domain.GenerationInput) (domain.Job, *jobs.Stream, error) {
	if err := input.Validate(); err != nil {
		return domain.Job{}, nil, err
	}

	settings, err := a.settings.Load()
	if err != nil {
		return domain.Job{}, nil, fmt.Errorf("load settings: %w", err)
	}

	release, err := a.jobs.Acquire(ctx, a.cfg.QueueWait)
	if err != nil {
		return domain.Job{}, nil, err
	}

	jobID := a.newID()
	songID := fmt.Sprintf("song_%s_%s", a.now().Format("20060102_150405"), jobID)
	jobCtx, cancel := context.WithCancel(a.baseCtx)

	job, err := a.jobs.Register(jobID, songID, cancel)
	if err != nil {
		cancel()
		release()
		return domain.Job{}, nil, err
	}

	stream := jobs.NewStream(jobID, streamBuffer, a.events)
	req := generate.Request{
		JobID:    jobID,
		SongID:   songID,
		Input:    input,
		Settings: settings,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer release()
		defer cancel()
		_ = a.orchestrator.Run(jobCtx, req, stream)
	}()

	return job, stream, nil
}

// CancelJob kills a running job's generator.
func (a *App) CancelJob(jobID string) error {
	return a.jobs.Cancel(jobID)
}

// JobStatus returns a job snapshot and its recorded events after since.
func (a *App) JobStatus(jobID string, since int64) (domain.Job, []jobs.Event, error) {
	job, ok := a.jobs.Get(jobID)
	if !ok {
		return domain.Job{}, nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}
	return job, a.events.ForJob(jobID, since), nil
}

// Jobs lists tracked jobs, newest first.
func (a *App) Jobs() []domain.Job {
	return a.jobs.List()
}

func (a *App) ListSongs(ctx context.Context, q catalog.ListQuery) (catalog.Page, error) {
	return a.songs.List(ctx, q)
}

func (a *App) GetSong(ctx context.Context, id string) (*domain.Song, error) {
	return a.songs.Get(ctx, id)
}

func (a *App) UpdateSongTitle(ctx context.Context, id, title string) (*domain.Song, error) {
	return a.songs.UpdateTitle(ctx, id, title)
}

func (a *App) DeleteSong(ctx context.Context, id string) error {
	return a.songs.Delete(ctx, id)
}

// Settings loads the persisted user settings.
func (a *App) Settings() (domain.Settings, error) {
	return a.settings.Load()
}

// UpdateSettings applies a partial update. Running jobs keep the snapshot
// they started with.
func (a *App) UpdateSettings(update domain.SettingsUpdate) (domain.Settings, error) {
	if update.OutputDir != nil {
		dir := strings.TrimSpace(*update.OutputDir)
		if dir == "" {
			return domain.Settings{}, fmt.Errorf("%w: output_dir must not be empty", domain.ErrInvalidSettings)
		}
		update.OutputDir = &dir
	}
	return a.settings.Update(update.Apply)
}

// GPUInfo reports the first GPU.
func (a *App) GPUInfo(ctx context.Context) domain.GPUInfo {
	return a.gpu.Info(ctx)
}

// Diagnostics runs every environment check against the current settings.
func (a *App) Diagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.settings.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	return a.checker.Run(a.diagnosticTargets(settings)), nil
}

func (a *App) diagnosticTargets(settings domain.Settings) diagnostics.Targets {
	targets := diagnostics.Targets{
		Tools:        []string{a.cfg.FFmpegPath, a.cfg.FFprobePath, a.cfg.HFCLIPath, a.cfg.GeneratorCmd[0]},
		GeneratorDir: a.cfg.GeneratorDir,
		CurrentModel: settings.CurrentModel,
		OutputDir:    settings.OutputDir,
	}
	if settings.CurrentModel != "" {
		targets.ModelPath = a.models.Path(settings.CurrentModel)
	}
	return targets
}
