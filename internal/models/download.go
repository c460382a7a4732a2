package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"songgen-studio/internal/jobs"
	"songgen-studio/internal/process"
)

// ErrDownloadInProgress is returned by Acquire while another download runs.
var ErrDownloadInProgress = errors.New("a model download is already in progress")

var (
	errRuntimeDownload = errors.New("runtime download failed")
	errModelDownload   = errors.New("model download failed")
)

// ModelSelector persists the chosen model after a successful download.
type ModelSelector interface {
	SelectModel(name string) error
}

// Downloader fetches checkpoints with huggingface-cli and reports progress
// on a job event stream.
type Downloader struct {
	catalog  *Catalog
	cliPath  string
	runner   process.Runner
	selector ModelSelector
	logger   *slog.Logger
	busy     atomic.Bool
}

// NewDownloader builds a downloader.
func NewDownloader(catalog *Catalog, cliPath string, runner process.Runner, selector ModelSelector, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		catalog:  catalog,
		cliPath:  cliPath,
		runner:   runner,
		selector: selector,
		logger:   logger,
	}
}

// Acquire reserves the downloader; only one download runs at a time.
func (d *Downloader) Acquire() (func(), error) {
	if !d.busy.CompareAndSwap(false, true) {
		return nil, ErrDownloadInProgress
	}
	return func() { d.busy.Store(false) }, nil
}

// Download installs the runtime (when missing) and then the model, selects
// it, and ends the stream with exactly one done or error event.
func (d *Downloader) Download(ctx context.Context, name string, stream *jobs.Stream) {
	if err := d.download(ctx, name, stream); err != nil {
		d.logger.Error("model download failed", "model", name, "error", err)
		_ = stream.Publish(jobs.EventKindError, map[string]any{"message": downloadErrorMessage(err)})
		return
	}
	_ = stream.Publish(jobs.EventKindDone, map[string]any{
		"message": fmt.Sprintf("%s downloaded successfully", name),
		"model":   name,
	})
}

func (d *Downloader) download(ctx context.Context, name string, stream *jobs.Stream) error {
	preset, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}

	if err := os.MkdirAll(d.catalog.Dir(), 0o755); err != nil {
		return fmt.Errorf("create models directory: %w", err)
	}

	if !d.catalog.RuntimeInstalled() {
		_ = stream.Publish(jobs.EventKindStatus, map[string]any{
			"message": "Downloading runtime files...",
			"stage":   "runtime",
		})
		if err := d.fetch(ctx, RuntimeRepo, d.catalog.RuntimeDir(), stream); err != nil {
			return fmt.Errorf("%w: %w", errRuntimeDownload, err)
		}
		_ = stream.Publish(jobs.EventKindStatus, map[string]any{
			"message": "Runtime downloaded successfully",
			"stage":   "runtime_complete",
		})
	}

	_ = stream.Publish(jobs.EventKindStatus, map[string]any{
		"message": fmt.Sprintf("Downloading %s...", name),
		"stage":   "model",
	})
	if err := d.fetch(ctx, preset.Repo, d.catalog.Path(name), stream); err != nil {
		return fmt.Errorf("%w: %w", errModelDownload, err)
	}

	if d.selector != nil {
		if err := d.selector.SelectModel(name); err != nil {
			return fmt.Errorf("select model: %w", err)
		}
	}
	return nil
}

// fetch runs one huggingface-cli download and relays its output lines.
func (d *Downloader) fetch(ctx context.Context, repo, dest string, stream *jobs.Stream) error {
	proc, err := d.runner.Start(ctx, process.Command{
		Path: d.cliPath,
		Args: buildDownloadArgs(repo, dest),
	})
	if err != nil {
		return err
	}

	for line := range proc.Lines() {
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		_ = stream.Publish(jobs.EventKindProgress, map[string]any{"message": text})
	}
	return proc.Wait()
}

// buildDownloadArgs builds huggingface-cli args for a local-dir download.
func buildDownloadArgs(repo, dest string) []string {
	return []string{"download", repo, "--local-dir", dest}
}

func downloadErrorMessage(err error) string {
	var launchErr *process.LaunchError
	switch {
	case errors.Is(err, ErrUnknownModel):
		return err.Error()
	case errors.As(err, &launchErr):
		return "huggingface-cli not found. Install with: pip install huggingface_hub"
	case errors.Is(err, errRuntimeDownload):
		return "Runtime download failed"
	case errors.Is(err, errModelDownload):
		return "Model download failed"
	default:
		return err.Error()
	}
}
