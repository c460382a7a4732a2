package jobs

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor periodically removes temp directories of jobs that are no longer
// running and forgets old finished jobs.
type Janitor struct {
	tempDir string
	maxAge  time.Duration
	manager *Manager
	logger  *slog.Logger
	cron    *cron.Cron
	now     func() time.Time
}

// NewJanitor builds a janitor for tempDir. Entries older than maxAge that do
// not belong to a running job are removed.
func NewJanitor(tempDir string, maxAge time.Duration, manager *Manager, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		tempDir: tempDir,
		maxAge:  maxAge,
		manager: manager,
		logger:  logger,
		now:     time.Now,
	}
}

// Start schedules Sweep with a cron spec such as "@every 15m".
func (j *Janitor) Start(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { j.Sweep() }); err != nil {
		return err
	}
	j.cron = c
	c.Start()
	j.logger.Info("janitor scheduled", "schedule", spec, "temp_dir", j.tempDir)
	return nil
}

// Stop halts scheduling and waits for a running sweep.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

// Sweep runs one cleanup pass and returns the number of removed directories.
func (j *Janitor) Sweep() int {
	cutoff := j.now().Add(-j.maxAge)

	if j.manager != nil {
		if n := j.manager.Prune(cutoff); n > 0 {
			j.logger.Info("janitor pruned finished jobs", "count", n)
		}
	}

	entries, err := os.ReadDir(j.tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			j.logger.Error("janitor read temp dir", "error", err)
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if j.manager != nil && j.manager.IsRunning(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.tempDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			j.logger.Error("janitor remove temp dir", "path", path, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.Info("janitor removed stale temp dirs", "count", removed)
	}
	return removed
}
