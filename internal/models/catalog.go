// Package models locates installed SongGeneration checkpoints and downloads
// new ones.
package models

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"songgen-studio/internal/domain"
)

// RuntimeRepo holds the shared runtime files every checkpoint needs.
const RuntimeRepo = "lglg666/SongGeneration-Runtime"

// runtimeDirName is the runtime location inside the models directory.
const runtimeDirName = "runtime"

var presets = []domain.ModelOption{
	{
		ID:          "SongGeneration-base",
		Repo:        "lglg666/SongGeneration-base",
		SizeLabel:   "~10 GB VRAM",
		Description: "Base model, Chinese lyrics.",
	},
	{
		ID:          "SongGeneration-base-new",
		Repo:        "lglg666/SongGeneration-base-new",
		SizeLabel:   "~10 GB VRAM",
		Description: "Base model with English and Chinese lyrics.",
	},
	{
		ID:          "SongGeneration-base-full",
		Repo:        "lglg666/SongGeneration-base-full",
		SizeLabel:   "~12 GB VRAM",
		Description: "Base model supporting songs up to 4m30s.",
	},
	{
		ID:          "SongGeneration-large",
		Repo:        "lglg666/SongGeneration-large",
		SizeLabel:   "~22 GB VRAM",
		Description: "Highest quality, needs a large GPU.",
	},
}

var (
	// ErrUnknownModel is returned for names outside the preset list.
	ErrUnknownModel = errors.New("unknown model")
	// ErrNotInstalled is returned when selecting a model that has no checkpoint.
	ErrNotInstalled = errors.New("model is not installed")
)

// Catalog answers which checkpoints exist under one models directory.
type Catalog struct {
	dir string
}

// NewCatalog creates a catalog rooted at dir.
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// Dir returns the models root directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// RuntimeDir returns where runtime files are installed.
func (c *Catalog) RuntimeDir() string {
	return filepath.Join(c.dir, runtimeDirName)
}

// Lookup returns the preset with the given id.
func Lookup(id string) (domain.ModelOption, bool) {
	return lo.Find(presets, func(m domain.ModelOption) bool {
		return m.ID == id
	})
}

// Path returns the on-disk location for a model name.
func (c *Catalog) Path(name string) string {
	return filepath.Join(c.dir, filepath.Base(strings.TrimSpace(name)))
}

// IsInstalled reports whether name is a known preset whose directory holds
// a checkpoint.
func (c *Catalog) IsInstalled(name string) bool {
	if _, ok := Lookup(name); !ok {
		return false
	}
	return hasCheckpoint(c.Path(name))
}

// Installed returns installed model names in preset order.
func (c *Catalog) Installed() []string {
	installed := lo.Filter(presets, func(m domain.ModelOption, _ int) bool {
		return hasCheckpoint(c.Path(m.ID))
	})
	return lo.Map(installed, func(m domain.ModelOption, _ int) string {
		return m.ID
	})
}

// Options returns all presets with their installation state.
func (c *Catalog) Options() []domain.ModelOption {
	return lo.Map(presets, func(m domain.ModelOption, _ int) domain.ModelOption {
		path := c.Path(m.ID)
		if hasCheckpoint(path) {
			m.Installed = true
			m.LocalPath = path
		}
		return m
	})
}

// RuntimeInstalled reports whether the runtime directory has any content.
func (c *Catalog) RuntimeInstalled() bool {
	entries, err := os.ReadDir(c.RuntimeDir())
	return err == nil && len(entries) > 0
}

// Status summarizes installation for the setup screen.
func (c *Catalog) Status(currentModel string) domain.SetupStatus {
	installed := c.Installed()
	runtime := c.RuntimeInstalled()

	status := domain.SetupStatus{
		Installed:        len(installed) > 0 && runtime,
		Models:           installed,
		RuntimeInstalled: runtime,
		Available:        c.Options(),
	}
	if currentModel != "" {
		status.CurrentModel = &currentModel
	}
	return status
}

// hasCheckpoint reports whether dir contains a checkpoint file at any depth.
func hasCheckpoint(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}

	found := false
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		ext := filepath.Ext(name)
		if ext == ".pt" || ext == ".safetensors" || name == "pytorch_model.bin" {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	return found
}
