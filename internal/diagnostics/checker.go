// Package diagnostics checks the host for the tools, models and directories
// generation depends on, and reports GPU details.
package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"songgen-studio/internal/domain"
)

// maxModelDepth bounds the checkpoint search below a model directory.
const maxModelDepth = 3

// Targets names what one diagnostics run inspects.
type Targets struct {
	Tools        []string
	GeneratorDir string
	CurrentModel string
	ModelPath    string
	OutputDir    string
}

// Checker validates external tools and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	readDir    func(string) ([]os.DirEntry, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	now        func() time.Time
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		readDir:    os.ReadDir,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		now:        time.Now,
	}
}

// Run executes all checks and returns a combined report.
func (c *Checker) Run(targets Targets) domain.DiagnosticReport {
	items := make([]domain.DiagnosticItem, 0, len(targets.Tools)+3)
	for _, tool := range targets.Tools {
		items = append(items, c.checkTool(tool))
	}
	items = append(items,
		c.checkGeneratorDir(targets.GeneratorDir),
		c.checkModel(targets.CurrentModel, targets.ModelPath),
		c.checkOutputDir(targets.OutputDir),
	)

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: c.now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a required executable resolves on PATH or by path.
func (c *Checker) checkTool(name string) domain.DiagnosticItem {
	id := "tool_" + filepath.Base(name)
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      id,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found: %s", name),
			Hint:    "Install it and make sure it is on PATH, or set its path in the environment.",
		}
	}

	return domain.DiagnosticItem{
		ID:      id,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkGeneratorDir verifies the SongGeneration checkout exists.
func (c *Checker) checkGeneratorDir(dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "generator_dir",
		Name: "Generator directory",
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusPass
		item.Message = "Generator runs from the server working directory."
		return item
	}

	info, err := c.stat(dir)
	if err != nil || !info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Generator directory not found: %s", dir)
		item.Hint = "Clone SongGeneration and point GENERATOR_DIR at it."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Generator directory: %s", dir)
	return item
}

// checkModel validates that the selected model directory holds a checkpoint.
func (c *Checker) checkModel(name, modelPath string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "model",
		Name: "Selected model",
	}

	if strings.TrimSpace(name) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "No model selected."
		item.Hint = "Download and select a model from the setup page."
		return item
	}

	info, err := c.stat(modelPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if IsNotExist(err) {
			item.Message = fmt.Sprintf("Model directory does not exist: %s", modelPath)
		} else {
			item.Message = fmt.Sprintf("Cannot access model directory: %s", modelPath)
		}
		item.Hint = "Download the model again from the setup page."
		return item
	}
	if !info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Model path is not a directory: %s", modelPath)
		return item
	}

	if !c.containsCheckpoint(modelPath, 0) {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("No checkpoint files found in: %s", modelPath)
		item.Hint = "The download may be incomplete. Download the model again."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("%s is installed at %s", name, modelPath)
	return item
}

func (c *Checker) containsCheckpoint(dir string, depth int) bool {
	entries, err := c.readDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		name := strings.ToLower(entry.Name())
		if entry.IsDir() {
			if depth < maxModelDepth && c.containsCheckpoint(filepath.Join(dir, entry.Name()), depth+1) {
				return true
			}
			continue
		}
		ext := filepath.Ext(name)
		if ext == ".pt" || ext == ".safetensors" || name == "pytorch_model.bin" {
			return true
		}
	}
	return false
}

// checkOutputDir validates output directory existence and write access.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "output_dir",
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Output directory is empty."
		item.Hint = "Set an output directory where songs can be written."
		return item
	}

	if err := c.mkdirAll(outputDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create output directory: %s", outputDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(outputDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = "Choose a writable directory for generated songs."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", outputDir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	readDir func(string) ([]os.DirEntry, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		readDir:    readDir,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		now:        time.Now,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
