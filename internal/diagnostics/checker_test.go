package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"songgen-studio/internal/domain"
)

var defaultTools = []string{"ffmpeg", "ffprobe", "huggingface-cli", "bash"}

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	modelDir := filepath.Join(root, "models", "SongGeneration-base")
	if err := os.MkdirAll(filepath.Join(modelDir, "ckpt"), 0o755); err != nil {
		t.Fatalf("mkdir models: %v", err)
	}
	if err := os.WriteFile(filepath.Join(modelDir, "ckpt", "model.pt"), []byte("stub"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.Stat,
		os.ReadDir,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(Targets{
		Tools:        defaultTools,
		GeneratorDir: root,
		CurrentModel: "SongGeneration-base",
		ModelPath:    modelDir,
		OutputDir:    filepath.Join(root, "output"),
	})

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	if len(report.Items) != len(defaultTools)+3 {
		t.Fatalf("items = %d, want %d", len(report.Items), len(defaultTools)+3)
	}
}

// TestCheckerRunMissingToolsAndPaths validates failure reporting.
func TestCheckerRunMissingToolsAndPaths(t *testing.T) {
	checker := NewCheckerForTests(
		func(string) (string, error) { return "", errors.New("not found") },
		os.Stat,
		os.ReadDir,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(Targets{
		Tools:        defaultTools,
		GeneratorDir: "/path/that/does/not/exist",
		CurrentModel: "SongGeneration-base",
		ModelPath:    "/path/that/does/not/exist",
	})

	if !report.HasFailures {
		t.Fatal("expected failures")
	}

	assertStatusByID(t, report, "tool_ffmpeg", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "tool_ffprobe", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "tool_huggingface-cli", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "generator_dir", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "model", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "output_dir", domain.DiagnosticStatusFail)
}

// TestCheckerRunNoModelSelected validates the empty selection message.
func TestCheckerRunNoModelSelected(t *testing.T) {
	checker := NewChecker()
	report := checker.Run(Targets{OutputDir: t.TempDir()})

	assertStatusByID(t, report, "model", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "generator_dir", domain.DiagnosticStatusPass)
	assertStatusByID(t, report, "output_dir", domain.DiagnosticStatusPass)
}

// TestCheckerRunModelDirectoryWithoutCheckpointFails validates model check.
func TestCheckerRunModelDirectoryWithoutCheckpointFails(t *testing.T) {
	root := t.TempDir()
	modelDir := filepath.Join(root, "models", "SongGeneration-base")
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatalf("mkdir models: %v", err)
	}
	if err := os.WriteFile(filepath.Join(modelDir, "README.md"), []byte("no model"), 0o644); err != nil {
		t.Fatalf("write readme: %v", err)
	}

	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.Stat,
		os.ReadDir,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)
	report := checker.Run(Targets{
		CurrentModel: "SongGeneration-base",
		ModelPath:    modelDir,
		OutputDir:    filepath.Join(root, "output"),
	})

	assertStatusByID(t, report, "model", domain.DiagnosticStatusFail)
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
			}
			return
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
}
