package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	goruntime "runtime"
	"testing"

	"songgen-studio/internal/domain"
)

func lookPathFor(available ...string) func(string) (string, error) {
	set := make(map[string]bool, len(available))
	for _, name := range available {
		set[name] = true
	}
	return func(name string) (string, error) {
		if set[name] {
			return "/usr/bin/" + name, nil
		}
		return "", os.ErrNotExist
	}
}

// TestFFmpegInstallOptionsPerOS ensures every platform has a package manager.
func TestFFmpegInstallOptionsPerOS(t *testing.T) {
	for _, goos := range []string{"linux", "darwin", "windows"} {
		options := ffmpegInstallOptions(goos)
		if len(options) == 0 {
			t.Fatalf("no install options for %s", goos)
		}
		for _, option := range options {
			if len(option.commands) == 0 {
				t.Fatalf("%s/%s has no commands", goos, option.manager)
			}
		}
	}
	if got := ffmpegInstallOptions("darwin")[0].manager; got != "brew" {
		t.Fatalf("darwin manager = %s, want brew", got)
	}
}

// TestRunFirstSuccessfulInstallSkipsUnavailableManagers runs only managers
// found on PATH and stops after the first success.
func TestRunFirstSuccessfulInstallSkipsUnavailableManagers(t *testing.T) {
	exec := &fakeExecutor{}
	app := newTestApp(t, &fakeRunner{}, exec)
	app.lookPath = lookPathFor("pip3", "pip")

	if err := app.runFirstSuccessfulInstall(context.Background(), hubCLIInstallOptions()); err != nil {
		t.Fatalf("install: %v", err)
	}
	calls := exec.commands()
	if len(calls) != 1 || calls[0][0] != "pip3" {
		t.Fatalf("calls = %v, want a single pip3 run", calls)
	}
}

// TestRunFirstSuccessfulInstallCollectsFailures reports every manager error.
func TestRunFirstSuccessfulInstallCollectsFailures(t *testing.T) {
	exec := &fakeExecutor{fail: map[string]bool{"pip3": true, "pip": true}}
	app := newTestApp(t, &fakeRunner{}, exec)
	app.lookPath = lookPathFor("pip3", "pip")

	err := app.runFirstSuccessfulInstall(context.Background(), hubCLIInstallOptions())
	if err == nil {
		t.Fatal("expected error when every manager fails")
	}
	if len(exec.commands()) != 2 {
		t.Fatalf("calls = %v, want both managers tried", exec.commands())
	}
}

// TestRunFirstSuccessfulInstallNoManager reports the missing package manager.
func TestRunFirstSuccessfulInstallNoManager(t *testing.T) {
	app := newTestApp(t, &fakeRunner{}, &fakeExecutor{})
	app.lookPath = lookPathFor()

	err := app.runFirstSuccessfulInstall(context.Background(), ffmpegInstallOptions(goruntime.GOOS))
	if err == nil {
		t.Fatal("expected error without package managers")
	}
}

// TestFixDiagnosticOutputDirCreatesDirectory ensures the output dir fix
// creates a missing directory without changing the setting.
func TestFixDiagnosticOutputDirCreatesDirectory(t *testing.T) {
	app := newTestApp(t, &fakeRunner{}, &fakeExecutor{})
	outputDir := filepath.Join(t.TempDir(), "nested", "songs")
	if _, err := app.UpdateSettings(domain.SettingsUpdate{OutputDir: &outputDir}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	if _, err := app.FixDiagnostic(context.Background(), "output_dir"); err != nil {
		t.Fatalf("fix output dir: %v", err)
	}
	info, err := os.Stat(outputDir)
	if err != nil || !info.IsDir() {
		t.Fatalf("output dir not created: %v", err)
	}
}

// TestFixDiagnosticOutputDirResetsBlank restores the default directory.
func TestFixDiagnosticOutputDirResetsBlank(t *testing.T) {
	app := newTestApp(t, &fakeRunner{}, &fakeExecutor{})
	if _, err := app.settings.Update(func(s *domain.Settings) { s.OutputDir = "" }); err != nil {
		t.Fatalf("clear output dir: %v", err)
	}

	fixed, err := app.fixOutputDir(domain.Settings{})
	if err != nil {
		t.Fatalf("fix output dir: %v", err)
	}
	if fixed.OutputDir != app.cfg.OutputDir {
		t.Fatalf("OutputDir = %s, want %s", fixed.OutputDir, app.cfg.OutputDir)
	}
}

// TestFixDiagnosticModelSelectsInstalled picks the first installed model.
func TestFixDiagnosticModelSelectsInstalled(t *testing.T) {
	app := newTestApp(t, &fakeRunner{}, &fakeExecutor{})
	installModel(t, app, testModel)

	if _, err := app.FixDiagnostic(context.Background(), "model"); err != nil {
		t.Fatalf("fix model: %v", err)
	}
	settings, err := app.Settings()
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if settings.CurrentModel != testModel {
		t.Fatalf("CurrentModel = %q, want %q", settings.CurrentModel, testModel)
	}
}

// TestFixDiagnosticModelWithoutInstalls returns the report with an error.
func TestFixDiagnosticModelWithoutInstalls(t *testing.T) {
	app := newTestApp(t, &fakeRunner{}, &fakeExecutor{})

	report, err := app.FixDiagnostic(context.Background(), "model")
	if err == nil {
		t.Fatal("expected error without installed models")
	}
	if len(report.Items) == 0 {
		t.Fatal("expected a refreshed report alongside the error")
	}
}

// TestFixDiagnosticUnsupportedItem rejects unknown ids.
func TestFixDiagnosticUnsupportedItem(t *testing.T) {
	app := newTestApp(t, &fakeRunner{}, &fakeExecutor{})
	if _, err := app.FixDiagnostic(context.Background(), "generator_dir"); !errors.Is(err, ErrUnsupportedFix) {
		t.Fatalf("err = %v, want ErrUnsupportedFix", err)
	}
}
