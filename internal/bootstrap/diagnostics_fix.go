package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"songgen-studio/internal/config"
	"songgen-studio/internal/domain"
	"songgen-studio/internal/process"
)

const installCommandTimeout = 45 * time.Minute

// ErrUnsupportedFix marks a diagnostic item that has no automatic remedy.
var ErrUnsupportedFix = errors.New("unsupported diagnostic item")

type installOption struct {
	manager  string
	commands [][]string
}

// FixDiagnostic applies an OS-specific remedy for one failed diagnostic
// item and returns a fresh report.
func (a *App) FixDiagnostic(ctx context.Context, itemID string) (domain.DiagnosticReport, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("%w: item id is required", ErrUnsupportedFix)
	}

	settings, err := a.settings.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	var fixErr error
	switch id {
	case "tool_" + filepath.Base(a.cfg.FFmpegPath), "tool_" + filepath.Base(a.cfg.FFprobePath):
		fixErr = a.runFirstSuccessfulInstall(ctx, ffmpegInstallOptions(goruntime.GOOS))
	case "tool_" + filepath.Base(a.cfg.HFCLIPath):
		fixErr = a.runFirstSuccessfulInstall(ctx, hubCLIInstallOptions())
	case "output_dir":
		settings, fixErr = a.fixOutputDir(settings)
	case "model":
		settings, fixErr = a.fixModel(settings)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("%w: %s", ErrUnsupportedFix, id)
	}

	report := a.checker.Run(a.diagnosticTargets(settings))
	if fixErr != nil {
		a.logger.Warn("diagnostic fix failed", "item", id, "error", fixErr)
		return report, fixErr
	}
	a.logger.Info("diagnostic fixed", "item", id, "has_failures", report.HasFailures)
	return report, nil
}

func ffmpegInstallOptions(goos string) []installOption {
	switch goos {
	case "windows":
		return []installOption{
			{manager: "winget", commands: [][]string{{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
			{manager: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
		}
	case "darwin":
		return []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	default:
		return []installOption{
			{manager: "apt-get", commands: [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", "ffmpeg"}}},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
		}
	}
}

func hubCLIInstallOptions() []installOption {
	return []installOption{
		{manager: "pipx", commands: [][]string{{"pipx", "install", "huggingface_hub[cli]"}}},
		{manager: "pip3", commands: [][]string{{"pip3", "install", "--user", "huggingface_hub[cli]"}}},
		{manager: "pip", commands: [][]string{{"pip", "install", "--user", "huggingface_hub[cli]"}}},
	}
}

// runFirstSuccessfulInstall tries each available package manager in order
// and stops at the first one whose commands all succeed.
func (a *App) runFirstSuccessfulInstall(ctx context.Context, options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", goruntime.GOOS)
	}

	failures := make([]string, 0, len(options))
	for _, option := range options {
		if !a.commandAvailable(option.manager) {
			continue
		}
		err := a.runInstallCommands(ctx, option)
		if err == nil {
			return nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", option.manager, err))
	}

	if len(failures) == 0 {
		return fmt.Errorf("no supported package manager found for %s", goruntime.GOOS)
	}
	return errors.New(strings.Join(failures, " | "))
}

func (a *App) runInstallCommands(ctx context.Context, option installOption) error {
	ctx, cancel := context.WithTimeout(ctx, installCommandTimeout)
	defer cancel()

	for _, command := range option.commands {
		if err := a.runWithPossibleElevation(ctx, option.manager, command); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) runWithPossibleElevation(ctx context.Context, manager string, command []string) error {
	candidates := [][]string{command}
	if goruntime.GOOS == "linux" && requiresElevation(manager) {
		if a.commandAvailable("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
		if a.commandAvailable("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
	}

	var lastErr error
	for _, candidate := range candidates {
		a.logger.Info("running install command", "command", strings.Join(candidate, " "))
		res, err := a.executor.Run(ctx, candidate[0], candidate[1:]...)
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("%s: %w: %s", strings.Join(candidate, " "), err, lastOutputLine(res))
	}
	return lastErr
}

func lastOutputLine(res process.Result) string {
	out := strings.TrimSpace(res.Stderr)
	if out == "" {
		out = strings.TrimSpace(res.Stdout)
	}
	if i := strings.LastIndexByte(out, '\n'); i >= 0 {
		out = out[i+1:]
	}
	return out
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

func (a *App) commandAvailable(name string) bool {
	_, err := a.lookPath(name)
	return err == nil
}

// fixOutputDir resets a blank output directory to the default and creates it.
func (a *App) fixOutputDir(settings domain.Settings) (domain.Settings, error) {
	outputDir := strings.TrimSpace(settings.OutputDir)
	if outputDir == "" {
		outputDir = config.DefaultSettings(a.cfg.DataDir).OutputDir
		if a.cfg.OutputDir != "" {
			outputDir = a.cfg.OutputDir
		}
		updated, err := a.settings.Update(func(s *domain.Settings) { s.OutputDir = outputDir })
		if err != nil {
			return settings, fmt.Errorf("save settings after fix: %w", err)
		}
		settings = updated
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return settings, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}
	return settings, nil
}

// fixModel selects the first installed model when the current one is
// missing or unset.
func (a *App) fixModel(settings domain.Settings) (domain.Settings, error) {
	if settings.CurrentModel != "" && a.models.IsInstalled(settings.CurrentModel) {
		return settings, nil
	}

	installed := a.models.Installed()
	if len(installed) == 0 {
		return settings, errors.New("no models installed; download one from the setup screen")
	}

	updated, err := a.settings.Update(func(s *domain.Settings) { s.CurrentModel = installed[0] })
	if err != nil {
		return settings, fmt.Errorf("save settings after fix: %w", err)
	}
	return updated, nil
}
