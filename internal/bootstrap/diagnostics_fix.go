package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"

	"audio-sync/internal/domain"
)

const installCommandTimeout = 45 * time.Minute

type installOption struct {
	manager  string
	commands [][]string
}

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	var fixErr error
	switch id {
	case "tool_ffmpeg", "tool_ffprobe":
		install := a.installTool
		if install == nil {
			install = installFFmpegForCurrentOS
		}
		fixErr = install(a.baseContext())
	case "output_dir":
		fixErr = ensureDir("output", settings.OutputDir)
	case "scratch_dir":
		fixErr = ensureDir("scratch", settings.ScratchDir)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}
	if fixErr != nil {
		logger.Warnf(a.baseContext(), "fix %s: %v", id, fixErr)
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	return report, fixErr
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

// ensureDir creates a configured directory; an unset one needs no fix.
func ensureDir(kind, dir string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s directory %s: %w", kind, dir, err)
	}
	return nil
}

// ffmpegInstallers maps GOOS to package-manager installs in preference order.
// Unknown systems fall back to the linux list.
var ffmpegInstallers = map[string][]installOption{
	"windows": {
		{manager: "winget", commands: [][]string{{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
		{manager: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
		{manager: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
	},
	"darwin": {
		{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		{manager: "port", commands: [][]string{{"port", "install", "ffmpeg"}}},
	},
	"linux": {
		{manager: "apt-get", commands: [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", "ffmpeg"}}},
		{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
		{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
		{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
		{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
	},
}

func ffmpegInstallOptions(goos string) []installOption {
	if options, ok := ffmpegInstallers[goos]; ok {
		return options
	}
	return ffmpegInstallers["linux"]
}

func installFFmpegForCurrentOS(ctx context.Context) error {
	if err := runFirstSuccessfulInstall(ctx, ffmpegInstallOptions(goruntime.GOOS), commandAvailable, runCommand); err != nil {
		return fmt.Errorf("install ffmpeg/ffprobe: %w", err)
	}
	if err := requireToolsOnPath("ffmpeg", "ffprobe"); err != nil {
		return fmt.Errorf("verify ffmpeg/ffprobe on PATH: %w", err)
	}
	return nil
}

type commandFunc func(ctx context.Context, name string, args ...string) error

// runFirstSuccessfulInstall tries each available manager until one succeeds.
func runFirstSuccessfulInstall(
	ctx context.Context,
	options []installOption,
	available func(string) bool,
	run commandFunc,
) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", goruntime.GOOS)
	}

	var result *multierror.Error
	for _, option := range options {
		if !available(option.manager) {
			continue
		}
		logger.Infof(ctx, "installing ffmpeg with %s", option.manager)
		err := runInstallCommands(ctx, option.commands, available, run)
		if err == nil {
			return nil
		}
		result = multierror.Append(result, fmt.Errorf("%s: %w", option.manager, err))
	}

	if result == nil {
		return fmt.Errorf("no supported package manager found for %s", goruntime.GOOS)
	}
	return result.ErrorOrNil()
}

func runInstallCommands(ctx context.Context, commands [][]string, available func(string) bool, run commandFunc) error {
	for _, command := range commands {
		if err := runCommandWithPossibleElevation(ctx, command, available, run); err != nil {
			return err
		}
	}
	return nil
}

func runCommandWithPossibleElevation(ctx context.Context, command []string, available func(string) bool, run commandFunc) error {
	if len(command) == 0 {
		return fmt.Errorf("empty command")
	}

	candidates := [][]string{command}
	if goruntime.GOOS == "linux" && requiresElevation(command[0]) {
		if available("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
		if available("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	var result *multierror.Error
	for _, candidate := range candidates {
		err := run(ctx, candidate[0], candidate[1:]...)
		if err == nil {
			return nil
		}
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func runCommand(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, installCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), installCommandTimeout)
	}

	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, trimmed)
}

func formatCommand(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

func requiresElevation(manager string) bool {
	return lo.Contains([]string{"apt-get", "dnf", "pacman", "zypper", "port"}, manager)
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func requireToolsOnPath(names ...string) error {
	if missing := lo.Reject(names, func(name string, _ int) bool { return commandAvailable(name) }); len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}
