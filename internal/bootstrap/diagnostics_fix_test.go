package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"audio-sync/internal/domain"
	"audio-sync/internal/jobs"
)

// TestEnsureDirCreatesDirectory ensures directory fixes create missing directories.
func TestEnsureDirCreatesDirectory(t *testing.T) {
	root := t.TempDir()
	outputDir := filepath.Join(root, "nested", "synced")

	if err := ensureDir("output", outputDir); err != nil {
		t.Fatalf("fix output dir: %v", err)
	}
	if _, err := os.Stat(outputDir); err != nil {
		t.Fatalf("stat output dir: %v", err)
	}
	if err := ensureDir("scratch", "  "); err != nil {
		t.Fatalf("unset dir should need no fix: %v", err)
	}
}

// TestRunFirstSuccessfulInstallFallsThrough ensures a failing manager is skipped for the next one.
func TestRunFirstSuccessfulInstallFallsThrough(t *testing.T) {
	options := []installOption{
		{manager: "missing", commands: [][]string{{"missing", "install"}}},
		{manager: "broken", commands: [][]string{{"broken", "install"}}},
		{manager: "working", commands: [][]string{{"working", "update"}, {"working", "install"}}},
	}
	available := func(name string) bool { return name != "missing" }

	var ran []string
	run := func(ctx context.Context, name string, args ...string) error {
		ran = append(ran, formatCommand(name, args))
		if name == "broken" {
			return errors.New("exit status 1")
		}
		return nil
	}

	if err := runFirstSuccessfulInstall(context.Background(), options, available, run); err != nil {
		t.Fatalf("install: %v", err)
	}

	want := "broken install,working update,working install"
	if got := strings.Join(ran, ","); got != want {
		t.Fatalf("commands = %s, want %s", got, want)
	}
}

// TestRunFirstSuccessfulInstallAggregatesFailures ensures every manager error is reported.
func TestRunFirstSuccessfulInstallAggregatesFailures(t *testing.T) {
	options := []installOption{
		{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		{manager: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
	}
	run := func(ctx context.Context, name string, args ...string) error {
		return errors.New(name + " exploded")
	}

	err := runFirstSuccessfulInstall(context.Background(), options, func(string) bool { return true }, run)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"brew exploded", "scoop exploded"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

// TestRunFirstSuccessfulInstallNoManager ensures a clear error without package managers.
func TestRunFirstSuccessfulInstallNoManager(t *testing.T) {
	options := ffmpegInstallOptions("darwin")
	err := runFirstSuccessfulInstall(context.Background(), options, func(string) bool { return false }, nil)
	if err == nil || !strings.Contains(err.Error(), "no supported package manager") {
		t.Fatalf("error = %v", err)
	}
}

// TestFFmpegInstallOptionsPerOS validates manager coverage for each platform.
func TestFFmpegInstallOptionsPerOS(t *testing.T) {
	for goos, first := range map[string]string{"windows": "winget", "darwin": "brew", "linux": "apt-get", "freebsd": "apt-get"} {
		options := ffmpegInstallOptions(goos)
		if len(options) == 0 || options[0].manager != first {
			t.Fatalf("%s first manager = %+v, want %s", goos, options, first)
		}
	}
}

// TestInstallOrFixDiagnosticRoutesToolInstall ensures tool items trigger the installer.
func TestInstallOrFixDiagnosticRoutesToolInstall(t *testing.T) {
	installed := 0
	app := &App{
		Store:  &fakeStore{},
		Jobs:   jobs.NewManager(),
		events: jobs.NewEventBus(10),
		installTool: func(context.Context) error {
			installed++
			return nil
		},
	}

	if _, err := app.InstallOrFixDiagnostic("tool_ffprobe"); err != nil {
		t.Fatalf("fix: %v", err)
	}
	if installed != 1 {
		t.Fatalf("installs = %d, want 1", installed)
	}
}

// TestInstallOrFixDiagnosticRejectsUnknownID ensures unsupported items error out.
func TestInstallOrFixDiagnosticRejectsUnknownID(t *testing.T) {
	app := &App{Store: &fakeStore{}}
	if _, err := app.InstallOrFixDiagnostic("encode_profile"); err == nil {
		t.Fatal("expected unsupported item error")
	}
	if _, err := app.InstallOrFixDiagnostic(" "); err == nil {
		t.Fatal("expected empty id error")
	}
}

// TestInstallOrFixDiagnosticCreatesScratchDir ensures directory items are fixed from settings.
func TestInstallOrFixDiagnosticCreatesScratchDir(t *testing.T) {
	scratch := filepath.Join(t.TempDir(), "scratch")
	app := &App{Store: &fakeStore{settings: domain.Settings{ScratchDir: scratch}}}

	if _, err := app.InstallOrFixDiagnostic("scratch_dir"); err != nil {
		t.Fatalf("fix: %v", err)
	}
	if _, err := os.Stat(scratch); err != nil {
		t.Fatalf("scratch dir missing: %v", err)
	}
}
