package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"audio-sync/internal/config"
	"audio-sync/internal/diagnostics"
	"audio-sync/internal/domain"
	"audio-sync/internal/jobs"
	"audio-sync/internal/offset"
	"audio-sync/internal/profile"
	"audio-sync/internal/remux"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const (
	msgMissingFiles   = "Please select both a video and an audio file."
	msgInvalidOffset  = "Invalid offset value. Please enter a numeric value."
	msgSuccessFormat  = "Audio replaced successfully with sync!\nSaved as %s"
	msgFFmpegErrorFmt = "FFmpeg error occurred:\n%s"
)

var videoDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "MKV files",
		Pattern:     "*.mkv",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var audioDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Audio files",
		Pattern:     "*.eac3;*.ac3",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// SyncRequest is what the frontend submits to start a sync job.
type SyncRequest struct {
	VideoPath string `json:"videoPath"`
	AudioPath string `json:"audioPath"`
	Offset    string `json:"offset"`
}

// App wires configuration, jobs, pipeline, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Jobs        *jobs.Manager
	Pipeline    pipelineRunner
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	newPipeline func(domain.Settings) pipelineRunner
	installTool func(ctx context.Context) error
	detector    profile.Detector

	mu          sync.Mutex
	ctx         context.Context
	activeJobID string
	task        *jobs.Task[remux.Result]
	events      *jobs.EventBus
	runtimeCtx  context.Context
}

// pipelineRunner isolates the merge pipeline behind an interface.
type pipelineRunner interface {
	Run(ctx context.Context, req remux.Request) (remux.Result, error)
}

// New builds the application with persisted settings and startup diagnostics.
func New(ctx context.Context, settingsPath string) (*App, error) {
	return NewWithAssets(ctx, nil, settingsPath)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
// An empty settingsPath uses config.DefaultPath.
func NewWithAssets(ctx context.Context, assets fs.FS, settingsPath string) (*App, error) {
	if strings.TrimSpace(settingsPath) == "" {
		settingsPath = config.DefaultPath()
	}

	store := config.NewFileStore(settingsPath)
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	checker := diagnostics.NewChecker(settings)
	report := checker.Run(settings)
	logger.Debugf(ctx, "settings loaded from %s, diagnostics failures: %v", settingsPath, report.HasFailures)

	newPipeline := func(s domain.Settings) pipelineRunner { return remux.NewPipeline(s) }
	return &App{
		Settings:    settings,
		Store:       store,
		Jobs:        jobs.NewManager(),
		Pipeline:    newPipeline(settings),
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		newPipeline: newPipeline,
		installTool: installFFmpegForCurrentOS,
		ctx:         ctx,
		events:      jobs.NewEventBus(1000),
	}, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Audio Sync",
		Width:       720,
		Height:      560,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			task := a.task
			a.runtimeCtx = nil
			a.mu.Unlock()
			if task != nil {
				task.Cancel()
				_, _ = task.Wait()
			}
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized)
	}
	if a.newPipeline != nil && a.task == nil {
		a.Pipeline = a.newPipeline(normalized)
	}
	a.mu.Unlock()

	return normalized, nil
}

// PickVideoFile opens a native file dialog for the source video.
func (a *App) PickVideoFile() (string, error) {
	return a.pickFile("Select Video File", videoDialogFilter)
}

// PickAudioFile opens a native file dialog for the replacement audio track.
func (a *App) PickAudioFile() (string, error) {
	return a.pickFile("Select Audio File", audioDialogFilter)
}

func (a *App) pickFile(title string, filters []wailsruntime.FileFilter) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   title,
		Filters: filters,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickOutputDirectory opens a native directory picker for merged files.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or the last output) in the file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.Jobs.Current().OutputPath
	}
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	return a.refreshDiagnosticsFromSettings(settings), nil
}

// StartSync creates a sync job and runs it asynchronously.
func (a *App) StartSync(req SyncRequest) (domain.Job, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Job{}, fmt.Errorf("load settings: %w", err)
	}

	job := domain.SyncJob{
		VideoPath:  strings.TrimSpace(req.VideoPath),
		AudioPath:  strings.TrimSpace(req.AudioPath),
		OffsetText: req.Offset,
		OutputDir:  settings.OutputDir,
		ScratchDir: settings.ScratchDir,
		AudioCodec: settings.AudioCodec,
	}

	jobID := uuid.NewString()
	if err := a.Jobs.Start(jobID, job.VideoPath); err != nil {
		return domain.Job{}, err
	}
	if job.VideoPath != "" {
		_ = a.Jobs.SetOutput(jobID, remux.OutputPathFor(job))
	}

	a.mu.Lock()
	a.Settings = settings
	a.activeJobID = jobID
	pipeline := a.Pipeline
	a.mu.Unlock()

	a.publishStatus(jobID, domain.JobStatusValidatingInputs, "Job started")
	logger.Infof(a.baseContext(), "job %s: %s + %s (offset %q)", jobID, job.VideoPath, job.AudioPath, job.OffsetText)

	task := jobs.Go(a.baseContext(), func(ctx context.Context) (remux.Result, error) {
		return pipeline.Run(ctx, a.syncRequest(jobID, job))
	})
	a.mu.Lock()
	a.task = task
	a.mu.Unlock()

	go a.finishSyncJob(jobID, task)
	return a.Jobs.Current(), nil
}

// CancelSync cancels the currently running job, if any.
func (a *App) CancelSync() error {
	a.mu.Lock()
	task := a.task
	activeJobID := a.activeJobID
	a.mu.Unlock()

	if task == nil {
		return jobs.ErrNoRunningJob
	}

	task.Cancel()
	err := a.Jobs.Cancel(activeJobID)
	if err != nil && !errors.Is(err, jobs.ErrNoRunningJob) && !errors.Is(err, jobs.ErrStaleJob) {
		return err
	}

	if activeJobID != "" {
		a.publishStatus(activeJobID, domain.JobStatusCancelled, "Cancellation requested")
	}
	return nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Jobs.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// syncRequest wires pipeline callbacks to job transitions and events.
func (a *App) syncRequest(jobID string, job domain.SyncJob) remux.Request {
	return remux.Request{
		Job: job,
		OnStage: func(stage remux.Stage) {
			status, ok := mapStageToStatus(stage)
			if !ok {
				return
			}
			if err := a.Jobs.Transition(jobID, status); err == nil {
				a.publishStatus(jobID, status, stageMessage(status))
			}
		},
		OnLog: func(log remux.CommandLog) {
			a.publishEvent(logEvent(jobID, "Command completed", log))
		},
		OnProgress: func(p remux.Progress) {
			a.publishEvent(jobs.Event{
				JobID:          jobID,
				Type:           jobs.EventTypeProgress,
				Percent:        p.Percent,
				OutTimeSeconds: p.OutTimeSeconds,
				Speed:          p.Speed,
			})
		},
	}
}

// finishSyncJob waits for the task and maps its outcome to job events.
func (a *App) finishSyncJob(jobID string, task *jobs.Task[remux.Result]) {
	defer a.clearActiveJob(jobID)
	ctx := a.baseContext()

	result, err := task.Wait()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			a.transitionFinished(jobID, domain.JobStatusCancelled)
			a.publishStatus(jobID, domain.JobStatusCancelled, "Job cancelled")
			logger.Infof(ctx, "job %s cancelled", jobID)
			return
		}

		logger.Errorf(ctx, "job %s failed: %v", jobID, err)
		a.transitionFinished(jobID, domain.JobStatusFailed)
		a.publishStatus(jobID, domain.JobStatusFailed, "Job failed")
		a.publishEvent(jobs.Event{
			JobID:   jobID,
			Type:    jobs.EventTypeError,
			Status:  domain.JobStatusFailed,
			Message: UserMessage(err),
		})

		var pipelineErr *remux.PipelineError
		if errors.As(err, &pipelineErr) && pipelineErr.CommandLog.Command != "" {
			a.publishEvent(logEvent(jobID, "Failed command", pipelineErr.CommandLog))
		}
		return
	}

	_ = a.Jobs.SetOutput(jobID, result.OutputPath)
	if a.transitionFinished(jobID, domain.JobStatusSucceeded) {
		a.publishStatus(jobID, domain.JobStatusSucceeded, "Job completed")
	}
	a.publishEvent(jobs.Event{
		JobID:      jobID,
		Type:       jobs.EventTypeResult,
		Status:     domain.JobStatusSucceeded,
		Message:    fmt.Sprintf(msgSuccessFormat, result.OutputPath),
		OutputPath: result.OutputPath,
		Warning:    result.CleanupWarning,
	})
	logger.Infof(ctx, "job %s saved %s", jobID, result.OutputPath)
}

// transitionFinished records the outcome of jobID. A job that was cancelled
// and replaced by a newer one leaves the manager alone.
func (a *App) transitionFinished(jobID string, status domain.JobStatus) bool {
	err := a.Jobs.Transition(jobID, status)
	switch {
	case err == nil:
		return true
	case errors.Is(err, jobs.ErrStaleJob):
		logger.Debugf(a.baseContext(), "job %s finished %s after a newer job started", jobID, status)
	default:
		logger.Debugf(a.baseContext(), "job %s: %v", jobID, err)
	}
	return false
}

// UserMessage renders err the way the desktop dialog reports it.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, remux.ErrVideoRequired), errors.Is(err, remux.ErrAudioRequired):
		return msgMissingFiles
	case errors.Is(err, offset.ErrInvalidOffset):
		return msgInvalidOffset
	}

	var pipelineErr *remux.PipelineError
	if errors.As(err, &pipelineErr) && pipelineErr.Kind == remux.KindEncode {
		detail := strings.TrimSpace(pipelineErr.CommandLog.Stderr)
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Sprintf(msgFFmpegErrorFmt, detail)
	}
	return err.Error()
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(jobID string, status domain.JobStatus, message string) {
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", published)
	}
}

func logEvent(jobID, message string, log remux.CommandLog) jobs.Event {
	return jobs.Event{
		JobID:    jobID,
		Type:     jobs.EventTypeLog,
		Message:  message,
		Command:  log.Command,
		Args:     log.Args,
		ExitCode: log.ExitCode,
		Stdout:   log.Stdout,
		Stderr:   log.Stderr,
	}
}

// clearActiveJob clears cancellation handles for completed job IDs.
func (a *App) clearActiveJob(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeJobID == jobID {
		a.activeJobID = ""
		a.task = nil
	}
}

// mapStageToStatus maps pipeline stage names to job statuses.
func mapStageToStatus(stage remux.Stage) (domain.JobStatus, bool) {
	switch stage {
	case remux.StageValidatingInputs:
		return domain.JobStatusValidatingInputs, true
	case remux.StageAdjustingAudio:
		return domain.JobStatusAdjustingAudio, true
	case remux.StageMerging:
		return domain.JobStatusMerging, true
	case remux.StageCleaningUp:
		return domain.JobStatusCleaningUp, true
	default:
		return "", false
	}
}

func stageMessage(status domain.JobStatus) string {
	switch status {
	case domain.JobStatusValidatingInputs:
		return "Checking inputs"
	case domain.JobStatusAdjustingAudio:
		return "Adjusting audio track"
	case domain.JobStatusMerging:
		return "Merging audio with video"
	case domain.JobStatusCleaningUp:
		return "Removing temporary audio"
	default:
		return string(status)
	}
}

func (a *App) baseContext() context.Context {
	if a.ctx != nil {
		return a.ctx
	}
	return context.Background()
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and fills defaults for empty fields.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.ScratchDir = strings.TrimSpace(settings.ScratchDir)
	settings.AudioCodec = strings.TrimSpace(settings.AudioCodec)
	settings.FFmpegPath = strings.TrimSpace(settings.FFmpegPath)
	settings.FFprobePath = strings.TrimSpace(settings.FFprobePath)
	settings.VaapiDevice = strings.TrimSpace(settings.VaapiDevice)
	settings.LogLevel = strings.TrimSpace(settings.LogLevel)
	return config.WithDefaults(settings)
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
