package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"audio-sync/internal/domain"
	"audio-sync/internal/jobs"
	"audio-sync/internal/offset"
	"audio-sync/internal/remux"
)

// fakeStore returns deterministic settings for App tests.
type fakeStore struct {
	settings domain.Settings
	saved    []domain.Settings
}

// Load returns preconfigured settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	return s.settings, nil
}

// Save records saved settings.
func (s *fakeStore) Save(settings domain.Settings) error {
	s.saved = append(s.saved, settings)
	s.settings = settings
	return nil
}

// fakePipeline allows injecting custom run behavior per test.
type fakePipeline struct {
	run func(ctx context.Context, req remux.Request) (remux.Result, error)
}

// Run delegates to injected function.
func (p *fakePipeline) Run(ctx context.Context, req remux.Request) (remux.Result, error) {
	if p.run == nil {
		return remux.Result{}, nil
	}
	return p.run(ctx, req)
}

func newTestApp(store *fakeStore, run func(ctx context.Context, req remux.Request) (remux.Result, error)) *App {
	return &App{
		Store:    store,
		Jobs:     jobs.NewManager(),
		Pipeline: &fakePipeline{run: run},
		events:   jobs.NewEventBus(100),
	}
}

// TestStartSyncEnforcesSingleRunningJob checks single-job guard.
func TestStartSyncEnforcesSingleRunningJob(t *testing.T) {
	store := &fakeStore{settings: domain.Settings{OutputDir: t.TempDir()}}
	app := newTestApp(store, func(ctx context.Context, req remux.Request) (remux.Result, error) {
		<-ctx.Done()
		return remux.Result{}, ctx.Err()
	})

	if _, err := app.StartSync(SyncRequest{VideoPath: "/tmp/a.mkv", AudioPath: "/tmp/a.eac3"}); err != nil {
		t.Fatalf("start first job: %v", err)
	}
	if _, err := app.StartSync(SyncRequest{VideoPath: "/tmp/b.mkv", AudioPath: "/tmp/b.eac3"}); !errors.Is(err, jobs.ErrJobAlreadyRunning) {
		t.Fatalf("second start error = %v, want %v", err, jobs.ErrJobAlreadyRunning)
	}

	if err := app.CancelSync(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusCancelled)
	waitForIdleTask(t, app)
}

// TestCancelledJobDoesNotTouchItsSuccessor restarts while the cancelled job
// is still removing its scratch track.
func TestCancelledJobDoesNotTouchItsSuccessor(t *testing.T) {
	root := t.TempDir()
	releaseFirst := make(chan struct{})
	app := newTestApp(&fakeStore{}, func(ctx context.Context, req remux.Request) (remux.Result, error) {
		if strings.HasSuffix(req.Job.VideoPath, "first.mkv") {
			<-ctx.Done()
			<-releaseFirst
			req.OnStage(remux.StageCleaningUp)
			return remux.Result{}, ctx.Err()
		}
		for _, stage := range []remux.Stage{
			remux.StageValidatingInputs,
			remux.StageAdjustingAudio,
			remux.StageMerging,
			remux.StageCleaningUp,
		} {
			req.OnStage(stage)
		}
		return remux.Result{OutputPath: filepath.Join(root, "second_audio_replaced.mkv")}, nil
	})

	first, err := app.StartSync(SyncRequest{VideoPath: filepath.Join(root, "first.mkv"), AudioPath: "a.eac3"})
	if err != nil {
		t.Fatalf("start first job: %v", err)
	}
	if err := app.CancelSync(); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	second, err := app.StartSync(SyncRequest{VideoPath: filepath.Join(root, "second.mkv"), AudioPath: "a.eac3"})
	if err != nil {
		t.Fatalf("start second job: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusSucceeded)

	close(releaseFirst)
	waitForEvent(t, app, func(e jobs.Event) bool {
		return e.JobID == first.ID && e.Message == "Job cancelled"
	})
	waitForIdleTask(t, app)

	current := app.CurrentJob()
	if current.ID != second.ID || current.Status != domain.JobStatusSucceeded {
		t.Fatalf("current = %+v, want %s succeeded", current, second.ID)
	}
	if want := filepath.Join(root, "second_audio_replaced.mkv"); current.OutputPath != want {
		t.Fatalf("current output = %q, want %q", current.OutputPath, want)
	}
	for _, e := range app.JobEvents(0) {
		if e.JobID == first.ID && e.Status == domain.JobStatusCleaningUp {
			t.Fatalf("cancelled job published %+v", e)
		}
	}
}

// TestCancelSyncEndsWithTerminalStatus checks the last event of a cancelled
// job is a cancelled status, which the frontend uses to re-enable Merge.
func TestCancelSyncEndsWithTerminalStatus(t *testing.T) {
	app := newTestApp(&fakeStore{}, func(ctx context.Context, req remux.Request) (remux.Result, error) {
		req.OnStage(remux.StageAdjustingAudio)
		<-ctx.Done()
		req.OnStage(remux.StageCleaningUp)
		return remux.Result{}, ctx.Err()
	})

	job, err := app.StartSync(SyncRequest{VideoPath: "a.mkv", AudioPath: "a.eac3"})
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	if err := app.CancelSync(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	waitForIdleTask(t, app)

	var last jobs.Event
	for _, e := range app.JobEvents(0) {
		if e.JobID == job.ID {
			last = e
		}
	}
	if last.Type != jobs.EventTypeStatus || !jobs.IsTerminal(last.Status) {
		t.Fatalf("last event = %+v, want terminal status", last)
	}
	if app.CurrentJob().Status != domain.JobStatusCancelled {
		t.Fatalf("status = %s, want cancelled", app.CurrentJob().Status)
	}
}

// TestStartSyncPublishesProgressAndResultEvents checks event flow.
func TestStartSyncPublishesProgressAndResultEvents(t *testing.T) {
	root := t.TempDir()
	outputDir := filepath.Join(root, "out")
	store := &fakeStore{settings: domain.Settings{OutputDir: outputDir, AudioCodec: "ac3"}}

	var gotJob domain.SyncJob
	app := newTestApp(store, func(ctx context.Context, req remux.Request) (remux.Result, error) {
		gotJob = req.Job
		for _, stage := range []remux.Stage{
			remux.StageValidatingInputs,
			remux.StageAdjustingAudio,
			remux.StageMerging,
		} {
			req.OnStage(stage)
		}
		req.OnLog(remux.CommandLog{Command: "ffmpeg", ExitCode: 0})
		req.OnProgress(remux.Progress{Percent: 0})
		req.OnProgress(remux.Progress{Percent: 100, Done: true})
		req.OnLog(remux.CommandLog{Command: "ffmpeg", ExitCode: 0})
		req.OnStage(remux.StageCleaningUp)
		return remux.Result{OutputPath: filepath.Join(outputDir, "clip_audio_replaced.mkv")}, nil
	})

	if _, err := app.StartSync(SyncRequest{
		VideoPath: filepath.Join(root, "clip.mkv"),
		AudioPath: filepath.Join(root, "clip.eac3"),
		Offset:    "-1.5",
	}); err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusSucceeded)
	waitForIdleTask(t, app)

	if gotJob.OffsetText != "-1.5" || gotJob.OutputDir != outputDir || gotJob.AudioCodec != "ac3" {
		t.Fatalf("pipeline job = %+v", gotJob)
	}

	events := app.JobEvents(0)
	assertEventTypeExists(t, events, jobs.EventTypeStatus)
	assertEventTypeExists(t, events, jobs.EventTypeLog)
	assertEventTypeExists(t, events, jobs.EventTypeProgress)
	result := assertEventTypeExists(t, events, jobs.EventTypeResult)

	wantPath := filepath.Join(outputDir, "clip_audio_replaced.mkv")
	if result.OutputPath != wantPath {
		t.Fatalf("result output = %q, want %q", result.OutputPath, wantPath)
	}
	if result.Message != "Audio replaced successfully with sync!\nSaved as "+wantPath {
		t.Fatalf("result message = %q", result.Message)
	}
	if app.CurrentJob().OutputPath != wantPath {
		t.Fatalf("current job output = %q", app.CurrentJob().OutputPath)
	}
}

// TestStartSyncPublishesFailureEvents checks error path emissions.
func TestStartSyncPublishesFailureEvents(t *testing.T) {
	root := t.TempDir()
	store := &fakeStore{settings: domain.Settings{}}
	app := newTestApp(store, func(ctx context.Context, req remux.Request) (remux.Result, error) {
		req.OnStage(remux.StageAdjustingAudio)
		return remux.Result{}, &remux.PipelineError{
			Kind:    remux.KindEncode,
			Stage:   remux.StageMerging,
			Message: "ffmpeg merge failed",
			CommandLog: remux.CommandLog{
				Command:  "ffmpeg",
				Args:     []string{"-i", "clip.mkv"},
				ExitCode: 1,
				Stderr:   "Unknown encoder 'hevc_nvenc'",
			},
			Err: errors.New("exit status 1"),
		}
	})

	if _, err := app.StartSync(SyncRequest{
		VideoPath: filepath.Join(root, "clip.mkv"),
		AudioPath: filepath.Join(root, "clip.eac3"),
	}); err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusFailed)
	waitForIdleTask(t, app)

	events := app.JobEvents(0)
	assertEventTypeExists(t, events, jobs.EventTypeStatus)
	assertEventTypeExists(t, events, jobs.EventTypeLog)
	errEvent := assertEventTypeExists(t, events, jobs.EventTypeError)
	if errEvent.Message != "FFmpeg error occurred:\nUnknown encoder 'hevc_nvenc'" {
		t.Fatalf("error message = %q", errEvent.Message)
	}
}

// TestStartSyncRecoversPipelinePanic checks a crashing worker still ends the job.
func TestStartSyncRecoversPipelinePanic(t *testing.T) {
	app := newTestApp(&fakeStore{}, func(ctx context.Context, req remux.Request) (remux.Result, error) {
		panic("nil pointer in pipeline")
	})

	if _, err := app.StartSync(SyncRequest{VideoPath: "a.mkv", AudioPath: "a.eac3"}); err != nil {
		t.Fatalf("start job: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusFailed)
}

// TestUserMessage checks the dialog texts for each failure class.
func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "missing video",
			err:  &remux.PipelineError{Kind: remux.KindInputValidation, Err: remux.ErrVideoRequired},
			want: "Please select both a video and an audio file.",
		},
		{
			name: "missing audio",
			err:  &remux.PipelineError{Kind: remux.KindInputValidation, Err: remux.ErrAudioRequired},
			want: "Please select both a video and an audio file.",
		},
		{
			name: "bad offset",
			err:  &remux.PipelineError{Kind: remux.KindInputValidation, Err: fmt.Errorf("%w: %q", offset.ErrInvalidOffset, "abc")},
			want: "Invalid offset value. Please enter a numeric value.",
		},
		{
			name: "encode without stderr",
			err:  &remux.PipelineError{Kind: remux.KindEncode, Stage: remux.StageAdjustingAudio, Message: "empty track"},
			want: "FFmpeg error occurred:\nadjusting_audio: empty track",
		},
		{
			name: "other",
			err:  errors.New("disk full"),
			want: "disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Fatalf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestSaveSettingsNormalizes checks trimming and defaults on save.
func TestSaveSettingsNormalizes(t *testing.T) {
	store := &fakeStore{}
	app := newTestApp(store, nil)

	saved, err := app.SaveSettings(domain.Settings{OutputDir: "  /movies/out  "})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.OutputDir != "/movies/out" {
		t.Fatalf("output dir = %q", saved.OutputDir)
	}
	if saved.AudioCodec != "eac3" || saved.FFmpegPath != "ffmpeg" {
		t.Fatalf("defaults not applied: %+v", saved)
	}
	if len(store.saved) != 1 {
		t.Fatalf("store saves = %d, want 1", len(store.saved))
	}
}

func TestPickOutputDirectoryRequiresRuntime(t *testing.T) {
	app := newTestApp(&fakeStore{}, nil)
	if _, err := app.PickOutputDirectory(); err == nil || err.Error() != "runtime context is not initialized" {
		t.Fatalf("pick output error = %v", err)
	}
}

// TestSavedOutputDirReachesNextJob follows the output folder chooser:
// the picked directory is saved and the next job writes into it.
func TestSavedOutputDirReachesNextJob(t *testing.T) {
	root := t.TempDir()
	chosen := filepath.Join(root, "chosen")
	store := &fakeStore{settings: domain.Settings{AudioCodec: "eac3"}}

	var gotJob domain.SyncJob
	app := newTestApp(store, func(ctx context.Context, req remux.Request) (remux.Result, error) {
		gotJob = req.Job
		return remux.Result{}, errors.New("stop")
	})

	settings, err := app.GetSettings()
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	settings.OutputDir = chosen
	if _, err := app.SaveSettings(settings); err != nil {
		t.Fatalf("save: %v", err)
	}

	job, err := app.StartSync(SyncRequest{
		VideoPath: filepath.Join(root, "clip.mkv"),
		AudioPath: filepath.Join(root, "clip.eac3"),
		Offset:    "0",
	})
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	if want := filepath.Join(chosen, "clip_audio_replaced.mkv"); job.OutputPath != want {
		t.Fatalf("job output = %q, want %q", job.OutputPath, want)
	}

	waitForStatus(t, app, domain.JobStatusFailed)
	waitForIdleTask(t, app)
	if gotJob.OutputDir != chosen {
		t.Fatalf("pipeline output dir = %q, want %q", gotJob.OutputDir, chosen)
	}
}

// TestCancelSyncWithoutJob checks idle cancel handling.
func TestCancelSyncWithoutJob(t *testing.T) {
	app := newTestApp(&fakeStore{}, nil)
	if err := app.CancelSync(); !errors.Is(err, jobs.ErrNoRunningJob) {
		t.Fatalf("cancel error = %v, want %v", err, jobs.ErrNoRunningJob)
	}
}

// waitForStatus polls until job reaches desired status or times out.
func waitForStatus(t *testing.T, app *App, want domain.JobStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if app.CurrentJob().Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", app.CurrentJob().Status, want)
}

// waitForEvent polls until an event matching match has been published.
func waitForEvent(t *testing.T, app *App, match func(jobs.Event) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range app.JobEvents(0) {
			if match(e) {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected event was not published")
}

// waitForIdleTask polls until the finished job has been fully published.
func waitForIdleTask(t *testing.T, app *App) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		app.mu.Lock()
		idle := app.task == nil
		app.mu.Unlock()
		if idle {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("task handle was not released")
}

// assertEventTypeExists verifies at least one event of given type exists and returns the last one.
func assertEventTypeExists(t *testing.T, events []jobs.Event, want jobs.EventType) jobs.Event {
	t.Helper()
	var found *jobs.Event
	for i := range events {
		if events[i].Type == want {
			found = &events[i]
		}
	}
	if found == nil {
		names := make([]string, 0, len(events))
		for _, e := range events {
			names = append(names, string(e.Type))
		}
		t.Fatalf("event type %s not found in [%s]", want, strings.Join(names, " "))
	}
	return *found
}
