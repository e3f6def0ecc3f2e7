package remux

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"audio-sync/internal/domain"
	"audio-sync/internal/offset"
	"audio-sync/internal/profile"
)

// Stage names one step of the merge pipeline.
type Stage string

const (
	StageValidatingInputs Stage = "validating_inputs"
	StageAdjustingAudio   Stage = "adjusting_audio"
	StageMerging          Stage = "merging"
	StageCleaningUp       Stage = "cleaning_up"
)

// DefaultAudioCodec is used when neither the job nor the settings name one.
const DefaultAudioCodec = "eac3"

// Request contains one sync job and execution callbacks.
type Request struct {
	Job        domain.SyncJob
	OnStage    func(stage Stage)
	OnLog      func(log CommandLog)
	OnProgress func(progress Progress)
}

// Result describes a successful merge.
type Result struct {
	OutputPath  string
	Hint        profile.Hint
	Profile     domain.EncodeProfile
	Instruction offset.Instruction
	Logs        []CommandLog
	// CleanupWarning is set when the scratch track could not be removed.
	CleanupWarning string
}

// Pipeline adjusts the audio track and muxes it with the source video.
type Pipeline struct {
	ffmpegPath  string
	ffprobePath string
	audioCodec  string
	runner      commandRunner
	selector    *profile.Selector
	stat        func(name string) (os.FileInfo, error)
	remove      func(name string) error
	mkdirAll    func(path string, perm os.FileMode) error
	newID       func() string

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewPipeline constructs the production pipeline from settings.
func NewPipeline(settings domain.Settings) *Pipeline {
	return &Pipeline{
		ffmpegPath:  orDefault(settings.FFmpegPath, "ffmpeg"),
		ffprobePath: orDefault(settings.FFprobePath, "ffprobe"),
		audioCodec:  orDefault(settings.AudioCodec, DefaultAudioCodec),
		runner:      &execRunner{},
		selector: profile.NewSelector(profile.Options{
			Threads:     runtime.NumCPU(),
			VaapiDevice: settings.VaapiDevice,
		}),
		stat:     os.Stat,
		remove:   os.Remove,
		mkdirAll: os.MkdirAll,
		newID:    func() string { return uuid.NewString() },
		inflight: map[string]struct{}{},
	}
}

// NewPipelineForTests constructs a pipeline with injectable dependencies.
func NewPipelineForTests(
	ffmpegPath string,
	ffprobePath string,
	runner commandRunner,
	selector *profile.Selector,
	stat func(name string) (os.FileInfo, error),
	remove func(name string) error,
	newID func() string,
) *Pipeline {
	return &Pipeline{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		audioCodec:  DefaultAudioCodec,
		runner:      runner,
		selector:    selector,
		stat:        stat,
		remove:      remove,
		mkdirAll:    func(string, os.FileMode) error { return nil },
		newID:       newID,
		inflight:    map[string]struct{}{},
	}
}

// SelectProfile reports the profile the next merge would use.
func (p *Pipeline) SelectProfile() (profile.Hint, domain.EncodeProfile) {
	return p.selector.Select()
}

// OutputPathFor reports where a job's merged file is written.
func OutputPathFor(job domain.SyncJob) string {
	dir := strings.TrimSpace(job.OutputDir)
	if dir == "" {
		dir = filepath.Dir(job.VideoPath)
	}
	return filepath.Join(dir, outputFileName(job.VideoPath))
}

// Run validates the job, writes the adjusted scratch track, merges it with
// the source video and always releases the scratch track it created.
func (p *Pipeline) Run(ctx context.Context, req Request) (res Result, err error) {
	job := req.Job
	emitStage(req.OnStage, StageValidatingInputs)

	seconds, err := p.validate(job)
	if err != nil {
		return Result{}, err
	}

	outputPath := OutputPathFor(job)
	release, err := p.acquire(outputPath)
	if err != nil {
		return Result{}, err
	}
	defer release()

	outputDir := filepath.Dir(outputPath)
	if err := p.mkdirAll(outputDir, 0o755); err != nil {
		return Result{}, inputError(fmt.Sprintf("cannot create output directory: %s", outputDir), err)
	}
	scratchDir := strings.TrimSpace(job.ScratchDir)
	if scratchDir == "" {
		scratchDir = outputDir
	} else if err := p.mkdirAll(scratchDir, 0o755); err != nil {
		return Result{}, inputError(fmt.Sprintf("cannot create scratch directory: %s", scratchDir), err)
	}

	audioCodec := orDefault(job.AudioCodec, p.audioCodec)
	hint, prof := p.selector.Select()
	ins := offset.Resolve(seconds, job.AudioPath)
	logger.Infof(ctx, "sync %s: %s, profile %s (%s)", job.VideoPath, ins, prof.Name, hint)

	scratchPath := filepath.Join(scratchDir, scratchFileName(p.newID()))
	defer func() {
		emitStage(req.OnStage, StageCleaningUp)
		cleanupErr := p.releaseScratch(scratchPath)
		if cleanupErr == nil {
			return
		}
		if err != nil {
			err = multierror.Append(err, cleanupErr)
			return
		}
		logger.Warnf(ctx, "scratch track left behind: %v", cleanupErr)
		res.CleanupWarning = cleanupErr.Error()
	}()

	var logs []CommandLog
	emitStage(req.OnStage, StageAdjustingAudio)
	adjustLog, err := p.adjust(ctx, req, ins, scratchPath, audioCodec)
	if adjustLog.Command != "" {
		logs = append(logs, adjustLog)
	}
	if err != nil {
		return Result{}, err
	}

	emitStage(req.OnStage, StageMerging)
	mergeLog, err := p.merge(ctx, req, job.VideoPath, scratchPath, outputPath, prof, audioCodec)
	logs = append(logs, mergeLog)
	if err != nil {
		return Result{}, err
	}

	return Result{
		OutputPath:  outputPath,
		Hint:        hint,
		Profile:     prof,
		Instruction: ins,
		Logs:        logs,
	}, nil
}

// validate checks the job without touching the file system beyond stat.
func (p *Pipeline) validate(job domain.SyncJob) (float64, error) {
	if strings.TrimSpace(job.VideoPath) == "" {
		return 0, inputError("video file is required", ErrVideoRequired)
	}
	if strings.TrimSpace(job.AudioPath) == "" {
		return 0, inputError("audio file is required", ErrAudioRequired)
	}

	seconds, err := offset.Parse(job.OffsetText)
	if err != nil {
		return 0, inputError(err.Error(), err)
	}

	if err := p.requireFile(job.VideoPath); err != nil {
		return 0, inputError(fmt.Sprintf("cannot access video file: %s", job.VideoPath), err)
	}
	if err := p.requireFile(job.AudioPath); err != nil {
		return 0, inputError(fmt.Sprintf("cannot access audio file: %s", job.AudioPath), err)
	}

	return seconds, nil
}

func (p *Pipeline) requireFile(path string) error {
	info, err := p.stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

// acquire admits one in-flight job per output path.
func (p *Pipeline) acquire(outputPath string) (func(), error) {
	key := filepath.Clean(outputPath)

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[key]; busy {
		return nil, inputError(fmt.Sprintf("output is already being written: %s", outputPath), ErrTargetBusy)
	}
	p.inflight[key] = struct{}{}

	return func() {
		p.mu.Lock()
		delete(p.inflight, key)
		p.mu.Unlock()
	}, nil
}

func (p *Pipeline) adjust(
	ctx context.Context,
	req Request,
	ins offset.Instruction,
	scratchPath string,
	audioCodec string,
) (CommandLog, error) {
	if ins.Kind == offset.KindTrim {
		duration, err := p.probeDuration(ctx, ins.AudioPath)
		switch {
		case err != nil:
			logger.Debugf(ctx, "skipping audio duration check: %v", err)
		case ins.Seconds >= duration:
			return CommandLog{}, encodeError(
				StageAdjustingAudio,
				fmt.Sprintf(
					"offset of %ss removes the whole audio track (%ss long)",
					offset.FormatSeconds(ins.Seconds),
					offset.FormatSeconds(duration),
				),
				CommandLog{},
				nil,
			)
		}
	}

	c := command{Name: p.ffmpegPath, Args: buildAdjustArgs(ins, scratchPath, audioCodec)}
	log, runErr := p.run(ctx, req, c)
	if runErr != nil {
		return log, encodeError(StageAdjustingAudio, "ffmpeg audio adjustment failed", log, runErr)
	}

	info, err := p.stat(scratchPath)
	if err != nil {
		return log, encodeError(StageAdjustingAudio, "ffmpeg completed but adjusted audio is missing", log, err)
	}
	if info.Size() == 0 {
		return log, encodeError(StageAdjustingAudio, "ffmpeg produced an empty adjusted audio track", log, nil)
	}
	return log, nil
}

func (p *Pipeline) merge(
	ctx context.Context,
	req Request,
	videoPath string,
	scratchPath string,
	outputPath string,
	prof domain.EncodeProfile,
	audioCodec string,
) (CommandLog, error) {
	total, err := p.probeDuration(ctx, videoPath)
	if err != nil {
		logger.Debugf(ctx, "video duration unknown, progress will be coarse: %v", err)
		total = 0
	}

	parser := newProgressParser(total)
	emitProgress(req.OnProgress, Progress{Percent: 0})

	c := command{
		Name: p.ffmpegPath,
		Args: buildMergeArgs(videoPath, scratchPath, outputPath, prof, audioCodec),
		OnLine: func(line string) {
			if progress, ok := parser.ParseLine(line); ok && !progress.Done {
				emitProgress(req.OnProgress, progress)
			}
		},
	}
	log, runErr := p.run(ctx, req, c)
	if runErr != nil {
		return log, encodeError(StageMerging, "ffmpeg merge failed", log, runErr)
	}

	if _, err := p.stat(outputPath); err != nil {
		return log, encodeError(StageMerging, "ffmpeg completed but output file is missing", log, err)
	}

	emitProgress(req.OnProgress, Progress{
		OutTimeSeconds: total,
		Percent:        100,
		Done:           true,
	})
	return log, nil
}

// run executes c, forwards its log and surfaces cancellation as ctx.Err.
func (p *Pipeline) run(ctx context.Context, req Request, c command) (CommandLog, error) {
	logger.Debugf(ctx, "running %s %s", c.Name, strings.Join(c.Args, " "))
	res, runErr := p.runner.Run(ctx, c)
	log := newCommandLog(c, res)
	emitLog(req.OnLog, log)

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return log, ctxErr
		}
		return log, runErr
	}
	return log, nil
}

// releaseScratch removes the scratch track; a track never written is fine.
func (p *Pipeline) releaseScratch(path string) error {
	if err := p.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &PipelineError{
			Kind:    KindCleanup,
			Stage:   StageCleaningUp,
			Message: fmt.Sprintf("failed to remove scratch audio %s: %v", path, err),
			Err:     err,
		}
	}
	return nil
}

// emitStage forwards stage updates when callback is configured.
func emitStage(cb func(stage Stage), stage Stage) {
	if cb != nil {
		cb(stage)
	}
}

// emitLog forwards command logs when callback is configured.
func emitLog(cb func(log CommandLog), log CommandLog) {
	if cb != nil {
		cb(log)
	}
}

func emitProgress(cb func(progress Progress), progress Progress) {
	if cb != nil {
		cb(progress)
	}
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
