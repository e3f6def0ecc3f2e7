package remux

import (
	"errors"
	"fmt"
)

var (
	// ErrVideoRequired is returned when no video file was selected.
	ErrVideoRequired = errors.New("video file is required")
	// ErrAudioRequired is returned when no audio file was selected.
	ErrAudioRequired = errors.New("audio file is required")
	// ErrTargetBusy is returned when another job is writing the same output.
	ErrTargetBusy = errors.New("another job is already writing this output")
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindInputValidation ErrorKind = "input_validation"
	KindEncode          ErrorKind = "encode"
	KindCleanup         ErrorKind = "cleanup"
)

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// PipelineError is a stage-aware error with optional command context.
type PipelineError struct {
	Kind       ErrorKind  `json:"kind"`
	Stage      Stage      `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats pipeline failures for logs and UI.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsInputValidation reports whether err was raised before any file was touched.
func IsInputValidation(err error) bool {
	var pErr *PipelineError
	return errors.As(err, &pErr) && pErr.Kind == KindInputValidation
}

// IsEncode reports whether err came from the media engine.
func IsEncode(err error) bool {
	var pErr *PipelineError
	return errors.As(err, &pErr) && pErr.Kind == KindEncode
}

func inputError(message string, err error) *PipelineError {
	return &PipelineError{
		Kind:    KindInputValidation,
		Stage:   StageValidatingInputs,
		Message: message,
		Err:     err,
	}
}

func encodeError(stage Stage, message string, log CommandLog, err error) *PipelineError {
	return &PipelineError{
		Kind:       KindEncode,
		Stage:      stage,
		Message:    message,
		CommandLog: log,
		Err:        err,
	}
}
