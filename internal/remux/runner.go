package remux

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
)

// command is one external process invocation.
type command struct {
	Name string
	Args []string
	// OnLine receives stdout line by line; stdout is not buffered when set.
	OnLine func(line string)
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, cmd command) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, c command) (commandResult, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	var (
		pw   *io.PipeWriter
		done chan struct{}
	)
	if c.OnLine == nil {
		cmd.Stdout = &stdout
	} else {
		var pr *io.PipeReader
		pr, pw = io.Pipe()
		cmd.Stdout = pw
		done = make(chan struct{})
		go func() {
			defer close(done)
			scanner := bufio.NewScanner(pr)
			for scanner.Scan() {
				c.OnLine(scanner.Text())
			}
			// keep draining so the process never blocks on a full pipe
			_, _ = io.Copy(io.Discard, pr)
		}()
	}

	err := cmd.Run()
	if pw != nil {
		_ = pw.Close()
		<-done
	}

	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

func newCommandLog(c command, res commandResult) CommandLog {
	return CommandLog{
		Command:  c.Name,
		Args:     c.Args,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
}
