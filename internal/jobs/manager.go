package jobs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"audio-sync/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active job.
var ErrJobAlreadyRunning = errors.New("job already running")

// ErrNoRunningJob is returned when cancel is requested for idle state.
var ErrNoRunningJob = errors.New("no running job")

// ErrStaleJob is returned when a job that is no longer current tries to
// change the manager, e.g. a cancelled job finishing after a new one started.
var ErrStaleJob = errors.New("job is no longer current")

// Manager tracks the single allowed active sync job and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Job
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Job{
			Status: domain.JobStatusIdle,
		},
	}
}

// Start creates a new job and moves it to input validation.
func (m *Manager) Start(jobID, videoPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if IsActive(m.current.Status) {
		return ErrJobAlreadyRunning
	}

	m.current = domain.Job{
		ID:        jobID,
		Status:    domain.JobStatusValidatingInputs,
		VideoPath: videoPath,
	}
	return nil
}

// Transition validates and applies a state change for jobID. Terminal jobs
// stay as they are until Start or Reset replaces them.
func (m *Manager) Transition(jobID string, status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkCurrent(jobID); err != nil {
		return err
	}
	if status == m.current.Status {
		return nil
	}
	if IsTerminal(m.current.Status) {
		return fmt.Errorf("job %s already %s", jobID, m.current.Status)
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	return nil
}

// SetOutput records where jobID writes its merged file.
func (m *Manager) SetOutput(jobID, outputPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkCurrent(jobID); err != nil {
		return err
	}
	m.current.OutputPath = outputPath
	return nil
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears job metadata and returns manager to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.Job{Status: domain.JobStatusIdle}
}

// IsRunning reports whether the current state is an active stage.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return IsActive(m.current.Status)
}

// Cancel moves jobID to cancelled state if it is still active.
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkCurrent(jobID); err != nil {
		return err
	}
	if !IsActive(m.current.Status) {
		return ErrNoRunningJob
	}
	m.current.Status = domain.JobStatusCancelled
	return nil
}

func (m *Manager) checkCurrent(jobID string) error {
	if jobID == "" || jobID != m.current.ID {
		return fmt.Errorf("%w: %q", ErrStaleJob, jobID)
	}
	return nil
}

// IsActive reports whether status is one of the pipeline stages.
func IsActive(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusValidatingInputs,
		domain.JobStatusAdjustingAudio,
		domain.JobStatusMerging,
		domain.JobStatusCleaningUp:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether status ends a job.
func IsTerminal(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusSucceeded, domain.JobStatusFailed, domain.JobStatusCancelled:
		return true
	default:
		return false
	}
}

// transitions lists the forward edges of an active job. Failure and
// cancellation are reachable from every active state and are not listed.
var transitions = map[domain.JobStatus][]domain.JobStatus{
	domain.JobStatusValidatingInputs: {domain.JobStatusAdjustingAudio},
	domain.JobStatusAdjustingAudio:   {domain.JobStatusMerging, domain.JobStatusCleaningUp},
	domain.JobStatusMerging:          {domain.JobStatusCleaningUp},
	domain.JobStatusCleaningUp:       {domain.JobStatusSucceeded},
}

func isValidTransition(from, to domain.JobStatus) bool {
	if IsActive(from) && (to == domain.JobStatusFailed || to == domain.JobStatusCancelled) {
		return true
	}
	return lo.Contains(transitions[from], to)
}
