package jobs

import (
	"sort"
	"sync"
	"time"

	"audio-sync/internal/domain"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeLog      EventType = "log"
	EventTypeProgress EventType = "progress"
	EventTypeResult   EventType = "result"
	EventTypeError    EventType = "error"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq            int64            `json:"seq"`
	Timestamp      time.Time        `json:"timestamp"`
	JobID          string           `json:"jobId"`
	Type           EventType        `json:"type"`
	Status         domain.JobStatus `json:"status,omitempty"`
	Message        string           `json:"message,omitempty"`
	Command        string           `json:"command,omitempty"`
	Args           []string         `json:"args,omitempty"`
	ExitCode       int              `json:"exitCode,omitempty"`
	Stdout         string           `json:"stdout,omitempty"`
	Stderr         string           `json:"stderr,omitempty"`
	Percent        float64          `json:"percent,omitempty"`
	OutTimeSeconds float64          `json:"outTimeSeconds,omitempty"`
	Speed          float64          `json:"speed,omitempty"`
	OutputPath     string           `json:"outputPath,omitempty"`
	Warning        string           `json:"warning,omitempty"`
}

// EventBus stores recent events and provides incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
// History is kept in publish order, so the cut point is found by search.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := sort.Search(len(b.events), func(i int) bool {
		return b.events[i].Seq > seq
	})
	if start == len(b.events) {
		return nil
	}
	return append([]Event(nil), b.events[start:]...)
}

// LastSeq returns the sequence of the newest published event.
func (b *EventBus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}
