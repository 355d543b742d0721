package api

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ankigen/internal/events"
)

const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusComplete  = "complete"
	RunStatusCancelled = "cancelled"
	RunStatusFailed    = "failed"

	// maxRunEvents bounds the event tail kept per run for polling clients.
	maxRunEvents = 200
)

// RunJob is the pollable view of one run, fed from its event stream.
type RunJob struct {
	ID        string         `json:"runId"`
	Filename  string         `json:"filename"`
	Deck      string         `json:"deck"`
	Status    string         `json:"status"`
	Step      string         `json:"step,omitempty"`
	Message   string         `json:"message,omitempty"`
	CardCount int            `json:"cardCount"`
	Current   int            `json:"current"`
	Total     int            `json:"total"`
	Error     string         `json:"error,omitempty"`
	Events    []events.Event `json:"events,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type runState struct {
	job       RunJob
	cancelled bool
}

// RunManager tracks active and finished runs for the polling API and owns
// each run's cancellation flag, which the orchestration loop polls between
// rounds.
type RunManager struct {
	mu   sync.RWMutex
	runs map[string]*runState
}

func NewRunManager() *RunManager {
	return &RunManager{runs: make(map[string]*runState)}
}

// CreateRun registers a new run and returns its id.
func (m *RunManager) CreateRun(filename, deck string) string {
	id := uuid.NewString()
	now := time.Now().UTC()

	m.mu.Lock()
	m.runs[id] = &runState{job: RunJob{
		ID:        id,
		Filename:  filename,
		Deck:      deck,
		Status:    RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	m.mu.Unlock()
	return id
}

// Get returns a copy of the run's current state.
func (m *RunManager) Get(id string) (*RunJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.runs[id]
	if !ok {
		return nil, false
	}
	job := state.job
	job.Events = append([]events.Event(nil), state.job.Events...)
	return &job, true
}

// Cancel flips the run's cancellation flag. The run honors it at the next
// poll point; at most one in-flight model call completes first.
func (m *RunManager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.runs[id]
	if !ok {
		return false
	}
	state.cancelled = true
	state.job.UpdatedAt = time.Now().UTC()
	return true
}

// Cancelled returns the cancellation predicate for a run.
func (m *RunManager) Cancelled(id string) func() bool {
	return func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		state, ok := m.runs[id]
		return ok && state.cancelled
	}
}

// MarkRunning transitions a pending run to running.
func (m *RunManager) MarkRunning(id string) {
	m.withRun(id, func(job *RunJob) {
		job.Status = RunStatusRunning
	})
}

// Apply folds one event into the run's pollable state.
func (m *RunManager) Apply(id string, ev events.Event) {
	m.withRun(id, func(job *RunJob) {
		switch ev.Type {
		case events.TypeStepStart:
			job.Step = ev.Message
			job.Message = ev.Message
		case events.TypeInfo, events.TypeWarning:
			job.Message = ev.Message
		case events.TypeProgressStart:
			job.Current = 0
			if total, ok := ev.Data["total"].(int); ok {
				job.Total = total
			}
		case events.TypeProgressUpdate:
			if current, ok := ev.Data["current"].(int); ok {
				job.Current = current
			}
		case events.TypeCard:
			job.CardCount++
		case events.TypeDone:
			job.Status = RunStatusComplete
			job.Message = ev.Message
		case events.TypeCancelled:
			job.Status = RunStatusCancelled
			job.Message = ev.Message
		case events.TypeError:
			job.Status = RunStatusFailed
			job.Error = strings.TrimSpace(ev.Message)
			job.Message = ev.Message
		}

		job.Events = append(job.Events, ev)
		if len(job.Events) > maxRunEvents {
			job.Events = job.Events[len(job.Events)-maxRunEvents:]
		}
	})
}

func (m *RunManager) withRun(id string, fn func(job *RunJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.runs[id]
	if !ok {
		return
	}
	fn(&state.job)
	state.job.UpdatedAt = time.Now().UTC()
}
