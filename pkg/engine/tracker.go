package engine

import (
	"sync"
	"time"
)

// Query lifecycle states reported by the tracker.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// retention bounds how long finished entries stay queryable.
const retention = time.Hour

// Status is a point-in-time view of an in-flight or recent query.
type Status struct {
	ID         string    `json:"query_id"`
	Query      string    `json:"query"`
	Status     string    `json:"status"`
	Completion float64   `json:"completion"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Tracker records query progress so clients can poll long-running requests.
type Tracker struct {
	mu   sync.RWMutex
	byID map[string]*Status
}

func NewTracker() *Tracker {
	return &Tracker{byID: make(map[string]*Status)}
}

func (t *Tracker) Begin(id, query string) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune(now)
	t.byID[id] = &Status{
		ID:        id,
		Query:     query,
		Status:    StatusProcessing,
		StartedAt: now,
		UpdatedAt: now,
	}
}

func (t *Tracker) Progress(id string, completion float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.byID[id]; ok {
		if completion > s.Completion {
			s.Completion = completion
		}
		s.UpdatedAt = time.Now()
	}
}

func (t *Tracker) Complete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.byID[id]; ok {
		s.Status = StatusCompleted
		s.Completion = 1.0
		s.UpdatedAt = time.Now()
	}
}

func (t *Tracker) Fail(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.byID[id]; ok {
		s.Status = StatusError
		if err != nil {
			s.Error = err.Error()
		}
		s.UpdatedAt = time.Now()
	}
}

// Get returns a copy of the status for id.
func (t *Tracker) Get(id string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byID[id]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// prune drops finished entries past the retention window. Caller holds mu.
func (t *Tracker) prune(now time.Time) {
	for id, s := range t.byID {
		if s.Status != StatusProcessing && now.Sub(s.UpdatedAt) > retention {
			delete(t.byID, id)
		}
	}
}
