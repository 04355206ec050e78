package actuator

import (
	"log/slog"
	"sync"
	"time"
)

// Transition is one recorded level change.
type Transition struct {
	Active bool
	At     time.Time
}

// Recorder is an in-memory actuator for hosts without an output line.
// It logs every transition and keeps the history for inspection.
type Recorder struct {
	logger *slog.Logger

	mu      sync.Mutex
	active  bool
	history []Transition
	closed  bool
}

// NewRecorder creates a Recorder in the inactive state.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logger: logger}
}

// SetLevel records the new level.
func (r *Recorder) SetLevel(active bool) error {
	r.mu.Lock()
	r.active = active
	r.history = append(r.history, Transition{Active: active, At: time.Now()})
	r.mu.Unlock()

	r.logger.Debug("output level changed", "active", active)
	return nil
}

// Active reports the current level.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Transitions returns a copy of the recorded history.
func (r *Recorder) Transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transition, len(r.history))
	copy(out, r.history)
	return out
}

// Reset clears the history without changing the level.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.history = nil
	r.mu.Unlock()
}

// Close marks the recorder closed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}
