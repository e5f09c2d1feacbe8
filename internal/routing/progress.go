package routing

import "sync"

// Phase is a step of the transient progress shown while a round trip runs.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseRoutingPending  Phase = "routing_pending"
	PhaseRoutingResolved Phase = "routing_resolved"
	PhaseAnswered        Phase = "answered"
)

// SelectingModelText is the placeholder shown while the router is consulted.
const SelectingModelText = "Selecting model..."

// Progress is one observable update. It is never persisted.
type Progress struct {
	Phase       Phase  `json:"phase"`
	Text        string `json:"text,omitempty"`
	TargetModel string `json:"targetModel,omitempty"`
	Err         bool   `json:"error,omitempty"`
}

// ProgressFunc receives progress updates in order.
type ProgressFunc func(Progress)

var transitions = map[Phase][]Phase{
	PhaseIdle:            {PhaseRoutingPending, PhaseAnswered},
	PhaseRoutingPending:  {PhaseRoutingResolved, PhaseAnswered},
	PhaseRoutingResolved: {PhaseAnswered},
}

// Tracker enforces the progress state machine and forwards legal updates.
// Once Answered, every further update is dropped.
type Tracker struct {
	mu     sync.Mutex
	phase  Phase
	notify ProgressFunc
}

// NewTracker creates a tracker in the Idle phase. notify may be nil.
func NewTracker(notify ProgressFunc) *Tracker {
	return &Tracker{phase: PhaseIdle, notify: notify}
}

// Phase returns the current phase
func (t *Tracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Pending moves Idle to RoutingPending.
func (t *Tracker) Pending() bool {
	return t.move(Progress{Phase: PhaseRoutingPending, Text: SelectingModelText})
}

// Resolved records the router's chosen target.
func (t *Tracker) Resolved(target string) bool {
	return t.move(Progress{Phase: PhaseRoutingResolved, TargetModel: target})
}

// Answered closes the tracker. failed marks an in-band error answer.
func (t *Tracker) Answered(failed bool) bool {
	return t.move(Progress{Phase: PhaseAnswered, Err: failed})
}

func (t *Tracker) move(p Progress) bool {
	t.mu.Lock()
	allowed := false
	for _, next := range transitions[t.phase] {
		if next == p.Phase {
			allowed = true
			break
		}
	}
	if !allowed {
		t.mu.Unlock()
		return false
	}
	t.phase = p.Phase
	notify := t.notify
	t.mu.Unlock()

	if notify != nil {
		notify(p)
	}
	return true
}
