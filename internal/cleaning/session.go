package cleaning

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the cleaning intensity chosen when a session starts.
type Mode string

const (
	ModeMaintenance Mode = "maintenance"
	ModeDeep        Mode = "deep"
)

// ParseMode accepts the mode names used in callbacks, config and the CLI.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMaintenance, "quick", "light":
		return ModeMaintenance, nil
	case ModeDeep:
		return ModeDeep, nil
	default:
		return "", fmt.Errorf("unknown cleaning mode %q", s)
	}
}

// PhaseKind identifies one segment of a compiled flow.
type PhaseKind string

const (
	PhasePrep       PhaseKind = "prep"
	PhaseGlobalBase PhaseKind = "base"
	PhaseZone       PhaseKind = "zone"
	PhaseFloors     PhaseKind = "floors"
	PhaseFinish     PhaseKind = "finish"
)

// TaskDescriptor is one atomic chore. An empty ZoneID marks a global task.
type TaskDescriptor struct {
	ID               string `json:"id"`
	ZoneID           string `json:"zone_id,omitempty"`
	Label            string `json:"label"`
	EstimatedSeconds int    `json:"estimated_seconds"`
	RequiresDeepMode bool   `json:"requires_deep_mode,omitempty"`
}

// Phase is an ordered group of tasks. Zone phases carry their ZoneID.
type Phase struct {
	Kind   PhaseKind        `json:"kind"`
	ZoneID string           `json:"zone_id,omitempty"`
	Tasks  []TaskDescriptor `json:"tasks"`
}

// Flow is the full task plan of a session. It is never mutated after compilation;
// use Clone before handing a copy to code outside this package.
type Flow struct {
	Phases []Phase `json:"phases"`
}

func (f Flow) Clone() Flow {
	phases := make([]Phase, len(f.Phases))
	for i, p := range f.Phases {
		tasks := make([]TaskDescriptor, len(p.Tasks))
		copy(tasks, p.Tasks)
		phases[i] = Phase{Kind: p.Kind, ZoneID: p.ZoneID, Tasks: tasks}
	}
	return Flow{Phases: phases}
}

// TotalTasks is the number of completeCurrentTask calls needed to drain the flow.
func (f Flow) TotalTasks() int {
	n := 0
	for _, p := range f.Phases {
		n += len(p.Tasks)
	}
	return n
}

func (f Flow) Kinds() []PhaseKind {
	kinds := make([]PhaseKind, len(f.Phases))
	for i, p := range f.Phases {
		kinds[i] = p.Kind
	}
	return kinds
}

// EstimatedDuration sums the estimates of every task in the flow.
func (f Flow) EstimatedDuration() time.Duration {
	var secs int
	for _, p := range f.Phases {
		for _, t := range p.Tasks {
			secs += t.EstimatedSeconds
		}
	}
	return time.Duration(secs) * time.Second
}

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// Session is the persisted, resumable progress record of one flow.
//
// While Active or Paused, 0 <= PhaseIndex < len(Flow.Phases). A Completed session
// has PhaseIndex == len(Flow.Phases) and TaskIndex == 0.
type Session struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Mode       Mode      `json:"mode"`
	Zones      []string  `json:"zones"`
	Flow       Flow      `json:"flow"`
	PhaseIndex int       `json:"phase_index"`
	TaskIndex  int       `json:"task_index"`
	Status     Status    `json:"status"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can't alias the engine's flow.
func (s Session) Clone() Session {
	out := s
	out.Zones = append([]string(nil), s.Zones...)
	out.Flow = s.Flow.Clone()
	return out
}

// Current returns the task under the cursor, if any.
func (s Session) Current() (TaskDescriptor, bool) {
	if s.Status.Terminal() {
		return TaskDescriptor{}, false
	}
	if s.PhaseIndex < 0 || s.PhaseIndex >= len(s.Flow.Phases) {
		return TaskDescriptor{}, false
	}
	phase := s.Flow.Phases[s.PhaseIndex]
	if s.TaskIndex < 0 || s.TaskIndex >= len(phase.Tasks) {
		return TaskDescriptor{}, false
	}
	return phase.Tasks[s.TaskIndex], true
}

// CurrentPhase returns the phase under the cursor, if any.
func (s Session) CurrentPhase() (Phase, bool) {
	if s.PhaseIndex < 0 || s.PhaseIndex >= len(s.Flow.Phases) {
		return Phase{}, false
	}
	return s.Flow.Phases[s.PhaseIndex], true
}

// Done counts the tasks already behind the cursor.
func (s Session) Done() int {
	n := 0
	for i := 0; i < s.PhaseIndex && i < len(s.Flow.Phases); i++ {
		n += len(s.Flow.Phases[i].Tasks)
	}
	if s.PhaseIndex < len(s.Flow.Phases) {
		n += s.TaskIndex
	}
	return n
}

// advance moves the cursor past the current task.
func (s *Session) advance() {
	if s.PhaseIndex < len(s.Flow.Phases) {
		s.TaskIndex++
		if s.TaskIndex < len(s.Flow.Phases[s.PhaseIndex].Tasks) {
			return
		}
		s.TaskIndex = 0
		s.PhaseIndex++
	}
	s.settle()
}

// settle skips empty phases and marks the session Completed when the flow is exhausted.
func (s *Session) settle() {
	for s.PhaseIndex < len(s.Flow.Phases) && len(s.Flow.Phases[s.PhaseIndex].Tasks) == 0 {
		s.PhaseIndex++
		s.TaskIndex = 0
	}
	if s.PhaseIndex >= len(s.Flow.Phases) {
		s.PhaseIndex = len(s.Flow.Phases)
		s.TaskIndex = 0
		s.Status = StatusCompleted
	}
}
