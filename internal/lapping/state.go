package lapping

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is a phase of the lap machine.
type State int

const (
	WarmUp State = iota
	Start
	Lapping
	End
)

func (s State) String() string {
	switch s {
	case WarmUp:
		return "warm_up"
	case Start:
		return "start"
	case Lapping:
		return "lapping"
	case End:
		return "end"
	default:
		return "unknown"
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for _, candidate := range []State{WarmUp, Start, Lapping, End} {
		if candidate.String() == name {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown lap state: %q", name)
}

// Observation is one ranked prediction of the frame classifier.
type Observation struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// SelectedObject is the subject locked in during warm-up.
type SelectedObject struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// EndReason tells why a lap was closed.
type EndReason string

const (
	ReasonStopped EndReason = "stopped"
	ReasonStable  EndReason = "stable"
)

// Lap is one completed, timed interval.
type Lap struct {
	Name      string        `json:"name"`
	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Reason    EndReason     `json:"reason"`
}

// ChangeKind tags what a Change describes.
type ChangeKind string

const (
	ChangeState     ChangeKind = "state"
	ChangeSelection ChangeKind = "selection"
	ChangeLap       ChangeKind = "lap"
)

// Change describes one mutation made by the machine. Only the fields that
// belong to Kind are set.
type Change struct {
	Kind     ChangeKind
	From     State
	To       State
	Selected *SelectedObject
	Lap      *Lap
}
