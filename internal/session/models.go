package session

import (
	"context"
	"sync"
	"time"

	"github.com/kdimtricp/laptimer/internal/classify"
	"github.com/kdimtricp/laptimer/internal/lapping"
	"github.com/kdimtricp/laptimer/internal/models"
	"github.com/kdimtricp/laptimer/internal/perflog"
)

// Session is one device's lap timing run. All fields below the line are
// owned by the session's loop goroutine.
type Session struct {
	ID        string
	Model     classify.ModelType
	CreatedAt time.Time

	cmds    chan command
	done    chan struct{}
	cancel  context.CancelFunc
	hub     *hub
	perf    *perflog.Recorder
	pending sync.WaitGroup // laps queued for the writer

	machine *lapping.Machine
	top     []classify.Label
	laps    []models.Lap
}

// Done is closed once the session loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Snapshot is a read-only view of a session for displays.
type Snapshot struct {
	SessionID string                  `json:"session_id"`
	Model     classify.ModelType      `json:"model"`
	State     lapping.State           `json:"state"`
	Selected  *lapping.SelectedObject `json:"selected,omitempty"`
	Elapsed   time.Duration           `json:"elapsed_ns"`
	Clock     string                  `json:"clock"`
	Top       []classify.Label        `json:"top"`
	Laps      []models.Lap            `json:"laps"`
}

// Frame is one classified camera frame as reported by the device.
type Frame struct {
	Probabilities map[string]float64 `json:"probabilities"`
	Latency       time.Duration      `json:"latency_ns"`
	FramesDropped int                `json:"frames_dropped"`
}

type Update struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	UpdateState     = "state"
	UpdateSelection = "selection"
	UpdateLap       = "lap"
	UpdateTick      = "tick"
	UpdateClosed    = "closed"
)

type StateData struct {
	From lapping.State `json:"from"`
	To   lapping.State `json:"to"`
}

type TickData struct {
	Elapsed time.Duration `json:"elapsed_ns"`
	Clock   string        `json:"clock"`
}

type command struct {
	apply func(s *Session) []lapping.Change
	reply chan Snapshot
}
