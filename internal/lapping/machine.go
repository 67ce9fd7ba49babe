// Package lapping times how long a classifier keeps recognizing the same
// subject. A Machine walks WarmUp -> Start -> Lapping -> End -> WarmUp and
// records one Lap per completed cycle.
package lapping

import (
	"math"
	"time"

	"github.com/kdimtricp/laptimer/internal/timeutil"
)

// Machine is the lap state machine. It does no locking: every method must be
// called from a single goroutine (see session.Service).
type Machine struct {
	cfg   Config
	clock timeutil.Clock
	gate  StabilityGate

	state       State
	selected    SelectedObject
	hasSelected bool
	startedAt   time.Time
	hasStart    bool
	ticker      timeutil.Ticker
	laps        []Lap
}

// New creates a machine in WarmUp. A nil clock means wall-clock time.
func New(cfg Config, clock timeutil.Clock) *Machine {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Machine{
		cfg:   cfg,
		clock: clock,
		gate:  NewStabilityGate(cfg.Tolerance),
		state: WarmUp,
	}
}

func (m *Machine) State() State { return m.state }

// Selected returns the subject currently locked in, if any.
func (m *Machine) Selected() (SelectedObject, bool) {
	return m.selected, m.hasSelected
}

// Elapsed is the running lap time, zero when no lap is in progress.
func (m *Machine) Elapsed() time.Duration {
	if !m.hasStart {
		return 0
	}
	return absDuration(m.clock.Since(m.startedAt))
}

// Laps returns the completed laps in the order they were recorded.
func (m *Machine) Laps() []Lap {
	laps := make([]Lap, len(m.laps))
	copy(laps, m.laps)
	return laps
}

// Ticks delivers display clock ticks while a lap is running. It returns a
// nil channel otherwise, which blocks forever in a select.
func (m *Machine) Ticks() <-chan time.Time {
	if m.ticker == nil {
		return nil
	}
	return m.ticker.C()
}

// Start begins a lap. It only has an effect in WarmUp.
func (m *Machine) Start() []Change {
	if m.state != WarmUp {
		return nil
	}

	changes := m.transition(nil, Start)

	m.startedAt = m.clock.Now()
	m.hasStart = true
	m.ticker = m.clock.NewTicker(m.cfg.TickInterval)

	// Start is transient.
	return m.transition(changes, Lapping)
}

// Stop ends the running lap. Outside of Lapping it does nothing, so repeated
// calls never record a second lap.
func (m *Machine) Stop() []Change {
	if m.state != Lapping {
		return nil
	}
	return m.end(ReasonStopped)
}

// Observe feeds the top prediction of one frame.
func (m *Machine) Observe(o Observation) []Change {
	return m.ObserveRanked([]Observation{o})
}

// ObserveRanked feeds the ranked predictions of one frame, best first.
// In WarmUp only the first entry may become the selected subject; in Lapping
// any of the first TopK entries may end the lap.
func (m *Machine) ObserveRanked(obs []Observation) []Change {
	if len(obs) == 0 {
		return nil
	}

	switch m.state {
	case WarmUp:
		return m.selectSubject(obs[0])
	case Lapping:
		if m.lapIsStable(obs) {
			return m.end(ReasonStable)
		}
	}
	return nil
}

// selectSubject adopts o when its label differs from the current subject.
// The confidence is only refreshed together with a label change.
func (m *Machine) selectSubject(o Observation) []Change {
	if !valid(o) {
		return nil
	}
	if m.hasSelected && m.selected.Name == o.Label {
		return nil
	}

	m.selected = SelectedObject{Name: o.Label, Confidence: o.Confidence}
	m.hasSelected = true

	selected := m.selected
	return []Change{{Kind: ChangeSelection, From: m.state, To: m.state, Selected: &selected}}
}

func (m *Machine) lapIsStable(obs []Observation) bool {
	if !m.hasStart || !m.hasSelected {
		return false
	}
	if m.Elapsed() <= m.cfg.MinimumLap {
		return false
	}

	k := m.cfg.TopK
	if k < 1 {
		k = 1
	}
	if k > len(obs) {
		k = len(obs)
	}

	for _, o := range obs[:k] {
		if !valid(o) || o.Label != m.selected.Name {
			continue
		}
		if m.gate.IsAcceptable(m.selected.Confidence, o.Confidence) {
			return true
		}
	}
	return false
}

func (m *Machine) end(reason EndReason) []Change {
	changes := m.transition(nil, End)

	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}

	if m.hasStart {
		now := m.clock.Now()
		lap := Lap{
			Name:      m.selected.Name,
			Duration:  absDuration(now.Sub(m.startedAt)),
			StartedAt: m.startedAt,
			EndedAt:   now,
			Reason:    reason,
		}
		m.laps = append(m.laps, lap)
		changes = append(changes, Change{Kind: ChangeLap, From: End, To: End, Lap: &lap})

		m.startedAt = time.Time{}
		m.hasStart = false
	}

	return m.transition(changes, WarmUp)
}

func (m *Machine) transition(changes []Change, to State) []Change {
	from := m.state
	m.state = to
	return append(changes, Change{Kind: ChangeState, From: from, To: to})
}

func valid(o Observation) bool {
	return o.Label != "" && !math.IsNaN(o.Confidence)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
