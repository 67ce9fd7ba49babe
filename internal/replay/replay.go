// Package replay drives a lap machine from a recorded event log on a
// simulated clock.
package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kdimtricp/laptimer/internal/classify"
	"github.com/kdimtricp/laptimer/internal/lapping"
	"github.com/kdimtricp/laptimer/internal/timeutil"
)

const (
	EventStart   = "start"
	EventStop    = "stop"
	EventObserve = "observe"
)

// Epoch is the simulated wall time of offset zero.
var Epoch = time.Date(2018, 1, 17, 0, 0, 0, 0, time.UTC)

// Event is one line of a replay log. Observe events carry either ranked
// observations or a raw probability map.
type Event struct {
	AtMS          float64               `json:"at_ms"`
	Kind          string                `json:"event"`
	Observations  []lapping.Observation `json:"observations,omitempty"`
	Probabilities map[string]float64    `json:"probabilities,omitempty"`
}

// Top returns at most n ranked labels of an observe event, best first.
// Ranked observations are taken in the order they were recorded.
func (e Event) Top(n int) []classify.Label {
	if len(e.Observations) == 0 {
		return classify.Rank(e.Probabilities, n)
	}

	obs := e.Observations[:min(n, len(e.Observations))]
	labels := make([]classify.Label, len(obs))
	for i, o := range obs {
		labels[i] = classify.Label{Name: o.Label, Confidence: o.Confidence}
	}
	return labels
}

func (e Event) offset() time.Duration {
	return time.Duration(e.AtMS * float64(time.Millisecond))
}

// ReadEvents parses one JSON event per line. Blank lines and lines starting
// with # are skipped.
func ReadEvents(r io.Reader) ([]Event, error) {
	var events []Event

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		switch ev.Kind {
		case EventStart, EventStop, EventObserve:
		default:
			return nil, fmt.Errorf("line %d: unknown event %q", lineNo, ev.Kind)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// Run feeds events to a fresh machine in order and returns the laps it
// recorded. Event offsets must not go backwards.
func Run(cfg lapping.Config, events []Event) ([]lapping.Lap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := timeutil.NewMockClock(Epoch)
	m := lapping.New(cfg, clock)

	var now time.Duration
	for i, ev := range events {
		at := ev.offset()
		if at < now {
			return nil, fmt.Errorf("event %d at %s is before %s", i+1, at, now)
		}
		clock.Advance(at - now)
		now = at

		switch ev.Kind {
		case EventStart:
			m.Start()
		case EventStop:
			m.Stop()
		case EventObserve:
			obs := ev.Observations
			if len(obs) == 0 {
				obs = classify.Observations(ev.Top(cfg.TopK))
			}
			m.ObserveRanked(obs)
		}
	}

	return m.Laps(), nil
}
