package lapping

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/laptimer/internal/timeutil"
)

var epoch = time.Date(2018, 1, 17, 10, 0, 0, 0, time.UTC)

func newTestMachine(t *testing.T, mutate func(*Config)) (*Machine, *timeutil.MockClock) {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())
	clock := timeutil.NewMockClock(epoch)
	return New(cfg, clock), clock
}

func kinds(changes []Change) []ChangeKind {
	out := make([]ChangeKind, len(changes))
	for i, c := range changes {
		out[i] = c.Kind
	}
	return out
}

func TestMachine_StartsInWarmUp(t *testing.T) {
	m, _ := newTestMachine(t, nil)

	assert.Equal(t, WarmUp, m.State())
	assert.Zero(t, m.Elapsed())
	assert.Nil(t, m.Ticks())
	assert.Empty(t, m.Laps())

	_, ok := m.Selected()
	assert.False(t, ok)
}

func TestMachine_WarmUpSelectsFirstSubject(t *testing.T) {
	m, _ := newTestMachine(t, nil)

	changes := m.Observe(Observation{Label: "banana", Confidence: 0.4})

	require.Len(t, changes, 1)
	assert.Equal(t, ChangeSelection, changes[0].Kind)
	selected, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, SelectedObject{Name: "banana", Confidence: 0.4}, selected)
}

func TestMachine_WarmUpRefreshesConfidenceOnlyOnLabelChange(t *testing.T) {
	m, _ := newTestMachine(t, nil)

	m.Observe(Observation{Label: "apple", Confidence: 0.9})
	changes := m.Observe(Observation{Label: "apple", Confidence: 0.5})
	assert.Empty(t, changes)

	selected, _ := m.Selected()
	assert.Equal(t, 0.9, selected.Confidence)

	m.Observe(Observation{Label: "banana", Confidence: 0.4})
	selected, _ = m.Selected()
	assert.Equal(t, SelectedObject{Name: "banana", Confidence: 0.4}, selected)
}

func TestMachine_WarmUpIgnoresMalformedObservations(t *testing.T) {
	m, _ := newTestMachine(t, nil)

	assert.Empty(t, m.Observe(Observation{Label: "", Confidence: 0.9}))
	assert.Empty(t, m.Observe(Observation{Label: "apple", Confidence: math.NaN()}))
	assert.Empty(t, m.ObserveRanked(nil))

	_, ok := m.Selected()
	assert.False(t, ok)
}

func TestMachine_StartEntersLapping(t *testing.T) {
	m, clock := newTestMachine(t, nil)

	changes := m.Start()

	want := []Change{
		{Kind: ChangeState, From: WarmUp, To: Start},
		{Kind: ChangeState, From: Start, To: Lapping},
	}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Errorf("Start() changes mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Lapping, m.State())
	assert.NotNil(t, m.Ticks())
	assert.Equal(t, 1, clock.ActiveTickers())

	assert.Empty(t, m.Start(), "Start while lapping must be a no-op")
}

func TestMachine_TicksWhileLapping(t *testing.T) {
	m, clock := newTestMachine(t, nil)
	m.Start()

	clock.Advance(DefaultTickInterval)

	select {
	case <-m.Ticks():
	default:
		t.Fatal("expected a clock tick after one interval")
	}
	assert.Equal(t, DefaultTickInterval, m.Elapsed())
}

func TestMachine_LapScenario(t *testing.T) {
	m, clock := newTestMachine(t, nil)

	m.Observe(Observation{Label: "apple", Confidence: 0.9})
	m.Start()

	clock.Advance(time.Second)
	assert.Empty(t, m.Observe(Observation{Label: "apple", Confidence: 0.85}))
	assert.Equal(t, Lapping, m.State())

	clock.Advance(3 * time.Second)
	changes := m.Observe(Observation{Label: "apple", Confidence: 0.85})

	assert.Equal(t, []ChangeKind{ChangeState, ChangeLap, ChangeState}, kinds(changes))
	assert.Equal(t, WarmUp, m.State())

	laps := m.Laps()
	require.Len(t, laps, 1)
	assert.Equal(t, "apple", laps[0].Name)
	assert.Equal(t, 4*time.Second, laps[0].Duration)
	assert.Equal(t, ReasonStable, laps[0].Reason)
	assert.Equal(t, epoch, laps[0].StartedAt)
	assert.Equal(t, epoch.Add(4*time.Second), laps[0].EndedAt)

	assert.Zero(t, m.Elapsed())
	assert.Nil(t, m.Ticks())
	assert.Equal(t, 0, clock.ActiveTickers())
}

func TestMachine_NeverEndsBeforeMinimumLap(t *testing.T) {
	m, clock := newTestMachine(t, nil)
	m.Observe(Observation{Label: "apple", Confidence: 0.9})
	m.Start()

	for elapsed := time.Duration(0); elapsed < DefaultMinimumLap; elapsed += 250 * time.Millisecond {
		assert.Empty(t, m.Observe(Observation{Label: "apple", Confidence: 0.9}), "at %v", elapsed)
		clock.Advance(250 * time.Millisecond)
	}

	// Exactly at the guard is still too early.
	require.Equal(t, DefaultMinimumLap, m.Elapsed())
	assert.Empty(t, m.Observe(Observation{Label: "apple", Confidence: 0.9}))
	assert.Equal(t, Lapping, m.State())

	clock.Advance(time.Millisecond)
	assert.NotEmpty(t, m.Observe(Observation{Label: "apple", Confidence: 0.9}))
	assert.Equal(t, WarmUp, m.State())
}

func TestMachine_LappingIgnoresOtherSubjects(t *testing.T) {
	m, clock := newTestMachine(t, nil)
	m.Observe(Observation{Label: "apple", Confidence: 0.9})
	m.Start()
	clock.Advance(5 * time.Second)

	assert.Empty(t, m.Observe(Observation{Label: "banana", Confidence: 0.9}))
	assert.Empty(t, m.Observe(Observation{Label: "apple", Confidence: 0}))
	assert.Empty(t, m.Observe(Observation{Label: "apple", Confidence: math.NaN()}))
	assert.Equal(t, Lapping, m.State())

	selected, _ := m.Selected()
	assert.Equal(t, "apple", selected.Name, "selection is frozen while lapping")
}

func TestMachine_TopKBroadensMatch(t *testing.T) {
	ranked := []Observation{
		{Label: "banana", Confidence: 0.8},
		{Label: "apple", Confidence: 0.7},
	}

	tests := []struct {
		name    string
		topK    int
		wantEnd bool
	}{
		{"top one only", 1, false},
		{"top two", 2, true},
		{"k larger than list", 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, clock := newTestMachine(t, func(c *Config) { c.TopK = tt.topK })
			m.Observe(Observation{Label: "apple", Confidence: 0.9})
			m.Start()
			clock.Advance(4 * time.Second)

			m.ObserveRanked(ranked)

			if tt.wantEnd {
				assert.Equal(t, WarmUp, m.State())
				assert.Len(t, m.Laps(), 1)
			} else {
				assert.Equal(t, Lapping, m.State())
				assert.Empty(t, m.Laps())
			}
		})
	}
}

func TestMachine_StopRecordsLap(t *testing.T) {
	m, clock := newTestMachine(t, nil)
	m.Observe(Observation{Label: "orange", Confidence: 0.6})
	m.Start()
	clock.Advance(1500 * time.Millisecond)

	changes := m.Stop()

	assert.Equal(t, []ChangeKind{ChangeState, ChangeLap, ChangeState}, kinds(changes))
	laps := m.Laps()
	require.Len(t, laps, 1)
	assert.Equal(t, "orange", laps[0].Name)
	assert.Equal(t, 1500*time.Millisecond, laps[0].Duration)
	assert.Equal(t, ReasonStopped, laps[0].Reason)
	assert.GreaterOrEqual(t, laps[0].Duration, time.Duration(0))
}

func TestMachine_StopIsIdempotent(t *testing.T) {
	m, clock := newTestMachine(t, nil)

	assert.Empty(t, m.Stop())
	assert.Empty(t, m.Laps())

	m.Observe(Observation{Label: "apple", Confidence: 0.9})
	m.Start()
	clock.Advance(time.Second)
	m.Stop()

	assert.Empty(t, m.Stop())
	assert.Empty(t, m.Stop())
	assert.Len(t, m.Laps(), 1)
}

func TestMachine_NewSubjectAfterLap(t *testing.T) {
	m, clock := newTestMachine(t, nil)
	m.Observe(Observation{Label: "apple", Confidence: 0.9})
	m.Start()
	clock.Advance(time.Second)
	m.Stop()

	// Selection is open again after the lap.
	m.Observe(Observation{Label: "pear", Confidence: 0.7})
	m.Start()
	clock.Advance(2 * time.Second)
	m.Stop()

	laps := m.Laps()
	require.Len(t, laps, 2)
	assert.Equal(t, "apple", laps[0].Name)
	assert.Equal(t, "pear", laps[1].Name)
	assert.Equal(t, 2*time.Second, laps[1].Duration)
}

func TestMachine_LapsReturnsCopy(t *testing.T) {
	m, clock := newTestMachine(t, nil)
	m.Observe(Observation{Label: "apple", Confidence: 0.9})
	m.Start()
	clock.Advance(time.Second)
	m.Stop()

	laps := m.Laps()
	laps[0].Name = "changed"

	assert.Equal(t, "apple", m.Laps()[0].Name)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"tolerance too large", func(c *Config) { c.Tolerance = 1.5 }, true},
		{"negative minimum", func(c *Config) { c.MinimumLap = -time.Second }, true},
		{"zero tick", func(c *Config) { c.TickInterval = 0 }, true},
		{"zero top k", func(c *Config) { c.TopK = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
