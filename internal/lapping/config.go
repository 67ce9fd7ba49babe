package lapping

import (
	"fmt"
	"time"
)

const (
	// DefaultMinimumLap guards against a lap ending on the frames right after
	// it started, which almost always still show the selected subject.
	DefaultMinimumLap   = 3 * time.Second
	DefaultTickInterval = 100 * time.Millisecond
	DefaultTopK         = 1
)

// Config holds the tunables of a lap machine.
type Config struct {
	Tolerance    float64
	MinimumLap   time.Duration
	TickInterval time.Duration
	// TopK is how many ranked observations per frame may end a lap.
	TopK int
}

// DefaultConfig returns the settings used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Tolerance:    DefaultTolerance,
		MinimumLap:   DefaultMinimumLap,
		TickInterval: DefaultTickInterval,
		TopK:         DefaultTopK,
	}
}

// Validate checks that the configuration values are usable.
func (c Config) Validate() error {
	if c.Tolerance < 0 || c.Tolerance > 1 {
		return fmt.Errorf("tolerance must be between 0 and 1, got %f", c.Tolerance)
	}
	if c.MinimumLap < 0 {
		return fmt.Errorf("minimum lap must not be negative, got %v", c.MinimumLap)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", c.TickInterval)
	}
	if c.TopK < 1 {
		return fmt.Errorf("top k must be at least 1, got %d", c.TopK)
	}
	return nil
}
