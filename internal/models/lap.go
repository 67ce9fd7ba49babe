package models

import (
	"time"

	"github.com/google/uuid"
)

type Lap struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Subject   string        `json:"subject"`
	Duration  time.Duration `json:"duration_ns"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Reason    string        `json:"reason"`
}

func NewLap(sessionID, subject string, duration time.Duration, startedAt, endedAt time.Time, reason string) *Lap {
	return &Lap{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Subject:   subject,
		Duration:  duration,
		StartedAt: startedAt,
		EndedAt:   endedAt,
		Reason:    reason,
	}
}
