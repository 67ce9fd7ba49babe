package models

import (
	"time"

	"github.com/google/uuid"
)

type Session struct {
	ID        string     `json:"id"`
	Model     string     `json:"model"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

func NewSession(model string) *Session {
	return &Session{
		ID:        uuid.New().String(),
		Model:     model,
		CreatedAt: time.Now(),
	}
}
