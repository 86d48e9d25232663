package store

import (
	"time"
)

// LoginAttempt is one recorded login attempt.
type LoginAttempt struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	SourceID  string    `gorm:"index;not null" json:"source_id"`
	Code      string    `json:"code,omitempty"`
	Success   bool      `gorm:"not null" json:"success"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`
}

// AdminAction is one privileged action taken from the dashboard.
type AdminAction struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Action    string    `gorm:"index;not null" json:"action"`
	ActorID   string    `gorm:"not null" json:"actor_id"`
	Target    string    `json:"target,omitempty"`
	Success   bool      `gorm:"not null" json:"success"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`
}
