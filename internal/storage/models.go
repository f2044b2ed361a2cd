package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type User struct {
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Subscription string    `json:"subscription"`
	CreatedAt    time.Time `json:"created_at"`
}

type Bill struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Month    string  `json:"month"`
	Amount   float64 `json:"amount"`
	Status   string  `json:"status"`
	DueDate  string  `json:"due_date"`
}

// ChatSession is a persisted snapshot of a conversation.
type ChatSession struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	StateJSON    string    `json:"state"` // conversation.State as JSON
	MessageCount int       `json:"message_count"`
	Summary      string    `json:"summary"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
