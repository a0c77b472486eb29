package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Message is the canonical record for a single Slack message. The platform
// timestamp string (ID) is unique within a channel, so (ID, ChannelID) is
// the primary key. Re-ingesting an existing message is a no-op.
type Message struct {
	ID          string
	ChannelID   string
	ChannelName string
	UserID      string
	Username    string
	Text        string
	CleanText   string
	Timestamp   time.Time
	ThreadTS    string
	Reactions   string // JSON array stored as text
	Files       string // JSON array stored as text
	CreatedAt   time.Time
}

type Summary struct {
	ID           string
	Type         string // "EOD" or "EOW"
	SummaryText  string
	PDFPath      string
	MessageCount int
	Channels     string // JSON array stored as text; empty array = all channels
	GeneratedAt  time.Time
	RangeStart   time.Time
	RangeEnd     time.Time
}

// Preferences is a singleton per workspace, keyed by id "default".
// It is created lazily with defaults on first read.
type Preferences struct {
	ID                  string
	SummaryStyle        string // "technical", "executive", "detailed"
	IncludeThreads      bool
	FilterChannels      string // JSON array stored as text
	ReportFrequency     string // "daily" or "weekly"
	SlackUserID         string
	NotificationChannel string
	UpdatedAt           time.Time
}

// DefaultPreferences returns the preferences row written on first read.
func DefaultPreferences() Preferences {
	return Preferences{
		ID:              "default",
		SummaryStyle:    "technical",
		IncludeThreads:  true,
		FilterChannels:  "[]",
		ReportFrequency: "daily",
	}
}

type WorkflowRun struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`   // "EOD", "EOW", "SYNC"
	Status     string    `json:"status"` // "running", "completed", "failed"
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"` // zero until the run terminates
	LastError  string    `json:"last_error,omitempty"`
}
