package storage

import "time"

// Change captures a single tracker transition for auditing or printing.
type Change struct {
	OccurredAt time.Time
	CycleID    string
	Platform   string

	Username   string
	ChangeType string // first_seen | changed | invalid | valid_again
	OldUserID  string
	NewUserID  string
}
