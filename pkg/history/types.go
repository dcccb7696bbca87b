package history

import "time"

// TimeLayout is the datetime format stored in history files (microsecond precision).
const TimeLayout = "2006-01-02 15:04:05.000000"

// Record is one persisted identifier transition for a tracked name.
// A nil NewUserID marks an open record, still waiting for the next identifier.
type Record struct {
	Datetime  string  `json:"datetime"`
	Username  string  `json:"username"`
	OldUserID *string `json:"old_user_id"`
	NewUserID *string `json:"new_user_id"`
}

// IsOpen reports whether the record has no resolved identifier yet.
func (r Record) IsOpen() bool { return r.NewUserID == nil }

// LatestID is the most recent identifier the record knows about.
func (r Record) LatestID() (string, bool) {
	if r.NewUserID != nil {
		return *r.NewUserID, true
	}
	if r.OldUserID != nil {
		return *r.OldUserID, true
	}
	return "", false
}

// NewRecord stamps a record with t in TimeLayout.
func NewRecord(t time.Time, username string, oldID, newID *string) Record {
	return Record{
		Datetime:  t.Format(TimeLayout),
		Username:  username,
		OldUserID: oldID,
		NewUserID: newID,
	}
}

// StrPtr returns a pointer to a copy of s.
func StrPtr(s string) *string { return &s }
