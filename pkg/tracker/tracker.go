// Package tracker derives identifier transitions for a single tracked name.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/sw33tLie/idwatch/internal/utils"
	"github.com/sw33tLie/idwatch/pkg/history"
)

// Status is the outcome of one fetch-and-scan attempt.
type Status int

const (
	FetchError Status = iota
	NotFound
	FoundWithID
	FoundWithoutID
)

func (s Status) String() string {
	switch s {
	case NotFound:
		return "not_found"
	case FoundWithID:
		return "found_with_id"
	case FoundWithoutID:
		return "found_without_id"
	default:
		return "fetch_error"
	}
}

// Observation is what one poll saw for a name.
type Observation struct {
	Status Status
	ID     string // set when Status is FoundWithID
	At     time.Time
}

// ChangeType names the transitions a Tracker can emit.
type ChangeType string

const (
	ChangeNone       ChangeType = ""
	ChangeFirstSeen  ChangeType = "first_seen"
	ChangeChanged    ChangeType = "changed"
	ChangeInvalid    ChangeType = "invalid"
	ChangeValidAgain ChangeType = "valid_again"
)

// Transition is the result of feeding one Observation to a Tracker.
// OldID and NewID are empty when they don't apply.
type Transition struct {
	Type     ChangeType
	Username string
	OldID    string
	NewID    string
	At       time.Time
}

// Changed reports whether the observation produced any transition.
func (t Transition) Changed() bool { return t.Type != ChangeNone }

// Recorder is the subset of history.Store a Tracker writes through.
type Recorder interface {
	Last(name string) (history.Record, bool)
	Append(ctx context.Context, name string, rec history.Record) error
	ResolveLast(ctx context.Context, name, newID string) error
}

// State is the in-memory view of a name.
type State struct {
	LastKnownID      *string
	Invalid          bool
	HasLoggedInitial bool
}

// Tracker holds the State of one name and persists its transitions.
type Tracker struct {
	name  string
	store Recorder

	mu    sync.Mutex
	state State
}

// New creates a tracker for name, seeded from the last history record of that name.
func New(name string, store Recorder) *Tracker {
	t := &Tracker{name: name, store: store}
	if last, ok := store.Last(name); ok && last.Username == name {
		if id, ok := last.LatestID(); ok {
			t.state.LastKnownID = history.StrPtr(id)
		}
		t.state.HasLoggedInitial = true
	}
	return t
}

func (t *Tracker) Name() string { return t.name }

// State returns a copy of the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state
	if s.LastKnownID != nil {
		s.LastKnownID = history.StrPtr(*s.LastKnownID)
	}
	return s
}

// Invalid reports whether the name's page was missing on its last poll.
func (t *Tracker) Invalid() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Invalid
}

// Observe applies obs and returns the resulting transition. State only advances
// once the history write succeeded, so a failed write is detected again next time.
func (t *Tracker) Observe(ctx context.Context, obs Observation) (Transition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if obs.At.IsZero() {
		obs.At = time.Now()
	}
	none := Transition{Type: ChangeNone, Username: t.name, At: obs.At}

	if t.state.Invalid {
		switch obs.Status {
		case NotFound, FetchError:
			return none, nil
		}
		t.state.Invalid = false
		utils.Log.Infof("%s is valid again. Resuming monitoring.", t.name)
		return Transition{Type: ChangeValidAgain, Username: t.name, At: obs.At}, nil
	}

	switch obs.Status {
	case NotFound:
		t.state.Invalid = true
		utils.Log.Infof("%s is invalid. Skipping.", t.name)
		tr := Transition{Type: ChangeInvalid, Username: t.name, At: obs.At}
		if t.state.LastKnownID != nil {
			tr.OldID = *t.state.LastKnownID
		}
		return tr, nil
	case FoundWithID:
		return t.compare(ctx, obs)
	default:
		// Reachable without an identifier, or a failed fetch: nothing to compare.
		return none, nil
	}
}

func (t *Tracker) compare(ctx context.Context, obs Observation) (Transition, error) {
	none := Transition{Type: ChangeNone, Username: t.name, At: obs.At}
	id := obs.ID

	last, hasLast := t.store.Last(t.name)
	if !hasLast || last.Username != t.name {
		rec := history.NewRecord(obs.At, t.name, history.StrPtr(id), nil)
		if err := t.store.Append(ctx, t.name, rec); err != nil {
			return none, err
		}
		t.state.LastKnownID = history.StrPtr(id)
		t.state.HasLoggedInitial = true
		utils.Log.WithFields(history.Fields(rec)).Infof("Initialized data for %s:", t.name)
		return Transition{Type: ChangeFirstSeen, Username: t.name, OldID: id, At: obs.At}, nil
	}

	prev, ok := "", false
	if t.state.LastKnownID != nil {
		prev, ok = *t.state.LastKnownID, true
	} else {
		prev, ok = last.LatestID()
	}
	if ok && prev == id {
		t.state.LastKnownID = history.StrPtr(id)
		return none, nil
	}

	var rec history.Record
	if last.IsOpen() {
		if err := t.store.ResolveLast(ctx, t.name, id); err != nil {
			return none, err
		}
		rec = last
		rec.NewUserID = history.StrPtr(id)
	} else {
		var oldID *string
		if ok {
			oldID = history.StrPtr(prev)
		}
		rec = history.NewRecord(obs.At, t.name, oldID, history.StrPtr(id))
		if err := t.store.Append(ctx, t.name, rec); err != nil {
			return none, err
		}
	}

	t.state.LastKnownID = history.StrPtr(id)
	t.state.HasLoggedInitial = true
	utils.Log.WithFields(history.Fields(rec)).Infof("User ID has changed for %s. Logging the change:", t.name)
	return Transition{Type: ChangeChanged, Username: t.name, OldID: prev, NewID: id, At: obs.At}, nil
}
