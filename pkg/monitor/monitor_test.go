package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sw33tLie/idwatch/pkg/extract"
	"github.com/sw33tLie/idwatch/pkg/history"
	"github.com/sw33tLie/idwatch/pkg/platforms/dev"
	"github.com/sw33tLie/idwatch/pkg/storage"
	"github.com/sw33tLie/idwatch/pkg/tracker"
)

type recordingSink struct {
	mu      sync.Mutex
	changes []storage.Change
	fail    bool
}

func (s *recordingSink) LogChanges(_ context.Context, changes []storage.Change) error {
	if s.fail {
		return errors.New("database is locked")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, changes...)
	return nil
}

func newMonitor(t *testing.T, dir string, f *dev.Fetcher, names []string, mutate func(*Config)) *Monitor {
	t.Helper()
	cfg := Config{
		Fetcher:   f,
		Store:     history.NewStore(dir),
		Extractor: extract.MustNew(dev.Pattern),
		Names:     names,
		Interval:  time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func transitionTypes(res *CycleResult) []tracker.ChangeType {
	var out []tracker.ChangeType
	for _, tr := range res.Transitions {
		out = append(out, tr.Type)
	}
	return out
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for empty config")
	}
	m, err := New(Config{
		Fetcher:   dev.NewFetcher(nil),
		Store:     history.NewStore(t.TempDir()),
		Extractor: extract.MustNew(dev.Pattern),
		Names:     []string{"alice", "alice", "bob"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(m.trackers) != 2 {
		t.Fatalf("expected duplicate names to collapse, got %d trackers", len(m.trackers))
	}
	if m.cfg.Interval != DefaultInterval || m.cfg.ChunkSize != extract.DefaultChunkSize || m.cfg.Concurrency != 1 {
		t.Fatalf("unexpected defaults %#v", m.cfg)
	}
}

func TestScenario(t *testing.T) {
	dir := t.TempDir()
	f := dev.NewFetcher(dev.Scenario())
	sink := &recordingSink{}
	m := newMonitor(t, dir, f, []string{"alice"}, func(c *Config) { c.Events = sink })
	ctx := context.Background()
	alice, _ := m.Tracker("alice")

	expect := [][]tracker.ChangeType{
		{tracker.ChangeFirstSeen},
		nil,
		{tracker.ChangeChanged},
		{tracker.ChangeInvalid},
		{tracker.ChangeValidAgain},
		nil,
	}
	for cycle, want := range expect {
		res := m.RunCycle(ctx)
		if len(res.Errors) != 0 {
			t.Fatalf("cycle %d: unexpected errors %v", cycle+1, res.Errors)
		}
		got := transitionTypes(res)
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("cycle %d: expected %v, got %v", cycle+1, want, got)
		}

		recs := history.NewStore(dir).Load("alice")
		switch cycle + 1 {
		case 1:
			if len(recs) != 1 || *recs[0].OldUserID != "42" || !recs[0].IsOpen() {
				t.Fatalf("cycle 1: expected open record for 42, got %#v", recs)
			}
		case 3:
			if len(recs) != 1 || *recs[0].OldUserID != "42" || *recs[0].NewUserID != "77" {
				t.Fatalf("cycle 3: expected record 42 -> 77, got %#v", recs)
			}
		case 4:
			if !alice.Invalid() || len(recs) != 1 {
				t.Fatalf("cycle 4: expected invalid state and unchanged history")
			}
		case 5:
			if alice.Invalid() || *alice.State().LastKnownID != "77" || res.Probed != 1 || res.Polled != 0 {
				t.Fatalf("cycle 5: expected recovery to Tracking(77) via probe only, got %#v", alice.State())
			}
		}
	}

	if len(sink.changes) != 4 {
		t.Fatalf("expected 4 logged changes, got %d", len(sink.changes))
	}
	if c := sink.changes[0]; c.ChangeType != "first_seen" || c.OldUserID != "42" || c.NewUserID != "" {
		t.Fatalf("first sighting should be logged like its history record, got %+v", c)
	}
	if c := sink.changes[1]; c.ChangeType != "changed" || c.OldUserID != "42" || c.NewUserID != "77" || c.Platform != "dev" || c.CycleID == "" {
		t.Fatalf("unexpected logged change %#v", c)
	}
}

func TestChunkBoundaryMissIsNoop(t *testing.T) {
	match := "https://api.example.com/users/42"
	f := dev.NewFetcher(map[string][]dev.Page{
		"alice": {
			{Status: http.StatusOK, Body: match},
			{Status: http.StatusOK, Body: strings.Repeat("a", 16) + match},
			{Status: http.StatusOK, Body: match},
		},
	})
	m := newMonitor(t, t.TempDir(), f, []string{"alice"}, func(c *Config) { c.ChunkSize = 32 })
	ctx := context.Background()

	if got := transitionTypes(m.RunCycle(ctx)); len(got) != 1 || got[0] != tracker.ChangeFirstSeen {
		t.Fatalf("expected first sighting, got %v", got)
	}
	if res := m.RunCycle(ctx); len(res.Transitions) != 0 || len(res.Errors) != 0 {
		t.Fatalf("split match must be a silent no-op, got %v %v", res.Transitions, res.Errors)
	}
	if res := m.RunCycle(ctx); len(res.Transitions) != 0 {
		t.Fatalf("unsplit match of the same id must be a no-op, got %v", res.Transitions)
	}
	alice, _ := m.Tracker("alice")
	if st := alice.State(); *st.LastKnownID != "42" || st.Invalid {
		t.Fatalf("unexpected state %#v", st)
	}
}

func TestErrorsAreIsolatedPerName(t *testing.T) {
	f := dev.NewFetcher(map[string][]dev.Page{
		"alice": {{Err: errors.New("connection reset by peer")}},
		"bob":   {{Status: http.StatusOK, Body: dev.ProfilePage("5")}},
	})
	m := newMonitor(t, t.TempDir(), f, []string{"alice", "bob"}, nil)

	res := m.RunCycle(context.Background())
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", res.Errors)
	}
	if len(res.Transitions) != 1 || res.Transitions[0].Username != "bob" {
		t.Fatalf("expected bob to be tracked despite alice failing, got %#v", res.Transitions)
	}
	alice, _ := m.Tracker("alice")
	if st := alice.State(); st.Invalid || st.LastKnownID != nil {
		t.Fatalf("fetch errors must not change state, got %#v", st)
	}
}

func TestPersistenceFailureDoesNotStopCycle(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	f := dev.NewFetcher(map[string][]dev.Page{
		"alice": {{Status: http.StatusOK, Body: dev.ProfilePage("1")}},
		"bob":   {{Status: http.StatusOK, Body: dev.ProfilePage("2")}},
	})
	m := newMonitor(t, blocker, f, []string{"alice", "bob"}, nil)

	res := m.RunCycle(context.Background())
	if len(res.Errors) != 2 || len(res.Transitions) != 0 {
		t.Fatalf("expected 2 persistence errors and no transitions, got %v %v", res.Errors, res.Transitions)
	}
	for _, err := range res.Errors {
		if !errors.Is(err, history.ErrWrite) {
			t.Fatalf("expected ErrWrite, got %v", err)
		}
	}
	if f.Calls("bob") != 1 {
		t.Fatalf("bob must still be polled after alice failed")
	}
}

func TestRecoveredNameWaitsForNextCycle(t *testing.T) {
	f := dev.NewFetcher(map[string][]dev.Page{
		"alice": {
			{Status: http.StatusNotFound},
			{Status: http.StatusOK, Body: dev.ProfilePage("9")},
		},
	})
	m := newMonitor(t, t.TempDir(), f, []string{"alice"}, nil)
	ctx := context.Background()

	m.RunCycle(ctx)
	res := m.RunCycle(ctx)
	if f.Calls("alice") != 2 || res.Probed != 1 || res.Polled != 0 {
		t.Fatalf("a recovered name must only be probed in its recovery cycle")
	}
	res = m.RunCycle(ctx)
	if got := transitionTypes(res); len(got) != 1 || got[0] != tracker.ChangeFirstSeen {
		t.Fatalf("expected first sighting after recovery, got %v", got)
	}
}

func TestConcurrentCycle(t *testing.T) {
	scripts := make(map[string][]dev.Page)
	var names []string
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("user%02d", i)
		names = append(names, name)
		scripts[name] = []dev.Page{{Status: http.StatusOK, Body: dev.ProfilePage(fmt.Sprint(1000 + i))}}
	}
	dir := t.TempDir()
	f := dev.NewFetcher(scripts)
	m := newMonitor(t, dir, f, names, func(c *Config) { c.Concurrency = 8 })

	res := m.RunCycle(context.Background())
	if res.Polled != 20 || len(res.Transitions) != 20 || len(res.Errors) != 0 {
		t.Fatalf("expected 20 first sightings, got %d polled, %d transitions, %v", res.Polled, len(res.Transitions), res.Errors)
	}
	if f.Overlapped() {
		t.Fatalf("two fetches for the same name overlapped")
	}
	for i, name := range names {
		recs := history.NewStore(dir).Load(name)
		if len(recs) != 1 || *recs[0].OldUserID != fmt.Sprint(1000+i) {
			t.Fatalf("unexpected history for %s: %#v", name, recs)
		}
	}
}

func TestEventSinkFailureIsNotFatal(t *testing.T) {
	f := dev.NewFetcher(dev.Scenario())
	m := newMonitor(t, t.TempDir(), f, []string{"alice"}, func(c *Config) { c.Events = &recordingSink{fail: true} })

	res := m.RunCycle(context.Background())
	if len(res.Errors) != 0 || len(res.Transitions) != 1 {
		t.Fatalf("event log failures must not surface as cycle errors, got %v", res.Errors)
	}
}

func TestRestartResolvesOpenRecord(t *testing.T) {
	dir := t.TempDir()
	store := history.NewStore(dir)
	if err := store.Append(context.Background(), "alice", history.NewRecord(time.Now(), "alice", history.StrPtr("42"), nil)); err != nil {
		t.Fatal(err)
	}

	f := dev.NewFetcher(map[string][]dev.Page{"alice": {{Status: http.StatusOK, Body: dev.ProfilePage("77")}}})
	m := newMonitor(t, dir, f, []string{"alice"}, nil)

	res := m.RunCycle(context.Background())
	if got := transitionTypes(res); len(got) != 1 || got[0] != tracker.ChangeChanged {
		t.Fatalf("expected the open record to be resolved, got %v", got)
	}
	recs := history.NewStore(dir).Load("alice")
	if len(recs) != 1 || *recs[0].NewUserID != "77" {
		t.Fatalf("unexpected history %#v", recs)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := dev.NewFetcher(dev.Scenario())
	m := newMonitor(t, t.TempDir(), f, []string{"alice"}, func(c *Config) { c.Interval = time.Hour })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("Run did not stop promptly")
	}
	if f.Calls("alice") != 1 {
		t.Fatalf("expected exactly one cycle, got %d fetches", f.Calls("alice"))
	}
}

func TestRunSkipsWorkWhenCancelled(t *testing.T) {
	f := dev.NewFetcher(dev.Scenario())
	m := newMonitor(t, t.TempDir(), f, []string{"alice"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := m.RunCycle(ctx)
	if res.Polled != 0 || f.Calls("alice") != 0 {
		t.Fatalf("no fetch may start after cancellation")
	}
}

func TestRunHonoursCycleLimit(t *testing.T) {
	dir := t.TempDir()
	f := dev.NewFetcher(dev.Scenario())
	m := newMonitor(t, dir, f, []string{"alice"}, func(c *Config) { c.Cycles = 5 })

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.Calls("alice") != 5 {
		t.Fatalf("expected 5 fetches, got %d", f.Calls("alice"))
	}
	alice, _ := m.Tracker("alice")
	if st := alice.State(); st.Invalid || *st.LastKnownID != "77" {
		t.Fatalf("expected Tracking(77) after the scenario, got %#v", st)
	}
}
