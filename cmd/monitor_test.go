package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/sw33tLie/idwatch/pkg/history"
	devplatform "github.com/sw33tLie/idwatch/pkg/platforms/dev"
	"github.com/sw33tLie/idwatch/pkg/storage"
)

func TestRunMonitorDevScenario(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "events.sqlite")

	viper.Set("interval", 0.001)
	viper.Set("db", true)
	viper.Set("dbpath", dbPath)
	t.Cleanup(viper.Reset)

	fetcher := devplatform.NewFetcher(devplatform.Scenario())
	if err := runMonitor(context.Background(), fetcher, []string{"alice"}, devplatform.Pattern, dir, 5); err != nil {
		t.Fatalf("runMonitor: %v", err)
	}

	got := history.NewStore(dir).Load("alice")
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d: %+v", len(got), got)
	}
	if got[0].OldUserID == nil || *got[0].OldUserID != "42" || got[0].NewUserID == nil || *got[0].NewUserID != "77" {
		t.Fatalf("unexpected record %+v", got[0])
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		t.Fatalf("open event log: %v", err)
	}
	defer db.Close()
	changes, err := db.ListRecentChanges(context.Background(), storage.ListOptions{Username: "alice"})
	if err != nil {
		t.Fatalf("list changes: %v", err)
	}
	want := []string{"valid_again", "invalid", "changed", "first_seen"}
	if len(changes) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(changes))
	}
	for i, c := range changes {
		if c.ChangeType != want[i] {
			t.Errorf("event %d: got %s, want %s", i, c.ChangeType, want[i])
		}
	}
}

func TestOpenEventLogMissing(t *testing.T) {
	if _, err := openEventLog(filepath.Join(t.TempDir(), "nope.sqlite")); err == nil {
		t.Fatal("expected error for missing database")
	}
}

func TestSeconds(t *testing.T) {
	if got := seconds(2.5); got.Milliseconds() != 2500 {
		t.Fatalf("seconds(2.5) = %v", got)
	}
}

func TestPtrOrNull(t *testing.T) {
	id := "7"
	if ptrOrNull(nil) != "null" || ptrOrNull(&id) != "7" || orNull("") != "null" {
		t.Fatal("unexpected null rendering")
	}
}
