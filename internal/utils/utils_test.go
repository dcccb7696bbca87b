package utils

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

func TestUniqueLines(t *testing.T) {
	got := UniqueLines([]string{" alice ", "", "bob", "alice", "   ", "carol"})
	expect := []string{"alice", "bob", "carol"}
	if !reflect.DeepEqual(got, expect) {
		t.Fatalf("unexpected lines.\nwant: %#v\ngot:  %#v", expect, got)
	}
}

func TestSetLogLevel(t *testing.T) {
	defer Log.SetLevel(logrus.InfoLevel)

	if err := SetLogLevel("WARN"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if Log.GetLevel() != logrus.WarnLevel {
		t.Fatalf("expected warn level, got %s", Log.GetLevel())
	}
	if err := SetLogLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestConsoleFormatter(t *testing.T) {
	color.NoColor = true

	old := "42"
	tests := []struct {
		name   string
		msg    string
		level  logrus.Level
		fields logrus.Fields
		expect string
	}{
		{
			name:   "message only",
			msg:    "alice is valid again. Resuming monitoring.",
			level:  logrus.InfoLevel,
			expect: "[LOG] | alice is valid again. Resuming monitoring.\n",
		},
		{
			name:  "record fields keep history order",
			msg:   "Initialized data for alice:",
			level: logrus.InfoLevel,
			fields: logrus.Fields{
				"new_user_id": (*string)(nil),
				"username":    "alice",
				"old_user_id": &old,
				"datetime":    "2024-01-02 03:04:05.000006",
			},
			expect: `[LOG] | Initialized data for alice: | {datetime: "2024-01-02 03:04:05.000006", username: "alice", old_user_id: "42", new_user_id: null}` + "\n",
		},
		{
			name:   "warning with extra fields sorted",
			msg:    "An error occurred for bob",
			level:  logrus.WarnLevel,
			fields: logrus.Fields{"status": 503, "attempt": 2},
			expect: "[WRN] | An error occurred for bob | {attempt: 2, status: 503}\n",
		},
	}

	f := &ConsoleFormatter{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := f.Format(&logrus.Entry{Message: tt.msg, Level: tt.level, Data: tt.fields})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(out) != tt.expect {
				t.Fatalf("unexpected output.\nwant: %q\ngot:  %q", tt.expect, string(out))
			}
		})
	}
}

func TestFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alice_data.json")

	l, err := NewFileLock(path)
	if err != nil {
		t.Fatalf("NewFileLock: %v", err)
	}
	if !strings.HasSuffix(l.path, "alice_data.json.lock") {
		t.Fatalf("unexpected lock path %s", l.path)
	}
	if err := l.Lock(context.Background()); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	// Re-acquiring after release must not block.
	if err := l.Lock(context.Background()); err != nil {
		t.Fatalf("second Lock: %v", err)
	}
	_ = l.Unlock()
}
