package extract

import (
	"errors"
	"io"
	"strings"
	"testing"
)

const examplePattern = `https://api.example.com/users/(\d+)`

func TestNewRejectsBadPatterns(t *testing.T) {
	if _, err := New(`(`); err == nil {
		t.Fatalf("expected error for invalid regexp")
	}
	if _, err := New(`users/\d+`); err == nil {
		t.Fatalf("expected error for pattern without capture group")
	}
	if _, err := New(`(users)/(\d+)`); err == nil {
		t.Fatalf("expected error for pattern with two capture groups")
	}
}

func TestFindInChunk(t *testing.T) {
	e := MustNew(DefaultPattern)

	tests := []struct {
		name   string
		chunk  string
		wantID string
		wantOK bool
	}{
		{"single", `<meta content="https://api.soundcloud.com/users/123456">`, "123456", true},
		{"first of many", `https://api.soundcloud.com/users/1 https://api.soundcloud.com/users/2`, "1", true},
		{"none", `<html><body>nothing</body></html>`, "", false},
		{"invalid utf8", "\xff\xfehttps://api.soundcloud.com/users/77\xc3", "77", true},
		{"truncated", `https://api.soundcloud.com/use`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := e.FindInChunk([]byte(tt.chunk))
			if id != tt.wantID || ok != tt.wantOK {
				t.Fatalf("expected (%q, %t), got (%q, %t)", tt.wantID, tt.wantOK, id, ok)
			}
		})
	}
}

func TestScanStopsAtFirstMatch(t *testing.T) {
	e := MustNew(examplePattern)
	body := strings.Repeat("x", 40) + "https://api.example.com/users/42 " + strings.Repeat("y", 40) + "https://api.example.com/users/99"

	id, ok, err := e.Scan(strings.NewReader(body), 128)
	if err != nil || !ok || id != "42" {
		t.Fatalf("expected 42, got (%q, %t, %v)", id, ok, err)
	}
}

func TestScanMissesMatchSplitAcrossChunks(t *testing.T) {
	e := MustNew(examplePattern)
	match := "https://api.example.com/users/42"
	// Put the boundary in the middle of the match.
	prefix := strings.Repeat("a", 32-len(match)/2)
	body := prefix + match + strings.Repeat("b", 32)

	_, ok, err := e.Scan(strings.NewReader(body), 32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected split match to be missed")
	}

	// The same page with the match inside one chunk is found.
	id, ok, _ := e.Scan(strings.NewReader(strings.Repeat("a", 64)+match), 128)
	if !ok || id != "42" {
		t.Fatalf("expected 42, got (%q, %t)", id, ok)
	}
}

func TestScanEmptyBody(t *testing.T) {
	_, ok, err := MustNew(examplePattern).Scan(strings.NewReader(""), 0)
	if ok || err != nil {
		t.Fatalf("expected no match and no error, got (%t, %v)", ok, err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestScanPropagatesReadErrors(t *testing.T) {
	_, _, err := MustNew(examplePattern).Scan(io.MultiReader(strings.NewReader("abc"), failingReader{}), 8)
	if err == nil {
		t.Fatalf("expected read error")
	}
}
