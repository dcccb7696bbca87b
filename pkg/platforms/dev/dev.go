// Package dev serves scripted profile pages so the tracking logic can run without a network.
package dev

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/sw33tLie/idwatch/pkg/platforms"
)

// Page is one scripted response. A non-nil Err simulates a transport failure.
type Page struct {
	Status int
	Body   string
	Err    error
}

// Fetcher replays a script of pages per name; the last page repeats once the script runs out.
type Fetcher struct {
	mu       sync.Mutex
	scripts  map[string][]Page
	calls    map[string]int
	inFlight map[string]int
	overlap  bool
}

func NewFetcher(scripts map[string][]Page) *Fetcher {
	return &Fetcher{
		scripts:  scripts,
		calls:    make(map[string]int),
		inFlight: make(map[string]int),
	}
}

func (f *Fetcher) Name() string { return "dev" }

func (f *Fetcher) ProfileURL(name string) string { return "https://example.com/" + name }

func (f *Fetcher) Fetch(ctx context.Context, name string) (*platforms.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.inFlight[name]++
	if f.inFlight[name] > 1 {
		f.overlap = true
	}
	script := f.scripts[name]
	i := f.calls[name]
	f.calls[name]++
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight[name]--
		f.mu.Unlock()
	}()

	if len(script) == 0 {
		return &platforms.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(""))}, nil
	}
	if i >= len(script) {
		i = len(script) - 1
	}
	p := script[i]
	if p.Err != nil {
		return nil, fmt.Errorf("%w: %s: %v", platforms.ErrFetch, name, p.Err)
	}
	return &platforms.Response{StatusCode: p.Status, Body: io.NopCloser(strings.NewReader(p.Body))}, nil
}

// Calls returns how many fetches were issued for name.
func (f *Fetcher) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// Overlapped reports whether two fetches for the same name were ever in flight together.
func (f *Fetcher) Overlapped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlap
}

// ProfilePage renders a minimal page embedding id in the pattern-shaped URL.
func ProfilePage(id string) string {
	return `<html><head><title>profile</title></head><body><a href="https://api.example.com/users/` + id + `">me</a></body></html>`
}

// Pattern matches the identifiers ProfilePage embeds.
const Pattern = `https://api.example.com/users/(\d+)`

// Scenario is a five-cycle script for "alice": first sighting, no change, change,
// removal and recovery.
func Scenario() map[string][]Page {
	return map[string][]Page{
		"alice": {
			{Status: http.StatusOK, Body: ProfilePage("42")},
			{Status: http.StatusOK, Body: ProfilePage("42")},
			{Status: http.StatusOK, Body: ProfilePage("77")},
			{Status: http.StatusNotFound},
			{Status: http.StatusOK, Body: ProfilePage("77")},
		},
	}
}
