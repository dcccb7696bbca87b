// Package extract finds the numeric identifier embedded in a profile page.
package extract

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	DefaultPattern   = `https://api.soundcloud.com/users/(\d+)`
	DefaultChunkSize = 8192
)

// Extractor applies a single-capture pattern to independent chunks of a body.
type Extractor struct {
	re *regexp.Regexp
}

// New compiles pattern, which must contain exactly one capture group.
func New(pattern string) (*Extractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid identifier pattern: %w", err)
	}
	if re.NumSubexp() != 1 {
		return nil, fmt.Errorf("identifier pattern %q must have exactly one capture group, has %d", pattern, re.NumSubexp())
	}
	return &Extractor{re: re}, nil
}

// MustNew is like New but panics on a bad pattern.
func MustNew(pattern string) *Extractor {
	e, err := New(pattern)
	if err != nil {
		panic(err)
	}
	return e
}

// FindInChunk returns the first identifier in chunk. Invalid UTF-8 is dropped before matching.
func (e *Extractor) FindInChunk(chunk []byte) (string, bool) {
	text := strings.ToValidUTF8(string(chunk), "")
	m := e.re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Scan reads r in chunks of chunkSize bytes and returns the identifier from the first
// chunk that contains one. Chunks are inspected independently: a match split across
// two chunks is not found.
func (e *Extractor) Scan(r io.Reader, chunkSize int) (string, bool, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if id, ok := e.FindInChunk(buf[:n]); ok {
				return id, true, nil
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
	}
}
