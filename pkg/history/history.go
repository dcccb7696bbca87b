// Package history persists the identifier transitions of every tracked name, one JSON file per name.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sw33tLie/idwatch/internal/utils"
	"github.com/tidwall/gjson"
)

const fileSuffix = "_data.json"

// ErrWrite wraps every failure to persist a history file.
var ErrWrite = errors.New("history write failed")

// Store owns read/modify/write access to the history files in a directory.
// Each file on disk is always a complete snapshot of the last successful update.
type Store struct {
	dir string

	mu    sync.Mutex
	names map[string]*nameHistory
}

type nameHistory struct {
	mu      sync.Mutex
	loaded  bool
	records []Record
	lock    *utils.FileLock
}

// NewStore returns a store rooted at dir. The directory is created on first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir, names: make(map[string]*nameHistory)}
}

// Path is the history file of name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+fileSuffix)
}

func (s *Store) entry(name string) *nameHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.names[name]
	if !ok {
		h = &nameHistory{}
		s.names[name] = h
	}
	return h
}

// Load returns the records of name. A missing or undecodable file yields an empty history.
func (s *Store) Load(name string) []Record {
	h := s.entry(name)
	h.mu.Lock()
	defer h.mu.Unlock()
	s.ensureLoaded(name, h)
	return append([]Record{}, h.records...)
}

// Last returns the most recent record of name, if any.
func (s *Store) Last(name string) (Record, bool) {
	records := s.Load(name)
	if len(records) == 0 {
		return Record{}, false
	}
	return records[len(records)-1], true
}

// Append adds rec to the history of name and rewrites the file.
func (s *Store) Append(ctx context.Context, name string, rec Record) error {
	return s.update(ctx, name, func(records []Record) ([]Record, error) {
		return append(records, rec), nil
	})
}

// ResolveLast sets the new identifier of the last record of name and rewrites the file.
func (s *Store) ResolveLast(ctx context.Context, name, newID string) error {
	return s.update(ctx, name, func(records []Record) ([]Record, error) {
		if len(records) == 0 {
			return nil, fmt.Errorf("no record to resolve for %s", name)
		}
		last := records[len(records)-1]
		last.NewUserID = StrPtr(newID)
		records[len(records)-1] = last
		return records, nil
	})
}

// update applies fn to a copy of the history and commits it only once the file is written.
func (s *Store) update(ctx context.Context, name string, fn func([]Record) ([]Record, error)) error {
	h := s.entry(name)
	h.mu.Lock()
	defer h.mu.Unlock()
	s.ensureLoaded(name, h)

	next, err := fn(append([]Record(nil), h.records...))
	if err != nil {
		return err
	}

	if err := s.write(ctx, name, h, next); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, name, err)
	}
	h.records = next

	last := next[len(next)-1]
	utils.Log.WithFields(Fields(last)).Debugf("Wrote %d record(s) to %s", len(next), s.Path(name))
	return nil
}

func (s *Store) ensureLoaded(name string, h *nameHistory) {
	if h.loaded {
		return
	}
	h.records = readFile(s.Path(name))
	h.loaded = true
}

func (s *Store) write(ctx context.Context, name string, h *nameHistory, records []Record) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	path := s.Path(name)
	if h.lock == nil {
		lock, err := utils.NewFileLock(path)
		if err != nil {
			return err
		}
		h.lock = lock
	}
	if err := h.lock.Lock(ctx); err != nil {
		return err
	}
	defer h.lock.Unlock()

	data, err := Encode(records)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+fileSuffix+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Encode renders records the way they are stored on disk.
func Encode(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func readFile(path string) []Record {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			utils.Log.Debugf("Could not read %s, starting with empty history: %v", path, err)
		}
		return []Record{}
	}
	return Decode(data)
}

// Decode parses a history document. Anything that is not a JSON array yields an empty
// history; array entries with missing or mistyped fields are dropped.
func Decode(data []byte) []Record {
	if !gjson.ValidBytes(data) {
		utils.Log.Debug("History document is not valid JSON, ignoring it")
		return []Record{}
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		utils.Log.Debug("History document is not a JSON array, ignoring it")
		return []Record{}
	}

	records := []Record{}
	for i, entry := range doc.Array() {
		rec, err := decodeEntry(entry)
		if err != nil {
			utils.Log.Debugf("Dropping history entry %d: %v", i, err)
			continue
		}
		records = append(records, rec)
	}
	return records
}

func decodeEntry(entry gjson.Result) (Record, error) {
	if !entry.IsObject() {
		return Record{}, errors.New("not an object")
	}

	dt := entry.Get("datetime")
	if dt.Type != gjson.String {
		return Record{}, errors.New("datetime must be a string")
	}
	user := entry.Get("username")
	if user.Type != gjson.String || user.Str == "" {
		return Record{}, errors.New("username must be a non-empty string")
	}
	oldID, err := nullableString(entry.Get("old_user_id"))
	if err != nil {
		return Record{}, fmt.Errorf("old_user_id: %w", err)
	}
	newID, err := nullableString(entry.Get("new_user_id"))
	if err != nil {
		return Record{}, fmt.Errorf("new_user_id: %w", err)
	}

	return Record{Datetime: dt.Str, Username: user.Str, OldUserID: oldID, NewUserID: newID}, nil
}

func nullableString(r gjson.Result) (*string, error) {
	switch r.Type {
	case gjson.Null:
		// also covers a missing key
		return nil, nil
	case gjson.String:
		return StrPtr(r.Str), nil
	default:
		return nil, fmt.Errorf("unexpected %s value", r.Type)
	}
}

// Fields exposes a record as log fields.
func Fields(r Record) logrus.Fields {
	return logrus.Fields{
		"datetime":    r.Datetime,
		"username":    r.Username,
		"old_user_id": r.OldUserID,
		"new_user_id": r.NewUserID,
	}
}
