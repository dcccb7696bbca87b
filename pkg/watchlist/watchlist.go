package watchlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sw33tLie/idwatch/internal/utils"
)

// ErrNotFound is returned by Read when the watchlist file does not exist.
var ErrNotFound = errors.New("watchlist not found")

// Read loads one name per line from path. Blank lines, duplicates and names that
// can't be used as a file name are skipped.
func Read(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse is Read over an arbitrary reader.
func Parse(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	var names []string
	for _, name := range utils.UniqueLines(lines) {
		if !ValidName(name) {
			utils.Log.Warnf("Skipping watchlist entry %q: not a valid name", name)
			continue
		}
		names = append(names, name)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// ValidName rejects names that would escape the history directory.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`+"\x00")
}
