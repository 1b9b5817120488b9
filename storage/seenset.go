package storage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrStoreUnavailable marks failures to persist seen ids.
var ErrStoreUnavailable = errors.New("seen-set store unavailable")

// StoreCorruptError reports a seen-set file that exists but cannot be read
// as line-delimited text. Line is zero when the file could not be read at all.
type StoreCorruptError struct {
	Path string
	Line int
	Err  error
}

func (e *StoreCorruptError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("seen-set %s corrupt at line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("seen-set %s unreadable: %v", e.Path, e.Err)
}

func (e *StoreCorruptError) Unwrap() error { return e.Err }

// SeenSet is the durable, append-only set of listing ids already recorded.
// It is loaded once per run and owned by a single process; there is no
// merge step for concurrent appenders.
type SeenSet struct {
	path string
	ids  map[string]struct{}
}

// LoadSeenSet reads the ids stored at path. A missing file is an empty set.
func LoadSeenSet(path string) (*SeenSet, error) {
	s := &SeenSet{path: path, ids: make(map[string]struct{})}

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, &StoreCorruptError{Path: path, Err: err}
	}

	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if !utf8.Valid(raw) {
			return nil, &StoreCorruptError{Path: path, Line: line, Err: errors.New("invalid UTF-8")}
		}
		if bytes.IndexByte(raw, 0) >= 0 {
			return nil, &StoreCorruptError{Path: path, Line: line, Err: errors.New("NUL byte")}
		}
		id := strings.TrimSpace(string(raw))
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &StoreCorruptError{Path: path, Line: line + 1, Err: err}
	}
	return s, nil
}

// Contains reports whether id was recorded before or during this run.
func (s *SeenSet) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of known ids.
func (s *SeenSet) Len() int { return len(s.ids) }

// Path returns the backing file.
func (s *SeenSet) Path() string { return s.path }

// IDs returns a snapshot of the known ids in no particular order.
func (s *SeenSet) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

// Record appends ids not yet known to the backing file and then to the
// in-memory set. Once Record returns nil every id is durable. An id that
// cannot be stored on a single line fails the whole batch before anything
// is written.
func (s *SeenSet) Record(ids []string) error {
	fresh := make([]string, 0, len(ids))
	batch := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || s.Contains(id) {
			continue
		}
		if !ValidID(id) {
			return fmt.Errorf("seen-set: id %q cannot be stored in %s: %w", id, s.path, ErrStoreUnavailable)
		}
		if _, dup := batch[id]; dup {
			continue
		}
		batch[id] = struct{}{}
		fresh = append(fresh, id)
	}
	if len(fresh) == 0 {
		return nil
	}

	if err := appendLines(s.path, fresh); err != nil {
		return fmt.Errorf("seen-set: append %d ids to %s: %w: %v", len(fresh), s.path, ErrStoreUnavailable, err)
	}
	for _, id := range fresh {
		s.ids[id] = struct{}{}
	}
	return nil
}

// ValidID reports whether id survives a write and reload of the seen-set
// file unchanged: valid UTF-8 without line breaks or NUL bytes.
func ValidID(id string) bool {
	return utf8.ValidString(id) && !strings.ContainsAny(id, "\r\n\x00")
}

func appendLines(path string, lines []string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	// a hand-edited file may lack the final newline
	if fi, err := f.Stat(); err == nil && fi.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, fi.Size()-1); err == nil && last[0] != '\n' {
			bw.WriteByte('\n')
		}
	}
	for _, l := range lines {
		bw.WriteString(l)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ResetSeenSet removes the backing file. This is the only way ids leave the set.
func ResetSeenSet(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("seen-set: reset %s: %w", path, err)
	}
	return nil
}
