// Package props implements a simple process-wide property store, modeled after
// Android system properties, backed by a file of key=value lines.
package props

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/unix"
)

// ValueMax is the maximum length of a property value (PROP_VALUE_MAX, minus
// the terminator).
const ValueMax = 91

// Some errors.
var (
	ErrInvalidKey   = errors.New("invalid property key")
	ErrInvalidValue = errors.New("invalid property value")
)

// Store is a property file. Reads never block. Writes replace the file
// atomically while holding an exclusive lock on a sibling lock file, so
// concurrent writers from other processes do not lose updates.
type Store struct {
	path string
}

// Open returns a store for the specified file, which does not need to exist.
func Open(path string) *Store {
	return &Store{path: path}
}

// Path returns the path to the property file.
func (s *Store) Path() string {
	return s.path
}

type line struct {
	key   string // empty for comments and blank lines
	value string
	raw   string
}

func (s *Store) load() ([]line, error) {
	buf, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var lines []line
	sc := bufio.NewScanner(bytes.NewReader(buf))
	for sc.Scan() {
		raw := sc.Text()
		l := line{raw: raw}
		if t := strings.TrimSpace(raw); t != "" && t[0] != '#' {
			if k, v, ok := strings.Cut(t, "="); ok {
				l.key, l.value = strings.TrimSpace(k), strings.TrimSpace(v)
			}
		}
		lines = append(lines, l)
	}
	return lines, sc.Err()
}

// Get gets a property. If the property file doesn't exist, all properties are
// unset.
func (s *Store) Get(key string) (string, bool, error) {
	lines, err := s.load()
	if err != nil {
		return "", false, fmt.Errorf("read properties: %w", err)
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].key == key {
			return lines[i].value, true, nil
		}
	}
	return "", false, nil
}

// GetDefault gets a property, returning def if it is unset, empty, or can't be
// read.
func (s *Store) GetDefault(key, def string) string {
	if v, ok, err := s.Get(key); err == nil && ok && v != "" {
		return v
	}
	return def
}

// GetBool gets a boolean property using the same spellings as Android's
// SystemProperties.getBoolean, returning def if it is unset or unrecognized.
func (s *Store) GetBool(key string, def bool) bool {
	switch s.GetDefault(key, "") {
	case "1", "y", "yes", "on", "true":
		return true
	case "0", "n", "no", "off", "false":
		return false
	default:
		return def
	}
}

// All gets all properties.
func (s *Store) All() (map[string]string, error) {
	lines, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("read properties: %w", err)
	}
	m := make(map[string]string, len(lines))
	for _, l := range lines {
		if l.key != "" {
			m[l.key] = l.value
		}
	}
	return m, nil
}

// Set sets a property, creating the property file if required.
func (s *Store) Set(key, value string) error {
	if key == "" || strings.ContainsAny(key, "=# \t\r\n") {
		return fmt.Errorf("%w %q", ErrInvalidKey, key)
	}
	if len(value) > ValueMax || strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("%w for %s", ErrInvalidValue, key)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create property dir: %w", err)
	}

	lf, err := os.OpenFile(s.path+".lock", os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open property lock: %w", err)
	}
	defer lf.Close()

	if err := unix.Flock(int(lf.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("lock properties: %w", err)
	}
	defer unix.Flock(int(lf.Fd()), unix.LOCK_UN)

	lines, err := s.load()
	if err != nil {
		return fmt.Errorf("read properties: %w", err)
	}

	var (
		buf   bytes.Buffer
		found bool
	)
	for _, l := range lines {
		if l.key == key {
			if found {
				continue // drop duplicates
			}
			l.raw, found = key+"="+value, true
		}
		buf.WriteString(l.raw)
		buf.WriteByte('\n')
	}
	if !found {
		buf.WriteString(key + "=" + value + "\n")
	}

	tf, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("write properties: %w", err)
	}
	defer os.Remove(tf.Name())

	if _, err := tf.Write(buf.Bytes()); err != nil {
		tf.Close()
		return fmt.Errorf("write properties: %w", err)
	}
	if err := tf.Chmod(0644); err != nil {
		tf.Close()
		return fmt.Errorf("write properties: %w", err)
	}
	if err := tf.Sync(); err != nil {
		tf.Close()
		return fmt.Errorf("write properties: %w", err)
	}
	if err := tf.Close(); err != nil {
		return fmt.Errorf("write properties: %w", err)
	}
	if err := os.Rename(tf.Name(), s.path); err != nil {
		return fmt.Errorf("write properties: %w", err)
	}
	return nil
}

// Watch calls fn whenever the property file may have changed, until ctx is
// cancelled or the watcher fails.
func (s *Store) Watch(ctx context.Context, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir, name := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// writes are always a rename of a temp file
			if filepath.Base(event.Name) == name && event.Has(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) {
				fn()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
}
