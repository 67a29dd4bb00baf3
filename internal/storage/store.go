package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// ErrNoDescriptor is returned when the active descriptor file does not exist
var ErrNoDescriptor = errors.New("descriptor not found")

// Store defines the interface for descriptor file storage
// All implementations must be thread-safe for concurrent access
type Store interface {
	// Stat returns the modification time of the active descriptor
	// Returns ErrNoDescriptor if there is none
	Stat() (time.Time, error)

	// Open opens the active descriptor for reading
	Open() (io.ReadCloser, error)

	// Stage writes data to a new timestamp-suffixed file next to the
	// active descriptor and returns its name
	// The active descriptor is untouched
	Stage(data []byte) (string, error)

	// Activate replaces the active descriptor with a staged file
	// The active descriptor's modification time always moves forward
	Activate(name string) error

	// Discard removes a staged file that will not be activated
	Discard(name string) error

	// ActiveName returns the name readers poll for changes
	ActiveName() string
}

// FileStore implements Store on a billy.Filesystem
// Uses a mutex to serialize staging and activation
type FileStore struct {
	mu     sync.Mutex       // Serializes Stage and Activate
	fs     billy.Filesystem // Filesystem holding the descriptor
	active string           // Name of the active descriptor
	root   string           // OS directory behind fs, if any
	now    func() time.Time // Clock for staged file suffixes
}

// NewFileStore creates a store for the descriptor named active in fs
func NewFileStore(fs billy.Filesystem, active string) *FileStore {
	return &FileStore{
		fs:     fs,
		active: active,
		now:    time.Now,
	}
}

// NewDirStore creates a store for the descriptor named active in an OS directory
func NewDirStore(dir, active string) *FileStore {
	s := NewFileStore(osfs.New(dir), active)
	s.root = dir
	return s
}

// Stat returns the modification time of the active descriptor
func (s *FileStore) Stat() (time.Time, error) {
	fi, err := s.fs.Stat(s.active)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, fmt.Errorf("%s: %w", s.active, ErrNoDescriptor)
		}
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

// Open opens the active descriptor for reading
func (s *FileStore) Open() (io.ReadCloser, error) {
	f, err := s.fs.Open(s.active)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", s.active, ErrNoDescriptor)
		}
		return nil, err
	}
	return f, nil
}

// Stage writes data to <active>.<unix nanos>
// A partially written file is removed on failure
func (s *FileStore) Stage(data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := fmt.Sprintf("%s.%d", s.active, s.now().UnixNano())
	for i := 1; s.exists(name); i++ {
		name = fmt.Sprintf("%s.%d-%d", s.active, s.now().UnixNano(), i)
	}

	f, err := s.fs.Create(name)
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(name)
		return "", fmt.Errorf("stage %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(name)
		return "", fmt.Errorf("stage %s: %w", name, err)
	}
	return name, nil
}

// Activate renames a staged file over the active descriptor
func (s *FileStore) Activate(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev time.Time
	if fi, err := s.fs.Stat(s.active); err == nil {
		prev = fi.ModTime()
	}
	if err := s.fs.Rename(name, s.active); err != nil {
		return fmt.Errorf("activate %s: %w", name, err)
	}
	if prev.IsZero() {
		return nil
	}

	// Pollers only see a commit if the modification time moves.
	fi, err := s.fs.Stat(s.active)
	if err != nil {
		return fmt.Errorf("activate %s: %w", name, err)
	}
	if fi.ModTime().After(prev) {
		return nil
	}
	return s.touch(prev.Add(time.Millisecond))
}

// Discard removes a staged file
// A file that is already gone is not an error; the active descriptor is never removed
func (s *FileStore) Discard(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == s.active {
		return fmt.Errorf("discard %s: active descriptor", name)
	}
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard %s: %w", name, err)
	}
	return nil
}

// ActiveName returns the name of the active descriptor
func (s *FileStore) ActiveName() string {
	return s.active
}

func (s *FileStore) exists(name string) bool {
	_, err := s.fs.Stat(name)
	return err == nil
}

func (s *FileStore) touch(t time.Time) error {
	if ch, ok := s.fs.(billy.Change); ok {
		return ch.Chtimes(s.active, t, t)
	}
	if s.root != "" {
		return os.Chtimes(filepath.Join(s.root, s.active), t, t)
	}
	return nil
}
