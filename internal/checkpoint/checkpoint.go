// Package checkpoint persists the most recent fully synced date context so an
// interrupted sync can resume without repeating work
package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/franz/djsync/internal/datectx"
	"github.com/franz/djsync/internal/util"
	"github.com/spf13/afero"
)

// Checkpoint is the last date context whose batch completed
type Checkpoint struct {
	Context   string
	Timestamp int64
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("%s, %d", c.Context, c.Timestamp)
}

// Store reads and advances the checkpoint
type Store interface {
	// Load returns nil when nothing has been saved yet
	Load() (*Checkpoint, error)
	Save(context string) error
	IsProcessed(context string) (bool, error)
}

// Parse decodes the "<context>, <timestamp>" file format
func Parse(line string) (*Checkpoint, error) {
	line = strings.TrimSpace(line)
	i := strings.LastIndex(line, ",")
	if i < 0 {
		return nil, fmt.Errorf("malformed checkpoint %q", line)
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(line[i+1:]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed checkpoint timestamp in %q: %w", line, err)
	}
	return &Checkpoint{Context: strings.TrimSpace(line[:i]), Timestamp: ts}, nil
}

func isProcessed(cp *Checkpoint, context string) (bool, error) {
	if cp == nil {
		return false, nil
	}
	ts, err := datectx.ToTimestamp(context)
	if err != nil {
		return false, err
	}
	return ts <= cp.Timestamp, nil
}

// FileStore keeps the checkpoint in a single-line file. The lock file next to
// it prevents two runs from advancing the same checkpoint.
type FileStore struct {
	fs       afero.Fs
	path     string
	lockPath string
	locked   bool
}

// NewFileStore returns a store for path on the OS filesystem
func NewFileStore(path string) *FileStore {
	return NewFileStoreFs(afero.NewOsFs(), path)
}

// NewFileStoreFs returns a store for path on fsys
func NewFileStoreFs(fsys afero.Fs, path string) *FileStore {
	return &FileStore{fs: fsys, path: path, lockPath: path + ".lock"}
}

// Path returns the checkpoint file location
func (s *FileStore) Path() string { return s.path }

// Load implements Store
func (s *FileStore) Load() (*Checkpoint, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	return Parse(string(data))
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(context string) error {
	ts, err := datectx.ToTimestamp(context)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	cp := Checkpoint{Context: context, Timestamp: ts}
	if _, err := tmp.WriteString(cp.String()); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}

	util.DebugLog("Checkpoint saved: %s", cp)
	return nil
}

// IsProcessed implements Store
func (s *FileStore) IsProcessed(context string) (bool, error) {
	cp, err := s.Load()
	if err != nil {
		return false, err
	}
	return isProcessed(cp, context)
}

// Lock takes the run lock. It fails with util.ErrLocked while another process
// holds it.
func (s *FileStore) Lock() error {
	if err := s.fs.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	f, err := s.fs.OpenFile(s.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			owner, _ := afero.ReadFile(s.fs, s.lockPath)
			return fmt.Errorf("%w: %s held by %s", util.ErrLocked, s.lockPath, strings.TrimSpace(string(owner)))
		}
		return fmt.Errorf("create lock: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "pid %d since %s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	s.locked = true
	return nil
}

// Unlock releases a lock taken by Lock
func (s *FileStore) Unlock() error {
	if !s.locked {
		return nil
	}
	s.locked = false
	if err := s.fs.Remove(s.lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu    sync.Mutex
	cp    *Checkpoint
	saves []string
}

// NewMemoryStore returns a store seeded with initial, or empty when initial is ""
func NewMemoryStore(initial string) (*MemoryStore, error) {
	s := &MemoryStore{}
	if initial != "" {
		if err := s.Save(initial); err != nil {
			return nil, err
		}
		s.saves = nil
	}
	return s, nil
}

// Load implements Store
func (s *MemoryStore) Load() (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cp == nil {
		return nil, nil
	}
	cp := *s.cp
	return &cp, nil
}

// Save implements Store
func (s *MemoryStore) Save(context string) error {
	ts, err := datectx.ToTimestamp(context)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp = &Checkpoint{Context: context, Timestamp: ts}
	s.saves = append(s.saves, context)
	return nil
}

// IsProcessed implements Store
func (s *MemoryStore) IsProcessed(context string) (bool, error) {
	cp, _ := s.Load()
	return isProcessed(cp, context)
}

// Saves returns every context saved since creation, in order
func (s *MemoryStore) Saves() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saves...)
}
