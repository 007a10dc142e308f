// Package store manages the on-disk capture store: the capture logs
// written by the recorder, the analysis files produced by the
// analysis pipeline, and the manifest tying them together.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	manifestName = "manifest.yaml"
	captureExt   = ".cslog"
	analysisExt  = ".ndjson"
)

var (
	ErrEntryNotFound  = errors.New("capture entry not found")
	ErrNoCurrentEntry = errors.New("no capture is currently recording")
	ErrRecording      = errors.New("a capture is already recording")
)

// Entry is one capture in the manifest.
type Entry struct {
	Name    string    `yaml:"name"`
	Started time.Time `yaml:"started"`
	Size    int64     `yaml:"size"`
}

type manifest struct {
	Entries []Entry `yaml:"entries"`
}

// Store is safe for concurrent use. Its lock is held only for
// manifest access and handle acquisition, never across an analysis.
type Store struct {
	mx sync.RWMutex

	dir         string
	manifest    manifest
	current     int // manifest index of the recording entry, -1 when none
	currentFile *os.File
}

// Open loads the store at dir, creating the directory and an empty
// manifest when absent.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating capture dir: %w", err)
	}

	s := &Store{dir: dir, current: -1}
	raw, err := os.ReadFile(filepath.Join(dir, manifestName))
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s.manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return s, nil
}

// Entries returns a snapshot of the manifest.
func (s *Store) Entries() []Entry {
	s.mx.RLock()
	defer s.mx.RUnlock()
	out := make([]Entry, len(s.manifest.Entries))
	copy(out, s.manifest.Entries)
	return out
}

// EntryNames returns the manifest names in manifest order.
func (s *Store) EntryNames() []string {
	s.mx.RLock()
	defer s.mx.RUnlock()
	names := make([]string, 0, len(s.manifest.Entries))
	for _, e := range s.manifest.Entries {
		names = append(names, e.Name)
	}
	return names
}

// EntryForName resolves a capture name to its manifest index.
func (s *Store) EntryForName(name string) (int, bool) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.entryForNameLocked(name)
}

func (s *Store) entryForNameLocked(name string) (int, bool) {
	for i, e := range s.manifest.Entries {
		if e.Name == name {
			return i, true
		}
	}
	return 0, false
}

// CurrentEntryName returns the name of the capture being recorded.
func (s *Store) CurrentEntryName() (string, bool) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	if s.current < 0 {
		return "", false
	}
	return s.manifest.Entries[s.current].Name, true
}

// OpenForAnalysis resolves name and returns a freshly truncated
// analysis file, the capture log opened for reading, and the capture
// log's current size. All three are acquired under one exclusive
// section, released before any of them is used.
func (s *Store) OpenForAnalysis(name string) (analysisFile *os.File, captureFile *os.File, size int64, err error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	idx, ok := s.entryForNameLocked(name)
	if !ok {
		return nil, nil, 0, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	entry := s.manifest.Entries[idx]

	analysisFile, err = os.OpenFile(s.analysisPath(entry.Name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("opening analysis file: %w", err)
	}

	captureFile, err = os.Open(s.capturePath(entry.Name))
	if err != nil {
		_ = analysisFile.Close()
		return nil, nil, 0, fmt.Errorf("opening capture log: %w", err)
	}

	info, err := captureFile.Stat()
	if err != nil {
		_ = analysisFile.Close()
		_ = captureFile.Close()
		return nil, nil, 0, fmt.Errorf("reading capture log size: %w", err)
	}

	return analysisFile, captureFile, info.Size(), nil
}

// AnalysisPath returns where the analysis output of name lives.
func (s *Store) AnalysisPath(name string) string {
	return s.analysisPath(name)
}

func (s *Store) analysisPath(name string) string {
	return filepath.Join(s.dir, name+analysisExt)
}

func (s *Store) capturePath(name string) string {
	return filepath.Join(s.dir, name+captureExt)
}

// NewEntry starts recording a new capture: creates its log file,
// appends a manifest entry and marks it current.
func (s *Store) NewEntry() (Entry, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.current >= 0 {
		return Entry{}, ErrRecording
	}

	now := time.Now().UTC()
	name := now.Format("2006-01-02_15-04-05") + "-" + uuid.NewString()[:8]
	f, err := os.OpenFile(s.capturePath(name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Entry{}, fmt.Errorf("creating capture log: %w", err)
	}

	entry := Entry{Name: name, Started: now}
	s.manifest.Entries = append(s.manifest.Entries, entry)
	s.current = len(s.manifest.Entries) - 1
	s.currentFile = f

	if err := s.persistManifestLocked(); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// AppendCurrent appends raw frame bytes to the recording capture.
func (s *Store) AppendCurrent(frame []byte) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.current < 0 {
		return ErrNoCurrentEntry
	}
	n, err := s.currentFile.Write(frame)
	s.manifest.Entries[s.current].Size += int64(n)
	if err != nil {
		return fmt.Errorf("appending to capture log: %w", err)
	}
	return nil
}

// FinishCurrent seals the recording capture and returns its name.
// The caller is expected to notify the analysis worker.
func (s *Store) FinishCurrent() (string, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.current < 0 {
		return "", ErrNoCurrentEntry
	}
	name := s.manifest.Entries[s.current].Name
	err := s.currentFile.Close()
	s.current = -1
	s.currentFile = nil
	if err != nil {
		return "", fmt.Errorf("closing capture log: %w", err)
	}
	if err := s.persistManifestLocked(); err != nil {
		return "", err
	}
	return name, nil
}

// persistManifestLocked writes the manifest via a temp file rename so
// a crash mid-write leaves the previous manifest intact.
func (s *Store) persistManifestLocked() error {
	raw, err := yaml.Marshal(s.manifest)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	path := filepath.Join(s.dir, manifestName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing manifest: %w", err)
	}
	return nil
}
