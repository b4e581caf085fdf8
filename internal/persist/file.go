package persist

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"pkt.systems/pslog"
	"pkt.systems/surveyforge/schema"
)

// FileStore persists one JSON file per project.
type FileStore struct {
	dir string
	log pslog.Logger
}

// NewFileStore constructs a file store at the given directory.
func NewFileStore(dir string) (*FileStore, error) {
	return NewFileStoreWithLogger(dir, nil)
}

// NewFileStoreWithLogger constructs a file store with logging.
func NewFileStoreWithLogger(dir string, logger pslog.Logger) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &FileStore{dir: dir, log: logger}, nil
}

// Load reads a project snapshot from disk.
func (s *FileStore) Load(_ context.Context, projectID schema.ProjectID) (ProjectSnapshot, bool, error) {
	data, err := os.ReadFile(s.pathForProject(projectID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("state load miss", "project", projectID)
			}
			return ProjectSnapshot{}, false, nil
		}
		s.warn("state load failed", projectID, err)
		return ProjectSnapshot{}, false, err
	}
	var snapshot ProjectSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		s.warn("state load failed", projectID, err)
		return ProjectSnapshot{}, false, err
	}
	if snapshot.ID == "" {
		snapshot.ID = projectID
	}
	if s.log != nil {
		s.log.Debug("state load ok", "project", projectID, "document_len", len(snapshot.Document))
	}
	return snapshot, true, nil
}

// Save writes a project snapshot atomically.
func (s *FileStore) Save(_ context.Context, projectID schema.ProjectID, snapshot ProjectSnapshot) error {
	path := s.pathForProject(projectID)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		s.warn("state save failed", projectID, err)
		return err
	}
	if snapshot.ID == "" {
		snapshot.ID = projectID
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		s.warn("state save failed", projectID, err)
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "project-*.json.tmp")
	if err != nil {
		s.warn("state save failed", projectID, err)
		return err
	}
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		s.warn("state save failed", projectID, err)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		s.warn("state save failed", projectID, err)
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		s.warn("state save failed", projectID, err)
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		s.warn("state save failed", projectID, err)
		return err
	}
	if s.log != nil {
		s.log.Trace("state save ok", "project", projectID, "history", len(snapshot.History))
	}
	return nil
}

// List returns the ids of stored projects in lexical order.
func (s *FileStore) List(_ context.Context) ([]schema.ProjectID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []schema.ProjectID
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, schema.ProjectID(strings.TrimSuffix(name, ".json")))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) warn(msg string, projectID schema.ProjectID, err error) {
	if s.log != nil {
		s.log.Warn(msg, "project", projectID, "err", err)
	}
}

func (s *FileStore) pathForProject(projectID schema.ProjectID) string {
	name := sanitize(string(projectID))
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, name+".json")
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
