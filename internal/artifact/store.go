// Package artifact persists finished dialogues: always to a local
// directory, optionally to a Google Drive folder.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// ErrNotFound is returned when no artifact exists for a session.
var ErrNotFound = errors.New("artifact not found")

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// extensions Load probes, in order.
var extensions = []string{".mp3", ".wav"}

// FileStore keeps one file per session under dir.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("artifact dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes data as <dir>/<sessionID><ext> and returns the path. The
// file appears atomically; readers never see a partial artifact.
func (s *FileStore) Save(sessionID, ext string, data []byte) (string, error) {
	if !validID.MatchString(sessionID) {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	final := filepath.Join(s.dir, sessionID+ext)

	tmp, err := os.CreateTemp(s.dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("publish artifact: %w", err)
	}
	return final, nil
}

// Load returns the stored bytes and extension for a session.
func (s *FileStore) Load(sessionID string) ([]byte, string, error) {
	if !validID.MatchString(sessionID) {
		return nil, "", ErrNotFound
	}
	for _, ext := range extensions {
		data, err := os.ReadFile(filepath.Join(s.dir, sessionID+ext))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return data, ext, nil
	}
	return nil, "", ErrNotFound
}
