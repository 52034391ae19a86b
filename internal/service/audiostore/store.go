package audiostore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"companion/internal/logger"
	"companion/internal/models"
)

var ErrInvalidName = errors.New("invalid artifact name")

// LocalStore writes artifacts into a directory served as static files.
// Files are never removed here.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Save writes the artifact and returns the stored file name.
func (s *LocalStore) Save(ctx context.Context, artifact *models.AudioArtifact) (string, error) {
	if artifact == nil {
		return "", errors.New("artifact is nil")
	}
	name := artifact.FileName()
	if artifact.Name == "" || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, artifact.Data, 0o644); err != nil {
		return "", fmt.Errorf("write audio file: %w", err)
	}
	logger.FromContext(ctx).Info("audio file saved", "path", path, "bytes", len(artifact.Data))
	return name, nil
}
