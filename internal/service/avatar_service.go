package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var ErrUnsupportedAvatarType = errors.New("unsupported avatar file type")

var avatarExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".webp": {},
}

// AvatarStore is a path-addressed file store for profile images: one file
// per user, overwritten on every upload, served at a stable public URL.
type AvatarStore struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

func NewAvatarStore(dir, baseURL string, logger *zap.Logger) (*AvatarStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create avatar dir: %w", err)
	}
	return &AvatarStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}, nil
}

// Dir returns the directory avatars are written to; the app server mounts
// it as a static route.
func (s *AvatarStore) Dir() string {
	return s.dir
}

// Save writes the avatar for userID, replacing any previous one, and
// returns its public URL.
func (s *AvatarStore) Save(userID, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := avatarExtensions[ext]; !ok {
		return "", ErrUnsupportedAvatarType
	}

	// Previous uploads may carry a different extension; clear them so the
	// stored file stays unique per user.
	for old := range avatarExtensions {
		if old == ext {
			continue
		}
		_ = os.Remove(filepath.Join(s.dir, userID+old))
	}

	path := filepath.Join(s.dir, userID+ext)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("open avatar file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("write avatar file: %w", err)
	}

	s.logger.Info("avatar stored", zap.String("user_id", userID), zap.String("path", path))
	return s.baseURL + "/avatars/" + userID + ext, nil
}
