package repository

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"photoshare/internal/domain"
)

// ImageStore keeps normalized profile images and serves them back by file name.
type ImageStore interface {
	// Save stores data under fileName and returns the public URL of the image.
	Save(ctx context.Context, fileName string, data []byte, contentType string) (string, error)
	Open(ctx context.Context, fileName string) (io.ReadCloser, error)
}

func validImageName(name string) bool {
	return name != "" && name == filepath.Base(name) && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`)
}

func publicURL(prefix, fileName string) string {
	return path.Join("/", prefix, fileName)
}

type localImageStore struct {
	dir       string
	urlPrefix string
	log       *zap.Logger
}

// NewLocalImageStore writes images below dir and exposes them under urlPrefix.
func NewLocalImageStore(dir, urlPrefix string, log *zap.Logger) (ImageStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &localImageStore{dir: dir, urlPrefix: urlPrefix, log: log}, nil
}

func (s *localImageStore) Save(ctx context.Context, fileName string, data []byte, contentType string) (string, error) {
	if !validImageName(fileName) {
		return "", domain.ErrInvalidImageName
	}

	dest := filepath.Join(s.dir, fileName)
	if err := os.WriteFile(dest, data, 0644); err != nil {
		s.log.Error("Failed to save image",
			zap.String("path", dest),
			zap.Error(err))
		return "", err
	}

	s.log.Info("Image saved",
		zap.String("path", dest),
		zap.Int("size", len(data)))

	return publicURL(s.urlPrefix, fileName), nil
}

func (s *localImageStore) Open(ctx context.Context, fileName string) (io.ReadCloser, error) {
	if !validImageName(fileName) {
		return nil, domain.ErrInvalidImageName
	}

	f, err := os.Open(filepath.Join(s.dir, fileName))
	if os.IsNotExist(err) {
		return nil, domain.ErrImageNotFound
	}
	return f, err
}
