// Package blob stores uploaded media and hands back a URL clients can fetch.
package blob

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/securechat-server/internal/utils"
)

// ErrUnsupportedType is returned for content outside the allow-list.
var ErrUnsupportedType = errors.New("unsupported file type")

// Store persists media bytes.
type Store interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

var allowedExact = map[string]struct{}{
	"application/pdf":              {},
	"application/zip":              {},
	"application/x-zip-compressed": {},
	"application/msword":           {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"text/plain": {},
}

// Detect sniffs data and returns its media type without parameters.
func Detect(data []byte) string {
	mt, _, err := mime.ParseMediaType(mimetype.Detect(data).String())
	if err != nil {
		return "application/octet-stream"
	}
	return mt
}

// Allowed reports whether contentType may be uploaded.
func Allowed(contentType string) bool {
	if strings.HasPrefix(contentType, "image/") || strings.HasPrefix(contentType, "video/") {
		return true
	}
	_, ok := allowedExact[contentType]
	return ok
}

// LocalStore writes blobs into a directory served under baseURL.
type LocalStore struct {
	dir     string
	baseURL string
	logger  *zerolog.Logger
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, baseURL string, logger *zerolog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}, nil
}

// Dir returns the directory blobs are written to.
func (s *LocalStore) Dir() string { return s.dir }

// Upload stores data under a fresh name. contentType may be empty, in which
// case the content is sniffed.
func (s *LocalStore) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = Detect(data)
	}
	if !Allowed(contentType) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	ext := mimetype.Lookup(contentType)
	name := utils.NewID()
	if ext != nil {
		name += ext.Extension()
	}

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	s.logger.Debug().Str("blob", name).Str("content_type", contentType).Int("bytes", len(data)).Msg("blob stored")
	return s.baseURL + "/" + name, nil
}
