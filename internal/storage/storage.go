// Package storage persists synthesized audio so it can be returned by URL.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/google/uuid"
)

type Storage interface {
	Upload(ctx context.Context, name string, data io.Reader, contentType string) error
	Download(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
	GetPublicURL(name string) string
}

// NewObjectName returns a unique file name whose extension matches contentType.
func NewObjectName(contentType string) string {
	return uuid.NewString() + extensionFor(contentType)
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "audio/webm":
		return ".webm"
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// Save uploads data under a fresh name and returns its public URL.
func Save(ctx context.Context, s Storage, data io.Reader, contentType string) (string, error) {
	name := NewObjectName(contentType)
	if err := s.Upload(ctx, name, data, contentType); err != nil {
		return "", fmt.Errorf("store %s: %w", name, err)
	}
	return s.GetPublicURL(name), nil
}
