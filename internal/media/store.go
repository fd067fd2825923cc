// Package media hosts generated images durably and hands back public URLs.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DiskStore writes decoded images under a local directory and serves them
// through the configured public base URL. A failed store returns "" so the
// caller falls back to the raw data URI.
type DiskStore struct {
	root    string
	baseURL string
}

// NewDiskStore creates a DiskStore rooted at dir. baseURL prefixes the
// returned public URLs.
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &DiskStore{root: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Store decodes a data URI and persists it as  <root>/<user>/<kind>-<id>.<ext>.
func (s *DiskStore) Store(ctx context.Context, userID, dataURI, kind string) (string, error) {
	mimeType, payload, err := DecodeDataURI(dataURI)
	if err != nil {
		slog.Warn("unusable image data", "kind", kind, "error", err.Error())
		return "", nil
	}

	ext := extensionFor(mimeType)
	name := fmt.Sprintf("%s-%s%s", kind, uuid.NewString(), ext)
	dir := filepath.Join(s.root, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create user media directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), payload, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	return fmt.Sprintf("%s/%s/%s", s.baseURL, userID, name), nil
}

// DecodeDataURI splits a data URI into its MIME type and decoded bytes.
func DecodeDataURI(dataURI string) (string, []byte, error) {
	if !strings.HasPrefix(dataURI, "data:") {
		return "", nil, fmt.Errorf("not a data URI")
	}
	rest := strings.TrimPrefix(dataURI, "data:")
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URI")
	}
	mimeType := strings.TrimSuffix(meta, ";base64")
	if mimeType == "" {
		mimeType = "image/png"
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode image payload: %w", err)
	}
	return mimeType, payload, nil
}

// EncodeDataURI is the inverse of DecodeDataURI.
func EncodeDataURI(mimeType string, payload []byte) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(payload))
}

func extensionFor(mimeType string) string {
	exts, err := mime.ExtensionsByType(mimeType)
	if err == nil && len(exts) > 0 {
		return exts[len(exts)-1]
	}
	return ".png"
}
