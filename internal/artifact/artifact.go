// Package artifact decodes base64 images returned by the worker and writes
// them to disk.
package artifact

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const dataURIMarker = "data:image"

// ErrEmptyPayload is returned when there is nothing to decode
var ErrEmptyPayload = errors.New("artifact: empty base64 payload")

// Decode strips an optional data:image URI prefix and decodes the payload.
func Decode(data string) ([]byte, error) {
	payload := strings.TrimSpace(data)
	if strings.HasPrefix(payload, dataURIMarker) {
		if i := strings.Index(payload, ","); i >= 0 {
			payload = payload[i+1:]
		} else {
			payload = ""
		}
	}
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("artifact: decode base64: %w", err)
	}
	return raw, nil
}

// Save decodes data and writes it to path, replacing any existing file.
func Save(data, path string) error {
	raw, err := Decode(data)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("artifact: write file: %w", err)
	}
	return nil
}

// Store writes artifacts under a fixed output directory.
type Store struct {
	dir string
}

// NewStore initializes a Store rooted at dir, creating it when missing.
func NewStore(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: ensure output dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the output directory.
func (s *Store) Dir() string {
	return s.dir
}

// FileName returns the name used for the idx-th image generated at stamp.
func FileName(stamp time.Time, idx int) string {
	return fmt.Sprintf("output_%s_%d.png", stamp.Format("20060102_150405"), idx)
}

// SaveAll writes every image and returns the written paths in order. It stops
// at the first failure.
func (s *Store) SaveAll(ctx context.Context, images []string, stamp time.Time) ([]string, error) {
	paths := make([]string, 0, len(images))
	for idx, img := range images {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		path := filepath.Join(s.dir, FileName(stamp, idx))
		if err := Save(img, path); err != nil {
			return paths, fmt.Errorf("image %d: %w", idx, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
