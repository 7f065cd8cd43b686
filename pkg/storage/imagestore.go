package storage

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tempnotes/pkg/errors"
)

// ImageFileName returns the download name for the image at index
func ImageFileName(now time.Time, index int) string {
	return fmt.Sprintf("image_%d_%d.jpg", now.UnixMilli(), index)
}

// DecodeDataURL returns the media type and bytes of a base64 data URL
func DecodeDataURL(payload string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(payload, "data:")
	if !ok {
		return "", nil, errors.ErrImageDecodeFailed.WithContext("reason", "not a data URL")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return "", nil, errors.ErrImageDecodeFailed.WithContext("reason", "not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, errors.ErrImageDecodeFailed.WithCause(err)
	}
	return strings.TrimSuffix(meta, ";base64"), data, nil
}

// SaveImageFile decodes an image payload and writes it into dir
func SaveImageFile(dir, payload string, index int, now time.Time) (string, error) {
	_, data, err := DecodeDataURL(payload)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.ErrStorageWriteFailed.WithCause(err).WithContext("path", dir)
	}

	path := filepath.Join(dir, ImageFileName(now, index))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.ErrStorageWriteFailed.WithCause(err).WithContext("path", path)
	}
	return path, nil
}
