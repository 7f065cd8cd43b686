package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"

	"tempnotes/pkg/errors"
	"tempnotes/pkg/utils"
)

const tempFilePrefix = ".tempnotes-tmp-"

// FileKV stores one file per key under a data directory
type FileKV struct {
	dataDir          string
	mutex            sync.Mutex
	writtenHashes    map[string][sha256.Size]byte
	pendingDeletions map[string]bool
	logger           *slog.Logger
}

// NewFileKV creates the data directory if needed and returns a FileKV over it
func NewFileKV(dataDir string, logger *slog.Logger) (*FileKV, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "DIR_CREATE_FAILED",
			"failed to create data directory").
			WithUserMessage("Unable to create the notes directory").
			WithContext("path", dataDir)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileKV{
		dataDir:          dataDir,
		writtenHashes:    make(map[string][sha256.Size]byte),
		pendingDeletions: make(map[string]bool),
		logger:           logger,
	}, nil
}

// DataDir returns the directory backing the KV
func (f *FileKV) DataDir() string {
	return f.dataDir
}

func (f *FileKV) path(key string) (string, error) {
	if !utils.IsValidKey(key) {
		return "", errors.New(errors.ErrTypeValidation, "INVALID_KEY", "invalid storage key").
			WithContext("key", key)
	}
	return filepath.Join(f.dataDir, key), nil
}

// Get reads the file for key
func (f *FileKV) Get(key string) (string, bool, error) {
	p, err := f.path(key)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.ErrStorageReadFailed.WithCause(err).WithContext("key", key)
	}
	return string(data), true, nil
}

// Set atomically replaces the file for key
func (f *FileKV) Set(key, value string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}

	// Record the content before it lands so the watcher can recognise it
	f.mutex.Lock()
	f.writtenHashes[key] = sha256.Sum256([]byte(value))
	f.mutex.Unlock()

	if err := writeFileAtomic(p, []byte(value), 0600); err != nil {
		return errors.ErrStorageWriteFailed.WithCause(err).WithRetryable(true).WithContext("key", key)
	}
	return nil
}

// Delete removes the file for key
func (f *FileKV) Delete(key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}

	f.mutex.Lock()
	f.pendingDeletions[key] = true
	delete(f.writtenHashes, key)
	f.mutex.Unlock()

	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		f.mutex.Lock()
		delete(f.pendingDeletions, key)
		f.mutex.Unlock()
		return errors.ErrStorageWriteFailed.WithCause(err).WithContext("key", key)
	}
	return nil
}

// Keys lists the keys present in the data directory
func (f *FileKV) Keys() ([]string, error) {
	entries, err := os.ReadDir(f.dataDir)
	if err != nil {
		return nil, errors.ErrStorageReadFailed.WithCause(err)
	}
	var keys []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !utils.IsValidKey(e.Name()) {
			continue
		}
		keys = append(keys, e.Name())
	}
	sort.Strings(keys)
	return keys, nil
}

// Watch calls onChange with the key of every file changed by another
// process. It blocks until ctx is cancelled.
func (f *FileKV) Watch(ctx context.Context, onChange func(key string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(f.dataDir); err != nil {
		return fmt.Errorf("could not watch data directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			key := filepath.Base(event.Name)
			if !utils.IsValidKey(key) {
				continue
			}

			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if f.isOwnWrite(key, event.Name) {
					continue
				}
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if f.isOwnDeletion(key) {
					continue
				}
			default:
				continue
			}

			f.logger.Debug("external change", "op", event.Op.String(), "key", key)
			onChange(key)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("watcher error", "err", err)
		}
	}
}

// isOwnWrite reports whether the file holds the content last written
// through Set
func (f *FileKV) isOwnWrite(key, path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return true
	}
	sum := sha256.Sum256(data)
	f.mutex.Lock()
	defer f.mutex.Unlock()
	last, exists := f.writtenHashes[key]
	return exists && last == sum
}

func (f *FileKV) isOwnDeletion(key string) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	own := f.pendingDeletions[key]
	delete(f.pendingDeletions, key)
	delete(f.writtenHashes, key)
	return own
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it over filename.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)

	tmpFile, err := os.CreateTemp(dir, tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpFile.Name(), perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), filename); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", filename, err)
	}
	return nil
}
