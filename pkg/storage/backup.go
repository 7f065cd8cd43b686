package storage

import (
	"archive/zip"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tempnotes/pkg/errors"
	"tempnotes/pkg/utils"
)

// BackupDir is the subdirectory of the data directory holding backups
const BackupDir = "backups"

// BackupData creates a zip archive of every key file in dataDir and returns
// its path.
func BackupData(dataDir string, now time.Time) (string, error) {
	backupDir := filepath.Join(dataDir, BackupDir)
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return "", errors.ErrStorageWriteFailed.WithCause(err).WithContext("path", backupDir)
	}
	zipPath := filepath.Join(backupDir, "backup-"+now.Format("20060102-1504")+".zip")

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return "", errors.ErrStorageReadFailed.WithCause(err).WithContext("path", dataDir)
	}

	zipFile, err := os.Create(zipPath)
	if err != nil {
		return "", errors.ErrStorageWriteFailed.WithCause(err).WithContext("path", zipPath)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)
	for _, e := range entries {
		if !e.Type().IsRegular() || !utils.IsValidKey(e.Name()) {
			continue
		}
		if err := addToZip(zipWriter, filepath.Join(dataDir, e.Name()), "data/"+e.Name()); err != nil {
			slog.Warn("skipping file in backup", "file", e.Name(), "err", err)
		}
	}
	if err := zipWriter.Close(); err != nil {
		return "", errors.ErrStorageWriteFailed.WithCause(err).WithContext("path", zipPath)
	}

	slog.Info("backup created", "path", zipPath)
	return zipPath, nil
}

func addToZip(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
