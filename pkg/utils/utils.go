package utils

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9_.-]*$`)

// IsValidKey checks that a storage key is safe to use as a file name.
// Keys starting with a dot are reserved for temporary files.
func IsValidKey(key string) bool {
	if len(key) == 0 || len(key) > 200 {
		return false
	}
	return keyPattern.MatchString(key)
}

// GenerateSessionID generates a random editor session id
func GenerateSessionID() string {
	return uuid.NewString()
}

// IsValidSessionID reports whether id parses as a uuid
func IsValidSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
