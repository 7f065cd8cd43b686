// Package migrate converts older persisted layouts to the current one.
package migrate

import (
	"encoding/json"
	"fmt"
	"time"

	"tempnotes/pkg/models"
)

// V1IDsKey lists the note ids of the v1 layout. Each id had its title under
// "<id>_title" and its content under "<id>".
const V1IDsKey = "editorIds"

// Store is the subset of a key-value backend the migration needs
type Store interface {
	Get(key string) (string, bool, error)
	Delete(key string) error
}

// Result reports what a migration did
type Result struct {
	Notes       []models.Note
	RemovedKeys []string
	// Skipped lists ids whose keys could not be read
	Skipped []string
}

// FromV1 builds notes filed under notebook from the v1 layout. It returns a
// nil Result when no v1 data exists. Ids whose keys the store rejects are
// reported in Skipped and the rest are migrated. The caller persists the
// notes and then calls Cleanup.
func FromV1(kv Store, notebook string, now time.Time) (*Result, error) {
	raw, ok, err := kv.Get(V1IDsKey)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" || raw == "null" {
		return nil, nil
	}

	var ids []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("invalid %s value: %w", V1IDsKey, err)
	}

	result := &Result{Notes: make([]models.Note, 0, len(ids))}
	base := models.NoteID(now.UnixMilli())

	for _, rawID := range ids {
		id := legacyID(rawID)

		title, _, err := kv.Get(id + "_title")
		if err != nil {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		if title == "" {
			title = models.UntitledLabel
		}
		content, _, err := kv.Get(id)
		if err != nil {
			result.Skipped = append(result.Skipped, id)
			continue
		}

		note := models.NewNote(base+models.NoteID(len(result.Notes)), notebook, now)
		note.Title = title
		note.Content = content
		result.Notes = append(result.Notes, note)
		result.RemovedKeys = append(result.RemovedKeys, id+"_title", id)
	}
	result.RemovedKeys = append(result.RemovedKeys, V1IDsKey)
	return result, nil
}

// Cleanup deletes the v1 keys once the migrated notes are persisted
func (r *Result) Cleanup(kv Store) error {
	for _, key := range r.RemovedKeys {
		if err := kv.Delete(key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}

// legacyID renders a v1 id (number or string) as it was used in key names
func legacyID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
