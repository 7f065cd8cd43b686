package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Built-in view selectors. Any other view name refers to a notebook.
const (
	ViewAll     = "all"
	ViewPinned  = "pinned"
	ViewArchive = "archive"
	ViewTrash   = "trash"
)

// LanguageText is the language hint for plain notes.
const LanguageText = "text"

// DefaultNotebook is used when a note is created outside a notebook view
const DefaultNotebook = "General"

// UntitledLabel is shown downstream for notes with an empty title
const UntitledLabel = "Untitled"

// IsBuiltinView reports whether view is one of the fixed navigation views
func IsBuiltinView(view string) bool {
	switch view {
	case ViewAll, ViewPinned, ViewArchive, ViewTrash:
		return true
	}
	return false
}

// NoteID identifies a note. New ids are creation timestamps in Unix
// milliseconds.
type NoteID int64

// String returns the decimal form of the id
func (id NoteID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseNoteID parses a decimal note id, tolerating a fractional part.
func ParseNoteID(s string) (NoteID, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return NoteID(n), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid note id %q", s)
	}
	return NoteID(math.Floor(f)), nil
}

// UnmarshalJSON accepts integers, legacy fractional ids and numeric strings.
func (id *NoteID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	parsed, err := ParseNoteID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Note is a single user-authored record
type Note struct {
	ID        NoteID   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	Language  string   `json:"language"`
	Pinned    bool     `json:"pinned"`
	Archived  bool     `json:"archived"`
	Trash     bool     `json:"trash"`
	Notebook  string   `json:"notebook"`
	Images    []string `json:"images"`
	UpdatedAt int64    `json:"updatedAt"`
}

// NoteFields holds the editable fields overwritten by an update
type NoteFields struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags"`
	Language string   `json:"language"`
}

// Flag names a boolean note state
type Flag string

const (
	FlagPinned   Flag = "pinned"
	FlagArchived Flag = "archived"
	FlagTrash    Flag = "trash"
)

// ParseFlag maps a flag name to a Flag
func ParseFlag(s string) (Flag, error) {
	switch Flag(strings.ToLower(strings.TrimSpace(s))) {
	case FlagPinned, "pin":
		return FlagPinned, nil
	case FlagArchived, "archive":
		return FlagArchived, nil
	case FlagTrash:
		return FlagTrash, nil
	}
	return "", fmt.Errorf("unknown flag %q", s)
}

// NewNote returns a note with empty text and default flags
func NewNote(id NoteID, notebook string, now time.Time) Note {
	return Note{
		ID:        id,
		Tags:      []string{},
		Language:  LanguageText,
		Notebook:  notebook,
		Images:    []string{},
		UpdatedAt: now.UnixMilli(),
	}
}

// Clone returns a deep copy of the note
func (n Note) Clone() Note {
	c := n
	if n.Tags != nil {
		c.Tags = append([]string(nil), n.Tags...)
	}
	if n.Images != nil {
		c.Images = append([]string(nil), n.Images...)
	}
	return c
}

// Fields returns the editable fields of the note
func (n Note) Fields() NoteFields {
	return NoteFields{
		Title:    n.Title,
		Content:  n.Content,
		Tags:     append([]string(nil), n.Tags...),
		Language: n.Language,
	}
}

// Apply overwrites the editable fields
func (n *Note) Apply(f NoteFields) {
	n.Title = f.Title
	n.Content = f.Content
	n.Tags = append([]string{}, f.Tags...)
	n.Language = f.Language
	if n.Language == "" {
		n.Language = LanguageText
	}
}

// SetFlag applies a flag value. Archiving or trashing always unpins, and a
// note that is archived or trashed cannot be pinned.
func (n *Note) SetFlag(flag Flag, value bool) {
	switch flag {
	case FlagPinned:
		n.Pinned = value
	case FlagArchived:
		n.Archived = value
	case FlagTrash:
		n.Trash = value
	}
	if n.Archived || n.Trash {
		n.Pinned = false
	}
}

// DisplayTitle returns the title or the untitled placeholder
func (n Note) DisplayTitle() string {
	if strings.TrimSpace(n.Title) == "" {
		return UntitledLabel
	}
	return n.Title
}

// Updated returns UpdatedAt as a time
func (n Note) Updated() time.Time {
	return time.UnixMilli(n.UpdatedAt)
}

// ParseTags splits a comma separated tag list, trimming blanks.
func ParseTags(s string) []string {
	tags := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
