package types

import (
	"strings"
	"time"

	"tempnotes/pkg/models"
)

// DateLayout renders timestamps as dd-mm-yyyy h:mm AM/PM
const DateLayout = "02-01-2006 3:04 PM"

// EmptyExcerpt is shown for notes without content
const EmptyExcerpt = "No content..."

const excerptLength = 120

// NoteCard is the list representation of a note
type NoteCard struct {
	ID        models.NoteID `json:"id"`
	Title     string        `json:"title"`
	Excerpt   string        `json:"excerpt"`
	Tags      []string      `json:"tags"`
	Language  string        `json:"language,omitempty"`
	Notebook  string        `json:"notebook"`
	Pinned    bool          `json:"pinned"`
	Archived  bool          `json:"archived"`
	Trash     bool          `json:"trash"`
	HasImages bool          `json:"hasImages"`
	Updated   string        `json:"updated"`
}

// FormatDate renders a Unix millisecond timestamp in local time
func FormatDate(ms int64) string {
	return FormatTime(time.UnixMilli(ms))
}

// FormatTime renders t with DateLayout
func FormatTime(t time.Time) string {
	return t.Format(DateLayout)
}

// Excerpt returns the first characters of content on a single line
func Excerpt(content string, max int) string {
	s := strings.Join(strings.Fields(content), " ")
	if s == "" {
		return EmptyExcerpt
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

// ConvertToNoteCard converts a note for list display
func ConvertToNoteCard(note models.Note) NoteCard {
	lang := note.Language
	if lang == models.LanguageText {
		lang = ""
	}
	tags := note.Tags
	if tags == nil {
		tags = []string{}
	}
	return NoteCard{
		ID:        note.ID,
		Title:     note.DisplayTitle(),
		Excerpt:   Excerpt(note.Content, excerptLength),
		Tags:      tags,
		Language:  lang,
		Notebook:  note.Notebook,
		Pinned:    note.Pinned,
		Archived:  note.Archived,
		Trash:     note.Trash,
		HasImages: len(note.Images) > 0,
		Updated:   FormatDate(note.UpdatedAt),
	}
}

// ConvertToNoteCards converts a slice of notes
func ConvertToNoteCards(notes []models.Note) []NoteCard {
	cards := make([]NoteCard, len(notes))
	for i, n := range notes {
		cards[i] = ConvertToNoteCard(n)
	}
	return cards
}
