// Package filter derives the ordered list of notes shown for a view and a
// search query. It never mutates its input.
package filter

import (
	"fmt"
	"sort"
	"strings"

	"tempnotes/pkg/models"
)

// SortOrder selects how visible notes are ordered
type SortOrder string

const (
	// SortPinnedFirst puts pinned notes ahead of the rest, then most recently
	// updated first.
	SortPinnedFirst SortOrder = "pinned-first"
	// SortRecency orders by updatedAt only
	SortRecency SortOrder = "recency"
)

// ParseSortOrder validates a sort order name. An empty name selects the
// default.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case "":
		return SortPinnedFirst, nil
	case SortPinnedFirst, SortRecency:
		return SortOrder(s), nil
	}
	return "", fmt.Errorf("unknown sort order %q", s)
}

// Query is what the user is looking at: a view selector and a search text
type Query struct {
	View string
	Text string
}

// Options tune the derivation
type Options struct {
	Sort SortOrder
	// HideArchivedInAll drops archived notes from the "all" view
	HideArchivedInAll bool
}

// Apply returns copies of the notes visible under q, in display order
func Apply(notes []models.Note, notebooks []string, q Query, opts Options) []models.Note {
	view := q.View
	if view == "" {
		view = models.ViewAll
	}
	if !models.IsBuiltinView(view) && !contains(notebooks, view) {
		return []models.Note{}
	}

	needle := strings.ToLower(q.Text)
	out := make([]models.Note, 0, len(notes))
	for _, n := range notes {
		if !inView(n, view, opts) || !Matches(n, needle) {
			continue
		}
		out = append(out, n.Clone())
	}

	Sort(out, opts.Sort)
	return out
}

func inView(n models.Note, view string, opts Options) bool {
	if view == models.ViewTrash {
		return n.Trash
	}
	if n.Trash {
		return false
	}

	switch view {
	case models.ViewAll:
		return !(opts.HideArchivedInAll && n.Archived)
	case models.ViewPinned:
		return n.Pinned
	case models.ViewArchive:
		return n.Archived
	default:
		return n.Notebook == view
	}
}

// Matches reports whether a lower-cased needle occurs in the title, the
// content or any tag of n, ignoring case. An empty needle matches.
func Matches(n models.Note, needle string) bool {
	if needle == "" {
		return true
	}
	if strings.Contains(strings.ToLower(n.Title), needle) ||
		strings.Contains(strings.ToLower(n.Content), needle) {
		return true
	}
	for _, t := range n.Tags {
		if strings.Contains(strings.ToLower(t), needle) {
			return true
		}
	}
	return false
}

// Sort orders notes in place. Equal keys keep their relative order.
func Sort(notes []models.Note, order SortOrder) {
	sort.SliceStable(notes, func(i, j int) bool {
		a, b := notes[i], notes[j]
		if order != SortRecency && a.Pinned != b.Pinned {
			return a.Pinned
		}
		return a.UpdatedAt > b.UpdatedAt
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
