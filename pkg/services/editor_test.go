package services

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempnotes/pkg/errors"
	"tempnotes/pkg/formatter"
	"tempnotes/pkg/models"
	"tempnotes/pkg/storage"
	"tempnotes/pkg/utils"
)

type countingKV struct {
	*storage.MemoryKV
	noteWrites atomic.Int32
}

func (c *countingKV) Set(key, value string) error {
	if key == storage.NotesKey {
		c.noteWrites.Add(1)
	}
	return c.MemoryKV.Set(key, value)
}

type flakyKV struct {
	*storage.MemoryKV
	failing  atomic.Bool
	failures atomic.Int32
}

func (f *flakyKV) Set(key, value string) error {
	if f.failing.Load() {
		f.failures.Add(1)
		return errors.ErrStorageWriteFailed
	}
	return f.MemoryKV.Set(key, value)
}

func TestEditorCloseRetriesFailedAutosave(t *testing.T) {
	kv := &flakyKV{MemoryKV: storage.NewMemoryKV()}
	store := storage.NewNoteStore(kv, storage.WithRetry(errors.NewRetryHandler(1)))
	require.NoError(t, store.Load(context.Background()))
	svc := NewNoteService(store)

	n, err := svc.CreateNote(models.ViewAll)
	require.NoError(t, err)

	editor := NewEditor(svc, 10*time.Millisecond)
	s, err := editor.Open(n.ID)
	require.NoError(t, err)

	kv.failing.Store(true)
	require.NoError(t, s.Edit(models.NoteFields{Content: "survives"}))
	assert.Eventually(t, func() bool {
		return kv.failures.Load() > 0 && !s.Pending()
	}, time.Second, 5*time.Millisecond)
	assert.True(t, s.Info().Pending)

	kv.failing.Store(false)
	require.NoError(t, s.Close())

	reopened := storage.NewNoteStore(kv.MemoryKV)
	require.NoError(t, reopened.Load(context.Background()))
	got, ok := reopened.Get(n.ID)
	require.True(t, ok)
	assert.Equal(t, "survives", got.Content)
}

func TestEditorCoalescesRapidEdits(t *testing.T) {
	kv := &countingKV{MemoryKV: storage.NewMemoryKV()}
	store := storage.NewNoteStore(kv)
	require.NoError(t, store.Load(context.Background()))
	svc := NewNoteService(store)

	n, err := svc.CreateNote(models.ViewAll)
	require.NoError(t, err)
	before := kv.noteWrites.Load()

	editor := NewEditor(svc, 50*time.Millisecond)
	s, err := editor.Open(n.ID)
	require.NoError(t, err)
	for _, c := range []string{"a", "ab", "abc", "abcd"} {
		require.NoError(t, s.Edit(models.NoteFields{Content: c}))
	}

	assert.Eventually(t, func() bool { return !s.Info().Pending }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close())

	got, _ := svc.GetNote(n.ID)
	assert.Equal(t, "abcd", got.Content)
	assert.Equal(t, int32(1), kv.noteWrites.Load()-before)
}

func TestEditorAutosave(t *testing.T) {
	svc, _ := newTestService(t)
	n, err := svc.CreateNote(models.ViewAll)
	require.NoError(t, err)

	editor := NewEditor(svc, 20*time.Millisecond)
	s, err := editor.Open(n.ID)
	require.NoError(t, err)
	assert.True(t, utils.IsValidSessionID(s.ID))

	require.NoError(t, s.Edit(models.NoteFields{Title: "draft"}))
	require.NoError(t, s.Edit(models.NoteFields{Title: "final"}))
	assert.True(t, s.Pending())

	assert.Eventually(t, func() bool {
		got, _ := svc.GetNote(n.ID)
		return got.Title == "final"
	}, time.Second, 5*time.Millisecond)
	assert.False(t, s.Info().Pending)
}

func TestEditorCloseFlushes(t *testing.T) {
	svc, _ := newTestService(t)
	n, err := svc.CreateNote(models.ViewAll)
	require.NoError(t, err)

	editor := NewEditor(svc, time.Hour)
	s, err := editor.Open(n.ID)
	require.NoError(t, err)

	require.NoError(t, s.Edit(models.NoteFields{Title: "unsaved", Tags: []string{"x"}}))
	got, _ := svc.GetNote(n.ID)
	assert.Empty(t, got.Title)

	require.NoError(t, s.Close())
	got, _ = svc.GetNote(n.ID)
	assert.Equal(t, "unsaved", got.Title)
	assert.Equal(t, []string{"x"}, got.Tags)

	_, err = editor.Session(s.ID)
	assert.True(t, errors.Is(err, errors.ErrSessionNotFound))
	assert.Error(t, s.Edit(models.NoteFields{Title: "late"}))
}

func TestEditorSave(t *testing.T) {
	svc, _ := newTestService(t)
	n, err := svc.CreateNote(models.ViewAll)
	require.NoError(t, err)

	editor := NewEditor(svc, time.Hour)
	s, err := editor.Open(n.ID)
	require.NoError(t, err)

	require.NoError(t, s.Edit(models.NoteFields{Content: "now"}))
	require.NoError(t, s.Save())
	assert.False(t, s.Pending())

	got, _ := svc.GetNote(n.ID)
	assert.Equal(t, "now", got.Content)
	assert.False(t, s.Info().SavedAt.IsZero())
}

func TestEditorCommitAfterDelete(t *testing.T) {
	svc, store := newTestService(t)
	n, err := svc.CreateNote(models.ViewAll)
	require.NoError(t, err)

	editor := NewEditor(svc, time.Hour)
	s, err := editor.Open(n.ID)
	require.NoError(t, err)
	require.NoError(t, s.Edit(models.NoteFields{Title: "orphan"}))

	require.NoError(t, store.DeleteNotePermanently(n.ID))
	assert.NoError(t, s.Close())
	assert.Empty(t, store.Notes())
}

func TestEditorOpenMissing(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := NewEditor(svc, time.Second).Open(7)
	assert.True(t, errors.Is(err, errors.ErrNoteNotFound))
}

func TestEditorFormat(t *testing.T) {
	upper := formatter.Func(func(_ context.Context, c, _ string) (string, error) {
		return strings.ToUpper(c), nil
	})
	svc, _ := newTestService(t, WithFormatter(upper))
	n, err := svc.CreateNote(models.ViewAll)
	require.NoError(t, err)

	editor := NewEditor(svc, time.Hour)
	s, err := editor.Open(n.ID)
	require.NoError(t, err)

	require.NoError(t, s.Edit(models.NoteFields{Content: "abc"}))
	assert.True(t, errors.Is(s.Format(context.Background()), errors.ErrPlainTextFormat))
	assert.Equal(t, "abc", s.Fields().Content)

	require.NoError(t, s.Edit(models.NoteFields{Content: "abc", Language: "css"}))
	require.NoError(t, s.Format(context.Background()))
	assert.Equal(t, "ABC", s.Fields().Content)

	require.NoError(t, editor.CloseAll())
	got, _ := svc.GetNote(n.ID)
	assert.Equal(t, "ABC", got.Content)
	assert.Empty(t, editor.Sessions())
}

func TestContentStats(t *testing.T) {
	assert.Equal(t, Stats{Words: 0, Chars: 0}, ContentStats(""))
	assert.Equal(t, Stats{Words: 3, Chars: 19}, ContentStats("  hello  wide\nworld"))
	assert.Equal(t, Stats{Words: 1, Chars: 2}, ContentStats("日本"))
}
