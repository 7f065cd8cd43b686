package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempnotes/pkg/errors"
	"tempnotes/pkg/models"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T, opts ...Option) (*NoteStore, *MemoryKV, *fakeClock) {
	t.Helper()
	kv := NewMemoryKV()
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	s := NewNoteStore(kv, opts...)
	require.NoError(t, s.Load(context.Background()))
	return s, kv, clock
}

func persistedNotes(t *testing.T, kv KV) []models.Note {
	t.Helper()
	raw, ok, err := kv.Get(NotesKey)
	require.NoError(t, err)
	require.True(t, ok)
	var notes []models.Note
	require.NoError(t, json.Unmarshal([]byte(raw), &notes))
	return notes
}

func TestCreateNote(t *testing.T) {
	s, kv, clock := newTestStore(t)

	first, err := s.CreateNote(models.ViewAll)
	require.NoError(t, err)
	assert.Equal(t, models.NoteID(clock.t.UnixMilli()), first.ID)
	assert.Equal(t, models.DefaultNotebook, first.Notebook)
	assert.Equal(t, models.LanguageText, first.Language)

	// same millisecond: ids must still be unique
	second, err := s.CreateNote(models.ViewAll)
	require.NoError(t, err)
	assert.Equal(t, first.ID+1, second.ID)

	notes := s.Notes()
	require.Len(t, notes, 2)
	assert.Equal(t, second.ID, notes[0].ID, "new notes go to the head")
	assert.Len(t, persistedNotes(t, kv), 2)
}

func TestCreateNoteInNotebookView(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.AddNotebook("Work"))

	n, err := s.CreateNote("Work")
	require.NoError(t, err)
	assert.Equal(t, "Work", n.Notebook)

	n, err = s.CreateNote("Unknown")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultNotebook, n.Notebook)

	n, err = s.CreateNote(models.ViewPinned)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultNotebook, n.Notebook)
}

func TestUpdateNote(t *testing.T) {
	s, kv, clock := newTestStore(t)
	n, err := s.CreateNote(models.ViewAll)
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	require.NoError(t, s.UpdateNote(n.ID, models.NoteFields{
		Title:    "Plan",
		Content:  "ship it",
		Tags:     []string{"work"},
		Language: "go",
	}))

	got, ok := s.Get(n.ID)
	require.True(t, ok)
	assert.Equal(t, "Plan", got.Title)
	assert.Equal(t, "ship it", got.Content)
	assert.Equal(t, []string{"work"}, got.Tags)
	assert.Equal(t, "go", got.Language)
	assert.Equal(t, clock.t.UnixMilli(), got.UpdatedAt)

	assert.Equal(t, "Plan", persistedNotes(t, kv)[0].Title)
}

func TestMissingIDIsNoop(t *testing.T) {
	s, kv, _ := newTestStore(t)
	_, err := s.CreateNote(models.ViewAll)
	require.NoError(t, err)
	before, _, _ := kv.Get(NotesKey)

	calls := 0
	s.Subscribe(func(Change) { calls++ })

	missing := models.NoteID(42)
	assert.NoError(t, s.UpdateNote(missing, models.NoteFields{Title: "x"}))
	assert.NoError(t, s.SetFlag(missing, models.FlagPinned, true))
	assert.NoError(t, s.TogglePin(missing))
	assert.NoError(t, s.ToggleArchive(missing))
	assert.NoError(t, s.DeleteNote(missing))
	assert.NoError(t, s.RestoreNote(missing))
	assert.NoError(t, s.DeleteNotePermanently(missing))
	assert.NoError(t, s.MoveNote(missing, "General"))
	assert.NoError(t, s.AttachImage(missing, "data:image/jpeg;base64,AA=="))
	assert.NoError(t, s.RemoveImage(missing, 0))

	after, _, _ := kv.Get(NotesKey)
	assert.Equal(t, before, after)
	assert.Zero(t, calls)
}

func TestFlagsUnpin(t *testing.T) {
	s, _, clock := newTestStore(t)
	n, err := s.CreateNote(models.ViewAll)
	require.NoError(t, err)
	updatedAt := n.UpdatedAt

	clock.Advance(time.Minute)
	require.NoError(t, s.SetFlag(n.ID, models.FlagPinned, true))
	got, _ := s.Get(n.ID)
	assert.True(t, got.Pinned)
	assert.Equal(t, updatedAt, got.UpdatedAt, "flags do not touch updatedAt")

	require.NoError(t, s.ToggleArchive(n.ID))
	got, _ = s.Get(n.ID)
	assert.True(t, got.Archived)
	assert.False(t, got.Pinned)

	require.NoError(t, s.ToggleArchive(n.ID))
	require.NoError(t, s.TogglePin(n.ID))
	require.NoError(t, s.SetFlag(n.ID, models.FlagTrash, true))
	got, _ = s.Get(n.ID)
	assert.True(t, got.Trash)
	assert.False(t, got.Pinned)
}

func TestDeleteNoteTrashPolicy(t *testing.T) {
	s, _, _ := newTestStore(t)
	n, err := s.CreateNote(models.ViewAll)
	require.NoError(t, err)
	require.NoError(t, s.TogglePin(n.ID))

	require.NoError(t, s.DeleteNote(n.ID))
	got, ok := s.Get(n.ID)
	require.True(t, ok)
	assert.True(t, got.Trash)
	assert.False(t, got.Pinned)

	require.NoError(t, s.RestoreNote(n.ID))
	got, _ = s.Get(n.ID)
	assert.False(t, got.Trash)

	require.NoError(t, s.DeleteNote(n.ID))
	require.NoError(t, s.DeleteNote(n.ID))
	_, ok = s.Get(n.ID)
	assert.False(t, ok)
}

func TestDeleteNotePermanentPolicy(t *testing.T) {
	s, _, _ := newTestStore(t, WithDeletePolicy(DeletePermanent))
	n, err := s.CreateNote(models.ViewAll)
	require.NoError(t, err)

	require.NoError(t, s.DeleteNote(n.ID))
	_, ok := s.Get(n.ID)
	assert.False(t, ok)
}

func TestNotebooks(t *testing.T) {
	s, kv, _ := newTestStore(t)
	assert.Equal(t, []string{"General"}, s.Notebooks())

	require.NoError(t, s.AddNotebook("Work"))
	require.NoError(t, s.AddNotebook("Work"))
	require.NoError(t, s.AddNotebook(""))
	require.NoError(t, s.AddNotebook("work"))
	assert.Equal(t, []string{"General", "Work", "work"}, s.Notebooks())

	n, err := s.CreateNote("Work")
	require.NoError(t, err)
	require.NoError(t, s.RemoveNotebook("Work"))
	assert.Equal(t, []string{"General", "work"}, s.Notebooks())

	got, _ := s.Get(n.ID)
	assert.Equal(t, "Work", got.Notebook, "notes keep their notebook name")

	raw, _, _ := kv.Get(NotebooksKey)
	assert.JSONEq(t, `["General","work"]`, raw)
}

func TestMoveNote(t *testing.T) {
	s, _, clock := newTestStore(t)
	n, err := s.CreateNote(models.ViewAll)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	require.NoError(t, s.MoveNote(n.ID, "Ideas"))
	got, _ := s.Get(n.ID)
	assert.Equal(t, "Ideas", got.Notebook)
	assert.Equal(t, clock.t.UnixMilli(), got.UpdatedAt)
}

func TestImages(t *testing.T) {
	s, _, _ := newTestStore(t)
	n, err := s.CreateNote(models.ViewAll)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AttachImage(n.ID, fmt.Sprintf("img%d", i)))
	}
	require.NoError(t, s.RemoveImage(n.ID, 1))
	require.NoError(t, s.RemoveImage(n.ID, 7))
	require.NoError(t, s.RemoveImage(n.ID, -1))

	got, _ := s.Get(n.ID)
	assert.Equal(t, []string{"img0", "img2"}, got.Images)
}

func TestImportNotesPrepends(t *testing.T) {
	s, kv, _ := newTestStore(t)
	existing, err := s.CreateNote(models.ViewAll)
	require.NoError(t, err)

	require.NoError(t, s.ImportNotes([]models.Note{
		{ID: 1, Title: "a"},
		{ID: 2, Title: "b"},
	}))

	notes := s.Notes()
	require.Len(t, notes, 3)
	assert.Equal(t, models.NoteID(1), notes[0].ID)
	assert.Equal(t, models.NoteID(2), notes[1].ID)
	assert.Equal(t, existing.ID, notes[2].ID)
	assert.NotNil(t, notes[0].Tags)
	assert.Equal(t, models.LanguageText, notes[0].Language)
	assert.Len(t, persistedNotes(t, kv), 3)
}

func TestCopiesAreIndependent(t *testing.T) {
	s, _, _ := newTestStore(t)
	n, err := s.CreateNote(models.ViewAll)
	require.NoError(t, err)
	require.NoError(t, s.UpdateNote(n.ID, models.NoteFields{Tags: []string{"a"}}))

	notes := s.Notes()
	notes[0].Tags[0] = "changed"
	notes[0].Title = "changed"

	got, _ := s.Get(n.ID)
	assert.Equal(t, []string{"a"}, got.Tags)
	assert.Empty(t, got.Title)
}

func TestSubscribe(t *testing.T) {
	s, _, _ := newTestStore(t)
	var changes []Change
	unsubscribe := s.Subscribe(func(c Change) { changes = append(changes, c) })

	n, err := s.CreateNote(models.ViewAll)
	require.NoError(t, err)
	require.NoError(t, s.DeleteNote(n.ID))

	require.Len(t, changes, 2)
	assert.Equal(t, "create", changes[0].Op)
	assert.Equal(t, "flag:trash", changes[1].Op)
	assert.Equal(t, n.ID, changes[1].NoteID)

	unsubscribe()
	require.NoError(t, s.DeleteNote(n.ID))
	assert.Len(t, changes, 2)
}

func TestLoadPersistedState(t *testing.T) {
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(NotesKey, `[{"id":1700000000000.25,"title":"old","pinned":true}]`))
	require.NoError(t, kv.Set(NotebooksKey, `["General","Work"]`))

	s := NewNoteStore(kv)
	require.NoError(t, s.Load(context.Background()))

	notes := s.Notes()
	require.Len(t, notes, 1)
	assert.Equal(t, models.NoteID(1700000000000), notes[0].ID)
	assert.Equal(t, []string{}, notes[0].Tags)
	assert.Equal(t, []string{}, notes[0].Images)
	assert.Equal(t, []string{"General", "Work"}, s.Notebooks())
}

func TestLoadCorrupted(t *testing.T) {
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(NotesKey, `{not json`))

	err := NewNoteStore(kv).Load(context.Background())
	assert.True(t, errors.Is(err, errors.ErrStorageReadFailed))
}

func TestLoadMigratesV1(t *testing.T) {
	kv := NewMemoryKV()
	require.NoError(t, kv.Set("editorIds", `["1"]`))
	require.NoError(t, kv.Set("1_title", "Old"))
	require.NoError(t, kv.Set("1", "body"))

	s := NewNoteStore(kv)
	require.NoError(t, s.Load(context.Background()))

	notes := s.Notes()
	require.Len(t, notes, 1)
	assert.Equal(t, "Old", notes[0].Title)
	assert.Equal(t, "body", notes[0].Content)

	keys, err := kv.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{NotebooksKey, NotesKey}, keys)
}

func TestReload(t *testing.T) {
	s, kv, _ := newTestStore(t)
	require.NoError(t, kv.Set(NotesKey, `[{"id":5,"title":"external"}]`))

	reloaded := false
	s.Subscribe(func(c Change) { reloaded = c.Op == "reload" })

	require.NoError(t, s.Reload(context.Background()))
	assert.True(t, reloaded)
	got, ok := s.Get(5)
	require.True(t, ok)
	assert.Equal(t, "external", got.Title)
}

type failingKV struct {
	*MemoryKV
	failures int
}

func (f *failingKV) Set(key, value string) error {
	if f.failures > 0 {
		f.failures--
		return errors.ErrStorageWriteFailed.WithRetryable(true)
	}
	return f.MemoryKV.Set(key, value)
}

func TestPersistRetries(t *testing.T) {
	kv := &failingKV{MemoryKV: NewMemoryKV(), failures: 2}
	s := NewNoteStore(kv, WithRetry(&errors.RetryHandler{MaxAttempts: 3}))
	require.NoError(t, s.Load(context.Background()))

	_, err := s.CreateNote(models.ViewAll)
	require.NoError(t, err)
	assert.Len(t, persistedNotes(t, kv), 1)

	kv.failures = 5
	err = s.AddNotebook("Work")
	assert.True(t, errors.Is(err, errors.ErrStorageWriteFailed))
}

func TestParseDeletePolicy(t *testing.T) {
	p, err := ParseDeletePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DeleteToTrash, p)

	p, err = ParseDeletePolicy("permanent")
	require.NoError(t, err)
	assert.Equal(t, DeletePermanent, p)

	_, err = ParseDeletePolicy("shred")
	assert.Error(t, err)
}

func TestReloadSkipsOwnState(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.CreateNote(models.ViewAll)
	require.NoError(t, err)

	var changes []Change
	s.Subscribe(func(c Change) { changes = append(changes, c) })
	require.NoError(t, s.Reload(context.Background()))
	assert.Empty(t, changes)
	assert.Len(t, s.Notes(), 1)
}
