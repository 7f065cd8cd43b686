package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempnotes/pkg/errors"
	"tempnotes/pkg/filter"
	"tempnotes/pkg/formatter"
	"tempnotes/pkg/models"
	"tempnotes/pkg/storage"
)

type stubCompressor struct {
	gate chan struct{}
	err  error
}

func (c *stubCompressor) Compress(raw []byte) (string, error) {
	if c.gate != nil {
		<-c.gate
	}
	if c.err != nil {
		return "", c.err
	}
	return "data:image/jpeg;base64," + string(raw), nil
}

func newTestService(t *testing.T, opts ...Option) (*NoteService, *storage.NoteStore) {
	t.Helper()
	store := storage.NewNoteStore(storage.NewMemoryKV())
	require.NoError(t, store.Load(context.Background()))
	return NewNoteService(store, opts...), store
}

func TestGetNoteNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetNote(99)
	assert.True(t, errors.Is(err, errors.ErrNoteNotFound))
}

func TestListUsesFilterOptions(t *testing.T) {
	svc, store := newTestService(t, WithFilterOptions(filter.Options{HideArchivedInAll: true}))
	a, err := svc.CreateNote(models.ViewAll)
	require.NoError(t, err)
	b, err := svc.CreateNote(models.ViewAll)
	require.NoError(t, err)
	require.NoError(t, store.ToggleArchive(a.ID))

	got := svc.List(filter.Query{View: models.ViewAll})
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)

	got = svc.List(filter.Query{View: models.ViewArchive})
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
}

func TestAddNotebookRejectsReservedNames(t *testing.T) {
	svc, store := newTestService(t)

	err := svc.AddNotebook("trash")
	require.Error(t, err)
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, "NOTEBOOK_RESERVED", appErr.Code)

	assert.Error(t, svc.AddNotebook("   "))
	require.NoError(t, svc.AddNotebook("Work"))
	assert.Equal(t, []string{"General", "Work"}, store.Notebooks())
}

func TestMoveNote(t *testing.T) {
	svc, _ := newTestService(t)
	n, err := svc.CreateNote(models.ViewAll)
	require.NoError(t, err)

	require.NoError(t, svc.MoveNote(n.ID, "Ideas"))
	got, err := svc.GetNote(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ideas", got.Notebook)

	assert.True(t, errors.Is(svc.MoveNote(12345, "Ideas"), errors.ErrNoteNotFound))
	assert.Error(t, svc.MoveNote(n.ID, "archive"))
}

func TestUpdateNoteValidation(t *testing.T) {
	svc, _ := newTestService(t)
	n, err := svc.CreateNote(models.ViewAll)
	require.NoError(t, err)

	big := strings.Repeat("x", errors.MaxContentSize+1)
	err = svc.UpdateNote(n.ID, models.NoteFields{Content: big})
	require.Error(t, err)

	got, _ := svc.GetNote(n.ID)
	assert.Empty(t, got.Content)
}

func TestExportImport(t *testing.T) {
	svc, _ := newTestService(t)
	n, err := svc.CreateNote(models.ViewAll)
	require.NoError(t, err)
	require.NoError(t, svc.UpdateNote(n.ID, models.NoteFields{Title: "keep me", Tags: []string{"a"}}))

	var buf bytes.Buffer
	require.NoError(t, svc.Export(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), "[\n  {\n    \"id\": "))

	other, _ := newTestService(t)
	count, err := other.Import(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := other.GetNote(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep me", got.Title)
	assert.Equal(t, []string{"a"}, got.Tags)
}

func TestImportPrepends(t *testing.T) {
	svc, store := newTestService(t)
	existing, err := svc.CreateNote(models.ViewAll)
	require.NoError(t, err)

	count, err := svc.Import(strings.NewReader(`[{"id":1,"title":"x"},{"id":2,"title":"y"}]`))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	notes := store.Notes()
	require.Len(t, notes, 3)
	assert.Equal(t, []models.NoteID{1, 2, existing.ID}, []models.NoteID{notes[0].ID, notes[1].ID, notes[2].ID})
}

func TestImportMalformed(t *testing.T) {
	for _, payload := range []string{`{"id":1}`, `not json`, `null`, `[{"id":1},`, `[1,2]`, ``} {
		t.Run(payload, func(t *testing.T) {
			svc, store := newTestService(t)
			_, err := svc.CreateNote(models.ViewAll)
			require.NoError(t, err)
			before := store.Snapshot()

			_, err = svc.Import(strings.NewReader(payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrMalformedImport))
			assert.Equal(t, "Invalid JSON file", errors.ToNotification(err).Message)
			assert.Equal(t, before, store.Snapshot())
		})
	}
}

func TestFormatNote(t *testing.T) {
	failing := formatter.Func(func(context.Context, string, string) (string, error) {
		return "", fmt.Errorf("SyntaxError: Unexpected token (1:3)\n> 1 | a b\n    |   ^")
	})
	upper := formatter.Func(func(_ context.Context, c, _ string) (string, error) {
		return strings.ToUpper(c), nil
	})

	t.Run("plain text is refused", func(t *testing.T) {
		svc, _ := newTestService(t, WithFormatter(upper))
		n, err := svc.CreateNote(models.ViewAll)
		require.NoError(t, err)

		err = svc.FormatNote(context.Background(), n.ID)
		assert.True(t, errors.Is(err, errors.ErrPlainTextFormat))
		note := errors.ToNotification(err)
		assert.Equal(t, errors.LevelInfo, note.Level)
		assert.Equal(t, "Select a code language to format", note.Message)
	})

	t.Run("failure keeps content", func(t *testing.T) {
		svc, _ := newTestService(t, WithFormatter(failing))
		n, err := svc.CreateNote(models.ViewAll)
		require.NoError(t, err)
		require.NoError(t, svc.UpdateNote(n.ID, models.NoteFields{Content: "a b", Language: "babel"}))

		err = svc.FormatNote(context.Background(), n.ID)
		require.Error(t, err)
		assert.Equal(t, "Format error: SyntaxError: Unexpected token (1:3)", errors.ToNotification(err).Message)

		got, _ := svc.GetNote(n.ID)
		assert.Equal(t, "a b", got.Content)
	})

	t.Run("success replaces content", func(t *testing.T) {
		svc, _ := newTestService(t, WithFormatter(upper))
		n, err := svc.CreateNote(models.ViewAll)
		require.NoError(t, err)
		require.NoError(t, svc.UpdateNote(n.ID, models.NoteFields{Title: "t", Content: "abc", Language: "css"}))

		require.NoError(t, svc.FormatNote(context.Background(), n.ID))
		got, _ := svc.GetNote(n.ID)
		assert.Equal(t, "ABC", got.Content)
		assert.Equal(t, "t", got.Title)
		assert.Equal(t, "css", got.Language)
	})
}

func TestAttachImage(t *testing.T) {
	svc, _ := newTestService(t, WithCompressor(&stubCompressor{}))
	n, err := svc.CreateNote(models.ViewAll)
	require.NoError(t, err)

	require.NoError(t, svc.AttachImage(context.Background(), n.ID, []byte("AAA")))
	got, _ := svc.GetNote(n.ID)
	assert.Equal(t, []string{"data:image/jpeg;base64,AAA"}, got.Images)

	err = svc.AttachImage(context.Background(), 404, []byte("AAA"))
	assert.True(t, errors.Is(err, errors.ErrNoteNotFound))
}

func TestAttachImageAsyncNoteDeleted(t *testing.T) {
	gate := make(chan struct{})
	svc, store := newTestService(t, WithCompressor(&stubCompressor{gate: gate}))
	n, err := svc.CreateNote(models.ViewAll)
	require.NoError(t, err)

	done := svc.AttachImageAsync(context.Background(), n.ID, []byte("AAA"))
	require.NoError(t, store.DeleteNotePermanently(n.ID))
	close(gate)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("image ingestion did not finish")
	}
	svc.Wait()
	assert.Empty(t, store.Notes())
}

func TestAttachImageRejected(t *testing.T) {
	svc, _ := newTestService(t, WithCompressor(&stubCompressor{err: errors.ErrImageDecodeFailed}))
	n, err := svc.CreateNote(models.ViewAll)
	require.NoError(t, err)

	err = svc.AttachImage(context.Background(), n.ID, []byte("???"))
	assert.True(t, errors.Is(err, errors.ErrImageDecodeFailed))
	got, _ := svc.GetNote(n.ID)
	assert.Empty(t, got.Images)
}

func TestRemoveAndSaveImage(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	svc, store := newTestService(t, WithClock(func() time.Time { return now }))
	n, err := svc.CreateNote(models.ViewAll)
	require.NoError(t, err)
	require.NoError(t, store.AttachImage(n.ID, "data:image/jpeg;base64,aGk="))

	dir := t.TempDir()
	path, err := svc.SaveImage(dir, n.ID, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "image_1700000000000_0.jpg"))

	_, err = svc.SaveImage(dir, n.ID, 3)
	assert.True(t, errors.Is(err, errors.ErrImageNotFound))

	assert.True(t, errors.Is(svc.RemoveImage(n.ID, 5), errors.ErrImageNotFound))
	require.NoError(t, svc.RemoveImage(n.ID, 0))
	got, _ := svc.GetNote(n.ID)
	assert.Empty(t, got.Images)
}

func TestNotebookSearchScenario(t *testing.T) {
	store := storage.NewNoteStore(storage.NewMemoryKV(),
		storage.WithClock(func() time.Time { return time.UnixMilli(1000) }))
	require.NoError(t, store.Load(context.Background()))
	svc := NewNoteService(store)

	require.NoError(t, svc.AddNotebook("Work"))
	a, err := svc.CreateNote("Work")
	require.NoError(t, err)
	require.Equal(t, models.NoteID(1000), a.ID)
	require.Equal(t, "Work", a.Notebook)
	require.NoError(t, svc.UpdateNote(a.ID, models.NoteFields{Tags: []string{"x", "y"}}))

	got := svc.List(filter.Query{View: "Work", Text: "x"})
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Empty(t, svc.List(filter.Query{View: "Work", Text: "z"}))

	require.NoError(t, store.SetFlag(a.ID, models.FlagTrash, true))
	assert.Empty(t, svc.List(filter.Query{View: models.ViewAll}))
	assert.Len(t, svc.List(filter.Query{View: models.ViewTrash}), 1)
}
