package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempnotes/pkg/models"
)

func TestFileKV(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(filepath.Join(dir, "data"), nil)
	require.NoError(t, err)

	_, ok, err := kv.Get(NotesKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(NotesKey, `[]`))
	require.NoError(t, kv.Set(NotebooksKey, `["General"]`))

	v, ok, err := kv.Get(NotesKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, v)

	keys, err := kv.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{NotebooksKey, NotesKey}, keys)

	require.NoError(t, kv.Delete(NotesKey))
	require.NoError(t, kv.Delete(NotesKey))
	_, ok, err = kv.Get(NotesKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileKVRejectsUnsafeKeys(t *testing.T) {
	kv, err := NewFileKV(t.TempDir(), nil)
	require.NoError(t, err)

	assert.Error(t, kv.Set("../escape", "x"))
	_, _, err = kv.Get("a/b")
	assert.Error(t, err)
}

func TestFileKVKeysSkipTempFiles(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, tempFilePrefix+"123"), []byte("x"), 0600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "backups"), 0755))
	require.NoError(t, kv.Set("editorIds", "[]"))

	keys, err := kv.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"editorIds"}, keys)
}

func TestFileKVWatchReportsExternalWrites(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 8)
	done := make(chan error, 1)
	go func() {
		done <- kv.Watch(ctx, func(key string) { changed <- key })
	}()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, NotesKey), []byte(`[]`), 0600))

	select {
	case key := <-changed:
		assert.Equal(t, NotesKey, key)
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestNoteStoreOnFileKV(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir, nil)
	require.NoError(t, err)

	s := NewNoteStore(kv)
	require.NoError(t, s.Load(context.Background()))
	n, err := s.CreateNote(models.ViewAll)
	require.NoError(t, err)
	require.NoError(t, s.UpdateNote(n.ID, models.NoteFields{Title: "disk"}))

	reopened := NewNoteStore(kv)
	require.NoError(t, reopened.Load(context.Background()))
	got, ok := reopened.Get(n.ID)
	require.True(t, ok)
	assert.Equal(t, "disk", got.Title)
}

func TestWatchReloadKeepsOwnMutations(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir, nil)
	require.NoError(t, err)
	s := NewNoteStore(kv)
	require.NoError(t, s.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var reloads atomic.Int32
	s.Subscribe(func(c Change) {
		if c.Op == "reload" {
			reloads.Add(1)
		}
	})
	go kv.Watch(ctx, func(key string) {
		if key == NotesKey || key == NotebooksKey {
			_ = s.Reload(ctx)
		}
	})
	time.Sleep(100 * time.Millisecond)

	const count = 300
	for i := 0; i < count; i++ {
		require.NoError(t, s.AddNotebook(fmt.Sprintf("nb-%d", i)))
	}
	time.Sleep(300 * time.Millisecond)

	assert.Len(t, s.Notebooks(), count+1)
	assert.Zero(t, reloads.Load())

	reopened := NewNoteStore(kv)
	require.NoError(t, reopened.Load(context.Background()))
	assert.Len(t, reopened.Notebooks(), count+1)

	// writes from elsewhere still reach the store
	require.NoError(t, os.WriteFile(filepath.Join(dir, NotebooksKey), []byte(`["General","outside"]`), 0600))
	assert.Eventually(t, func() bool {
		return len(s.Notebooks()) == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestLoadSkipsV1IDsWithInvalidKeys(t *testing.T) {
	kv, err := NewFileKV(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, kv.Set("editorIds", `["ok1","my note"]`))
	require.NoError(t, kv.Set("ok1_title", "Kept"))
	require.NoError(t, kv.Set("ok1", "body"))

	s := NewNoteStore(kv)
	require.NoError(t, s.Load(context.Background()))

	notes := s.Notes()
	require.Len(t, notes, 1)
	assert.Equal(t, "Kept", notes[0].Title)

	_, found, err := kv.Get("editorIds")
	require.NoError(t, err)
	assert.False(t, found)
}
