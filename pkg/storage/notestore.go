package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"tempnotes/pkg/errors"
	"tempnotes/pkg/migrate"
	"tempnotes/pkg/models"
)

// DeletePolicy selects what DeleteNote does with a live note
type DeletePolicy string

const (
	// DeleteToTrash moves live notes to the trash; deleting a trashed note
	// removes it.
	DeleteToTrash DeletePolicy = "trash"
	// DeletePermanent removes notes immediately
	DeletePermanent DeletePolicy = "permanent"
)

// ParseDeletePolicy validates a policy name
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch DeletePolicy(s) {
	case DeleteToTrash, DeletePermanent:
		return DeletePolicy(s), nil
	case "":
		return DeleteToTrash, nil
	}
	return "", errors.New(errors.ErrTypeConfig, "INVALID_DELETE_POLICY", "unknown delete policy").
		WithContext("policy", s)
}

// Change describes a persisted mutation
type Change struct {
	Op     string        `json:"op"`
	NoteID models.NoteID `json:"noteId,omitempty"`
}

// Snapshot is a deep copy of the store state
type Snapshot struct {
	Notes     []models.Note `json:"notes"`
	Notebooks []string      `json:"notebooks"`
}

// Option configures a NoteStore
type Option func(*NoteStore)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *NoteStore) { s.now = now }
}

// WithDefaultNotebook sets the notebook used outside notebook views
func WithDefaultNotebook(name string) Option {
	return func(s *NoteStore) {
		if name != "" {
			s.defaultNotebook = name
		}
	}
}

// WithDeletePolicy sets the DeleteNote behaviour
func WithDeletePolicy(p DeletePolicy) Option {
	return func(s *NoteStore) { s.deletePolicy = p }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *NoteStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRetry sets the retry handler used for persistence
func WithRetry(r *errors.RetryHandler) Option {
	return func(s *NoteStore) { s.retry = r }
}

// NoteStore owns the ordered note list and the notebook list and persists
// both after every mutation. Operations on ids that do not exist are no-ops.
type NoteStore struct {
	mutex     sync.RWMutex
	kv        KV
	notes     []models.Note
	notebooks []string

	// last values written to or read from kv
	persistedNotes     string
	persistedNotebooks string

	now             func() time.Time
	defaultNotebook string
	deletePolicy    DeletePolicy
	logger          *slog.Logger
	retry           *errors.RetryHandler

	subMutex    sync.Mutex
	subscribers map[int]func(Change)
	nextSubID   int
}

// NewNoteStore creates a store over kv. Call Load before use.
func NewNoteStore(kv KV, opts ...Option) *NoteStore {
	s := &NoteStore{
		kv:              kv,
		notes:           []models.Note{},
		now:             time.Now,
		defaultNotebook: models.DefaultNotebook,
		deletePolicy:    DeleteToTrash,
		logger:          slog.Default(),
		retry:           errors.NewRetryHandler(3),
		subscribers:     make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.notebooks = []string{s.defaultNotebook}
	return s
}

// DefaultNotebook returns the notebook used for notes created outside a
// notebook view
func (s *NoteStore) DefaultNotebook() string {
	return s.defaultNotebook
}

// Load reads the persisted state, migrating the v1 layout when no v2 notes
// exist.
func (s *NoteStore) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	notesRaw, notebooksRaw, err := s.readRaw()
	if err != nil {
		return err
	}
	notes, notebooks, err := s.decode(notesRaw, notebooksRaw)
	if err != nil {
		return err
	}

	var migration *migrate.Result
	if len(notes) == 0 {
		migration, err = migrate.FromV1(s.kv, s.defaultNotebook, s.now())
		if err != nil {
			return errors.ErrStorageReadFailed.WithCause(err).WithContext("step", "v1 migration")
		}
		if migration != nil {
			notes = migration.Notes
		}
	}

	s.mutex.Lock()
	s.notes = notes
	s.notebooks = notebooks
	s.persistedNotes, s.persistedNotebooks = notesRaw, notebooksRaw
	if migration != nil {
		if err := s.persistLocked(); err != nil {
			s.mutex.Unlock()
			return err
		}
	}
	s.mutex.Unlock()

	if migration != nil {
		if err := migration.Cleanup(s.kv); err != nil {
			s.logger.Warn("could not remove v1 keys", "err", err)
		}
		if len(migration.Skipped) > 0 {
			s.logger.Warn("skipped unreadable v1 notes", "ids", migration.Skipped)
		}
		s.logger.Info("migrated v1 notes", "count", len(migration.Notes))
	}

	s.logger.Debug("loaded notes", "notes", len(notes), "notebooks", len(notebooks))
	return nil
}

// Reload re-reads the persisted state and notifies subscribers. State that
// matches what this store last persisted is left alone.
func (s *NoteStore) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mutex.Lock()
	notesRaw, notebooksRaw, err := s.readRaw()
	if err != nil {
		s.mutex.Unlock()
		return err
	}
	if notesRaw == s.persistedNotes && notebooksRaw == s.persistedNotebooks {
		s.mutex.Unlock()
		return nil
	}
	notes, notebooks, err := s.decode(notesRaw, notebooksRaw)
	if err != nil {
		s.mutex.Unlock()
		return err
	}
	s.notes = notes
	s.notebooks = notebooks
	s.persistedNotes, s.persistedNotebooks = notesRaw, notebooksRaw
	s.mutex.Unlock()

	s.notify(Change{Op: "reload"})
	return nil
}

func (s *NoteStore) readRaw() (string, string, error) {
	notesRaw, _, err := s.kv.Get(NotesKey)
	if err != nil {
		return "", "", err
	}
	notebooksRaw, _, err := s.kv.Get(NotebooksKey)
	if err != nil {
		return "", "", err
	}
	return notesRaw, notebooksRaw, nil
}

func (s *NoteStore) decode(notesRaw, notebooksRaw string) ([]models.Note, []string, error) {
	notes := []models.Note{}
	if notesRaw != "" && notesRaw != "null" {
		if err := json.Unmarshal([]byte(notesRaw), &notes); err != nil {
			return nil, nil, errors.ErrStorageReadFailed.WithCause(err).WithContext("key", NotesKey)
		}
	}
	for i := range notes {
		normalize(&notes[i])
	}

	var notebooks []string
	if notebooksRaw != "" && notebooksRaw != "null" {
		if err := json.Unmarshal([]byte(notebooksRaw), &notebooks); err != nil {
			return nil, nil, errors.ErrStorageReadFailed.WithCause(err).WithContext("key", NotebooksKey)
		}
	}
	if len(notebooks) == 0 {
		notebooks = []string{s.defaultNotebook}
	}
	return notes, notebooks, nil
}

// normalize fills fields that older or imported records may lack
func normalize(n *models.Note) {
	if n.Tags == nil {
		n.Tags = []string{}
	}
	if n.Images == nil {
		n.Images = []string{}
	}
	if n.Language == "" {
		n.Language = models.LanguageText
	}
}

// persistLocked writes both collections. The caller holds the write lock.
func (s *NoteStore) persistLocked() error {
	notesJSON, err := json.Marshal(s.notes)
	if err != nil {
		return errors.ErrStorageWriteFailed.WithCause(err)
	}
	notebooksJSON, err := json.Marshal(s.notebooks)
	if err != nil {
		return errors.ErrStorageWriteFailed.WithCause(err)
	}

	err = s.retry.Execute(func() error {
		if err := s.kv.Set(NotesKey, string(notesJSON)); err != nil {
			return err
		}
		return s.kv.Set(NotebooksKey, string(notebooksJSON))
	})
	if err != nil {
		return err
	}
	s.persistedNotes, s.persistedNotebooks = string(notesJSON), string(notebooksJSON)
	return nil
}

// mutate runs fn under the write lock. fn reports whether it changed
// anything; only then is the state persisted and subscribers notified.
func (s *NoteStore) mutate(change *Change, fn func() bool) error {
	s.mutex.Lock()
	if !fn() {
		s.mutex.Unlock()
		return nil
	}
	err := s.persistLocked()
	s.mutex.Unlock()

	if err != nil {
		if appErr, ok := errors.As(err); ok {
			appErr.WithContext("op", change.Op).Log(s.logger)
		}
		return err
	}
	s.notify(*change)
	return nil
}

func (s *NoteStore) indexOf(id models.NoteID) int {
	for i := range s.notes {
		if s.notes[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *NoteStore) hasNotebook(name string) bool {
	for _, nb := range s.notebooks {
		if nb == name {
			return true
		}
	}
	return false
}

// nextID returns the current time in milliseconds, or the next free id when
// the clock has not moved past the largest existing id.
func (s *NoteStore) nextID() models.NoteID {
	id := models.NoteID(s.now().UnixMilli())
	for _, n := range s.notes {
		if n.ID >= id {
			id = n.ID + 1
		}
	}
	return id
}

// CreateNote inserts an empty note at the head of the list. It is filed
// under activeView when that names an existing notebook.
func (s *NoteStore) CreateNote(activeView string) (models.Note, error) {
	var created models.Note
	err := s.mutate(&Change{Op: "create"}, func() bool {
		notebook := s.defaultNotebook
		if !models.IsBuiltinView(activeView) && s.hasNotebook(activeView) {
			notebook = activeView
		}
		created = models.NewNote(s.nextID(), notebook, s.now())
		s.notes = append([]models.Note{created}, s.notes...)
		return true
	})
	if err != nil {
		return models.Note{}, err
	}
	s.logger.Debug("created note", "id", created.ID, "notebook", created.Notebook)
	return created.Clone(), nil
}

// UpdateNote overwrites the editable fields and bumps updatedAt
func (s *NoteStore) UpdateNote(id models.NoteID, fields models.NoteFields) error {
	return s.mutate(&Change{Op: "update", NoteID: id}, func() bool {
		i := s.indexOf(id)
		if i < 0 {
			return false
		}
		s.notes[i].Apply(fields)
		s.notes[i].UpdatedAt = s.now().UnixMilli()
		return true
	})
}

// SetFlag sets pinned, archived or trash. Archiving or trashing unpins.
func (s *NoteStore) SetFlag(id models.NoteID, flag models.Flag, value bool) error {
	return s.mutate(&Change{Op: "flag:" + string(flag), NoteID: id}, func() bool {
		i := s.indexOf(id)
		if i < 0 {
			return false
		}
		s.notes[i].SetFlag(flag, value)
		return true
	})
}

// TogglePin flips the pinned flag
func (s *NoteStore) TogglePin(id models.NoteID) error {
	return s.toggle(id, models.FlagPinned)
}

// ToggleArchive flips the archived flag
func (s *NoteStore) ToggleArchive(id models.NoteID) error {
	return s.toggle(id, models.FlagArchived)
}

func (s *NoteStore) toggle(id models.NoteID, flag models.Flag) error {
	return s.mutate(&Change{Op: "flag:" + string(flag), NoteID: id}, func() bool {
		i := s.indexOf(id)
		if i < 0 {
			return false
		}
		n := &s.notes[i]
		current := n.Pinned
		if flag == models.FlagArchived {
			current = n.Archived
		}
		n.SetFlag(flag, !current)
		return true
	})
}

// DeleteNote applies the delete policy. Under DeleteToTrash a live note is
// trashed and a trashed note is removed.
func (s *NoteStore) DeleteNote(id models.NoteID) error {
	change := &Change{Op: "delete", NoteID: id}
	return s.mutate(change, func() bool {
		i := s.indexOf(id)
		if i < 0 {
			return false
		}
		if s.deletePolicy == DeletePermanent || s.notes[i].Trash {
			s.notes = append(s.notes[:i], s.notes[i+1:]...)
			return true
		}
		s.notes[i].SetFlag(models.FlagTrash, true)
		change.Op = "flag:" + string(models.FlagTrash)
		return true
	})
}

// RestoreNote clears the trash flag
func (s *NoteStore) RestoreNote(id models.NoteID) error {
	return s.SetFlag(id, models.FlagTrash, false)
}

// DeleteNotePermanently removes the note
func (s *NoteStore) DeleteNotePermanently(id models.NoteID) error {
	return s.mutate(&Change{Op: "delete", NoteID: id}, func() bool {
		i := s.indexOf(id)
		if i < 0 {
			return false
		}
		s.notes = append(s.notes[:i], s.notes[i+1:]...)
		return true
	})
}

// AddNotebook appends a notebook name if it is non-empty and not present
func (s *NoteStore) AddNotebook(name string) error {
	return s.mutate(&Change{Op: "notebook:add"}, func() bool {
		if name == "" || s.hasNotebook(name) {
			return false
		}
		s.notebooks = append(s.notebooks, name)
		return true
	})
}

// RemoveNotebook drops a notebook definition. Notes keep their notebook name.
func (s *NoteStore) RemoveNotebook(name string) error {
	return s.mutate(&Change{Op: "notebook:remove"}, func() bool {
		for i, nb := range s.notebooks {
			if nb == name {
				s.notebooks = append(s.notebooks[:i], s.notebooks[i+1:]...)
				return true
			}
		}
		return false
	})
}

// MoveNote files a note under another notebook
func (s *NoteStore) MoveNote(id models.NoteID, notebook string) error {
	return s.mutate(&Change{Op: "move", NoteID: id}, func() bool {
		i := s.indexOf(id)
		if i < 0 {
			return false
		}
		s.notes[i].Notebook = notebook
		s.notes[i].UpdatedAt = s.now().UnixMilli()
		return true
	})
}

// AttachImage appends an image payload
func (s *NoteStore) AttachImage(id models.NoteID, payload string) error {
	return s.mutate(&Change{Op: "image:add", NoteID: id}, func() bool {
		i := s.indexOf(id)
		if i < 0 {
			return false
		}
		s.notes[i].Images = append(s.notes[i].Images, payload)
		return true
	})
}

// RemoveImage removes the image at index. Out of range indexes are ignored.
func (s *NoteStore) RemoveImage(id models.NoteID, index int) error {
	return s.mutate(&Change{Op: "image:remove", NoteID: id}, func() bool {
		i := s.indexOf(id)
		if i < 0 || index < 0 || index >= len(s.notes[i].Images) {
			return false
		}
		imgs := s.notes[i].Images
		s.notes[i].Images = append(imgs[:index:index], imgs[index+1:]...)
		return true
	})
}

// ImportNotes prepends notes to the list
func (s *NoteStore) ImportNotes(notes []models.Note) error {
	if len(notes) == 0 {
		return nil
	}
	return s.mutate(&Change{Op: "import"}, func() bool {
		imported := make([]models.Note, 0, len(notes)+len(s.notes))
		for _, n := range notes {
			c := n.Clone()
			normalize(&c)
			imported = append(imported, c)
		}
		s.notes = append(imported, s.notes...)
		return true
	})
}

// Get returns a copy of the note
func (s *NoteStore) Get(id models.NoteID) (models.Note, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return models.Note{}, false
	}
	return s.notes[i].Clone(), true
}

// Notes returns copies of all notes in list order
func (s *NoteStore) Notes() []models.Note {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make([]models.Note, len(s.notes))
	for i, n := range s.notes {
		out[i] = n.Clone()
	}
	return out
}

// Notebooks returns a copy of the notebook list
func (s *NoteStore) Notebooks() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]string(nil), s.notebooks...)
}

// Snapshot returns a consistent copy of notes and notebooks
func (s *NoteStore) Snapshot() Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	notes := make([]models.Note, len(s.notes))
	for i, n := range s.notes {
		notes[i] = n.Clone()
	}
	return Snapshot{Notes: notes, Notebooks: append([]string(nil), s.notebooks...)}
}

// Subscribe registers fn for change notifications and returns a function
// that removes it. fn runs on the goroutine that made the change.
func (s *NoteStore) Subscribe(fn func(Change)) func() {
	s.subMutex.Lock()
	defer s.subMutex.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	return func() {
		s.subMutex.Lock()
		defer s.subMutex.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *NoteStore) notify(c Change) {
	s.subMutex.Lock()
	subs := make([]func(Change), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.subMutex.Unlock()

	for _, fn := range subs {
		fn(c)
	}
}
