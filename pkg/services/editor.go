package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"tempnotes/pkg/errors"
	"tempnotes/pkg/models"
	"tempnotes/pkg/performance"
	"tempnotes/pkg/utils"
)

// Stats counts words and characters of note content
type Stats struct {
	Words int `json:"words"`
	Chars int `json:"chars"`
}

// ContentStats returns the word and character count shown in the editor
func ContentStats(content string) Stats {
	return Stats{
		Words: len(strings.Fields(content)),
		Chars: len([]rune(content)),
	}
}

// Editor tracks open editing sessions. Edits are saved after the autosave
// delay; closing a session saves pending edits first.
type Editor struct {
	svc       *NoteService
	debouncer *performance.Debouncer

	mutex    sync.Mutex
	sessions map[string]*EditorSession
}

// NewEditor creates an editor that autosaves after delay
func NewEditor(svc *NoteService, delay time.Duration) *Editor {
	return &Editor{
		svc:       svc,
		debouncer: performance.NewDebouncer(delay),
		sessions:  make(map[string]*EditorSession),
	}
}

// Open starts a session on an existing note
func (e *Editor) Open(id models.NoteID) (*EditorSession, error) {
	note, err := e.svc.GetNote(id)
	if err != nil {
		return nil, err
	}

	s := &EditorSession{
		ID:       utils.GenerateSessionID(),
		noteID:   id,
		editor:   e,
		fields:   note.Fields(),
		openedAt: e.svc.now(),
	}

	e.mutex.Lock()
	e.sessions[s.ID] = s
	e.mutex.Unlock()

	e.svc.logger.Debug("editor opened", "session", s.ID, "note", id)
	return s, nil
}

// Session returns an open session
func (e *Editor) Session(id string) (*EditorSession, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, errors.ErrSessionNotFound.WithContext("session", id)
	}
	return s, nil
}

// Sessions lists open sessions
func (e *Editor) Sessions() []models.SessionInfo {
	e.mutex.Lock()
	list := make([]*EditorSession, 0, len(e.sessions))
	for _, s := range e.sessions {
		list = append(list, s)
	}
	e.mutex.Unlock()

	infos := make([]models.SessionInfo, len(list))
	for i, s := range list {
		infos[i] = s.Info()
	}
	return infos
}

// CloseAll saves and closes every session
func (e *Editor) CloseAll() error {
	e.mutex.Lock()
	list := make([]*EditorSession, 0, len(e.sessions))
	for _, s := range e.sessions {
		list = append(list, s)
	}
	e.mutex.Unlock()

	var firstErr error
	for _, s := range list {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EditorSession is the editing context for one note
type EditorSession struct {
	ID     string
	noteID models.NoteID
	editor *Editor

	mutex    sync.Mutex
	fields   models.NoteFields
	dirty    bool
	closed   bool
	openedAt time.Time
	savedAt  time.Time
}

// NoteID returns the id of the note being edited
func (s *EditorSession) NoteID() models.NoteID {
	return s.noteID
}

// Fields returns the buffered fields
func (s *EditorSession) Fields() models.NoteFields {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	f := s.fields
	f.Tags = append([]string(nil), s.fields.Tags...)
	return f
}

// Stats returns word and character counts of the buffered content
func (s *EditorSession) Stats() Stats {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return ContentStats(s.fields.Content)
}

// Edit replaces the buffered fields and schedules an autosave
func (s *EditorSession) Edit(fields models.NoteFields) error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return errors.ErrSessionNotFound.WithContext("session", s.ID)
	}
	s.fields = fields
	s.fields.Tags = append([]string{}, fields.Tags...)
	s.dirty = true
	s.mutex.Unlock()

	s.editor.debouncer.Debounce(s.ID, func() {
		if err := s.commit(); err != nil {
			s.editor.svc.logger.Warn("autosave failed", "session", s.ID, "note", s.noteID, "err", err)
		}
	})
	return nil
}

// Format formats the buffered content and schedules an autosave. The
// buffer is unchanged when formatting fails.
func (s *EditorSession) Format(ctx context.Context) error {
	f := s.Fields()
	out, err := s.editor.svc.FormatContent(ctx, f.Content, f.Language)
	if err != nil {
		return err
	}
	f.Content = out
	return s.Edit(f)
}

// Save commits buffered edits now
func (s *EditorSession) Save() error {
	s.editor.debouncer.Cancel(s.ID)
	return s.commit()
}

// Pending reports whether an autosave is scheduled
func (s *EditorSession) Pending() bool {
	return s.editor.debouncer.Pending(s.ID)
}

// Close flushes a pending autosave and ends the session
func (s *EditorSession) Close() error {
	s.editor.debouncer.Flush(s.ID)

	s.mutex.Lock()
	dirty := s.dirty
	s.closed = true
	s.mutex.Unlock()

	// edits left over from a failed autosave get one more attempt
	var err error
	if dirty {
		err = s.commit()
	}

	s.editor.mutex.Lock()
	delete(s.editor.sessions, s.ID)
	s.editor.mutex.Unlock()

	s.editor.svc.logger.Debug("editor closed", "session", s.ID, "note", s.noteID)
	return err
}

// commit writes the buffer to the store. The note is looked up by id at
// this point, so a note deleted meanwhile is left alone.
func (s *EditorSession) commit() error {
	s.mutex.Lock()
	if !s.dirty {
		s.mutex.Unlock()
		return nil
	}
	fields := s.fields
	fields.Tags = append([]string{}, s.fields.Tags...)
	s.mutex.Unlock()

	err := s.editor.svc.UpdateNote(s.noteID, fields)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err != nil {
		return err
	}
	// a newer edit may have arrived while saving
	if equalFields(fields, s.fields) {
		s.dirty = false
	}
	s.savedAt = s.editor.svc.now()
	return nil
}

// Info describes the session
func (s *EditorSession) Info() models.SessionInfo {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return models.SessionInfo{
		ID:       s.ID,
		NoteID:   s.noteID,
		Pending:  s.dirty,
		OpenedAt: s.openedAt,
		SavedAt:  s.savedAt,
	}
}

func equalFields(a, b models.NoteFields) bool {
	if a.Title != b.Title || a.Content != b.Content || a.Language != b.Language || len(a.Tags) != len(b.Tags) {
		return false
	}
	for i := range a.Tags {
		if a.Tags[i] != b.Tags[i] {
			return false
		}
	}
	return true
}
