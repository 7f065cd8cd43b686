package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"tempnotes/pkg/errors"
	"tempnotes/pkg/filter"
	"tempnotes/pkg/formatter"
	"tempnotes/pkg/models"
	"tempnotes/pkg/storage"
)

// ExportFileName is the suggested name for exported notes
const ExportFileName = "temp_notes_backup.json"

// ImageCompressor turns raw image bytes into a stored payload
type ImageCompressor interface {
	Compress(raw []byte) (string, error)
}

// Option configures a NoteService
type Option func(*NoteService)

// WithFormatter sets the code formatter
func WithFormatter(f formatter.Formatter) Option {
	return func(s *NoteService) { s.formatter = f }
}

// WithCompressor sets the image compressor
func WithCompressor(c ImageCompressor) Option {
	return func(s *NoteService) { s.compressor = c }
}

// WithFilterOptions sets the options used by List
func WithFilterOptions(o filter.Options) Option {
	return func(s *NoteService) { s.filterOpts = o }
}

// WithValidator sets the input validator
func WithValidator(v *errors.Validator) Option {
	return func(s *NoteService) { s.validator = v }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *NoteService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *NoteService) { s.now = now }
}

// NoteService handles note business logic on top of the store
type NoteService struct {
	store      *storage.NoteStore
	validator  *errors.Validator
	formatter  formatter.Formatter
	compressor ImageCompressor
	filterOpts filter.Options
	logger     *slog.Logger
	now        func() time.Time

	pending sync.WaitGroup
}

// NewNoteService creates a new note service
func NewNoteService(store *storage.NoteStore, opts ...Option) *NoteService {
	s := &NoteService{
		store:     store,
		validator: errors.NewValidator(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying note store
func (s *NoteService) Store() *storage.NoteStore {
	return s.store
}

// List returns the notes visible under q
func (s *NoteService) List(q filter.Query) []models.Note {
	snap := s.store.Snapshot()
	return filter.Apply(snap.Notes, snap.Notebooks, q, s.filterOpts)
}

// GetNote returns a note or ErrNoteNotFound
func (s *NoteService) GetNote(id models.NoteID) (models.Note, error) {
	note, ok := s.store.Get(id)
	if !ok {
		return models.Note{}, errors.ErrNoteNotFound.WithContext("noteId", id.String())
	}
	return note, nil
}

// CreateNote creates a note for the active view
func (s *NoteService) CreateNote(activeView string) (models.Note, error) {
	note, err := s.store.CreateNote(activeView)
	if err != nil {
		return models.Note{}, err
	}
	s.logger.Info("note created", "id", note.ID, "notebook", note.Notebook)
	return note, nil
}

// UpdateNote validates and applies an edit
func (s *NoteService) UpdateNote(id models.NoteID, fields models.NoteFields) error {
	if result := s.validator.ValidateNoteFields(fields); !result.IsValid {
		err := result.GetFirstError().WithContext("noteId", id.String())
		err.Log(s.logger)
		return err
	}
	return s.store.UpdateNote(id, fields)
}

// AddNotebook validates and adds a notebook
func (s *NoteService) AddNotebook(name string) error {
	if result := s.validator.ValidateNotebookName(name); !result.IsValid {
		return result.GetFirstError()
	}
	return s.store.AddNotebook(name)
}

// MoveNote files a note under an existing notebook
func (s *NoteService) MoveNote(id models.NoteID, notebook string) error {
	if result := s.validator.ValidateNotebookName(notebook); !result.IsValid {
		return result.GetFirstError()
	}
	if _, err := s.GetNote(id); err != nil {
		return err
	}
	return s.store.MoveNote(id, notebook)
}

// RemoveImage removes an image, reporting an out of range index
func (s *NoteService) RemoveImage(id models.NoteID, index int) error {
	note, err := s.GetNote(id)
	if err != nil {
		return err
	}
	if result := s.validator.ValidateImageIndex(note, index); !result.IsValid {
		return result.GetFirstError().WithContext("noteId", id.String())
	}
	return s.store.RemoveImage(id, index)
}

// Export writes every note as two-space indented JSON
func (s *NoteService) Export(w io.Writer) error {
	data, err := json.MarshalIndent(s.store.Notes(), "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "EXPORT_FAILED", "failed to encode notes")
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "EXPORT_FAILED", "failed to write export").
			WithUserMessage("Unable to write the export file")
	}
	s.logger.Info("notes exported", "bytes", len(data))
	return nil
}

// ParseImport decodes an exported payload. Anything other than a JSON array
// of notes is rejected.
func ParseImport(data []byte) ([]models.Note, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.ErrMalformedImport.WithContext("reason", "not an array")
	}
	var notes []models.Note
	if err := json.Unmarshal(trimmed, &notes); err != nil {
		return nil, errors.ErrMalformedImport.WithCause(err)
	}
	return notes, nil
}

// Import reads an exported payload and prepends its notes. A malformed
// payload leaves the store untouched.
func (s *NoteService) Import(r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, errors.ErrMalformedImport.WithCause(err)
	}
	notes, err := ParseImport(data)
	if err != nil {
		return 0, err
	}
	if err := s.store.ImportNotes(notes); err != nil {
		return 0, err
	}
	s.logger.Info("notes imported", "count", len(notes))
	return len(notes), nil
}

// FormatContent formats content written in language. Plain text is refused
// and formatter failures carry the first line of the formatter's message.
func (s *NoteService) FormatContent(ctx context.Context, content, language string) (string, error) {
	if language == "" || language == models.LanguageText {
		return "", errors.ErrPlainTextFormat
	}
	if s.formatter == nil {
		return "", errors.ErrFormatFailed.WithUserMessage("Format error: no formatter configured")
	}

	out, err := s.formatter.Format(ctx, content, language)
	if err != nil {
		first := errors.FirstLine(err.Error())
		appErr := errors.ErrFormatFailed.WithCause(err).
			WithUserMessage("Format error: "+first).
			WithContext("language", language)
		s.logger.Warn("format failed", "language", language, "err", first)
		return "", appErr
	}
	return out, nil
}

// FormatNote formats a stored note in place. Content is only replaced when
// formatting succeeds.
func (s *NoteService) FormatNote(ctx context.Context, id models.NoteID) error {
	note, err := s.GetNote(id)
	if err != nil {
		return err
	}
	out, err := s.FormatContent(ctx, note.Content, note.Language)
	if err != nil {
		return err
	}
	fields := note.Fields()
	fields.Content = out
	return s.store.UpdateNote(id, fields)
}

// AttachImageAsync compresses raw on another goroutine and appends the
// result to the note that has id when compression finishes. If the note no
// longer exists nothing is attached. The channel receives exactly one value.
func (s *NoteService) AttachImageAsync(ctx context.Context, id models.NoteID, raw []byte) <-chan error {
	done := make(chan error, 1)
	if s.compressor == nil {
		done <- errors.New(errors.ErrTypeImage, "NO_COMPRESSOR", "image support is not configured")
		return done
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		payload, err := s.compressor.Compress(raw)
		if err != nil {
			s.logger.Warn("image rejected", "id", id, "err", err)
			done <- err
			return
		}
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		if _, ok := s.store.Get(id); !ok {
			s.logger.Debug("note gone before image was ready", "id", id)
			done <- nil
			return
		}
		done <- s.store.AttachImage(id, payload)
	}()
	return done
}

// AttachImage compresses and attaches an image, waiting for the result
func (s *NoteService) AttachImage(ctx context.Context, id models.NoteID, raw []byte) error {
	if _, err := s.GetNote(id); err != nil {
		return err
	}
	select {
	case err := <-s.AttachImageAsync(ctx, id, raw):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AttachImageFile reads an image file and attaches it
func (s *NoteService) AttachImageFile(ctx context.Context, id models.NoteID, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.ErrImageDecodeFailed.WithCause(err).WithContext("path", path)
	}
	return s.AttachImage(ctx, id, raw)
}

// SaveImage writes the image at index into dir and returns the file path
func (s *NoteService) SaveImage(dir string, id models.NoteID, index int) (string, error) {
	note, err := s.GetNote(id)
	if err != nil {
		return "", err
	}
	if result := s.validator.ValidateImageIndex(note, index); !result.IsValid {
		return "", result.GetFirstError().WithContext("noteId", id.String())
	}
	return storage.SaveImageFile(dir, note.Images[index], index, s.now())
}

// Wait blocks until pending image ingestions finish
func (s *NoteService) Wait() {
	s.pending.Wait()
}
