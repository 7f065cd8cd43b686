package handlers

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"tempnotes/pkg/errors"
	"tempnotes/pkg/filter"
	"tempnotes/pkg/middleware"
	"tempnotes/pkg/models"
	"tempnotes/pkg/services"
	"tempnotes/pkg/storage"
	"tempnotes/pkg/types"
)

const (
	// MaxImageUpload limits the size of an uploaded image
	MaxImageUpload = 20 << 20
	// MaxImportUpload limits the size of an imported note collection.
	// Exports carry images inline, so it is larger than MaxImageUpload.
	MaxImportUpload = 64 << 20
)

var errImportTooLarge = errors.New(errors.ErrTypeImport, "IMPORT_TOO_LARGE", "import payload too large").
	WithUserMessage("Import file is too large")

// APIHandlers contains API endpoint handlers
type APIHandlers struct {
	svc         *services.NoteService
	editor      *services.Editor
	logger      *slog.Logger
	importLimit int64
}

// NewAPIHandlers creates a new API handlers instance
func NewAPIHandlers(svc *services.NoteService, editor *services.Editor, logger *slog.Logger) *APIHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandlers{
		svc:         svc,
		editor:      editor,
		logger:      logger,
		importLimit: MaxImportUpload,
	}
}

// Router builds the HTTP routes
func (h *APIHandlers) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/notes", h.ListNotesHandler)
		r.Post("/notes", h.CreateNoteHandler)
		r.Route("/notes/{id}", func(r chi.Router) {
			r.Use(middleware.RequireNoteID(h.writeError))
			r.Get("/", h.GetNoteHandler)
			r.Put("/", h.UpdateNoteHandler)
			r.Delete("/", h.DeleteNoteHandler)
			r.Put("/flags/{flag}", h.SetFlagHandler)
			r.Post("/pin", h.TogglePinHandler)
			r.Post("/archive", h.ToggleArchiveHandler)
			r.Post("/restore", h.RestoreNoteHandler)
			r.Delete("/purge", h.PurgeNoteHandler)
			r.Put("/notebook", h.MoveNoteHandler)
			r.Post("/format", h.FormatNoteHandler)
			r.Post("/images", h.AttachImageHandler)
			r.Get("/images/{index}", h.GetImageHandler)
			r.Delete("/images/{index}", h.RemoveImageHandler)
		})

		r.Get("/notebooks", h.ListNotebooksHandler)
		r.Post("/notebooks", h.AddNotebookHandler)
		r.Delete("/notebooks/{name}", h.RemoveNotebookHandler)

		r.Post("/format", h.FormatHandler)
		r.Get("/export", h.ExportHandler)
		r.Post("/import", h.ImportHandler)

		r.Get("/sessions", h.ListSessionsHandler)
		r.Post("/sessions", h.OpenSessionHandler)
		r.Route("/sessions/{session}", func(r chi.Router) {
			r.Use(middleware.RequireSessionID(h.writeError))
			r.Get("/", h.GetSessionHandler)
			r.Put("/", h.EditSessionHandler)
			r.Post("/save", h.SaveSessionHandler)
			r.Post("/format", h.FormatSessionHandler)
			r.Delete("/", h.CloseSessionHandler)
		})
	})

	return r
}

// ListNotesHandler returns the notes visible in a view as cards
func (h *APIHandlers) ListNotesHandler(w http.ResponseWriter, r *http.Request) {
	q := filter.Query{
		View: r.URL.Query().Get("view"),
		Text: r.URL.Query().Get("q"),
	}
	if q.View == "" {
		q.View = models.ViewAll
	}
	writeJSON(w, http.StatusOK, types.ConvertToNoteCards(h.svc.List(q)))
}

// CreateNoteHandler creates a note for the active view
func (h *APIHandlers) CreateNoteHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		View string `json:"view"`
	}
	if err := decodeOptional(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	note, err := h.svc.CreateNote(req.View)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// GetNoteHandler returns a note
func (h *APIHandlers) GetNoteHandler(w http.ResponseWriter, r *http.Request) {
	note, ok := h.note(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// UpdateNoteHandler replaces the editable fields of a note
func (h *APIHandlers) UpdateNoteHandler(w http.ResponseWriter, r *http.Request) {
	note, ok := h.note(w, r)
	if !ok {
		return
	}
	var fields models.NoteFields
	if err := decode(r, &fields); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.UpdateNote(note.ID, fields); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeNote(w, r, note.ID)
}

// SetFlagHandler sets pinned, archived or trash
func (h *APIHandlers) SetFlagHandler(w http.ResponseWriter, r *http.Request) {
	note, ok := h.note(w, r)
	if !ok {
		return
	}
	flag, err := models.ParseFlag(chi.URLParam(r, "flag"))
	if err != nil {
		h.writeError(w, r, errors.Wrap(err, errors.ErrTypeValidation, "FLAG_UNKNOWN", "unknown flag"))
		return
	}
	var req struct {
		Value bool `json:"value"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.Store().SetFlag(note.ID, flag, req.Value); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeNote(w, r, note.ID)
}

// TogglePinHandler flips the pinned flag
func (h *APIHandlers) TogglePinHandler(w http.ResponseWriter, r *http.Request) {
	h.applyToNote(w, r, h.svc.Store().TogglePin)
}

// ToggleArchiveHandler flips the archived flag
func (h *APIHandlers) ToggleArchiveHandler(w http.ResponseWriter, r *http.Request) {
	h.applyToNote(w, r, h.svc.Store().ToggleArchive)
}

// RestoreNoteHandler moves a note out of the trash
func (h *APIHandlers) RestoreNoteHandler(w http.ResponseWriter, r *http.Request) {
	h.applyToNote(w, r, h.svc.Store().RestoreNote)
}

// DeleteNoteHandler deletes a note following the configured delete policy
func (h *APIHandlers) DeleteNoteHandler(w http.ResponseWriter, r *http.Request) {
	note, ok := h.note(w, r)
	if !ok {
		return
	}
	if err := h.svc.Store().DeleteNote(note.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	if updated, ok := h.svc.Store().Get(note.ID); ok {
		writeJSON(w, http.StatusOK, updated)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PurgeNoteHandler removes a note permanently
func (h *APIHandlers) PurgeNoteHandler(w http.ResponseWriter, r *http.Request) {
	note, ok := h.note(w, r)
	if !ok {
		return
	}
	if err := h.svc.Store().DeleteNotePermanently(note.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveNoteHandler files a note under a notebook
func (h *APIHandlers) MoveNoteHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.NoteID(r.Context())
	var req struct {
		Notebook string `json:"notebook"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.MoveNote(id, req.Notebook); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeNote(w, r, id)
}

// FormatNoteHandler formats a stored note in place
func (h *APIHandlers) FormatNoteHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.NoteID(r.Context())
	if err := h.svc.FormatNote(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeNote(w, r, id)
}

// AttachImageHandler compresses the request body and attaches it
func (h *APIHandlers) AttachImageHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.NoteID(r.Context())
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxImageUpload))
	if err != nil {
		h.writeError(w, r, errors.ErrImageDecodeFailed.WithCause(err))
		return
	}
	if err := h.svc.AttachImage(r.Context(), id, raw); err != nil {
		h.writeError(w, r, err)
		return
	}
	note, err := h.svc.GetNote(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// GetImageHandler serves a decoded image
func (h *APIHandlers) GetImageHandler(w http.ResponseWriter, r *http.Request) {
	note, ok := h.note(w, r)
	if !ok {
		return
	}
	index, err := imageIndex(r, note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	mime, data, err := storage.DecodeDataURL(note.Images[index])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("inline; filename=%q", storage.ImageFileName(note.Updated(), index)))
	w.Write(data)
}

// RemoveImageHandler removes an image from a note
func (h *APIHandlers) RemoveImageHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.NoteID(r.Context())
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.writeError(w, r, errors.ErrImageNotFound.WithCause(err))
		return
	}
	if err := h.svc.RemoveImage(id, index); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeNote(w, r, id)
}

// ListNotebooksHandler returns the notebook names
func (h *APIHandlers) ListNotebooksHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Store().Notebooks())
}

// AddNotebookHandler adds a notebook
func (h *APIHandlers) AddNotebookHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.AddNotebook(req.Name); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.svc.Store().Notebooks())
}

// RemoveNotebookHandler removes a notebook definition
func (h *APIHandlers) RemoveNotebookHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Store().RemoveNotebook(chi.URLParam(r, "name")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Store().Notebooks())
}

// FormatHandler formats content without touching a note
func (h *APIHandlers) FormatHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content  string `json:"content"`
		Language string `json:"language"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.svc.FormatContent(r.Context(), req.Content, req.Language)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": out})
}

// ExportHandler downloads every note
func (h *APIHandlers) ExportHandler(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.svc.Export(&buf); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", services.ExportFileName))
	w.Write(buf.Bytes())
}

// ImportHandler prepends the notes in the request body
func (h *APIHandlers) ImportHandler(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.importLimit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			h.writeError(w, r, errImportTooLarge.WithContext("limit", tooLarge.Limit))
			return
		}
		h.writeError(w, r, errors.ErrMalformedImport.WithCause(err))
		return
	}
	count, err := h.svc.Import(bytes.NewReader(data))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, errors.Notify(errors.LevelSuccess,
		fmt.Sprintf("Imported %d notes", count)))
}

// ListSessionsHandler lists open editor sessions
func (h *APIHandlers) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.editor.Sessions())
}

// OpenSessionHandler opens an editor session on a note
func (h *APIHandlers) OpenSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NoteID models.NoteID `json:"noteId"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.editor.Open(req.NoteID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionView(s))
}

// GetSessionHandler returns the buffered state of a session
func (h *APIHandlers) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *services.EditorSession) error { return nil })
}

// EditSessionHandler replaces the buffered fields of a session
func (h *APIHandlers) EditSessionHandler(w http.ResponseWriter, r *http.Request) {
	var fields models.NoteFields
	if err := decode(r, &fields); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.withSession(w, r, func(s *services.EditorSession) error { return s.Edit(fields) })
}

// SaveSessionHandler commits buffered edits
func (h *APIHandlers) SaveSessionHandler(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, (*services.EditorSession).Save)
}

// FormatSessionHandler formats the buffered content
func (h *APIHandlers) FormatSessionHandler(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *services.EditorSession) error { return s.Format(r.Context()) })
}

// CloseSessionHandler saves and closes a session
func (h *APIHandlers) CloseSessionHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.editor.Session(middleware.SessionID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.Close(); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sessionResponse struct {
	models.SessionInfo
	Fields models.NoteFields `json:"fields"`
	Stats  services.Stats    `json:"stats"`
}

func sessionView(s *services.EditorSession) sessionResponse {
	return sessionResponse{
		SessionInfo: s.Info(),
		Fields:      s.Fields(),
		Stats:       s.Stats(),
	}
}

func (h *APIHandlers) withSession(w http.ResponseWriter, r *http.Request, fn func(*services.EditorSession) error) {
	s, err := h.editor.Session(middleware.SessionID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := fn(s); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(s))
}

// note resolves the note named by the URL, writing 404 when it is absent
func (h *APIHandlers) note(w http.ResponseWriter, r *http.Request) (models.Note, bool) {
	id, _ := middleware.NoteID(r.Context())
	note, err := h.svc.GetNote(id)
	if err != nil {
		h.writeError(w, r, err)
		return models.Note{}, false
	}
	return note, true
}

func (h *APIHandlers) applyToNote(w http.ResponseWriter, r *http.Request, fn func(models.NoteID) error) {
	note, ok := h.note(w, r)
	if !ok {
		return
	}
	if err := fn(note.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeNote(w, r, note.ID)
}

func (h *APIHandlers) writeNote(w http.ResponseWriter, r *http.Request, id models.NoteID) {
	note, err := h.svc.GetNote(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (h *APIHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.StatusCode(err)
	if status >= http.StatusInternalServerError {
		if appErr, ok := errors.As(err); ok {
			appErr.Log(h.logger)
		} else {
			h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		}
	}
	writeJSON(w, status, errors.ToNotification(err))
}

func imageIndex(r *http.Request, note models.Note) (int, error) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 || index >= len(note.Images) {
		return 0, errors.ErrImageNotFound.WithContext("noteId", note.ID.String())
	}
	return index, nil
}

var errInvalidBody = errors.New(errors.ErrTypeValidation, "INVALID_BODY", "invalid request body").
	WithUserMessage("The request body is not valid JSON")

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errInvalidBody.WithCause(err)
	}
	return nil
}

// decodeOptional accepts an empty body
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || err == io.EOF {
		return nil
	}
	return errInvalidBody.WithCause(err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
