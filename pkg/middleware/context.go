package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tempnotes/pkg/errors"
	"tempnotes/pkg/models"
	"tempnotes/pkg/utils"
)

type contextKey string

const (
	noteIDKey    contextKey = "noteID"
	sessionIDKey contextKey = "sessionID"
)

// ErrorWriter renders an error response
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// NoteID returns the note id stored by RequireNoteID
func NoteID(ctx context.Context) (models.NoteID, bool) {
	id, ok := ctx.Value(noteIDKey).(models.NoteID)
	return id, ok
}

// SessionID returns the editor session id stored by RequireSessionID
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// RequireNoteID parses the {id} URL parameter. Requests with an invalid id
// never reach next.
func RequireNoteID(writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := chi.URLParam(r, "id")
			id, err := models.ParseNoteID(raw)
			if err != nil {
				writeErr(w, r, errors.ErrNoteNotFound.WithCause(err).WithContext("noteId", raw))
				return
			}
			ctx := context.WithValue(r.Context(), noteIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSessionID checks the {session} URL parameter
func RequireSessionID(writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := chi.URLParam(r, "session")
			if !utils.IsValidSessionID(raw) {
				writeErr(w, r, errors.ErrSessionNotFound.WithContext("session", raw))
				return
			}
			ctx := context.WithValue(r.Context(), sessionIDKey, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
