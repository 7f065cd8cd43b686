package errors

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// Mutations or lookups on ids absent from the collection
	ErrTypeNotFound ErrorType = "not_found"
	// Import payloads that fail to parse or are not an array
	ErrTypeImport ErrorType = "import"
	// External formatter rejected the content
	ErrTypeFormatter ErrorType = "formatter"
	// Validation errors
	ErrTypeValidation ErrorType = "validation"
	// Persistence backend errors
	ErrTypeStorage ErrorType = "storage"
	// Configuration errors
	ErrTypeConfig ErrorType = "configuration"
	// Encryption/decryption errors
	ErrTypeCrypto ErrorType = "crypto"
	// Image decoding and resizing errors
	ErrTypeImage ErrorType = "image"
	// Generic application errors
	ErrTypeApp ErrorType = "application"
)

// AppError represents a structured application error
type AppError struct {
	Type        ErrorType      `json:"type"`
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	UserMessage string         `json:"userMessage"`
	InternalErr error          `json:"-"`
	Retryable   bool           `json:"retryable"`
	Context     map[string]any `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.InternalErr != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Type, e.Code, e.Message, e.InternalErr)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap exposes the wrapped error
func (e *AppError) Unwrap() error {
	return e.InternalErr
}

// Is matches AppErrors by type and code so predefined errors work with
// errors.Is after WithContext copies.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// GetUserMessage returns a user-friendly error message
func (e *AppError) GetUserMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// clone copies the error so the predefined values stay untouched
func (e *AppError) clone() *AppError {
	c := *e
	if e.Context != nil {
		c.Context = make(map[string]any, len(e.Context))
		for k, v := range e.Context {
			c.Context[k] = v
		}
	}
	return &c
}

// WithContext returns a copy of the error with an extra context value
func (e *AppError) WithContext(key string, value any) *AppError {
	c := e.clone()
	if c.Context == nil {
		c.Context = make(map[string]any)
	}
	c.Context[key] = value
	return c
}

// WithUserMessage returns a copy with a user-friendly message
func (e *AppError) WithUserMessage(msg string) *AppError {
	c := e.clone()
	c.UserMessage = msg
	return c
}

// WithRetryable returns a copy marked (or not) as retryable
func (e *AppError) WithRetryable(retryable bool) *AppError {
	c := e.clone()
	c.Retryable = retryable
	return c
}

// WithCause returns a copy wrapping err
func (e *AppError) WithCause(err error) *AppError {
	c := e.clone()
	c.InternalErr = err
	return c
}

// IsRetryable checks if the error can be retried
func (e *AppError) IsRetryable() bool {
	return e.Retryable
}

// Log logs the error at error level
func (e *AppError) Log(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"type", e.Type, "code", e.Code}
	for k, v := range e.Context {
		attrs = append(attrs, k, v)
	}
	if e.InternalErr != nil {
		attrs = append(attrs, "cause", e.InternalErr)
	}
	logger.Error(e.Message, attrs...)
}

// New creates a new AppError
func New(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:        errType,
		Code:        code,
		Message:     message,
		InternalErr: err,
	}
}

// As returns the AppError in err's chain, if any
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is forwards to the standard library
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// FirstLine returns the first non-empty line of an error message
func FirstLine(msg string) string {
	for _, line := range strings.Split(msg, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// Predefined errors for common scenarios
var (
	ErrNoteNotFound = New(ErrTypeNotFound, "NOTE_NOT_FOUND", "note not found").
			WithUserMessage("The requested note could not be found")

	ErrImageNotFound = New(ErrTypeNotFound, "IMAGE_NOT_FOUND", "image index out of range").
				WithUserMessage("The requested image could not be found")

	ErrSessionNotFound = New(ErrTypeNotFound, "SESSION_NOT_FOUND", "editor session not found").
				WithUserMessage("The editor was closed. Open the note again")

	ErrMalformedImport = New(ErrTypeImport, "MALFORMED_IMPORT", "import payload is not a JSON array of notes").
				WithUserMessage("Invalid JSON file")

	ErrFormatFailed = New(ErrTypeFormatter, "FORMAT_FAILED", "formatter rejected content").
			WithUserMessage("Format error")

	ErrPlainTextFormat = New(ErrTypeFormatter, "FORMAT_PLAIN_TEXT", "cannot format plain text").
				WithUserMessage("Select a code language to format")

	ErrStorageWriteFailed = New(ErrTypeStorage, "STORAGE_WRITE_FAILED", "failed to persist state").
				WithUserMessage("Unable to save notes. Check disk space and permissions")

	ErrStorageReadFailed = New(ErrTypeStorage, "STORAGE_READ_FAILED", "failed to read persisted state").
				WithUserMessage("Stored notes could not be loaded. They may be corrupted")

	ErrConfigLoadFailed = New(ErrTypeConfig, "CONFIG_LOAD_FAILED", "failed to load configuration").
				WithUserMessage("Configuration file could not be loaded")

	ErrConfigSaveFailed = New(ErrTypeConfig, "CONFIG_SAVE_FAILED", "failed to save configuration").
				WithUserMessage("Unable to save settings. Check permissions")

	ErrDecryptionFailed = New(ErrTypeCrypto, "DECRYPT_FAILED", "decryption failed").
				WithUserMessage("Unable to decrypt data. The passphrase may be incorrect")

	ErrEncryptionFailed = New(ErrTypeCrypto, "ENCRYPT_FAILED", "encryption failed").
				WithUserMessage("Unable to encrypt data. Please try again")

	ErrImageDecodeFailed = New(ErrTypeImage, "IMAGE_DECODE_FAILED", "failed to decode image").
				WithUserMessage("The pasted file is not a supported image")
)

// RetryHandler provides retry functionality for operations
type RetryHandler struct {
	MaxAttempts int
	OnRetry     func(attempt int, err error)
}

// NewRetryHandler creates a new retry handler
func NewRetryHandler(maxAttempts int) *RetryHandler {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryHandler{
		MaxAttempts: maxAttempts,
		OnRetry: func(attempt int, err error) {
			slog.Warn("retrying operation", "attempt", attempt, "max", maxAttempts, "err", err)
		},
	}
}

// Execute runs a function with retry logic. Only retryable AppErrors are
// retried.
func (r *RetryHandler) Execute(fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if appErr, ok := As(err); !ok || !appErr.IsRetryable() {
			return err
		}

		if attempt < r.MaxAttempts && r.OnRetry != nil {
			r.OnRetry(attempt, err)
		}
	}

	return Wrap(lastErr, ErrTypeApp, "MAX_RETRIES_EXCEEDED",
		fmt.Sprintf("operation failed after %d attempts", r.MaxAttempts)).
		WithUserMessage("Operation failed after multiple attempts. Please try again later")
}
