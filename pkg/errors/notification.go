package errors

// Level of a user-visible notification
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Notification is the user-visible form of an outcome
type Notification struct {
	Level     Level          `json:"level"`
	Type      string         `json:"type,omitempty"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// Notify builds a non-error notification
func Notify(level Level, message string) *Notification {
	return &Notification{Level: level, Message: message}
}

// ToNotification converts an error to a user-visible notification
func ToNotification(err error) *Notification {
	if appErr, ok := As(err); ok {
		level := LevelError
		if appErr.Type == ErrTypeFormatter && appErr.Code == ErrPlainTextFormat.Code {
			level = LevelInfo
		}
		return &Notification{
			Level:     level,
			Type:      string(appErr.Type),
			Code:      appErr.Code,
			Message:   appErr.GetUserMessage(),
			Retryable: appErr.Retryable,
			Context:   appErr.Context,
		}
	}

	return &Notification{
		Level:     LevelError,
		Type:      string(ErrTypeApp),
		Code:      "GENERIC_ERROR",
		Message:   "An unexpected error occurred. Please try again",
		Retryable: true,
		Context:   map[string]any{"originalError": err.Error()},
	}
}

// StatusCode maps an error to an HTTP status code
func StatusCode(err error) int {
	appErr, ok := As(err)
	if !ok {
		return 500
	}
	switch appErr.Type {
	case ErrTypeNotFound:
		return 404
	case ErrTypeImport, ErrTypeValidation, ErrTypeImage:
		return 400
	case ErrTypeFormatter:
		return 422
	case ErrTypeCrypto:
		return 403
	}
	return 500
}
