package errors

import (
	"strings"

	"tempnotes/pkg/models"
)

// MaxContentSize bounds note content
const MaxContentSize = 1024 * 1024

// MaxNotebookNameLength bounds notebook names
const MaxNotebookNameLength = 64

// ValidationResult holds validation results
type ValidationResult struct {
	IsValid bool
	Errors  []*AppError
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(err *AppError) {
	vr.IsValid = false
	vr.Errors = append(vr.Errors, err)
}

// GetFirstError returns the first error or nil
func (vr *ValidationResult) GetFirstError() *AppError {
	if len(vr.Errors) > 0 {
		return vr.Errors[0]
	}
	return nil
}

// Validator provides validation utilities
type Validator struct {
	languages map[string]bool
}

// NewValidator creates a validator. When languages is empty any language
// hint is accepted.
func NewValidator(languages ...string) *Validator {
	v := &Validator{}
	if len(languages) > 0 {
		v.languages = make(map[string]bool, len(languages)+1)
		v.languages[models.LanguageText] = true
		for _, l := range languages {
			v.languages[l] = true
		}
	}
	return v
}

// ValidateNoteFields validates an edit before it reaches the store
func (v *Validator) ValidateNoteFields(f models.NoteFields) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	if len(f.Content) > MaxContentSize {
		result.AddError(New(ErrTypeValidation, "CONTENT_TOO_LARGE", "note content too large").
			WithUserMessage("Note content is too large. Maximum size is 1MB").
			WithContext("size", len(f.Content)))
	}

	if f.Language != "" && v.languages != nil && !v.languages[f.Language] {
		result.AddError(New(ErrTypeValidation, "LANGUAGE_UNSUPPORTED", "unsupported language").
			WithUserMessage("Unsupported language").
			WithContext("language", f.Language))
	}

	return result
}

// ValidateNotebookName validates a new notebook name
func (v *Validator) ValidateNotebookName(name string) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	if strings.TrimSpace(name) == "" {
		result.AddError(New(ErrTypeValidation, "NOTEBOOK_EMPTY", "notebook name cannot be empty").
			WithUserMessage("Notebook name cannot be empty"))
		return result
	}

	if models.IsBuiltinView(name) {
		result.AddError(New(ErrTypeValidation, "NOTEBOOK_RESERVED", "notebook name is reserved").
			WithUserMessage("That name is used by a built-in view").
			WithContext("name", name))
	}

	if len(name) > MaxNotebookNameLength {
		result.AddError(New(ErrTypeValidation, "NOTEBOOK_TOO_LONG", "notebook name too long").
			WithUserMessage("Notebook name is too long").
			WithContext("length", len(name)))
	}

	return result
}

// ValidateImageIndex validates an image position within a note
func (v *Validator) ValidateImageIndex(n models.Note, index int) *ValidationResult {
	result := &ValidationResult{IsValid: true}
	if index < 0 || index >= len(n.Images) {
		result.AddError(ErrImageNotFound.WithContext("index", index))
	}
	return result
}
