// Package validators provides field validation rules producing user-facing results,
// and the error type messages return from Validate.
package validators

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is wrapped by every ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationCode represents the type of validation result.
type ValidationCode string

const (
	ValidationCodeUnspecified ValidationCode = "unspecified"
	ValidationCodeSuccess     ValidationCode = "success"
	ValidationCodeRequired    ValidationCode = "required"
	ValidationCodeInvalid     ValidationCode = "invalid"
)

// ValidationOption customizes a ValidationResult.
type ValidationOption func(*ValidationResult)

// ValidationResult is the outcome of validating one field.
type ValidationResult struct {
	IsValid         bool           `json:"is_valid"`
	FieldName       string         `json:"field_name"`
	Value           string         `json:"value"`
	Message         string         `json:"message"`
	SuggestedAction string         `json:"suggested_action"`
	ValidationCode  ValidationCode `json:"validation_code"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// WithValue sets the displayed value.
func WithValue(value string) ValidationOption {
	return func(vr *ValidationResult) {
		vr.Value = value
	}
}

// WithMaskedValue sets the displayed value, masked.
func WithMaskedValue(value string) ValidationOption {
	return func(vr *ValidationResult) {
		vr.Value = MaskString(value)
	}
}

// WithMessage sets the validation message.
func WithMessage(message string) ValidationOption {
	return func(vr *ValidationResult) {
		vr.Message = message
	}
}

// WithSuggestedAction sets the suggested action.
func WithSuggestedAction(action string) ValidationOption {
	return func(vr *ValidationResult) {
		vr.SuggestedAction = action
	}
}

// WithValidationCode sets the validation code.
func WithValidationCode(code ValidationCode) ValidationOption {
	return func(vr *ValidationResult) {
		vr.ValidationCode = code
	}
}

// WithMetadata adds a metadata entry.
func WithMetadata(key string, value any) ValidationOption {
	return func(vr *ValidationResult) {
		if vr.Metadata == nil {
			vr.Metadata = make(map[string]any)
		}
		vr.Metadata[key] = value
	}
}

// NewValidationResult creates a result for fieldName.
func NewValidationResult(isValid bool, fieldName string, options ...ValidationOption) *ValidationResult {
	vr := &ValidationResult{
		IsValid:        isValid,
		FieldName:      fieldName,
		ValidationCode: ValidationCodeUnspecified,
	}
	for _, option := range options {
		option(vr)
	}
	return vr
}

func valid(fieldName, displayValue string) *ValidationResult {
	return NewValidationResult(true, fieldName,
		WithValue(displayValue),
		WithValidationCode(ValidationCodeSuccess),
	)
}

func invalid(fieldName, displayValue string, code ValidationCode, message, action string) *ValidationResult {
	return NewValidationResult(false, fieldName,
		WithValue(displayValue),
		WithMessage(message),
		WithSuggestedAction(action),
		WithValidationCode(code),
	)
}

// ValidationError reports every failed field of a message.
type ValidationError struct {
	Failures []*ValidationResult
}

func (e *ValidationError) Error() string {
	messages := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		messages[i] = fmt.Sprintf("%s: %s", f.FieldName, f.Message)
	}
	return strings.Join(messages, "; ")
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Field returns the failure recorded for fieldName, if any.
func (e *ValidationError) Field(fieldName string) (*ValidationResult, bool) {
	for _, f := range e.Failures {
		if f.FieldName == fieldName {
			return f, true
		}
	}
	return nil, false
}

// Builder collects results in the order they were added.
type Builder struct {
	results []*ValidationResult
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add records result, applying options first.
func (b *Builder) Add(result *ValidationResult, options ...ValidationOption) *Builder {
	for _, option := range options {
		option(result)
	}
	b.results = append(b.results, result)
	return b
}

// Results returns every recorded result.
func (b *Builder) Results() []*ValidationResult {
	return append([]*ValidationResult(nil), b.results...)
}

// Err returns a *ValidationError holding the failed results, or nil when all passed.
func (b *Builder) Err() error {
	var failures []*ValidationResult
	for _, r := range b.results {
		if !r.IsValid {
			failures = append(failures, r)
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &ValidationError{Failures: failures}
}
