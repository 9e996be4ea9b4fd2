package common

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FieldError represents a single configuration field that failed a rule
type FieldError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("invalid value for '%s' (%v): %s", e.Field, e.Value, e.Message)
}

// Validator collects field errors
type Validator struct {
	errors []FieldError
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		errors: make([]FieldError, 0),
	}
}

// Field validates a field and collects errors
func (v *Validator) Field(fieldName string, value interface{}, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

// Check records message against fieldName when ok is false.
func (v *Validator) Check(ok bool, fieldName string, value interface{}, message string) *Validator {
	if !ok {
		v.errors = append(v.errors, FieldError{Field: fieldName, Value: value, Message: message})
	}
	return v
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// ErrorMessage returns a combined error message as string
func (v *Validator) ErrorMessage() string {
	if !v.HasErrors() {
		return ""
	}

	var messages []string
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// AppError returns nil when nothing failed, otherwise an AppError with code.
func (v *Validator) AppError(code string) error {
	if !v.HasErrors() {
		return nil
	}
	return NewAppError(code, v.ErrorMessage(), ErrInvalidInput)
}

// ValidationRule represents a single validation rule
type ValidationRule func(fieldName string, value interface{}) *FieldError

// Required - Common validation rules
func Required(fieldName string, value interface{}) *FieldError {
	if value == nil {
		return &FieldError{Field: fieldName, Value: value, Message: "is required"}
	}

	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return &FieldError{Field: fieldName, Value: value, Message: "is required"}
		}
	case []string:
		if len(v) == 0 {
			return &FieldError{Field: fieldName, Value: value, Message: "is required"}
		}
	}
	return nil
}

// Positive rejects zero or negative numbers and durations.
func Positive(fieldName string, value interface{}) *FieldError {
	bad := false
	switch v := value.(type) {
	case time.Duration:
		bad = v <= 0
	case int:
		bad = v <= 0
	case int64:
		bad = v <= 0
	}
	if bad {
		return &FieldError{Field: fieldName, Value: value, Message: "must be positive"}
	}
	return nil
}

// NonNegative rejects negative integers.
func NonNegative(fieldName string, value interface{}) *FieldError {
	if v, ok := value.(int); ok && v < 0 {
		return &FieldError{Field: fieldName, Value: value, Message: "must not be negative"}
	}
	return nil
}

// OneOf builds a rule accepting only the listed strings.
func OneOf(allowed ...string) ValidationRule {
	return func(fieldName string, value interface{}) *FieldError {
		str, _ := value.(string)
		for _, a := range allowed {
			if str == a {
				return nil
			}
		}
		return &FieldError{
			Field:   fieldName,
			Value:   value,
			Message: fmt.Sprintf("must be one of %s", strings.Join(allowed, ", ")),
		}
	}
}

// AbsoluteURL accepts http(s) URLs with a host.
func AbsoluteURL(fieldName string, value interface{}) *FieldError {
	str, ok := value.(string)
	if !ok {
		return &FieldError{Field: fieldName, Value: value, Message: "must be a string"}
	}
	u, err := url.Parse(str)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &FieldError{Field: fieldName, Value: value, Message: "must be an absolute http(s) URL"}
	}
	return nil
}
