package types

import "strings"

// FieldError is one rejected request field. Field is the JSON name.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value"`
}

// ValidationError lists every rejected field of a request.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// Error joins the field messages as "field message; field message".
func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Errors))
	for _, fe := range v.Errors {
		parts = append(parts, strings.TrimSpace(fe.Field+" "+fe.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a rejected field.
func (v *ValidationError) Add(field, message string, value any) {
	v.Errors = append(v.Errors, FieldError{Field: field, Message: message, Value: value})
}
