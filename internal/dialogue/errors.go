package dialogue

import (
	"fmt"
	"strings"
)

// ValidationError reports user input that does not match the expected type
// or range for the current state. Recovered in place: the state does not
// advance and the record is not mutated.
type ValidationError struct {
	State State
	Input string
	Hint  string // user-facing hint, already localized
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dialogue: invalid input %q in state %s", e.Input, e.State)
}

// MissingFieldError reports an attempt to generate an artifact while
// required questionnaire fields are still empty. The backend is never
// called in that case.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return "dialogue: missing required fields: " + strings.Join(e.Fields, ", ")
}
