package rpost

import (
	"fmt"
	"strings"
)

// MissingInputError is returned when required inputs resolved to empty values.
type MissingInputError struct {
	Inputs []string
}

func (e MissingInputError) Error() string {
	if len(e.Inputs) == 0 {
		return "required input missing"
	}
	return fmt.Sprintf("required input missing (%s)", strings.Join(e.Inputs, ", "))
}

// ValidationError captures an input that was present but unusable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
