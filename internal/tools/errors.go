package tools

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Registry errors.
var (
	// ErrToolNotFound is returned when a directive is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNameEmpty is returned when a tool has no name.
	ErrToolNameEmpty = errors.New("tool name cannot be empty")

	// ErrToolExecuteNil is returned when a tool has no execute function.
	ErrToolExecuteNil = errors.New("tool execute function cannot be nil")

	// ErrToolAlreadyRegistered is returned when registering a duplicate name or alias.
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrMissingRequiredArg is returned when a required argument is missing or blank.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrHandlerPanic is returned when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")
)

// ErrorOutput renders err as the "ERROR: ..." string a directive result carries.
func ErrorOutput(err error) string {
	msg := err.Error()
	if strings.HasPrefix(msg, "ERROR:") {
		return msg
	}
	r, size := utf8.DecodeRuneInString(msg)
	return "ERROR: " + string(unicode.ToUpper(r)) + msg[size:]
}
