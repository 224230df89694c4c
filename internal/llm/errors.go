package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrQuotaExhausted marks a failure that must end the run without retry.
	ErrQuotaExhausted = errors.New("quota exhausted")

	// ErrOverloaded marks a temporary capacity failure, retried after a fixed delay.
	ErrOverloaded = errors.New("model overloaded")
)

// Class is the retry-relevant category of a generation failure.
type Class int

const (
	ClassNone Class = iota
	ClassTransient
	ClassOverloaded
	ClassQuota
	ClassCancelled
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransient:
		return "transient"
	case ClassOverloaded:
		return "overloaded"
	case ClassQuota:
		return "quota"
	case ClassCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Classify maps an error from a generation call to its Class. API status
// codes are checked first, then the sentinels, then message text.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, context.Canceled) {
		return ClassCancelled
	}
	if errors.Is(err, ErrQuotaExhausted) {
		return ClassQuota
	}
	if errors.Is(err, ErrOverloaded) {
		return ClassOverloaded
	}

	if apiErr, ok := asAPIError(err); ok {
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
			return ClassQuota
		case apiErr.Code == http.StatusServiceUnavailable || apiErr.Status == "UNAVAILABLE":
			return ClassOverloaded
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"), strings.Contains(msg, "resource_exhausted"), strings.Contains(msg, "resource exhausted"):
		return ClassQuota
	case strings.Contains(msg, "overloaded"):
		return ClassOverloaded
	}
	return ClassTransient
}

func asAPIError(err error) (genai.APIError, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return *p, true
	}
	return genai.APIError{}, false
}

// Tag tags err with the matching sentinel so callers can use errors.Is.
func Tag(err error) error {
	switch Classify(err) {
	case ClassQuota:
		if !errors.Is(err, ErrQuotaExhausted) {
			return errors.Join(ErrQuotaExhausted, err)
		}
	case ClassOverloaded:
		if !errors.Is(err, ErrOverloaded) {
			return errors.Join(ErrOverloaded, err)
		}
	}
	return err
}
