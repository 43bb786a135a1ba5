package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass groups provider failures by how the conversation should react.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassUnauthorized
	ClassForbidden
	ClassRateLimited
)

func (c ErrorClass) String() string {
	switch c {
	case ClassUnauthorized:
		return "unauthorized"
	case ClassForbidden:
		return "forbidden"
	case ClassRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// ProviderError is a structured failure reported by a text-generation backend.
type ProviderError struct {
	Provider   string
	StatusCode int
	Class      ErrorClass
	Reason     string // vendor reason/status code, e.g. API_KEY_INVALID
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s error [%d %s]: %s", e.Provider, e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s error [%d]: %s", e.Provider, e.StatusCode, e.Message)
}

// ClassOf returns the class of err, ClassUnknown for anything that is not a
// ProviderError (network failures, decode errors, cancellations).
func ClassOf(err error) ErrorClass {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassUnknown
}

// ClassifyStatus maps an HTTP status to an error class.
func ClassifyStatus(status int) ErrorClass {
	switch status {
	case http.StatusUnauthorized:
		return ClassUnauthorized
	case http.StatusForbidden, http.StatusPaymentRequired:
		return ClassForbidden
	case http.StatusTooManyRequests:
		return ClassRateLimited
	default:
		return ClassUnknown
	}
}
