package places

import (
	"errors"
	"fmt"
)

// Error kinds reported by the Places API client.
const (
	KindRateLimit = "rate_limit"
	KindTimeout   = "timeout"
	KindTransport = "transport"
	KindAPI       = "api"
)

// APIError describes a failed Places API call.
type APIError struct {
	Kind    string // one of the Kind* constants
	Status  string // API status string, e.g. OVER_QUERY_LIMIT, when present
	Message string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("places: %s (%s): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("places: %s: %s", e.Kind, e.Message)
}

// IsRetryable reports whether the call may succeed on a later attempt.
func (e *APIError) IsRetryable() bool {
	return e.Kind == KindRateLimit || e.Kind == KindTimeout || e.Kind == KindTransport
}

// AsAPIError unwraps err to an *APIError if one is in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func statusError(status, message string) *APIError {
	kind := KindAPI
	switch status {
	case "OVER_QUERY_LIMIT", "RESOURCE_EXHAUSTED":
		kind = KindRateLimit
	case "UNKNOWN_ERROR":
		kind = KindTransport
	}
	return &APIError{Kind: kind, Status: status, Message: message}
}
