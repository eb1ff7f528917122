package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound is returned for 404 responses
	ErrNotFound = errors.New("not found")
	// ErrTimeout marks responses where the server or a proxy gave up waiting
	ErrTimeout = errors.New("request timed out")
	// ErrMalformedTrend is returned when the trend sequences are not index-aligned
	ErrMalformedTrend = errors.New("malformed trend series")
)

// APIError is a non-2xx response from the finance API
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Detail)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrTimeout
	}
	return nil
}

// newAPIError builds an APIError from a response body. FastAPI puts a
// string or a list of validation errors under "detail".
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Detail) > 0 {
		var s string
		if err := json.Unmarshal(envelope.Detail, &s); err == nil {
			apiErr.Detail = s
			return apiErr
		}
		apiErr.Detail = string(envelope.Detail)
		return apiErr
	}

	apiErr.Detail = strings.TrimSpace(string(body))
	return apiErr
}
