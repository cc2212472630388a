package upstream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from the analytics API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("analytics API error: %s (%d)", e.Message, e.Status)
}

// Unauthorized reports whether the API rejected the credential.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// errorBody is the error envelope returned by the API. message is either a
// string or a list of validation messages.
type errorBody struct {
	Message json.RawMessage `json:"message"`
	Code    string          `json:"code"`
	Error   string          `json:"error"`
}

// parseAPIError builds an APIError from a response body, falling back to
// the HTTP status text when the body carries no message.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		apiErr.Code = eb.Code
		apiErr.Message = decodeMessage(eb.Message)
		if apiErr.Message == "" {
			apiErr.Message = eb.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func decodeMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return ""
}
