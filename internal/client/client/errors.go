package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/docsync/internal/common"
)

// APIError is a non-2xx response from the store.
type APIError struct {
	StatusCode int
	Message    string
	Errors     []ValidationError
}

type ValidationError struct {
	Resource string `json:"resource"`
	Code     string `json:"code"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "store: HTTP %d: %s", e.StatusCode, e.Message)
	for _, v := range e.Errors {
		msg := v.Message
		if msg == "" {
			msg = v.Code
		}
		fmt.Fprintf(&b, "; %s.%s: %s", v.Resource, v.Field, msg)
	}
	return b.String()
}

// text is every message carried by e, lowercased.
func (e *APIError) text() string {
	parts := []string{e.Message}
	for _, v := range e.Errors {
		parts = append(parts, v.Message, v.Code)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func parseAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status}
	var payload struct {
		Message string            `json:"message"`
		Errors  []ValidationError `json:"errors"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		e.Message = payload.Message
		e.Errors = payload.Errors
		return e
	}
	e.Message = strings.TrimSpace(string(body))
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func isRateLimitMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "abuse detection")
}

// isConflictMessage reports whether a 422 describes a failed precondition
// rather than a malformed request.
func isConflictMessage(lower string) bool {
	return strings.Contains(lower, "does not match") ||
		strings.Contains(lower, "not a fast forward") ||
		strings.Contains(lower, "conflict")
}

// mapError turns a transport or API failure into the common taxonomy.
// 409 and 412 are conflicts, as is a 422 whose message says so. 401 and
// 403 are permission failures unless the 403 is a rate limit. Anything
// else is a transfer failure.
func mapError(op, path, hash string, err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return &common.TransferError{Op: op, Err: err}
	}
	switch status := apiErr.StatusCode; {
	case status == http.StatusConflict, status == http.StatusPreconditionFailed:
		return &common.ConflictError{Path: path, ExpectedHash: hash, StatusCode: status, Message: apiErr.Message}
	case status == http.StatusUnprocessableEntity && isConflictMessage(apiErr.text()):
		return &common.ConflictError{Path: path, ExpectedHash: hash, StatusCode: status, Message: apiErr.Message}
	case status == http.StatusUnauthorized:
		pe := &common.PermissionError{Op: op, StatusCode: status, Message: apiErr.Message}
		if strings.Contains(apiErr.text(), common.ErrTokenExpired.Error()) {
			pe.Err = common.ErrTokenExpired
		}
		return pe
	case status == http.StatusForbidden && !isRateLimitMessage(apiErr.Message):
		return &common.PermissionError{Op: op, StatusCode: status, Message: apiErr.Message}
	default:
		return &common.TransferError{Op: op, StatusCode: status, Err: apiErr}
	}
}
