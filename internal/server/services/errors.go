package services

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a client-facing failure with the HTTP status the API
// reports for it.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func newStatusError(status int, format string, args ...any) *StatusError {
	return &StatusError{Status: status, Message: fmt.Sprintf(format, args...)}
}

func notFound() *StatusError {
	return &StatusError{Status: http.StatusNotFound, Message: "Not Found"}
}

func unprocessable(format string, args ...any) *StatusError {
	return newStatusError(http.StatusUnprocessableEntity, format, args...)
}

// StatusOf returns the status carried by err, or 500.
func StatusOf(err error) (int, string) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status, se.Message
	}
	return http.StatusInternalServerError, "Server Error"
}
