// Package common defines the error taxonomy shared by the docsync client and
// the reference store. Callers should use errors.Is / errors.As to match
// these values; typed errors carry enough structure to tell "your edit was
// rejected" apart from "the store is unavailable" and from "this is a bug".
package common

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Logical errors. Terminal, never retried.
	ErrNotFound      = errors.New("record not found")
	ErrInvalidChange = errors.New("invalid change")

	// Integrity errors. ErrIntegrity is raised by the verifier;
	// ErrCorruptionRisk is how the controller surfaces it.
	ErrIntegrity      = errors.New("integrity check failed")
	ErrCorruptionRisk = errors.New("corruption risk")

	// Concurrency errors.
	ErrConflict             = errors.New("document changed since it was read")
	ErrConcurrencyExhausted = errors.New("too many concurrent edits, try again later")

	// Transport and auth errors.
	ErrPermission   = errors.New("permission denied")
	ErrTokenExpired = errors.New("token expired")
	ErrTransfer     = errors.New("transfer failed")
	ErrShape        = errors.New("unexpected document shape")
	ErrUnavailable  = errors.New("store unavailable")

	// Store-side errors.
	ErrVersionConflict = errors.New("version conflict")
	ErrObjectNotFound  = errors.New("object not found")
)

// ConflictError reports that the store rejected a write because the
// precondition hash no longer matches the current document.
type ConflictError struct {
	Path         string
	ExpectedHash string
	StatusCode   int
	Message      string
}

func (e *ConflictError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "conflict writing %s", e.Path)
	if e.ExpectedHash != "" {
		fmt.Fprintf(&b, " at %s", shortHash(e.ExpectedHash))
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// PermissionError reports an authorization failure, including a locally
// detected credential expiry.
type PermissionError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *PermissionError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: permission denied: HTTP %d: %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: permission denied: %s", e.Op, msg)
}

func (e *PermissionError) Is(target error) bool {
	return target == ErrPermission
}

func (e *PermissionError) Unwrap() error { return e.Err }

// TransferError reports a transport fault: network failure, unexpected
// status, undecodable payload.
type TransferError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransferError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transfer failed: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transfer failed: %v", e.Op, e.Err)
}

func (e *TransferError) Is(target error) bool {
	return target == ErrTransfer
}

func (e *TransferError) Unwrap() error { return e.Err }

// ShapeError reports a well-formed payload that is not a record sequence,
// e.g. an error object returned with HTTP 200.
type ShapeError struct {
	Path string
	Kind string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: expected a JSON array of records, got %s", e.Path, e.Kind)
}

func (e *ShapeError) Is(target error) bool {
	return target == ErrShape
}

// IntegrityError names the verifier check that failed.
type IntegrityError struct {
	Check    string
	RecordID string
	Detail   string
}

func (e *IntegrityError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("integrity check %q failed for %s: %s", e.Check, e.RecordID, e.Detail)
	}
	return fmt.Sprintf("integrity check %q failed: %s", e.Check, e.Detail)
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// OperationError is the terminal error of a controller operation. Kind is
// one of the taxonomy sentinels; Err is the underlying cause.
type OperationError struct {
	Op       string
	RecordID string
	Attempts int
	Kind     error
	Err      error
}

func (e *OperationError) Error() string {
	if e.Err == nil || e.Err == e.Kind {
		return fmt.Sprintf("%s %s: %v (after %d attempts)", e.Op, e.RecordID, e.Kind, e.Attempts)
	}
	return fmt.Sprintf("%s %s: %v (after %d attempts): %v", e.Op, e.RecordID, e.Kind, e.Attempts, e.Err)
}

func (e *OperationError) Is(target error) bool {
	return target == e.Kind
}

func (e *OperationError) Unwrap() error { return e.Err }

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
