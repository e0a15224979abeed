package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrors_MatchSentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"conflict", &ConflictError{Path: "data/projects.json", ExpectedHash: "abc", StatusCode: 409}, ErrConflict},
		{"permission", &PermissionError{Op: "fetch", StatusCode: 401}, ErrPermission},
		{"transfer", &TransferError{Op: "write", StatusCode: 502, Err: errors.New("bad gateway")}, ErrTransfer},
		{"shape", &ShapeError{Path: "p", Kind: "object"}, ErrShape},
		{"integrity", &IntegrityError{Check: "count", Detail: "2 != 3"}, ErrIntegrity},
		{"operation", &OperationError{Op: "update", RecordID: "x", Kind: ErrNotFound}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.want)
		})
	}
}

func TestPermissionError_UnwrapsTokenExpired(t *testing.T) {
	err := &PermissionError{Op: "update", Err: ErrTokenExpired}
	assert.ErrorIs(t, err, ErrPermission)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Contains(t, err.Error(), "token expired")
}

func TestOperationError_UnwrapsCause(t *testing.T) {
	cause := &IntegrityError{Check: "echo", RecordID: "p1", Detail: "title"}
	err := &OperationError{Op: "update", RecordID: "p1", Attempts: 1, Kind: ErrCorruptionRisk, Err: cause}

	assert.ErrorIs(t, err, ErrCorruptionRisk)
	assert.ErrorIs(t, err, ErrIntegrity)

	var ie *IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "echo", ie.Check)
}

func TestConflictError_Message(t *testing.T) {
	err := &ConflictError{
		Path:         "data/projects.json",
		ExpectedHash: "0123456789abcdef0123",
		StatusCode:   409,
		Message:      "does not match",
	}
	assert.Equal(t, "conflict writing data/projects.json at 0123456789ab: HTTP 409: does not match", err.Error())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err      error
		class    Class
		exitCode int
	}{
		{nil, ClassUnknown, 0},
		{&OperationError{Kind: ErrNotFound}, ClassRejected, 1},
		{&OperationError{Kind: ErrInvalidChange}, ClassRejected, 1},
		{&PermissionError{Op: "x"}, ClassRejected, 1},
		{&OperationError{Kind: ErrConcurrencyExhausted}, ClassRetryLater, 3},
		{&OperationError{Kind: ErrUnavailable}, ClassUnavailable, 2},
		{&OperationError{Kind: ErrCorruptionRisk}, ClassBug, 4},
		{errors.New("boom"), ClassUnknown, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.class, Classify(tt.err), "%v", tt.err)
		assert.Equal(t, tt.exitCode, ExitCode(tt.err), "%v", tt.err)
	}
}

func TestClass_String(t *testing.T) {
	assert.Equal(t, "rejected", ClassRejected.String())
	assert.Equal(t, "retry_later", ClassRetryLater.String())
	assert.Equal(t, "unavailable", ClassUnavailable.String())
	assert.Equal(t, "bug", ClassBug.String())
	assert.Equal(t, "unknown", Class(99).String())
}
