package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanErrorFormatting(t *testing.T) {
	err := ErrInvalidTarget("300.0.0.1", fmt.Errorf("octet out of range"))
	assert.Contains(t, err.Error(), "TARGET_INVALID")
	assert.Contains(t, err.Error(), "300.0.0.1")

	plain := NewScanError(CodeValidation, "missing field")
	assert.Equal(t, "[VALIDATION] missing field", plain.Error())
}

func TestScanErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := WrapScanError(CodeGateUnavailable, "gate down", cause)
	assert.ErrorIs(t, err, cause)
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeNoValidPorts, GetCode(ErrNoValidPorts("x,y")))
	assert.Equal(t, CodeConscienceRejected, GetCode(ErrConscienceRejected(nil)))
	assert.Equal(t, CodeUnknown, GetCode(fmt.Errorf("plain")))

	// Codes survive wrapping.
	wrapped := fmt.Errorf("context: %w", ErrScanNotFound("abc"))
	assert.Equal(t, CodeNotFound, GetCode(wrapped))
	assert.True(t, IsNotFound(wrapped))
}

func TestGateErrorMessage(t *testing.T) {
	err := ErrConscienceRejected([]string{"blocked network", "no engagement"})
	assert.Contains(t, err.Error(), "blocked network; no engagement")

	var gateErr *GateError
	require.True(t, errors.As(err, &gateErr))
	assert.Len(t, gateErr.Violations, 2)
}

func TestIsInputError(t *testing.T) {
	assert.True(t, IsInputError(ErrInvalidTarget("x", nil)))
	assert.True(t, IsInputError(ErrNoValidPorts("")))
	assert.True(t, IsInputError(ErrGrammarUnrecognized("do a scan")))
	assert.True(t, IsInputError(ErrUnsupportedScanType("aggressive")))
	assert.False(t, IsInputError(ErrConcurrencyLimit(10)))
	assert.False(t, IsInputError(ErrScanNotFound("id")))
}
