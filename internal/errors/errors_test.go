package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageErrorUnwrap(t *testing.T) {
	underlying := errors.New("disk full")
	err := NewStorageError(CodeDBLocked, "commit", underlying)

	require.ErrorIs(t, err, underlying)
	assert.Contains(t, err.Error(), "commit")
	assert.Contains(t, err.Error(), string(CodeDBLocked))
}

func TestWrapClientFixableIsInvalidParams(t *testing.T) {
	err := NewAccessError(CodePathTraversal, "../etc/passwd")
	env := Wrap(err)

	assert.Equal(t, "invalid_params", env.Kind)
	assert.Equal(t, CodePathTraversal, env.Code)
	assert.NotEmpty(t, env.Hint)
}

func TestWrapServerFaultIsInternalError(t *testing.T) {
	err := NewStorageError(CodePoolError, "acquire", errors.New("exhausted"))
	env := Wrap(err)

	assert.Equal(t, "internal_error", env.Kind)
	assert.Equal(t, CodePoolError, env.Code)
}

func TestWrapUnknownErrorIsInternal(t *testing.T) {
	env := Wrap(errors.New("boom"))
	assert.Equal(t, "internal_error", env.Kind)
	assert.Empty(t, env.Code)
}
