package errors

import (
	stderr "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	sentinel := New("top level failure")
	cause := stderr.New("root cause")

	wrapped := sentinel.Wrap(cause)
	require.Error(t, wrapped)
	assert.True(t, Is(wrapped, sentinel))
	assert.True(t, Is(wrapped, cause))
	assert.Equal(t, "top level failure: root cause", wrapped.Error())

	// wrapping must not mutate the sentinel
	assert.NoError(t, sentinel.Unwrap())
}

func TestWrapMessage(t *testing.T) {
	sentinel := New("conflict")
	wrapped := sentinel.WrapMessage("ref %q moved", "refs/global/base")
	assert.True(t, Is(wrapped, sentinel))
	assert.Contains(t, wrapped.Error(), `ref "refs/global/base" moved`)
}

func TestAs(t *testing.T) {
	wrapped := New("outer").Wrap(New("inner"))
	var target *Error
	require.True(t, As(wrapped, &target))
	assert.Equal(t, "outer: inner", target.Error())
}
