package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	t.Run("returns code of wrapped domain error", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeInvalidGrant, "code rejected"))
		assert.Equal(t, CodeInvalidGrant, CodeOf(err))
		assert.True(t, HasCode(err, CodeInvalidGrant))
	})

	t.Run("plain errors map to server_error", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
		assert.False(t, HasCode(errors.New("boom"), CodeInvalidGrant))
	})
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeInternal, "failed to consume code")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to consume code", Message(err))
	assert.Nil(t, Wrap(nil, CodeInternal, "unused"))
}

func TestErrorsIsMatchesCodeAndMessage(t *testing.T) {
	err := New(CodeInvalidClient, "client authentication failed")
	require.ErrorIs(t, err, New(CodeInvalidClient, "client authentication failed"))
	assert.NotErrorIs(t, err, New(CodeInvalidClient, "other"))
}
