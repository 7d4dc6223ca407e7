package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfThroughWrapping(t *testing.T) {
	err := fmt.Errorf("place order: %w", New(NotFound, "User not found."))
	assert.Equal(t, NotFound, KindOf(err))
	assert.Equal(t, "User not found.", Message(err))
}

func TestUntaggedErrorsAreInternal(t *testing.T) {
	err := errors.New("connection reset")
	assert.Equal(t, Internal, KindOf(err))
	assert.Equal(t, "Internal server error.", Message(err))
}

func TestInternalMessageIsHidden(t *testing.T) {
	err := Wrap(Internal, "insert order", errors.New("E11000 duplicate key"))
	assert.Equal(t, "Internal server error.", Message(err))
	assert.Contains(t, err.Error(), "E11000")
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	assert.ErrorIs(t, Wrap(Invalid, "bad", cause), cause)
}
