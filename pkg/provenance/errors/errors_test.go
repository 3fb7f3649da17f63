package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCauseAndKind(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(Internal, "persisting record", cause)

	require.True(t, Is(err, Internal))
	require.False(t, Is(err, InvalidInput))
	require.ErrorIs(t, err, cause)
}

func TestNewHasNoCause(t *testing.T) {
	err := New(InvalidInput, "bad mime type")
	require.Nil(t, err.Unwrap())
	require.True(t, Is(err, InvalidInput))
}

func TestIsFalseForPlainError(t *testing.T) {
	require.False(t, Is(fmt.Errorf("plain"), Internal))
}
