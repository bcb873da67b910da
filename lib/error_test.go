package lib

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("submit step: %w", ErrInsufficientFunds(5, 2))
	require.True(t, IsModule(wrapped, ConstructionModule))
	require.True(t, HasCode(wrapped, ConstructionModule, CodeInsufficientFunds))
	require.False(t, HasCode(wrapped, ConstructionModule, CodeInvalidSignature))
	require.False(t, Retryable(wrapped))
	require.True(t, Retryable(ErrStartupTimeout("node-0")))
	require.True(t, Retryable(ErrPostRequest(errors.New("eof"))))
	require.False(t, Retryable(errors.New("plain")))
}

func TestErrorJoin(t *testing.T) {
	joined := errors.Join(ErrStartupTimeout("node-0"), ErrLaunch("node-1", errors.New("exec format error")))
	require.True(t, HasCode(joined, StartupModule, CodeStartupTimeout))
	require.True(t, HasCode(joined, StartupModule, CodeLaunch))
	require.Contains(t, joined.Error(), "node-1")
}
