package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestAPIError_UnwrapsToSentinel(t *testing.T) {
	err := fmt.Errorf("login: %w", &apperrors.APIError{
		StatusCode: 401,
		Message:    "Invalid email or password",
		Err:        apperrors.ErrInvalidCredentials,
	})

	require.True(t, apperrors.Is(err, apperrors.ErrInvalidCredentials))
	require.False(t, apperrors.Is(err, apperrors.ErrRenewalFailed))
	require.Equal(t, "Invalid email or password", apperrors.ServerMessage(err))
}

func TestServerMessage_PlainError(t *testing.T) {
	require.Empty(t, apperrors.ServerMessage(stderrors.New("boom")))
	require.Empty(t, apperrors.ServerMessage(nil))
}

func TestWrapf(t *testing.T) {
	require.NoError(t, apperrors.Wrapf(nil, "ignored"))

	err := apperrors.Wrapf(apperrors.ErrNetwork, "renew %s", "attempt 2")
	require.EqualError(t, err, "renew attempt 2: network error")
	require.True(t, apperrors.Is(err, apperrors.ErrNetwork))
}
