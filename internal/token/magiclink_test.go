package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMagicLink_MintVerify(t *testing.T) {
	ml := NewMagicLink("magic-secret")

	tok, err := ml.Mint("user@example.com")
	require.NoError(t, err)

	email, err := ml.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "user@example.com", email)
}

func TestMagicLink_RejectsForeignSecret(t *testing.T) {
	ml := NewMagicLink("magic-secret")
	other := NewMagicLink("other-secret")

	tok, err := other.Mint("user@example.com")
	require.NoError(t, err)

	_, err = ml.Verify(tok)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestMagicLink_RejectsSessionTokens(t *testing.T) {
	// a session token signed with the same secret still lacks the email claim
	svc := NewService("magic-secret", "refresh-secret", 15*time.Minute, 15*time.Minute)
	pair, err := svc.GeneratePair("user-1")
	require.NoError(t, err)

	ml := NewMagicLink("magic-secret")
	_, err = ml.Verify(pair.AccessToken)
	require.ErrorIs(t, err, ErrMissingEmail)
}

func TestMagicLink_Garbage(t *testing.T) {
	ml := NewMagicLink("magic-secret")
	_, err := ml.Verify("definitely-not-a-token")
	require.ErrorIs(t, err, ErrTokenInvalid)
}
