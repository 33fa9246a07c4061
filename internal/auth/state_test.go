package auth

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestState_RoundTrip(t *testing.T) {
	state := EncodeState("user-42")

	userID, err := DecodeState(state)
	require.NoError(t, err)
	require.Equal(t, "user-42", userID)
}

func TestState_CarriesTimestamp(t *testing.T) {
	raw, err := base64.StdEncoding.DecodeString(EncodeState("user-42"))
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Equal(t, "user-42", payload["userId"])
	require.Contains(t, payload, "timestamp")
}

func TestDecodeState_Missing(t *testing.T) {
	_, err := DecodeState("")
	require.ErrorIs(t, err, ErrMissingState)
}

func TestDecodeState_Unreadable(t *testing.T) {
	for _, state := range []string{
		"!!!not-base64!!!",
		base64.StdEncoding.EncodeToString([]byte("not json")),
	} {
		_, err := DecodeState(state)
		require.ErrorIs(t, err, ErrMissingState, "state %q", state)
	}
}

func TestDecodeState_NoUser(t *testing.T) {
	state := base64.StdEncoding.EncodeToString([]byte(`{"timestamp": 1700000000000}`))
	_, err := DecodeState(state)
	require.ErrorIs(t, err, ErrMissingUser)
}
