package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrMissingState means the provider round trip lost the state parameter.
	ErrMissingState = errors.New("missing oauth state")
	// ErrMissingUser means the decoded state carried no user id.
	ErrMissingUser = errors.New("oauth state missing user id")
)

// linkState is the payload round-tripped through the provider redirect. It is
// base64 JSON and deliberately NOT signed: the stored format predates a MAC
// and callers must treat it as opaque, not as proof of identity.
// TODO: sign the state and bound its age once the frontend contract allows a
// breaking change to the initiate response.
type linkState struct {
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// EncodeState packs the initiating user's id into the redirect state.
func EncodeState(userID string) string {
	raw, _ := json.Marshal(linkState{UserID: userID, Timestamp: time.Now().UnixMilli()})
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeState unpacks a state parameter. Empty input is ErrMissingState; a
// payload without a user id is ErrMissingUser. Both are hard failures with no
// fallback identity.
func DecodeState(state string) (string, error) {
	if state == "" {
		return "", ErrMissingState
	}
	raw, err := base64.StdEncoding.DecodeString(state)
	if err != nil {
		return "", ErrMissingState
	}
	var s linkState
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", ErrMissingState
	}
	if s.UserID == "" {
		return "", ErrMissingUser
	}
	return s.UserID, nil
}
