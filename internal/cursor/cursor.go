// Package cursor encodes keyset pagination positions as opaque tokens.
//
// A token is the unpadded base64url form of a small versioned JSON envelope.
// Decoders reject versions they do not know instead of guessing.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Version is the envelope version written by Encode.
const Version = 1

// ErrInvalidCursor reports a token that cannot be decoded.
var ErrInvalidCursor = errors.New("invalid cursor")

// Position is the (timestamp, id) pair a cursor points at.
type Position struct {
	Timestamp time.Time
	ID        string
}

// envelope splits the timestamp into Unix seconds and a nanosecond offset so
// every year a log can carry survives the round trip.
type envelope struct {
	V int    `json:"v"`
	S *int64 `json:"s"`
	N int64  `json:"n"`
	I string `json:"i"`
}

// Encode returns the token for a row position.
func Encode(ts time.Time, id string) string {
	sec := ts.Unix()
	payload, _ := json.Marshal(envelope{V: Version, S: &sec, N: int64(ts.Nanosecond()), I: id})
	return base64.RawURLEncoding.EncodeToString(payload)
}

// Decode parses a token produced by Encode.
func Decode(token string) (Position, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Position{}, ErrInvalidCursor
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Position{}, ErrInvalidCursor
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Position{}, ErrInvalidCursor
	}
	if env.V != Version || env.S == nil || env.I == "" {
		return Position{}, ErrInvalidCursor
	}
	if env.N < 0 || env.N >= int64(time.Second) {
		return Position{}, ErrInvalidCursor
	}
	if _, err := uuid.Parse(env.I); err != nil {
		return Position{}, ErrInvalidCursor
	}
	return Position{Timestamp: time.Unix(*env.S, env.N).UTC(), ID: env.I}, nil
}
