// Package security builds the signed API credential accepted by a threaddb
// service as an alternative to the challenge/response handshake: an
// HMAC-SHA256 over a timestamp, proving possession of a shared secret.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/multiformats/go-multibase"
)

// SigTimeLayout is the ISO-8601 UTC layout the signature message uses. The
// fractional part keeps trailing zeros so the message round-trips through
// systems that print timestamps with fixed precision.
const SigTimeLayout = "2006-01-02T15:04:05.0000000Z07:00"

// DefaultSigValidity is how far in the future the signature message is dated
// when the caller does not pick an expiry. The window is enforced by the
// server; this layer only manufactures the pair.
const DefaultSigValidity = 30 * time.Minute

// APISig is a signed credential: the multibase MAC and the timestamp message
// it covers.
type APISig struct {
	Sig string
	Msg string
}

// CreateAPISig signs an expiry timestamp with the multibase-encoded secret.
// A zero date means now plus DefaultSigValidity. The result is deterministic
// for a fixed secret and date.
func CreateAPISig(secret string, date time.Time) (APISig, error) {
	if date.IsZero() {
		date = time.Now().Add(DefaultSigValidity)
	}
	_, sec, err := multibase.Decode(secret)
	if err != nil {
		return APISig{}, fmt.Errorf("security: decoding secret: %w", err)
	}
	msg := date.UTC().Format(SigTimeLayout)
	mac := hmac.New(sha256.New, sec)
	mac.Write([]byte(msg))
	sig, err := multibase.Encode(multibase.Base32, mac.Sum(nil))
	if err != nil {
		return APISig{}, fmt.Errorf("security: encoding signature: %w", err)
	}
	return APISig{Sig: sig, Msg: msg}, nil
}

// UserAuth bundles everything a caller needs to authenticate as a user: the
// API key, its signed credential, and an optional session token.
type UserAuth struct {
	Key   string
	Sig   string
	Msg   string
	Token string
}

// CreateUserAuth signs the secret for the given key and wraps the result
// with the token.
func CreateUserAuth(key, secret string, date time.Time, token string) (UserAuth, error) {
	sig, err := CreateAPISig(secret, date)
	if err != nil {
		return UserAuth{}, err
	}
	return UserAuth{Key: key, Sig: sig.Sig, Msg: sig.Msg, Token: token}, nil
}
