package security

import (
	"testing"
	"time"

	"github.com/multiformats/go-multibase"
)

func testSecret(t *testing.T) string {
	t.Helper()
	s, err := multibase.Encode(multibase.Base32, []byte("a shared api secret"))
	if err != nil {
		t.Fatalf("multibase.Encode: %v", err)
	}
	return s
}

func TestCreateAPISigIsDeterministic(t *testing.T) {
	secret := testSecret(t)
	date := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	a, err := CreateAPISig(secret, date)
	if err != nil {
		t.Fatalf("CreateAPISig: %v", err)
	}
	b, err := CreateAPISig(secret, date)
	if err != nil {
		t.Fatalf("CreateAPISig: %v", err)
	}
	if a != b {
		t.Fatalf("same secret and date must produce identical signatures: %+v != %+v", a, b)
	}

	c, err := CreateAPISig(secret, date.Add(time.Second))
	if err != nil {
		t.Fatalf("CreateAPISig: %v", err)
	}
	if c.Sig == a.Sig {
		t.Fatalf("different dates must produce different signatures")
	}
	if c.Msg == a.Msg {
		t.Fatalf("different dates must produce different messages")
	}
}

func TestCreateAPISigDefaultExpiry(t *testing.T) {
	before := time.Now()
	sig, err := CreateAPISig(testSecret(t), time.Time{})
	if err != nil {
		t.Fatalf("CreateAPISig: %v", err)
	}
	msg, err := time.Parse(SigTimeLayout, sig.Msg)
	if err != nil {
		t.Fatalf("message %q does not parse with the signature layout: %v", sig.Msg, err)
	}
	if msg.Before(before.Add(DefaultSigValidity - time.Minute)) {
		t.Fatalf("default expiry %v is too near", msg)
	}
	if msg.After(before.Add(DefaultSigValidity + time.Minute)) {
		t.Fatalf("default expiry %v is too far", msg)
	}
}

func TestCreateAPISigRejectsBadSecret(t *testing.T) {
	if _, err := CreateAPISig("not multibase at all", time.Time{}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestCreateUserAuth(t *testing.T) {
	secret := testSecret(t)
	date := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	auth, err := CreateUserAuth("api-key", secret, date, "session-token")
	if err != nil {
		t.Fatalf("CreateUserAuth: %v", err)
	}
	want, err := CreateAPISig(secret, date)
	if err != nil {
		t.Fatalf("CreateAPISig: %v", err)
	}
	if auth.Key != "api-key" || auth.Token != "session-token" {
		t.Fatalf("unexpected auth: %+v", auth)
	}
	if auth.Sig != want.Sig || auth.Msg != want.Msg {
		t.Fatalf("auth signature does not match CreateAPISig output")
	}
}
