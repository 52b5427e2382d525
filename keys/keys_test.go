package keys

import (
	"bytes"
	"testing"
)

func TestSignVerify(t *testing.T) {
	priv, err := NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	pub := priv.Public()

	for _, data := range [][]byte{
		[]byte("x"),
		[]byte("a longer challenge payload"),
		bytes.Repeat([]byte{0xff}, 1024),
	} {
		sig := priv.Sign(data)
		if !pub.Verify(data, sig) {
			t.Fatalf("Verify rejected a valid signature over %d bytes", len(data))
		}

		mutated := append([]byte(nil), data...)
		mutated[0] ^= 0x01
		if pub.Verify(mutated, sig) {
			t.Fatalf("Verify accepted a signature over mutated data")
		}

		badSig := append([]byte(nil), sig...)
		badSig[len(badSig)-1] ^= 0x01
		if pub.Verify(data, badSig) {
			t.Fatalf("Verify accepted a mutated signature")
		}
	}
}

func TestSignIsDeterministic(t *testing.T) {
	priv, err := NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	data := []byte("challenge")
	if !bytes.Equal(priv.Sign(data), priv.Sign(data)) {
		t.Fatalf("expected deterministic signatures for a fixed key/data pair")
	}
}

func TestPrivateKeyStringRoundTrip(t *testing.T) {
	priv, err := NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	back, err := PrivateKeyFromString(priv.String())
	if err != nil {
		t.Fatalf("PrivateKeyFromString: %v", err)
	}
	if !bytes.Equal(back.Bytes(), priv.Bytes()) {
		t.Fatalf("private key round-trip mismatch")
	}

	pub := priv.Public()
	pubBack, err := PublicKeyFromString(pub.String())
	if err != nil {
		t.Fatalf("PublicKeyFromString: %v", err)
	}
	if !bytes.Equal(pubBack.Bytes(), pub.Bytes()) {
		t.Fatalf("public key round-trip mismatch")
	}
}

func TestPrivateKeyFromSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	a, err := PrivateKeyFromSeed(seed)
	if err != nil {
		t.Fatalf("PrivateKeyFromSeed: %v", err)
	}
	b, err := PrivateKeyFromSeed(seed)
	if err != nil {
		t.Fatalf("PrivateKeyFromSeed: %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("expected deterministic derivation from a fixed seed")
	}

	if _, err := PrivateKeyFromSeed(seed[:16]); err == nil {
		t.Fatalf("expected error for short seed")
	}
}

func TestParseRejectsWrongLengths(t *testing.T) {
	if _, err := PublicKeyFromString("not multibase"); err == nil {
		t.Fatalf("expected multibase error")
	}
	// A valid multibase string holding the wrong number of bytes.
	short, err := PrivateKeyFromSeed(bytes.Repeat([]byte{1}, 32))
	if err != nil {
		t.Fatalf("PrivateKeyFromSeed: %v", err)
	}
	if _, err := PublicKeyFromString(short.String()); err == nil {
		t.Fatalf("expected length error for a 64-byte public key string")
	}
}
