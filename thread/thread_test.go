package thread

import (
	"errors"
	"testing"

	"github.com/multiformats/go-varint"
)

func TestFromRandomRoundTrip(t *testing.T) {
	for _, variant := range []Variant{Raw, AccessControlled} {
		for _, size := range []int{16, 24, 32, 64} {
			id, err := FromRandom(variant, size)
			if err != nil {
				t.Fatalf("FromRandom(%v, %d): %v", variant, size, err)
			}
			if !id.Defined() {
				t.Fatalf("expected defined ID")
			}
			if got, want := len(id.Bytes()), 1+1+size; got != want {
				t.Fatalf("byte length: got %d, want %d", got, want)
			}
			if id.Version() != V1 {
				t.Fatalf("version: got %d, want 1", id.Version())
			}
			if id.Variant() != variant {
				t.Fatalf("variant: got %v, want %v", id.Variant(), variant)
			}

			back, err := FromBytes(id.Bytes())
			if err != nil {
				t.Fatalf("FromBytes: %v", err)
			}
			if back != id {
				t.Fatalf("byte round-trip mismatch")
			}

			fromStr, err := FromString(id.String())
			if err != nil {
				t.Fatalf("FromString(%q): %v", id.String(), err)
			}
			if fromStr != id {
				t.Fatalf("string round-trip mismatch")
			}
		}
	}
}

func TestFromRandomRejectsSmallSizes(t *testing.T) {
	if _, err := FromRandom(Raw, 15); !errors.Is(err, ErrRandomSize) {
		t.Fatalf("FromRandom(Raw, 15): got %v, want ErrRandomSize", err)
	}
}

func TestFromBytesRejectsBadInput(t *testing.T) {
	valid := func() []byte {
		id, err := FromRandom(Raw, 16)
		if err != nil {
			t.Fatalf("FromRandom: %v", err)
		}
		return id.Bytes()
	}

	t.Run("version", func(t *testing.T) {
		b := valid()
		b[0] = 0x02
		if _, err := FromBytes(b); !errors.Is(err, ErrVersion) {
			t.Fatalf("got %v, want ErrVersion", err)
		}
	})

	t.Run("variant", func(t *testing.T) {
		b := valid()
		b[1] = 0x02 // intersects neither Raw nor AccessControlled
		if _, err := FromBytes(b); !errors.Is(err, ErrVariant) {
			t.Fatalf("got %v, want ErrVariant", err)
		}
	})

	t.Run("short random component", func(t *testing.T) {
		b := valid()
		if _, err := FromBytes(b[:17]); !errors.Is(err, ErrRandomSize) {
			t.Fatalf("got %v, want ErrRandomSize", err)
		}
	})

	t.Run("truncated varint", func(t *testing.T) {
		if _, err := FromBytes([]byte{0x80}); err == nil {
			t.Fatalf("expected error for truncated varint")
		}
	})
}

func TestIDEquality(t *testing.T) {
	a, err := FromRandom(Raw, 16)
	if err != nil {
		t.Fatalf("FromRandom: %v", err)
	}
	b, err := FromBytes(a.Bytes())
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if a != b {
		t.Fatalf("IDs with equal wire bytes must compare equal")
	}
	c, err := FromRandom(Raw, 16)
	if err != nil {
		t.Fatalf("FromRandom: %v", err)
	}
	if a == c {
		t.Fatalf("independently drawn IDs must differ")
	}

	m := map[ID]int{a: 1}
	if m[b] != 1 {
		t.Fatalf("ID must be usable as a map key by value")
	}
}

func TestStringIsLowerBase32(t *testing.T) {
	id := New()
	s := id.String()
	if len(s) == 0 || s[0] != 'b' {
		t.Fatalf("expected base32 multibase prefix 'b', got %q", s)
	}
	for _, r := range s[1:] {
		if (r < 'a' || r > 'z') && (r < '2' || r > '7') {
			t.Fatalf("unexpected rune %q in %q", r, s)
		}
	}
}

func TestVariantIntersection(t *testing.T) {
	// A variant that overlaps the flag bits without equalling either value
	// still decodes; construction only requires an intersection.
	buf := varint.ToUvarint(V1)
	buf = append(buf, varint.ToUvarint(uint64(Raw|AccessControlled))...)
	buf = append(buf, make([]byte, 16)...)
	if _, err := FromBytes(buf); err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
}
