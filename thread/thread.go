// Package thread defines the identifier and key material for a threaddb
// database: the self-describing binary ID shared between peers, and the
// symmetric key bundle used to share database invitations.
package thread

import (
	"crypto/rand"
	"fmt"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-varint"
)

// Variant is a set of addressing-mode flags carried by an ID.
type Variant uint64

const (
	// Raw designates a plainly addressed database.
	Raw Variant = 0x55
	// AccessControlled designates a database that supports access-control lists.
	AccessControlled Variant = 0x70
)

func (v Variant) String() string {
	switch v {
	case Raw:
		return "raw"
	case AccessControlled:
		return "access-controlled"
	default:
		return fmt.Sprintf("variant(0x%x)", uint64(v))
	}
}

const (
	// V1 is the only supported ID version.
	V1 = 0x01

	// MinRandomSize is the smallest accepted random component, in bytes.
	MinRandomSize = 16
	// DefaultRandomSize is the random component drawn by FromRandom when the
	// caller does not care.
	DefaultRandomSize = 32
)

// ID is an immutable database identifier. The zero value is undefined; IDs
// are comparable with == and usable as map keys, both defined over the wire
// encoding.
type ID struct {
	raw string
}

// Undef is the undefined ID.
var Undef = ID{}

// FromRandom returns a new ID of the given variant with a size-byte random
// component drawn from crypto/rand.
func FromRandom(variant Variant, size int) (ID, error) {
	if size < MinRandomSize {
		return Undef, fmt.Errorf("%w: %d bytes", ErrRandomSize, size)
	}
	rnd := make([]byte, size)
	if _, err := rand.Read(rnd); err != nil {
		return Undef, fmt.Errorf("thread: reading randomness: %w", err)
	}
	buf := varint.ToUvarint(V1)
	buf = append(buf, varint.ToUvarint(uint64(variant))...)
	buf = append(buf, rnd...)
	id, err := FromBytes(buf)
	if err != nil {
		return Undef, err
	}
	return id, nil
}

// New returns a random Raw ID with the default random size.
func New() ID {
	id, err := FromRandom(Raw, DefaultRandomSize)
	if err != nil {
		// crypto/rand failures are not recoverable here.
		panic(err)
	}
	return id
}

// FromBytes parses the wire encoding varint(version) || varint(variant) ||
// random and validates each component.
func FromBytes(b []byte) (ID, error) {
	version, n, err := varint.FromUvarint(b)
	if err != nil {
		return Undef, fmt.Errorf("thread: decoding version: %w", err)
	}
	if version != V1 {
		return Undef, fmt.Errorf("%w, got %d", ErrVersion, version)
	}
	v, m, err := varint.FromUvarint(b[n:])
	if err != nil {
		return Undef, fmt.Errorf("thread: decoding variant: %w", err)
	}
	if Variant(v)&(Raw|AccessControlled) == 0 {
		return Undef, fmt.Errorf("%w: 0x%x", ErrVariant, v)
	}
	if len(b)-n-m < MinRandomSize {
		return Undef, fmt.Errorf("%w: %d bytes", ErrRandomSize, len(b)-n-m)
	}
	return ID{raw: string(b)}, nil
}

// FromString parses the multibase form produced by String.
func FromString(s string) (ID, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return Undef, fmt.Errorf("thread: decoding multibase: %w", err)
	}
	return FromBytes(data)
}

// Defined reports whether the ID holds a parsed value.
func (i ID) Defined() bool { return i.raw != "" }

// Version returns the encoded version number.
func (i ID) Version() uint64 {
	if !i.Defined() {
		return 0
	}
	v, _, _ := varint.FromUvarint([]byte(i.raw))
	return v
}

// Variant returns the encoded variant flags.
func (i ID) Variant() Variant {
	if !i.Defined() {
		return 0
	}
	b := []byte(i.raw)
	_, n, _ := varint.FromUvarint(b)
	v, _, _ := varint.FromUvarint(b[n:])
	return Variant(v)
}

// Bytes returns a copy of the wire encoding.
func (i ID) Bytes() []byte { return []byte(i.raw) }

// String returns the base32 multibase form of the wire encoding.
func (i ID) String() string {
	if !i.Defined() {
		return ""
	}
	s, err := multibase.Encode(multibase.Base32, []byte(i.raw))
	if err != nil {
		// Base32 encoding cannot fail for a defined ID.
		return ""
	}
	return s
}
