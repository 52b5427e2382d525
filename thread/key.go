package thread

import (
	"crypto/rand"
	"fmt"

	"github.com/multiformats/go-multibase"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length of each symmetric key component, in bytes.
const KeySize = 32

// Key bundles the symmetric key material for a database: a service key that
// every participating peer holds, and an optional read key that grants access
// to document contents. A Key without a read component can relay a database
// but not open its invitations.
type Key struct {
	service []byte
	read    []byte
}

// NewKey wraps existing key components. The read key may be nil.
func NewKey(service, read []byte) (Key, error) {
	if len(service) != KeySize {
		return Key{}, fmt.Errorf("%w: %d bytes", ErrKeyLength, len(service))
	}
	if read != nil && len(read) != KeySize {
		return Key{}, fmt.Errorf("%w: %d bytes", ErrKeyLength, len(read))
	}
	k := Key{service: append([]byte(nil), service...)}
	if read != nil {
		k.read = append([]byte(nil), read...)
	}
	return k, nil
}

// NewRandomKey draws a fresh service key, and a fresh read key when withRead
// is set, from crypto/rand.
func NewRandomKey(withRead bool) (Key, error) {
	service := make([]byte, KeySize)
	if _, err := rand.Read(service); err != nil {
		return Key{}, fmt.Errorf("thread: reading randomness: %w", err)
	}
	var read []byte
	if withRead {
		read = make([]byte, KeySize)
		if _, err := rand.Read(read); err != nil {
			return Key{}, fmt.Errorf("thread: reading randomness: %w", err)
		}
	}
	return Key{service: service, read: read}, nil
}

// KeyFromBytes parses the wire form: the service key alone (32 bytes) or the
// service key followed by the read key (64 bytes).
func KeyFromBytes(b []byte) (Key, error) {
	switch len(b) {
	case KeySize:
		return Key{service: append([]byte(nil), b...)}, nil
	case 2 * KeySize:
		return Key{
			service: append([]byte(nil), b[:KeySize]...),
			read:    append([]byte(nil), b[KeySize:]...),
		}, nil
	default:
		return Key{}, fmt.Errorf("%w: %d bytes", ErrKeyLength, len(b))
	}
}

// KeyFromString parses the multibase form produced by Key.String.
func KeyFromString(s string) (Key, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return Key{}, fmt.Errorf("thread: decoding multibase: %w", err)
	}
	return KeyFromBytes(data)
}

// Defined reports whether the key holds a service component.
func (k Key) Defined() bool { return k.service != nil }

// CanRead reports whether the key holds a read component.
func (k Key) CanRead() bool { return k.read != nil }

// Service returns a copy of the service key.
func (k Key) Service() []byte { return append([]byte(nil), k.service...) }

// Read returns a copy of the read key, or nil.
func (k Key) Read() []byte {
	if k.read == nil {
		return nil
	}
	return append([]byte(nil), k.read...)
}

// Bytes returns the wire form.
func (k Key) Bytes() []byte {
	b := append([]byte(nil), k.service...)
	if k.CanRead() {
		b = append(b, k.read...)
	}
	return b
}

// String returns the base32 multibase form of the wire encoding.
func (k Key) String() string {
	if !k.Defined() {
		return ""
	}
	s, err := multibase.Encode(multibase.Base32, k.Bytes())
	if err != nil {
		return ""
	}
	return s
}

// Seal encrypts an invitation payload with the read key. The returned box
// carries the nonce as its prefix.
func (k Key) Seal(plaintext []byte) ([]byte, error) {
	if !k.CanRead() {
		return nil, ErrNoReadKey
	}
	aead, err := chacha20poly1305.NewX(k.read)
	if err != nil {
		return nil, fmt.Errorf("thread: building cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("thread: reading randomness: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a box produced by Seal with the same read key.
func (k Key) Open(box []byte) ([]byte, error) {
	if !k.CanRead() {
		return nil, ErrNoReadKey
	}
	aead, err := chacha20poly1305.NewX(k.read)
	if err != nil {
		return nil, fmt.Errorf("thread: building cipher: %w", err)
	}
	if len(box) < aead.NonceSize() {
		return nil, fmt.Errorf("thread: sealed payload too short")
	}
	nonce, ciphertext := box[:aead.NonceSize()], box[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("thread: opening sealed payload: %w", err)
	}
	return plaintext, nil
}
