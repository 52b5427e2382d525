package thread

import "errors"

var (
	// ErrVersion is returned when an encoded ID carries a version other than 1.
	ErrVersion = errors.New("thread: expected version 1")

	// ErrVariant is returned when an encoded ID carries no recognized variant flag.
	ErrVariant = errors.New("thread: invalid variant")

	// ErrRandomSize is returned when the random component is shorter than 16 bytes.
	ErrRandomSize = errors.New("thread: random component too small")

	// ErrKeyLength is returned when key material is not 32 or 64 bytes.
	ErrKeyLength = errors.New("thread: invalid key length")

	// ErrNoReadKey is returned when a key without a read component is asked to
	// seal or open an invitation payload.
	ErrNoReadKey = errors.New("thread: key has no read component")
)
