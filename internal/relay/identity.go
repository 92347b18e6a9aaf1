package relay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// MaxIdentityStringLen is the longest identity string ParseIdentity accepts.
const MaxIdentityStringLen = 128

const identityPrefix = "relay:"

var ErrInvalidIdentity = errors.New("invalid identity string")

// String returns the portable form of id, e.g. "relay:3mJr7AoUXx2".
func (id Identity) String() string {
	return FormatIdentity(id)
}

// FormatIdentity encodes id as "relay:" followed by the base58 form of its
// big-endian bytes. The result is what peers exchange out of band.
func FormatIdentity(id Identity) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return identityPrefix + base58.Encode(buf[:])
}

// ParseIdentity is the inverse of FormatIdentity.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if len(s) > MaxIdentityStringLen {
		return 0, fmt.Errorf("%w: longer than %d bytes", ErrInvalidIdentity, MaxIdentityStringLen)
	}

	rest, ok := strings.CutPrefix(s, identityPrefix)
	if !ok || rest == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidIdentity, s)
	}

	raw, err := base58.Decode(rest)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if len(raw) > 8 {
		return 0, fmt.Errorf("%w: %d bytes", ErrInvalidIdentity, len(raw))
	}

	var buf [8]byte
	copy(buf[8-len(raw):], raw)
	id := Identity(binary.BigEndian.Uint64(buf[:]))
	if id == 0 {
		return 0, fmt.Errorf("%w: zero identity", ErrInvalidIdentity)
	}
	return id, nil
}
