// Package cryptox implements the salted keyed password hash used by the
// credential store.
package cryptox

import (
	"crypto/subtle"

	"github.com/dmitrijs2005/chatrelay/internal/common"
	"golang.org/x/crypto/argon2"
)

// SaltSize is the length of a per-user salt in bytes.
const SaltSize = 32

// Params are the argon2id cost parameters.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// DefaultParams are used by the server.
var DefaultParams = Params{Time: 1, Memory: 64 * 1024, Threads: 4, KeyLen: 32}

// Hasher computes keyed password hashes with fixed parameters.
type Hasher struct {
	params Params
}

// NewHasher returns a Hasher using p. Zero fields fall back to DefaultParams.
func NewHasher(p Params) *Hasher {
	if p.Time == 0 {
		p.Time = DefaultParams.Time
	}
	if p.Memory == 0 {
		p.Memory = DefaultParams.Memory
	}
	if p.Threads == 0 {
		p.Threads = DefaultParams.Threads
	}
	if p.KeyLen == 0 {
		p.KeyLen = DefaultParams.KeyLen
	}
	return &Hasher{params: p}
}

// NewSalt returns SaltSize fresh random bytes.
func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}

// Hash returns argon2id(password, salt).
func (h *Hasher) Hash(salt, password []byte) []byte {
	return argon2.IDKey(password, salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
}

// Verify recomputes the hash of candidate with salt and compares it to
// expected in constant time.
func (h *Hasher) Verify(salt, expected, candidate []byte) bool {
	return Equal(expected, h.Hash(salt, candidate))
}

// Equal reports whether a and b are equal without short-circuiting on the
// first differing byte.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
