// Package crypto implements server-side password hashing and verification.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Params are Argon2id cost settings.
type Params struct {
	Time      uint32 // iterations
	MemoryKiB uint32
	Threads   uint8
	KeyLen    uint32
	SaltLen   int
}

// DefaultParams is used for every stored account password.
var DefaultParams = Params{
	Time:      3,
	MemoryKiB: 64 * 1024, // 64 MB
	Threads:   1,
	KeyLen:    32,
	SaltLen:   16,
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewSalt returns a fresh per-user salt.
func (p Params) NewSalt() ([]byte, error) { return RandBytes(p.SaltLen) }

// Hash returns the Argon2id key of password under salt.
func (p Params) Hash(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen)
}

// Verify compares in constant time. An empty expected hash never matches.
func (p Params) Verify(password string, salt, expected []byte) bool {
	if len(expected) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(p.Hash(password, salt), expected) == 1
}

var (
	dummyOnce sync.Once
	dummySalt []byte
)

// VerifyNone spends one hash computation and reports false. Login calls it for
// unknown usernames so they take as long as a wrong password.
func (p Params) VerifyNone(password string) bool {
	dummyOnce.Do(func() { dummySalt = make([]byte, DefaultParams.SaltLen) })
	_ = p.Hash(password, dummySalt)
	return false
}

// NewSalt returns a salt sized by DefaultParams.
func NewSalt() ([]byte, error) { return DefaultParams.NewSalt() }

// HashPassword hashes with DefaultParams.
func HashPassword(password string, salt []byte) []byte { return DefaultParams.Hash(password, salt) }

// VerifyPassword verifies with DefaultParams.
func VerifyPassword(password string, salt, expected []byte) bool {
	return DefaultParams.Verify(password, salt, expected)
}
