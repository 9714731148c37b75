// Package token implements split session tokens: 32 bytes of cryptographic
// randomness divided into a 16-byte key (the shard/lookup identifier) and a
// 16-byte secret (the in-memory verifier), plus the blake3 hashing used to
// bind the two halves together and to fingerprint a token for database
// storage.
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

const (
	// KeySize is the length in bytes of a token's key half.
	KeySize = 16
	// SecretSize is the length in bytes of a token's secret half.
	SecretSize = 16
	// Size is the total wire length of a token before encoding.
	Size = KeySize + SecretSize
	// HashSize is the length in bytes of a blake3 hash.
	HashSize = 32
)

// Errors returned by Decode when the wire form doesn't carry exactly Size
// bytes, or isn't valid base64url.
var (
	ErrTooShort  = errors.New("token: decoded length shorter than 32 bytes")
	ErrTooLong   = errors.New("token: decoded length longer than 32 bytes")
	ErrMalformed = errors.New("token: malformed base64")
)

// Key is the 16-byte shard/lookup half of a token.
type Key [KeySize]byte

// Secret is the 16-byte verifier half of a token.
type Secret [SecretSize]byte

// Hash is a 32-byte blake3 digest.
type Hash [HashSize]byte

// VerifyStatus is the outcome of KeySet.Verify.
type VerifyStatus int

const (
	Unverified VerifyStatus = iota
	Verified
)

// KeySet is a freshly generated token split into its key, secret, and the
// blake3 hash binding them: hash = blake3(key ‖ secret).
type KeySet struct {
	Key    Key
	Secret Secret
	Hash   Hash
}

// New draws 32 bytes of cryptographically secure randomness and splits them
// into a KeySet. It fails only if the OS RNG fails.
func New() (KeySet, error) {
	var buf [Size]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return KeySet{}, fmt.Errorf("token: generate random bytes: %w", err)
	}

	var ks KeySet
	copy(ks.Key[:], buf[:KeySize])
	copy(ks.Secret[:], buf[KeySize:])
	ks.Hash = Hash(blake3.Sum256(buf[:]))

	return ks, nil
}

// Verify recomputes blake3(key ‖ secret) and compares it against expected in
// time independent of the first differing byte.
func Verify(key Key, secret Secret, expected Hash) VerifyStatus {
	var buf [Size]byte
	copy(buf[:KeySize], key[:])
	copy(buf[KeySize:], secret[:])
	got := blake3.Sum256(buf[:])

	if subtle.ConstantTimeCompare(got[:], expected[:]) == 1 {
		return Verified
	}
	return Unverified
}

// Encode concatenates key‖secret and returns the base64url-no-padding wire
// form of the token.
func (ks KeySet) Encode() string {
	var buf [Size]byte
	copy(buf[:KeySize], ks.Key[:])
	copy(buf[KeySize:], ks.Secret[:])
	return base64.RawURLEncoding.EncodeToString(buf[:])
}

// Decode parses the base64url-no-padding wire form of a token into its key
// and secret halves. Any length other than exactly Size bytes is a decode
// error, and any non-base64url input is ErrMalformed.
func Decode(encoded string) (Key, Secret, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Key{}, Secret{}, ErrMalformed
	}

	switch {
	case len(raw) < Size:
		return Key{}, Secret{}, ErrTooShort
	case len(raw) > Size:
		return Key{}, Secret{}, ErrTooLong
	}

	var key Key
	var secret Secret
	copy(key[:], raw[:KeySize])
	copy(secret[:], raw[KeySize:])
	return key, secret, nil
}

// Fingerprint computes base64url(blake3_keyed(hashKey, key‖secret)), the
// database-side fingerprint used to re-verify a stale token against
// persisted state without ever storing the token itself. hashKey must be
// exactly 32 bytes (a process-private keying material generated once at
// startup).
func Fingerprint(hashKey [32]byte, key Key, secret Secret) (string, error) {
	var buf [Size]byte
	copy(buf[:KeySize], key[:])
	copy(buf[KeySize:], secret[:])

	h, err := blake3.NewKeyed(hashKey[:])
	if err != nil {
		return "", fmt.Errorf("token: init keyed hash: %w", err)
	}
	if _, err := h.Write(buf[:]); err != nil {
		return "", fmt.Errorf("token: hash token: %w", err)
	}

	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum), nil
}
