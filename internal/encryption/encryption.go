// Package encryption seals snippet values at rest. Every record gets its own
// key, derived from the record keyword and the owning user's id, and every
// encryption call draws a fresh random IV.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize    = 32
	IVSize     = 12
	TagSize    = 16
	Iterations = 100000
)

// ErrAuthenticationFailure means the ciphertext, tag, IV or key do not belong
// together. No plaintext is ever returned alongside it.
var ErrAuthenticationFailure = errors.New("encryption: authentication failed")

type Key [KeySize]byte

// Secret is the stored form of an encrypted value, hex encoded.
type Secret struct {
	Ciphertext string
	Tag        string
	IV         string
}

// DeriveKey runs PBKDF2-HMAC-SHA256 over (context, ownerSalt).
func DeriveKey(context, ownerSalt string) Key {
	var k Key
	copy(k[:], pbkdf2.Key([]byte(context), []byte(ownerSalt), Iterations, KeySize, sha256.New))
	return k
}

// Service wraps the package functions so callers can swap the randomness
// source in tests.
type Service struct {
	rand io.Reader
}

func NewService() *Service {
	return &Service{rand: rand.Reader}
}

func (s *Service) DeriveKey(context, ownerSalt string) Key {
	return DeriveKey(context, ownerSalt)
}

func (s *Service) Encrypt(plaintext string, key Key) (Secret, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return Secret{}, err
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(s.rand, iv); err != nil {
		return Secret{}, fmt.Errorf("read iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	// Seal output is ciphertext || tag.
	ct, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]
	return Secret{
		Ciphertext: hex.EncodeToString(ct),
		Tag:        hex.EncodeToString(tag),
		IV:         hex.EncodeToString(iv),
	}, nil
}

func (s *Service) Decrypt(secret Secret, key Key) (string, error) {
	ct, err := hex.DecodeString(secret.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext encoding", ErrAuthenticationFailure)
	}
	tag, err := hex.DecodeString(secret.Tag)
	if err != nil || len(tag) != TagSize {
		return "", fmt.Errorf("%w: tag encoding", ErrAuthenticationFailure)
	}
	iv, err := hex.DecodeString(secret.IV)
	if err != nil || len(iv) != IVSize {
		return "", fmt.Errorf("%w: iv encoding", ErrAuthenticationFailure)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plaintext, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrAuthenticationFailure
	}
	return string(plaintext), nil
}

var defaultService = NewService()

func Encrypt(plaintext string, key Key) (Secret, error) {
	return defaultService.Encrypt(plaintext, key)
}

func Decrypt(secret Secret, key Key) (string, error) {
	return defaultService.Decrypt(secret, key)
}

func newAEAD(key Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}
