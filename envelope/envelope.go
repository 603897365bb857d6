// Package envelope implements the at-rest protection scheme for vault
// records: every secret is encrypted under its own data-encryption key
// (DEK), and the DEK is wrapped under a process-wide key-encryption key
// (KEK). Rotating the KEK therefore never requires re-encrypting bulk
// ciphertext, and compromise of a single record key exposes one record.
//
// Storage-side hashes are salted per record, so identical secrets never
// produce identical rows. Indexed retrieval instead goes through a single
// deterministic keyed hash (see LookupHash); its key is distinct from the
// KEK, and knowing it alone reveals only index bucket membership, never
// plaintext.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the size in bytes of DEKs and the KEK (AES-256).
	KeySize = 32

	// IVSize is the size in bytes of AES-GCM initialization vectors.
	IVSize = 12

	// SaltSize is the size in bytes of per-record verification salts.
	SaltSize = 16
)

var (
	// ErrInvalidKey is returned when a key is not exactly KeySize bytes.
	ErrInvalidKey = errors.New("envelope: key must be exactly 32 bytes")
	// ErrInvalidIV is returned when an IV is not exactly IVSize bytes.
	ErrInvalidIV = errors.New("envelope: iv must be exactly 12 bytes")
	// ErrEmptyPayload is returned when an empty payload is passed to Encrypt or Decrypt.
	ErrEmptyPayload = errors.New("envelope: empty payload")
	// ErrKeyUnwrap is returned when unwrapping a DEK fails authentication,
	// meaning the wrapped blob was tampered with or the KEK is wrong.
	ErrKeyUnwrap = errors.New("envelope: key unwrap failed")
	// ErrIntegrity is returned when ciphertext fails its GCM tag check.
	// Callers must surface this as an operational fault, never fold it
	// into a "record not found" result.
	ErrIntegrity = errors.New("envelope: ciphertext integrity check failed")
)

// GenerateDEK returns a fresh random 256-bit data-encryption key and a
// 96-bit IV for use with Encrypt.
func GenerateDEK() (key, iv []byte, err error) {
	key = make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, nil, fmt.Errorf("generate dek: %w", err)
	}
	iv = make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, fmt.Errorf("generate iv: %w", err)
	}
	return key, iv, nil
}

// GenerateSalt returns a fresh random per-record verification salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// WrapKey encrypts dek under kek with AES-GCM using a freshly generated
// IV. The returned blob is iv || ciphertext || tag and is safe to persist
// next to the data it protects.
func WrapKey(kek, dek []byte) ([]byte, error) {
	if len(kek) != KeySize {
		return nil, ErrInvalidKey
	}
	if len(dek) != KeySize {
		return nil, ErrInvalidKey
	}

	aead, err := newGCM(kek)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("wrap iv: %w", err)
	}

	return aead.Seal(iv, iv, dek, nil), nil
}

// UnwrapKey decrypts a blob produced by WrapKey. A failed GCM tag check
// reports ErrKeyUnwrap: either the blob was tampered with or kek is not
// the key that wrapped it.
func UnwrapKey(kek, wrapped []byte) ([]byte, error) {
	if len(kek) != KeySize {
		return nil, ErrInvalidKey
	}

	aead, err := newGCM(kek)
	if err != nil {
		return nil, err
	}

	if len(wrapped) < aead.NonceSize() {
		return nil, ErrKeyUnwrap
	}
	iv, sealed := wrapped[:aead.NonceSize()], wrapped[aead.NonceSize():]

	dek, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrKeyUnwrap
	}
	return dek, nil
}

// Encrypt seals plaintext under dek with the caller-provided IV. The IV is
// stored by the caller in its own column, so it is not prepended here.
func Encrypt(dek, iv, plaintext []byte) ([]byte, error) {
	if len(dek) != KeySize {
		return nil, ErrInvalidKey
	}
	if len(iv) != IVSize {
		return nil, ErrInvalidIV
	}
	if len(plaintext) == 0 {
		return nil, ErrEmptyPayload
	}

	aead, err := newGCM(dek)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, iv, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt. A failed tag check means
// the stored ciphertext was tampered with or the wrong DEK was unwrapped;
// both surface as ErrIntegrity.
func Decrypt(dek, iv, ciphertext []byte) ([]byte, error) {
	if len(dek) != KeySize {
		return nil, ErrInvalidKey
	}
	if len(iv) != IVSize {
		return nil, ErrInvalidIV
	}
	if len(ciphertext) == 0 {
		return nil, ErrEmptyPayload
	}

	aead, err := newGCM(dek)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return aead, nil
}
