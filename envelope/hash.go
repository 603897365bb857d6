package envelope

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Iterations is the iteration count for DeriveFromPassword.
const PBKDF2Iterations = 100_000

// VerificationHash computes the salted HMAC-SHA256 of a secret under its
// per-record salt. Because the salt is random per record, two records
// holding the same secret store different verification hashes.
func VerificationHash(secret, salt []byte) []byte {
	mac := hmac.New(sha256.New, salt)
	mac.Write(secret)
	return mac.Sum(nil)
}

// LookupHash computes the deterministic keyed HMAC-SHA256 of a secret
// under the process-wide lookup key. This is the only deliberately
// deterministic hash in the system: it serves as a unique secondary index
// so a presented secret resolves to its record without scanning or
// decrypting every row. Rotating the lookup key requires re-indexing all
// records.
func LookupHash(secret, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(secret)
	return mac.Sum(nil)
}

// DeriveFromPassword derives a 256-bit key from a login password with
// PBKDF2-HMAC-SHA256. Deterministic given the same salt; used only for
// password verification, never to protect stored secrets.
func DeriveFromPassword(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, KeySize, sha256.New)
}

// ConstantTimeEqual reports whether a and b are equal without leaking
// where they differ through timing. Differing lengths return false
// immediately; equal-length inputs are XOR-accumulated to the end.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
