package credvault

import "time"

// Credential is the result of issuing a token or session. Secret is the
// only copy of the plaintext the vault ever exposes; it cannot be
// recovered later, only verified or revoked.
type Credential struct {
	Secret    string
	ID        string
	Owner     string
	IsSession bool
	ExpiresAt time.Time
}

// VerifyResult is the outcome of verifying a presented secret. Valid is
// false for every expected negative: unknown, expired, or mismatched
// secrets all look identical to the caller.
type VerifyResult struct {
	Valid bool
	Owner string
}
