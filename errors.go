package credvault

import "errors"

var (
	// ErrInvalidArgument reports malformed issuance input (wrong secret
	// length, empty owner).
	ErrInvalidArgument = errors.New("credvault: invalid argument")
	// ErrQuotaExceeded reports that an owner is at their active token cap.
	ErrQuotaExceeded = errors.New("credvault: token quota exceeded")
	// ErrDuplicateSecret reports a lookup-hash collision on issuance.
	ErrDuplicateSecret = errors.New("credvault: secret already exists")
	// ErrNotFound reports that no record matches the presented secret.
	ErrNotFound = errors.New("credvault: record not found")
	// ErrIntegrity reports that a stored record failed cryptographic
	// verification (key unwrap or ciphertext authentication). It signals
	// tampering or key misconfiguration and is never returned for an
	// ordinary invalid secret.
	ErrIntegrity = errors.New("credvault: record integrity failure")
	// ErrStorageUnavailable reports a partition fault.
	ErrStorageUnavailable = errors.New("credvault: storage unavailable")
	// ErrRateLimited reports that the caller's fixed-window budget for the
	// operation is exhausted.
	ErrRateLimited = errors.New("credvault: rate limited")
	// ErrEngineClosed is returned by all operations after Close.
	ErrEngineClosed = errors.New("credvault: engine closed")
)
