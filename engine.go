package credvault

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/credvault/credvault/envelope"
	"github.com/credvault/credvault/internal"
	"github.com/credvault/credvault/internal/metrics"
	"github.com/credvault/credvault/internal/rate"
	"github.com/credvault/credvault/shard"
	"github.com/credvault/credvault/store"
)

// Rate limiter purposes. Each operation class has its own budget.
const (
	PurposeVerify = "verify"
	PurposeIssue  = "issue"
	PurposeRevoke = "revoke"
)

// Engine is the credential vault. Construct via [Builder.Build]; all
// methods are safe for concurrent use.
type Engine struct {
	config  Config
	keys    Keys
	router  *shard.Router
	store   *store.Store
	limiter *rate.Limiter
	pruner  *sessionPruner
	metrics *metrics.Metrics
	log     zerolog.Logger

	closed atomic.Bool
}

// IssueToken mints a new API token for an owner and persists its
// envelope-encrypted record. A ttl of zero or less uses the configured
// default. The returned Credential carries the only copy of the secret.
func (e *Engine) IssueToken(ctx context.Context, owner string, ttl time.Duration) (*Credential, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if err := e.allow(ctx, PurposeIssue); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = e.config.Tokens.DefaultTTL
	}

	secret, err := internal.NewTokenSecret()
	if err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}

	rec, err := e.store.Issue(ctx, secret, owner, ttl, false)
	if err != nil {
		return nil, translateStoreErr(err)
	}

	e.log.Info().Str("owner", owner).Str("record_id", rec.ID).Msg("token issued")
	return credentialFor(secret, rec), nil
}

// Verify checks a presented secret through every layer: lookup-hash
// resolution, salted verification hash, envelope decryption, and a
// constant-time plaintext comparison. Expected negatives return
// Valid=false with a nil error; integrity and storage faults return an
// error and must be treated as outages, not invalid secrets.
func (e *Engine) Verify(ctx context.Context, secret string) (VerifyResult, error) {
	if e.closed.Load() {
		return VerifyResult{}, ErrEngineClosed
	}
	if err := e.allow(ctx, PurposeVerify); err != nil {
		return VerifyResult{}, err
	}

	owner, valid, err := e.store.Verify(ctx, secret)
	if err != nil {
		return VerifyResult{}, translateStoreErr(err)
	}
	if !valid {
		return VerifyResult{}, nil
	}
	return VerifyResult{Valid: true, Owner: owner}, nil
}

// Revoke deletes the record matching a presented secret. Returns
// ErrNotFound when no record matches or the verification hash gate
// rejects the delete.
func (e *Engine) Revoke(ctx context.Context, secret string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if err := e.allow(ctx, PurposeRevoke); err != nil {
		return err
	}

	if err := e.store.Revoke(ctx, secret); err != nil {
		return translateStoreErr(err)
	}
	e.log.Info().Msg("credential revoked")
	return nil
}

// CountActiveTokens returns the owner's number of non-expired API tokens.
func (e *Engine) CountActiveTokens(ctx context.Context, owner string) (int, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	n, err := e.store.CountActive(ctx, owner, false)
	return n, translateStoreErr(err)
}

// CountActiveSessions returns the owner's number of non-expired sessions.
func (e *Engine) CountActiveSessions(ctx context.Context, owner string) (int, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	n, err := e.store.CountActive(ctx, owner, true)
	return n, translateStoreErr(err)
}

// CheckRate consumes one unit of the caller's budget for an operation
// class without performing the operation. Exposed for callers that front
// the engine with their own transport and want to throttle early.
func (e *Engine) CheckRate(ctx context.Context, purpose string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	switch purpose {
	case PurposeVerify, PurposeIssue, PurposeRevoke:
		return e.allow(ctx, purpose)
	default:
		return fmt.Errorf("%w: unknown rate purpose %q", ErrInvalidArgument, purpose)
	}
}

// Close stops the pruner, waits for queued prunes to finish, and closes
// every partition. Idempotent.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.pruner.Close()
	return e.router.Close()
}

// allow consumes rate-limit budget for one operation. Requests carrying
// the configured admin secret bypass the limiter.
func (e *Engine) allow(ctx context.Context, purpose string) error {
	if e.limiter == nil {
		return nil
	}
	if secret := adminSecretFromContext(ctx); secret != "" && e.keys.AdminSecret != "" &&
		envelope.ConstantTimeEqual([]byte(secret), []byte(e.keys.AdminSecret)) {
		return nil
	}

	caller := callerFromContext(ctx)
	if caller == "" {
		caller = "anonymous"
	}
	if d := e.limiter.Check(ctx, purpose, caller); !d.Allowed {
		return fmt.Errorf("%w: %s budget exhausted", ErrRateLimited, purpose)
	}
	return nil
}

func credentialFor(secret string, rec *store.Record) *Credential {
	return &Credential{
		Secret:    secret,
		ID:        rec.ID,
		Owner:     rec.Owner,
		IsSession: rec.IsSession,
		ExpiresAt: rec.ExpiresAt,
	}
}

// translateStoreErr maps store and envelope sentinels onto the public
// error taxonomy.
func translateStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrInvalidArgument):
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	case errors.Is(err, store.ErrQuotaExceeded):
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	case errors.Is(err, store.ErrDuplicateSecret):
		return fmt.Errorf("%w: %v", ErrDuplicateSecret, err)
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrStorageUnavailable):
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	case errors.Is(err, envelope.ErrIntegrity), errors.Is(err, envelope.ErrKeyUnwrap):
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	default:
		return err
	}
}
