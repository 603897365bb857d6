package credvault

import (
	"context"
	"fmt"

	"github.com/credvault/credvault/internal"
)

// IssueSession mints a new login session for an owner. The soft cap on
// live sessions is enforced asynchronously: issuance always succeeds, and
// a prune pass for the owner is queued afterwards.
func (e *Engine) IssueSession(ctx context.Context, owner string) (*Credential, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if err := e.allow(ctx, PurposeIssue); err != nil {
		return nil, err
	}

	secret, err := internal.NewSessionSecret()
	if err != nil {
		return nil, fmt.Errorf("generate session secret: %w", err)
	}

	rec, err := e.store.Issue(ctx, secret, owner, e.config.Sessions.TTL, true)
	if err != nil {
		return nil, translateStoreErr(err)
	}

	e.pruner.Enqueue(owner)
	e.log.Info().Str("owner", owner).Str("record_id", rec.ID).Msg("session issued")
	return credentialFor(secret, rec), nil
}

// IsSessionSecret reports whether a presented secret carries the session
// prefix. It inspects only the prefix; the authoritative discriminator is
// the stored record.
func IsSessionSecret(secret string) bool {
	return internal.IsSessionSecret(secret)
}

// BumpSession slides the expiry of the owner's most recent live session
// forward by the configured session TTL. Returns false when sliding
// expiration is disabled or the owner has no live session.
func (e *Engine) BumpSession(ctx context.Context, owner string) (bool, error) {
	if e.closed.Load() {
		return false, ErrEngineClosed
	}
	if !e.config.Sessions.SlidingExpiration {
		return false, nil
	}

	bumped, err := e.store.BumpSession(ctx, owner, e.config.Sessions.TTL)
	return bumped, translateStoreErr(err)
}

// PruneSessions runs one synchronous prune pass for an owner and returns
// the number of sessions deleted. The engine triggers the same pass
// asynchronously after every session issuance; this entry point exists
// for maintenance and tests.
func (e *Engine) PruneSessions(ctx context.Context, owner string) (int, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	n, err := e.store.PruneSessions(ctx, owner, e.config.Sessions.MaxActive)
	return n, translateStoreErr(err)
}
