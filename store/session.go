package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/credvault/credvault/internal/metrics"
)

// sessionRef is the minimal projection needed to order and delete
// sessions during pruning.
type sessionRef struct {
	id         string
	owner      string
	lookupHash []byte
	createdAt  int64
	partition  int
}

// PruneSessions runs one pruning pass for an owner: expired sessions are
// deleted, and if at least maxSessions live sessions remain, exactly one
// more is deleted (the maxSessions-th most recent). The cap is soft: a
// burst can exceed it, and repeated passes converge back under it one
// record at a time.
func (s *Store) PruneSessions(ctx context.Context, owner string, maxSessions int) (int, error) {
	if maxSessions <= 0 {
		return 0, fmt.Errorf("%w: maxSessions must be positive", ErrInvalidArgument)
	}

	now := time.Now().UnixNano()
	deleted := 0

	expired, err := s.sessionsWhere(ctx, owner, `expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	for _, ref := range expired {
		if err := s.deleteSession(ctx, ref); err != nil {
			return deleted, err
		}
		deleted++
	}

	live, err := s.sessionsWhere(ctx, owner, `expires_at > ?`, now)
	if err != nil {
		return deleted, err
	}
	if len(live) >= maxSessions {
		// Newest first; the victim is the one that pushed past the cap.
		sort.Slice(live, func(i, j int) bool { return live[i].createdAt > live[j].createdAt })
		if err := s.deleteSession(ctx, live[maxSessions-1]); err != nil {
			return deleted, err
		}
		deleted++
	}

	if deleted > 0 {
		s.counts.Invalidate(ctx, owner)
		for i := 0; i < deleted; i++ {
			s.metrics.Inc(metrics.SessionPruned)
		}
	}
	return deleted, nil
}

// BumpSession slides the expiry of the owner's most recent live session
// forward to now+lifetime. Returns false when the owner has no live
// session.
func (s *Store) BumpSession(ctx context.Context, owner string, lifetime time.Duration) (bool, error) {
	live, err := s.sessionsWhere(ctx, owner, `expires_at > ?`, time.Now().UnixNano())
	if err != nil {
		return false, err
	}
	if len(live) == 0 {
		return false, nil
	}

	newest := live[0]
	for _, ref := range live[1:] {
		if ref.createdAt > newest.createdAt {
			newest = ref
		}
	}

	_, err = s.router.ByIndex(newest.partition).Writer.ExecContext(ctx,
		`UPDATE credentials SET expires_at = ? WHERE id = ?`,
		time.Now().Add(lifetime).UnixNano(), newest.id,
	)
	if err != nil {
		return false, fmt.Errorf("%w: bump session %s: %v", ErrStorageUnavailable, newest.id, err)
	}
	return true, nil
}

// sessionsWhere collects the owner's session refs across all partitions,
// filtered by one expiry predicate.
func (s *Store) sessionsWhere(ctx context.Context, owner, predicate string, now int64) ([]sessionRef, error) {
	var refs []sessionRef
	for idx, p := range s.router.All() {
		rows, err := p.Reader.QueryContext(ctx,
			`SELECT id, lookup_hash, created_at FROM credentials WHERE owner = ? AND is_session = 1 AND `+predicate,
			owner, now,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: list sessions partition %d: %v", ErrStorageUnavailable, idx, err)
		}

		for rows.Next() {
			ref := sessionRef{owner: owner, partition: idx}
			if err := rows.Scan(&ref.id, &ref.lookupHash, &ref.createdAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("%w: scan session row: %v", ErrStorageUnavailable, err)
			}
			refs = append(refs, ref)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: iterate sessions partition %d: %v", ErrStorageUnavailable, idx, err)
		}
		rows.Close()
	}
	return refs, nil
}

func (s *Store) deleteSession(ctx context.Context, ref sessionRef) error {
	res, err := s.router.ByIndex(ref.partition).Writer.ExecContext(ctx,
		`DELETE FROM credentials WHERE id = ?`, ref.id)
	if err != nil {
		return fmt.Errorf("%w: delete session %s: %v", ErrStorageUnavailable, ref.id, err)
	}
	// Another pruning pass may have raced us to this row.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}
	if err := s.router.DropAlias(ctx, ref.lookupHash); err != nil {
		s.log.Warn().Err(err).Str("record_id", ref.id).Msg("failed to drop alias for pruned session")
	}
	return nil
}
