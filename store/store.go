// Package store persists credential records across the sharded partition
// set and implements the full record lifecycle: issuance with quota
// enforcement, hash-gated revocation, and the layered verification path
// (lookup hash, salted verification hash, envelope decryption, plaintext
// comparison). Expired records are evicted lazily on first read.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"modernc.org/sqlite"

	"github.com/credvault/credvault/envelope"
	"github.com/credvault/credvault/internal"
	"github.com/credvault/credvault/internal/metrics"
	"github.com/credvault/credvault/shard"
)

var (
	// ErrInvalidArgument is returned when issuance input fails validation.
	ErrInvalidArgument = errors.New("store: invalid argument")
	// ErrQuotaExceeded is returned when an owner is at their active token cap.
	ErrQuotaExceeded = errors.New("store: active token quota exceeded")
	// ErrDuplicateSecret is returned when an issued secret collides with an
	// existing record's lookup hash.
	ErrDuplicateSecret = errors.New("store: secret already exists")
	// ErrNotFound is returned when no record matches a presented secret.
	ErrNotFound = errors.New("store: record not found")
	// ErrStorageUnavailable wraps partition faults. Unlike a cache fault it
	// is never swallowed: callers must not treat it as "invalid secret".
	ErrStorageUnavailable = errors.New("store: storage unavailable")
)

// DefaultMaxActiveTokens is the hard cap on non-expired API tokens per
// owner. Sessions are not counted against it.
const DefaultMaxActiveTokens = 5

// Record is one persisted credential. All byte fields are immutable after
// issuance; only ExpiresAt changes, and only through session bumping.
type Record struct {
	ID               string
	Owner            string
	Ciphertext       []byte
	WrappedKey       []byte
	CipherIV         []byte
	VerificationHash []byte
	Salt             []byte
	LookupHash       []byte
	IsSession        bool
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// Options configures a Store.
type Options struct {
	Router          *shard.Router
	Redis           redis.UniversalClient
	KEK             []byte
	LookupKey       []byte
	MaxActiveTokens int // 0 means DefaultMaxActiveTokens
	Metrics         *metrics.Metrics
	Logger          zerolog.Logger
}

// Store is the persistence layer over the partition set. It owns all SQL
// against credential rows; callers above it never see a raw connection.
type Store struct {
	router    *shard.Router
	counts    *CountCache
	kek       []byte
	lookupKey []byte
	maxTokens int
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// New validates the options and builds a store.
func New(opts Options) (*Store, error) {
	if opts.Router == nil {
		return nil, fmt.Errorf("%w: router is required", ErrInvalidArgument)
	}
	if len(opts.KEK) != envelope.KeySize {
		return nil, fmt.Errorf("%w: kek must be %d bytes", ErrInvalidArgument, envelope.KeySize)
	}
	if len(opts.LookupKey) != envelope.KeySize {
		return nil, fmt.Errorf("%w: lookup key must be %d bytes", ErrInvalidArgument, envelope.KeySize)
	}
	maxTokens := opts.MaxActiveTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxActiveTokens
	}

	return &Store{
		router:    opts.Router,
		counts:    NewCountCache(opts.Redis, opts.Logger),
		kek:       opts.KEK,
		lookupKey: opts.LookupKey,
		maxTokens: maxTokens,
		metrics:   opts.Metrics,
		log:       opts.Logger,
	}, nil
}

const recordColumns = `id, owner, ciphertext, wrapped_key, cipher_iv, verification_hash, salt, lookup_hash, is_session, created_at, expires_at`

// Issue persists a new credential record for a freshly generated secret.
// Non-session issuance enforces the active token cap; the count and the
// insert are not one transaction, so concurrent issuance can briefly
// overshoot the cap by the number of racing callers.
func (s *Store) Issue(ctx context.Context, secret, owner string, lifetime time.Duration, isSession bool) (*Record, error) {
	if len(secret) != internal.SecretLength {
		return nil, fmt.Errorf("%w: secret must be exactly %d characters", ErrInvalidArgument, internal.SecretLength)
	}
	if owner == "" {
		return nil, fmt.Errorf("%w: owner must not be empty", ErrInvalidArgument)
	}

	if !isSession {
		active, err := s.activeCount(ctx, owner, false)
		if err != nil {
			return nil, err
		}
		if active >= s.maxTokens {
			s.metrics.Inc(metrics.IssueQuotaRejected)
			return nil, fmt.Errorf("%w: owner has %d active tokens (cap %d)", ErrQuotaExceeded, active, s.maxTokens)
		}
	}

	// The unique index on lookup_hash is per partition, but placement is
	// by record id, so a re-issued secret would land on an arbitrary
	// partition and insert cleanly there. Uniqueness is a whole-set
	// invariant: check every partition before writing.
	lookupHash := envelope.LookupHash([]byte(secret), s.lookupKey)
	for idx := 0; idx < s.router.Count(); idx++ {
		existing, err := s.queryByLookupHash(ctx, idx, lookupHash)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: lookup hash collision", ErrDuplicateSecret)
		}
	}

	salt, err := envelope.GenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("issue: %w", err)
	}
	dek, iv, err := envelope.GenerateDEK()
	if err != nil {
		return nil, fmt.Errorf("issue: %w", err)
	}
	wrapped, err := envelope.WrapKey(s.kek, dek)
	if err != nil {
		return nil, fmt.Errorf("issue: %w", err)
	}
	ciphertext, err := envelope.Encrypt(dek, iv, []byte(secret))
	if err != nil {
		return nil, fmt.Errorf("issue: %w", err)
	}

	now := time.Now()
	rec := &Record{
		ID:               uuid.NewString(),
		Owner:            owner,
		Ciphertext:       ciphertext,
		WrappedKey:       wrapped,
		CipherIV:         iv,
		VerificationHash: envelope.VerificationHash([]byte(secret), salt),
		Salt:             salt,
		LookupHash:       lookupHash,
		IsSession:        isSession,
		CreatedAt:        now,
		ExpiresAt:        now.Add(lifetime),
	}

	idx := s.router.Place(rec.ID)
	p := s.router.ByIndex(idx)

	_, err = p.Writer.ExecContext(ctx,
		`INSERT INTO credentials (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Owner, rec.Ciphertext, rec.WrappedKey, rec.CipherIV,
		rec.VerificationHash, rec.Salt, rec.LookupHash,
		boolToInt(rec.IsSession), rec.CreatedAt.UnixNano(), rec.ExpiresAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: lookup hash collision", ErrDuplicateSecret)
		}
		return nil, fmt.Errorf("%w: insert: %v", ErrStorageUnavailable, err)
	}

	if err := s.router.RegisterAlias(ctx, rec.LookupHash, idx); err != nil {
		s.log.Warn().Err(err).Str("record_id", rec.ID).Msg("alias registration failed, resolution will scan")
	}
	s.counts.Invalidate(ctx, owner)
	s.metrics.Inc(metrics.IssueOK)

	return rec, nil
}

// Verify resolves a presented secret and checks it through every layer.
// Expected negatives (unknown secret, hash mismatch, expiry, plaintext
// mismatch) return valid=false with a nil error; integrity and storage
// faults return a non-nil error and must never be folded into "invalid".
func (s *Store) Verify(ctx context.Context, secret string) (owner string, valid bool, err error) {
	if len(secret) != internal.SecretLength {
		s.metrics.Inc(metrics.VerifyInvalid)
		return "", false, nil
	}

	lookupHash := envelope.LookupHash([]byte(secret), s.lookupKey)
	rec, idx, err := s.resolve(ctx, lookupHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.Inc(metrics.VerifyInvalid)
			return "", false, nil
		}
		return "", false, err
	}

	if !envelope.ConstantTimeEqual(envelope.VerificationHash([]byte(secret), rec.Salt), rec.VerificationHash) {
		s.metrics.Inc(metrics.VerifyInvalid)
		return "", false, nil
	}

	if !rec.ExpiresAt.After(time.Now()) {
		s.evict(ctx, idx, rec)
		s.metrics.Inc(metrics.LazyEviction)
		s.metrics.Inc(metrics.VerifyInvalid)
		return "", false, nil
	}

	dek, err := envelope.UnwrapKey(s.kek, rec.WrappedKey)
	if err != nil {
		s.metrics.Inc(metrics.VerifyIntegrityFailure)
		return "", false, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	plaintext, err := envelope.Decrypt(dek, rec.CipherIV, rec.Ciphertext)
	if err != nil {
		s.metrics.Inc(metrics.VerifyIntegrityFailure)
		return "", false, fmt.Errorf("record %s: %w", rec.ID, err)
	}

	if !envelope.ConstantTimeEqual(plaintext, []byte(secret)) {
		s.metrics.Inc(metrics.VerifyInvalid)
		return "", false, nil
	}

	s.metrics.Inc(metrics.VerifyOK)
	return rec.Owner, true, nil
}

// Revoke deletes the record matching a presented secret. The delete is
// gated on the salted verification hash, so a lookup-hash hit alone never
// destroys a record.
func (s *Store) Revoke(ctx context.Context, secret string) error {
	lookupHash := envelope.LookupHash([]byte(secret), s.lookupKey)
	rec, idx, err := s.resolve(ctx, lookupHash)
	if err != nil {
		return err
	}

	if !envelope.ConstantTimeEqual(envelope.VerificationHash([]byte(secret), rec.Salt), rec.VerificationHash) {
		return fmt.Errorf("%w: verification hash mismatch", ErrNotFound)
	}

	if err := s.deleteRecord(ctx, idx, rec); err != nil {
		return err
	}
	s.metrics.Inc(metrics.RevokeOK)
	return nil
}

// CountActive returns the number of non-expired records an owner holds of
// one kind, served from the count cache when warm.
func (s *Store) CountActive(ctx context.Context, owner string, isSession bool) (int, error) {
	if n, ok := s.counts.Get(ctx, owner, isSession); ok {
		return n, nil
	}

	n, err := s.activeCount(ctx, owner, isSession)
	if err != nil {
		return 0, err
	}
	s.counts.Set(ctx, owner, isSession, n)
	return n, nil
}

// resolve locates a record by lookup hash: alias-directed single-partition
// read first, full-partition scan on alias miss or cache fault. A scan hit
// repairs the alias.
func (s *Store) resolve(ctx context.Context, lookupHash []byte) (*Record, int, error) {
	if idx, ok := s.router.LookupAlias(ctx, lookupHash); ok {
		rec, err := s.queryByLookupHash(ctx, idx, lookupHash)
		if err != nil {
			return nil, -1, err
		}
		if rec != nil {
			return rec, idx, nil
		}
		// Alias points at a partition that no longer holds the record.
		if err := s.router.DropAlias(ctx, lookupHash); err != nil {
			s.log.Warn().Err(err).Msg("failed to drop stale alias")
		}
	}

	s.metrics.Inc(metrics.AliasFallbackScan)
	for idx := 0; idx < s.router.Count(); idx++ {
		rec, err := s.queryByLookupHash(ctx, idx, lookupHash)
		if err != nil {
			return nil, -1, err
		}
		if rec == nil {
			continue
		}
		s.log.Warn().Int("partition", idx).Msg("record located by partition scan, repairing alias")
		if err := s.router.RegisterAlias(ctx, lookupHash, idx); err != nil {
			s.log.Warn().Err(err).Msg("alias repair failed")
		}
		return rec, idx, nil
	}
	return nil, -1, ErrNotFound
}

func (s *Store) queryByLookupHash(ctx context.Context, idx int, lookupHash []byte) (*Record, error) {
	row := s.router.ByIndex(idx).Reader.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM credentials WHERE lookup_hash = ?`, lookupHash)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: query partition %d: %v", ErrStorageUnavailable, idx, err)
	}
	return rec, nil
}

func (s *Store) activeCount(ctx context.Context, owner string, isSession bool) (int, error) {
	now := time.Now().UnixNano()
	total := 0
	for i, p := range s.router.All() {
		var n int
		err := p.Reader.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM credentials WHERE owner = ? AND is_session = ? AND expires_at > ?`,
			owner, boolToInt(isSession), now,
		).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("%w: count partition %d: %v", ErrStorageUnavailable, i, err)
		}
		total += n
	}
	return total, nil
}

func (s *Store) deleteRecord(ctx context.Context, idx int, rec *Record) error {
	_, err := s.router.ByIndex(idx).Writer.ExecContext(ctx,
		`DELETE FROM credentials WHERE id = ?`, rec.ID)
	if err != nil {
		return fmt.Errorf("%w: delete record %s: %v", ErrStorageUnavailable, rec.ID, err)
	}
	if err := s.router.DropAlias(ctx, rec.LookupHash); err != nil {
		s.log.Warn().Err(err).Str("record_id", rec.ID).Msg("failed to drop alias for deleted record")
	}
	s.counts.Invalidate(ctx, rec.Owner)
	return nil
}

// evict removes an expired record encountered on a read path. Best-effort:
// a failed eviction is logged and retried on the next read.
func (s *Store) evict(ctx context.Context, idx int, rec *Record) {
	if err := s.deleteRecord(ctx, idx, rec); err != nil {
		s.log.Warn().Err(err).Str("record_id", rec.ID).Msg("lazy eviction failed")
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                  Record
		isSession            int
		createdAt, expiresAt int64
	)
	err := row.Scan(
		&rec.ID, &rec.Owner, &rec.Ciphertext, &rec.WrappedKey, &rec.CipherIV,
		&rec.VerificationHash, &rec.Salt, &rec.LookupHash,
		&isSession, &createdAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}
	rec.IsSession = isSession != 0
	rec.CreatedAt = time.Unix(0, createdAt)
	rec.ExpiresAt = time.Unix(0, expiresAt)
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == 2067 // SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
