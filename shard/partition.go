// Package shard distributes credential records across a fixed set of
// physical SQLite partitions and maintains a Redis-backed alias index so a
// record can be located by its lookup hash without broadcasting to every
// partition. The alias index is an optimization, never a correctness
// dependency: callers that miss it fall back to scanning all partitions.
package shard

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Partition provides dual reader/writer connections to one physical
// partition. The writer is limited to a single connection to avoid
// "database is locked" errors; the reader pool allows concurrent reads.
type Partition struct {
	Writer *sql.DB
	Reader *sql.DB
	dsn    string
}

// DSN builds the partition DSN for a database file path, enabling WAL
// mode, a busy timeout, synchronous NORMAL, and foreign keys.
func DSN(path string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path,
	)
}

// NewPartition opens a partition from a full DSN (see DSN). The caller
// owns the returned partition and must Close it.
func NewPartition(dsn string) (*Partition, error) {
	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.Ping(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)

	if err := reader.Ping(); err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("ping reader: %w", err)
	}

	return &Partition{Writer: writer, Reader: reader, dsn: dsn}, nil
}

// Close closes both connections. Returns the first error encountered.
func (p *Partition) Close() error {
	var firstErr error

	if err := p.Reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}
	if err := p.Writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}
	return firstErr
}
