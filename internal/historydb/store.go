// Package historydb is the pgx-backed destination store for derived history
// records. All writes for one ledger go through a single transaction scope
// obtained from Store.Transact.
package historydb

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stellar/go/support/errors"

	"github.com/withObsrvr/stellar-history-ingester/internal/ingest"
)

// Store wraps a pgx pool over the history database. It implements
// ingest.HistoryStore.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InitSchema creates the history tables and indexes if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "initializing history schema")
	}
	return nil
}

// Transact runs fn inside one database transaction. Any error from fn rolls
// the transaction back; nothing is partially committed.
func (s *Store) Transact(ctx context.Context, fn func(ingest.Session) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning history transaction")
	}
	defer tx.Rollback(ctx)

	if err := fn(&session{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "committing history transaction")
	}
	return nil
}

// LatestSequence returns the highest imported ledger sequence, or 0 when the
// store is empty.
func (s *Store) LatestSequence(ctx context.Context) (uint32, error) {
	var seq uint32
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM ledgers`).Scan(&seq)
	if err != nil {
		return 0, errors.Wrap(err, "loading latest imported ledger")
	}
	return seq, nil
}

// OutdatedLedgers returns sequences whose importer_version predates the
// current one, oldest first, up to limit. Operators use this to schedule
// rebuilds after a version bump.
func (s *Store) OutdatedLedgers(ctx context.Context, limit int) ([]uint32, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sequence FROM ledgers WHERE importer_version < $1 ORDER BY sequence ASC LIMIT $2`,
		ingest.CurrentVersion, limit)
	if err != nil {
		return nil, errors.Wrap(err, "loading outdated ledgers")
	}
	defer rows.Close()

	var seqs []uint32
	for rows.Next() {
		var seq uint32
		if err := rows.Scan(&seq); err != nil {
			return nil, errors.Wrap(err, "scanning outdated ledger")
		}
		seqs = append(seqs, seq)
	}
	return seqs, rows.Err()
}
