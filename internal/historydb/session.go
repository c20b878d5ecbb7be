package historydb

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stellar/go/support/errors"

	"github.com/withObsrvr/stellar-history-ingester/internal/ingest"
)

// uniqueViolation is the Postgres error code for a uniqueness constraint
// failure, surfaced when two importers race on the same sequence.
const uniqueViolation = "23505"

// session implements ingest.Session over one open pgx transaction.
type session struct {
	tx pgx.Tx
}

func (s *session) LedgerBySequence(ctx context.Context, seq uint32) (*ingest.Ledger, error) {
	const q = `
		SELECT sequence, importer_version, ledger_hash, COALESCE(previous_ledger_hash, ''),
		       closed_at, transaction_count, operation_count,
		       total_coins, fee_pool, base_fee, base_reserve, max_tx_set_size
		FROM ledgers WHERE sequence = $1`

	var l ingest.Ledger
	err := s.tx.QueryRow(ctx, q, seq).Scan(
		&l.Sequence, &l.ImporterVersion, &l.LedgerHash, &l.PrevHash,
		&l.CloseTime, &l.TransactionCount, &l.OperationCount,
		&l.TotalCoins, &l.FeePool, &l.BaseFee, &l.BaseReserve, &l.MaxTxSetSize,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading ledger %d", seq)
	}
	return &l, nil
}

func (s *session) InsertLedger(ctx context.Context, l *ingest.Ledger) error {
	const q = `
		INSERT INTO ledgers (sequence, importer_version, ledger_hash, previous_ledger_hash,
			closed_at, transaction_count, operation_count,
			total_coins, fee_pool, base_fee, base_reserve, max_tx_set_size)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.tx.Exec(ctx, q,
		l.Sequence, l.ImporterVersion, l.LedgerHash, l.PrevHash,
		l.CloseTime, l.TransactionCount, l.OperationCount,
		l.TotalCoins, l.FeePool, l.BaseFee, l.BaseReserve, l.MaxTxSetSize,
	)
	if isUniqueViolation(err) {
		return errors.Wrapf(ingest.ErrConflict, "ledger %d", l.Sequence)
	}
	if err != nil {
		return errors.Wrapf(err, "inserting ledger %d", l.Sequence)
	}
	return nil
}

func (s *session) DeleteLedgerSubtree(ctx context.Context, seq uint32) error {
	// Cascades through transactions, operations, effects and participant
	// links. Accounts are left untouched.
	if _, err := s.tx.Exec(ctx, `DELETE FROM ledgers WHERE sequence = $1`, seq); err != nil {
		return errors.Wrapf(err, "deleting ledger %d", seq)
	}
	return nil
}

func (s *session) AccountByAddress(ctx context.Context, address string) (*ingest.Account, error) {
	var a ingest.Account
	err := s.tx.QueryRow(ctx, `SELECT id, address FROM accounts WHERE address = $1`, address).
		Scan(&a.ID, &a.Address)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading account %s", address)
	}
	return &a, nil
}

func (s *session) InsertAccount(ctx context.Context, a *ingest.Account) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO accounts (id, address) VALUES ($1, $2)`, int64(a.ID), a.Address)
	if err != nil {
		return errors.Wrapf(err, "inserting account %s", a.Address)
	}
	return nil
}

func (s *session) InsertTransaction(ctx context.Context, t *ingest.TransactionRow) error {
	const q = `
		INSERT INTO transactions (hash, ledger_sequence, application_order,
			account, account_sequence, fee_paid, operation_count,
			envelope, result, meta, fee_meta, signatures,
			memo_type, memo, valid_after, valid_before)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13, $14, $15, $16)`

	_, err := s.tx.Exec(ctx, q,
		t.Hash, t.LedgerSequence, t.ApplicationOrder,
		t.Account, t.AccountSequence, t.FeePaid, t.OperationCount,
		t.Envelope, t.Result, t.Meta, t.FeeMeta, t.Signatures,
		t.MemoType, t.Memo, t.ValidAfter, t.ValidBefore,
	)
	if err != nil {
		return errors.Wrapf(err, "inserting transaction %s", t.Hash)
	}
	return nil
}

func (s *session) InsertTransactionParticipants(ctx context.Context, hash string, accountIDs []uint64) error {
	for _, id := range accountIDs {
		_, err := s.tx.Exec(ctx,
			`INSERT INTO transaction_participants (transaction_hash, account_id) VALUES ($1, $2)`,
			hash, int64(id))
		if err != nil {
			return errors.Wrapf(err, "inserting participant of %s", hash)
		}
	}
	return nil
}

func (s *session) InsertOperation(ctx context.Context, op *ingest.OperationRow) error {
	details, err := json.Marshal(op.Details)
	if err != nil {
		return errors.Wrapf(err, "encoding details of %s op %d", op.TransactionHash, op.ApplicationOrder)
	}

	const q = `
		INSERT INTO operations (transaction_hash, ledger_sequence, application_order,
			source_account, type, type_code, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = s.tx.Exec(ctx, q,
		op.TransactionHash, op.LedgerSequence, op.ApplicationOrder,
		op.SourceAccount, op.Type, op.TypeCode, string(details),
	)
	if err != nil {
		return errors.Wrapf(err, "inserting operation %d of %s", op.ApplicationOrder, op.TransactionHash)
	}
	return nil
}

func (s *session) InsertOperationParticipants(ctx context.Context, txHash string, opOrder int32, accountIDs []uint64) error {
	for _, id := range accountIDs {
		_, err := s.tx.Exec(ctx,
			`INSERT INTO operation_participants (transaction_hash, operation_order, account_id) VALUES ($1, $2, $3)`,
			txHash, opOrder, int64(id))
		if err != nil {
			return errors.Wrapf(err, "inserting participant of %s op %d", txHash, opOrder)
		}
	}
	return nil
}

func (s *session) InsertEffect(ctx context.Context, e *ingest.EffectRow) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return errors.Wrapf(err, "encoding details of %s op %d effect %d",
			e.TransactionHash, e.OperationOrder, e.Order)
	}

	const q = `
		INSERT INTO effects (transaction_hash, ledger_sequence, operation_order, effect_order,
			account_id, account, type, type_code, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.tx.Exec(ctx, q,
		e.TransactionHash, e.LedgerSequence, e.OperationOrder, e.Order,
		int64(e.AccountID), e.Account, e.Type, e.TypeCode, string(details),
	)
	if err != nil {
		return errors.Wrapf(err, "inserting effect %d of %s op %d", e.Order, e.TransactionHash, e.OperationOrder)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
