// Package ledgersource reads ledger headers and transaction sets from a
// stellar-core Postgres database. The database is treated as a read-only,
// append-only store; all columns holding XDR are base64 encoded.
package ledgersource

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stellar/go/support/errors"
	"github.com/stellar/go/xdr"

	"github.com/withObsrvr/stellar-history-ingester/internal/ingest"
)

// Store provides read access to the core database. It implements
// ingest.SourceStore.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// LedgerHeader loads the header for a sequence, decoding the stored
// xdr.LedgerHeader for the economic parameters the history store copies.
func (s *Store) LedgerHeader(ctx context.Context, seq uint32) (*ingest.LedgerHeader, error) {
	const q = `SELECT ledgerhash, prevhash, data FROM ledgerheaders WHERE ledgerseq = $1`

	var hash, prevHash, data string
	err := s.pool.QueryRow(ctx, q, seq).Scan(&hash, &prevHash, &data)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrapf(ingest.ErrLedgerNotFound, "sequence %d", seq)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading ledger header %d", seq)
	}

	var header xdr.LedgerHeader
	if err := xdr.SafeUnmarshalBase64(data, &header); err != nil {
		return nil, errors.Wrapf(err, "decoding ledger header %d", seq)
	}

	return &ingest.LedgerHeader{
		Sequence:     seq,
		LedgerHash:   hash,
		PrevHash:     prevHash,
		CloseTime:    time.Unix(int64(header.ScpValue.CloseTime), 0).UTC(),
		TotalCoins:   int64(header.TotalCoins),
		FeePool:      int64(header.FeePool),
		BaseFee:      uint32(header.BaseFee),
		BaseReserve:  uint32(header.BaseReserve),
		MaxTxSetSize: uint32(header.MaxTxSetSize),
	}, nil
}

// TransactionsByLedger loads the ledger's transactions in application order,
// decoding envelope, result and meta and attaching the fee-processing
// changes recorded separately by core.
func (s *Store) TransactionsByLedger(ctx context.Context, seq uint32) ([]ingest.Transaction, error) {
	const q = `
		SELECT h.txid, h.txindex, h.txbody, h.txresult, h.txmeta, COALESCE(f.txchanges, '')
		FROM txhistory h
		LEFT JOIN txfeehistory f ON f.txid = h.txid AND f.ledgerseq = h.ledgerseq
		WHERE h.ledgerseq = $1
		ORDER BY h.txindex ASC`

	rows, err := s.pool.Query(ctx, q, seq)
	if err != nil {
		return nil, errors.Wrapf(err, "loading transactions for ledger %d", seq)
	}
	defer rows.Close()

	var txs []ingest.Transaction
	for rows.Next() {
		var (
			hash    string
			index   int32
			body    string
			result  string
			meta    string
			changes string
		)
		if err := rows.Scan(&hash, &index, &body, &result, &meta, &changes); err != nil {
			return nil, errors.Wrap(err, "scanning txhistory row")
		}

		tx := ingest.Transaction{
			Index:       index,
			Hash:        hash,
			RawEnvelope: body,
			RawResult:   result,
			RawMeta:     meta,
			RawFees:     changes,
		}
		if err := xdr.SafeUnmarshalBase64(body, &tx.Env); err != nil {
			return nil, errors.Wrapf(err, "decoding envelope of %s", hash)
		}
		var pair xdr.TransactionResultPair
		if err := xdr.SafeUnmarshalBase64(result, &pair); err != nil {
			return nil, errors.Wrapf(err, "decoding result of %s", hash)
		}
		tx.Result = pair.Result
		if err := xdr.SafeUnmarshalBase64(meta, &tx.Meta); err != nil {
			return nil, errors.Wrapf(err, "decoding meta of %s", hash)
		}
		if changes != "" {
			if err := xdr.SafeUnmarshalBase64(changes, &tx.Fees); err != nil {
				return nil, errors.Wrapf(err, "decoding fee changes of %s", hash)
			}
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading transactions for ledger %d", seq)
	}
	return txs, nil
}

// LatestSequence returns the highest ledger sequence the core database has
// closed, or 0 when it is empty.
func (s *Store) LatestSequence(ctx context.Context) (uint32, error) {
	var seq uint32
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(ledgerseq), 0) FROM ledgerheaders`).Scan(&seq)
	if err != nil {
		return 0, errors.Wrap(err, "loading latest core ledger")
	}
	return seq, nil
}
