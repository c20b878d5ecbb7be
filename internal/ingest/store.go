package ingest

import (
	"context"
	"time"

	"github.com/stellar/go/xdr"
)

// CurrentVersion is stamped on every ledger row this importer writes. A bump
// signals that ledgers imported at older versions should be considered for
// rebuild.
const CurrentVersion = 8

// LedgerHeader is one ledger header loaded from the source store.
type LedgerHeader struct {
	Sequence     uint32
	LedgerHash   string
	PrevHash     string
	CloseTime    time.Time
	TotalCoins   int64
	FeePool      int64
	BaseFee      uint32
	BaseReserve  uint32
	MaxTxSetSize uint32
}

// Transaction is one transaction of a source ledger, with its envelope,
// result and meta decoded from the stored XDR blobs. The Raw* fields carry
// the verbatim base64 blobs so the history store can persist exact copies.
type Transaction struct {
	Index  int32 // 1-based position within the ledger
	Hash   string
	Env    xdr.TransactionEnvelope
	Result xdr.TransactionResult
	Meta   xdr.TransactionMeta
	Fees   xdr.LedgerEntryChanges

	RawEnvelope string
	RawResult   string
	RawMeta     string
	RawFees     string
}

// Successful reports whether the transaction was applied. Only successful
// transactions are imported.
func (t *Transaction) Successful() bool {
	return t.Result.Successful()
}

// SourceStore is read-only access to the upstream ledger store.
type SourceStore interface {
	// LedgerHeader loads the header for a sequence. It returns
	// ErrLedgerNotFound when the sequence has not been produced yet.
	LedgerHeader(ctx context.Context, seq uint32) (*LedgerHeader, error)

	// TransactionsByLedger loads the ledger's transactions in index order.
	TransactionsByLedger(ctx context.Context, seq uint32) ([]Transaction, error)
}

// Ledger is one imported ledger row in the history store.
type Ledger struct {
	Sequence         uint32
	ImporterVersion  int32
	LedgerHash       string
	PrevHash         string // empty for the genesis ledger
	CloseTime        time.Time
	TransactionCount int32
	OperationCount   int32
	TotalCoins       int64
	FeePool          int64
	BaseFee          uint32
	BaseReserve      uint32
	MaxTxSetSize     uint32
}

// Account is a history account row: a stable address with a surrogate id
// assigned at first observation.
type Account struct {
	ID      uint64
	Address string
}

// TransactionRow is one imported transaction row.
type TransactionRow struct {
	Hash             string
	LedgerSequence   uint32
	ApplicationOrder int32
	Account          string
	AccountSequence  int64
	FeePaid          int64
	OperationCount   int32
	Envelope         string
	Result           string
	Meta             string
	FeeMeta          string
	Signatures       []string
	MemoType         string
	Memo             *string
	ValidAfter       *time.Time
	ValidBefore      *time.Time
}

// OperationRow is one imported operation row with its type-specific details
// projection.
type OperationRow struct {
	TransactionHash  string
	LedgerSequence   uint32
	ApplicationOrder int32 // 1-based position within the transaction
	SourceAccount    string
	Type             string
	TypeCode         int32
	Details          map[string]interface{}
}

// EffectRow is one state change implied by an operation's execution.
type EffectRow struct {
	TransactionHash string
	LedgerSequence  uint32
	OperationOrder  int32
	Order           int32 // 1-based, local to the operation
	AccountID       uint64
	Account         string
	Type            string
	TypeCode        int32
	Details         map[string]interface{}
}

// Session is the write surface of one atomic history-store scope. Lookup
// methods return (nil, nil) when no row exists.
type Session interface {
	LedgerBySequence(ctx context.Context, seq uint32) (*Ledger, error)
	InsertLedger(ctx context.Context, l *Ledger) error

	// DeleteLedgerSubtree removes the ledger row and everything it owns:
	// transactions, operations, effects and participant links. Accounts are
	// never deleted; other ledgers may reference them.
	DeleteLedgerSubtree(ctx context.Context, seq uint32) error

	AccountByAddress(ctx context.Context, address string) (*Account, error)
	InsertAccount(ctx context.Context, a *Account) error

	InsertTransaction(ctx context.Context, tx *TransactionRow) error
	InsertTransactionParticipants(ctx context.Context, hash string, accountIDs []uint64) error

	InsertOperation(ctx context.Context, op *OperationRow) error
	InsertOperationParticipants(ctx context.Context, txHash string, opOrder int32, accountIDs []uint64) error

	InsertEffect(ctx context.Context, e *EffectRow) error
}

// HistoryStore runs a function inside a single all-or-nothing scope. If fn
// returns an error the scope is rolled back and the store is left exactly as
// it was.
type HistoryStore interface {
	Transact(ctx context.Context, fn func(Session) error) error
}
