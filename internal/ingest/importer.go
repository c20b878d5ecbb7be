// Package ingest imports ledgers from an upstream source store into the
// normalized history store: one ledger per call, decoded from its XDR blobs
// into ledger, transaction, account, operation, participant and effect rows,
// all written inside a single atomic scope.
package ingest

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/support/errors"
	"github.com/stellar/go/xdr"
	"go.uber.org/zap"
)

// masterAccountID is the reserved surrogate id of the network's root
// account, created exactly once while importing the genesis ledger.
const masterAccountID = 1

// Importer drives the import of single ledgers from a source store into a
// history store. It is safe for concurrent use across distinct sequences;
// the history store's uniqueness constraints reject concurrent duplicates.
type Importer struct {
	source  SourceStore
	history HistoryStore
	master  string
	log     *zap.Logger
}

// NewImporter returns an Importer. The network passphrase determines the
// reserved master account's address.
func NewImporter(source SourceStore, history HistoryStore, networkPassphrase string, log *zap.Logger) *Importer {
	return &Importer{
		source:  source,
		history: history,
		master:  keypair.Root(networkPassphrase).Address(),
		log:     log,
	}
}

// Import imports the ledger at seq. If the ledger was already imported the
// call is a no-op returning the existing record, unless allowRebuild is set,
// in which case the ledger's owned subtree is deleted and re-derived.
// Accounts survive rebuilds; other ledgers may reference them.
func (imp *Importer) Import(ctx context.Context, seq uint32, allowRebuild bool) (*Ledger, error) {
	header, err := imp.source.LedgerHeader(ctx, seq)
	if err != nil {
		return nil, err
	}
	txs, err := imp.source.TransactionsByLedger(ctx, seq)
	if err != nil {
		return nil, err
	}

	var imported *Ledger
	err = imp.history.Transact(ctx, func(s Session) error {
		if seq > 1 {
			prev, err := s.LedgerBySequence(ctx, seq-1)
			if err != nil {
				return err
			}
			if prev == nil {
				return errors.Wrapf(ErrChainDiscontinuity, "ledger %d is not imported", seq-1)
			}
			if prev.LedgerHash != header.PrevHash {
				return errors.Wrapf(ErrChainDiscontinuity,
					"ledger %d hash %s does not match header's previous hash %s",
					seq-1, prev.LedgerHash, header.PrevHash)
			}
		}

		existing, err := s.LedgerBySequence(ctx, seq)
		if err != nil {
			return err
		}
		if existing != nil {
			if !allowRebuild {
				imp.log.Info("ledger already imported, skipping",
					zap.Uint32("sequence", seq),
					zap.Int32("importer_version", existing.ImporterVersion))
				imported = existing
				return nil
			}
			if err := s.DeleteLedgerSubtree(ctx, seq); err != nil {
				return err
			}
		}

		run := &ledgerRun{
			session:  s,
			log:      imp.log,
			sequence: seq,
			accounts: map[string]uint64{},
		}

		if seq == 1 {
			if err := run.ensureAccount(ctx, imp.master, masterAccountID); err != nil {
				return err
			}
		}

		ledger := newLedger(header, txs)
		if err := s.InsertLedger(ctx, ledger); err != nil {
			return err
		}

		for i := range txs {
			if !txs[i].Successful() {
				continue
			}
			if err := run.importTransaction(ctx, &txs[i]); err != nil {
				return err
			}
		}

		imp.log.Info("imported ledger",
			zap.Uint32("sequence", seq),
			zap.Int32("transactions", ledger.TransactionCount),
			zap.Int32("operations", ledger.OperationCount),
			zap.Bool("rebuild", existing != nil))
		imported = ledger
		return nil
	})
	if err != nil {
		return nil, err
	}
	return imported, nil
}

// newLedger builds the history ledger row from the source header. Counts
// cover only the successful-transaction subset.
func newLedger(header *LedgerHeader, txs []Transaction) *Ledger {
	var txCount, opCount int32
	for i := range txs {
		if !txs[i].Successful() {
			continue
		}
		txCount++
		opCount += int32(len(txs[i].Env.Operations()))
	}

	prevHash := header.PrevHash
	if header.Sequence == 1 {
		prevHash = ""
	}

	return &Ledger{
		Sequence:         header.Sequence,
		ImporterVersion:  CurrentVersion,
		LedgerHash:       header.LedgerHash,
		PrevHash:         prevHash,
		CloseTime:        header.CloseTime,
		TransactionCount: txCount,
		OperationCount:   opCount,
		TotalCoins:       header.TotalCoins,
		FeePool:          header.FeePool,
		BaseFee:          header.BaseFee,
		BaseReserve:      header.BaseReserve,
		MaxTxSetSize:     header.MaxTxSetSize,
	}
}

// ledgerRun carries the per-ledger import state: the open session and the
// address→id cache of accounts already resolved within this scope.
type ledgerRun struct {
	session  Session
	log      *zap.Logger
	sequence uint32
	accounts map[string]uint64
}

// resolveAccount maps an address to its account id. Every address referenced
// by a transaction or operation must already exist by the time it is
// resolved; a miss is a decoding or ordering defect.
func (r *ledgerRun) resolveAccount(ctx context.Context, address string) (uint64, error) {
	if id, ok := r.accounts[address]; ok {
		return id, nil
	}
	account, err := r.session.AccountByAddress(ctx, address)
	if err != nil {
		return 0, err
	}
	if account == nil {
		return 0, errors.Wrapf(ErrReferentialIntegrity, "address %s", address)
	}
	r.accounts[address] = account.ID
	return account.ID, nil
}

// ensureAccount creates the account row for address with the given surrogate
// id unless the address is already known. An account is created at most once
// regardless of how many ledgers later reference it.
func (r *ledgerRun) ensureAccount(ctx context.Context, address string, id uint64) error {
	if _, ok := r.accounts[address]; ok {
		return nil
	}
	existing, err := r.session.AccountByAddress(ctx, address)
	if err != nil {
		return err
	}
	if existing != nil {
		r.accounts[address] = existing.ID
		return nil
	}
	if err := r.session.InsertAccount(ctx, &Account{ID: id, Address: address}); err != nil {
		return err
	}
	r.accounts[address] = id
	return nil
}

func (r *ledgerRun) importTransaction(ctx context.Context, tx *Transaction) error {
	txSource := tx.Env.SourceAccount().ToAccountId().Address()
	ops := tx.Env.Operations()
	results, _ := tx.Result.OperationResults()

	decoded := make([]*decodedOperation, len(ops))
	for i := range ops {
		d, err := decodeOperation(ops[i], txSource, operationResultTr(results, i))
		if err != nil {
			return errors.Wrapf(err, "transaction %s operation %d", tx.Hash, i+1)
		}
		decoded[i] = d
	}

	// Accounts brought into existence by this transaction get ids derived
	// from the position of the creating operation, so ids sort in
	// first-appearance order.
	for i, d := range decoded {
		for _, address := range d.newAccounts {
			id := MakeKey(r.sequence, tx.Index, int32(i+1))
			if err := r.ensureAccount(ctx, address, id); err != nil {
				return err
			}
		}
	}

	txParticipants := []string{txSource}
	seen := map[string]bool{txSource: true}
	for _, d := range decoded {
		for _, p := range d.participants {
			if !seen[p] {
				seen[p] = true
				txParticipants = append(txParticipants, p)
			}
		}
	}
	txParticipantIDs, err := r.resolveAccounts(ctx, txParticipants)
	if err != nil {
		return errors.Wrapf(err, "transaction %s", tx.Hash)
	}

	row := newTransactionRow(tx, r.sequence, txSource)
	if err := r.session.InsertTransaction(ctx, row); err != nil {
		return err
	}
	if err := r.session.InsertTransactionParticipants(ctx, tx.Hash, txParticipantIDs); err != nil {
		return err
	}

	for i, d := range decoded {
		order := int32(i + 1)
		if err := r.session.InsertOperation(ctx, &OperationRow{
			TransactionHash:  tx.Hash,
			LedgerSequence:   r.sequence,
			ApplicationOrder: order,
			SourceAccount:    d.source,
			Type:             d.typ,
			TypeCode:         d.typeCode,
			Details:          d.details,
		}); err != nil {
			return err
		}
		participantIDs, err := r.resolveAccounts(ctx, d.participants)
		if err != nil {
			return errors.Wrapf(err, "transaction %s operation %d", tx.Hash, order)
		}
		if err := r.session.InsertOperationParticipants(ctx, tx.Hash, order, participantIDs); err != nil {
			return err
		}
	}

	for i, d := range decoded {
		if err := r.importEffects(ctx, tx, ops[i], d, operationResultTr(results, i), int32(i+1)); err != nil {
			return err
		}
	}
	return nil
}

func (r *ledgerRun) importEffects(ctx context.Context, tx *Transaction, op xdr.Operation, d *decodedOperation, result *xdr.OperationResultTr, opOrder int32) error {
	effects, known := deriveEffects(op, d.source, result, operationChanges(tx.Meta, int(opOrder-1)))
	if !known {
		r.log.Warn("no effect rule for operation type",
			zap.String("transaction", tx.Hash),
			zap.Int32("operation", opOrder),
			zap.String("type", d.typ))
		return nil
	}
	for j, e := range effects {
		accountID, err := r.resolveAccount(ctx, e.account)
		if err != nil {
			return errors.Wrapf(err, "transaction %s operation %d effect %d", tx.Hash, opOrder, j+1)
		}
		if err := r.session.InsertEffect(ctx, &EffectRow{
			TransactionHash: tx.Hash,
			LedgerSequence:  r.sequence,
			OperationOrder:  opOrder,
			Order:           int32(j + 1),
			AccountID:       accountID,
			Account:         e.account,
			Type:            e.typ,
			TypeCode:        effectCodes[e.typ],
			Details:         e.details,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *ledgerRun) resolveAccounts(ctx context.Context, addresses []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(addresses))
	for _, address := range addresses {
		id, err := r.resolveAccount(ctx, address)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func operationResultTr(results []xdr.OperationResult, i int) *xdr.OperationResultTr {
	if i >= len(results) || results[i].Code != xdr.OperationResultCodeOpInner {
		return nil
	}
	return results[i].Tr
}

// operationChanges extracts one operation's ledger entry changes from the
// transaction meta, across meta versions.
func operationChanges(meta xdr.TransactionMeta, opIndex int) xdr.LedgerEntryChanges {
	var ops []xdr.OperationMeta
	switch meta.V {
	case 0:
		if meta.Operations != nil {
			ops = *meta.Operations
		}
	case 1:
		ops = meta.V1.Operations
	case 2:
		ops = meta.V2.Operations
	case 3:
		ops = meta.V3.Operations
	case 4:
		// V4 carries OperationMetaV2 entries.
		if opIndex >= len(meta.V4.Operations) {
			return nil
		}
		return meta.V4.Operations[opIndex].Changes
	}
	if opIndex >= len(ops) {
		return nil
	}
	return ops[opIndex].Changes
}

func newTransactionRow(tx *Transaction, ledgerSeq uint32, txSource string) *TransactionRow {
	ops := tx.Env.Operations()
	memoType, memo := transactionMemo(tx.Env.Memo())
	validAfter, validBefore := transactionTimeBounds(tx.Env)

	sigs := tx.Env.Signatures()
	signatures := make([]string, 0, len(sigs))
	for _, sig := range sigs {
		signatures = append(signatures, base64.StdEncoding.EncodeToString(sig.Signature))
	}

	return &TransactionRow{
		Hash:             tx.Hash,
		LedgerSequence:   ledgerSeq,
		ApplicationOrder: tx.Index,
		Account:          txSource,
		AccountSequence:  tx.Env.SeqNum(),
		FeePaid:          int64(tx.Result.FeeCharged),
		OperationCount:   int32(len(ops)),
		Envelope:         tx.RawEnvelope,
		Result:           tx.RawResult,
		Meta:             tx.RawMeta,
		FeeMeta:          tx.RawFees,
		Signatures:       signatures,
		MemoType:         memoType,
		Memo:             memo,
		ValidAfter:       validAfter,
		ValidBefore:      validBefore,
	}
}

func transactionMemo(m xdr.Memo) (string, *string) {
	switch m.Type {
	case xdr.MemoTypeMemoText:
		text := m.MustText()
		return "text", &text
	case xdr.MemoTypeMemoId:
		id := fmt.Sprintf("%d", m.MustId())
		return "id", &id
	case xdr.MemoTypeMemoHash:
		hash := m.MustHash()
		value := base64.StdEncoding.EncodeToString(hash[:])
		return "hash", &value
	case xdr.MemoTypeMemoReturn:
		ret := m.MustRetHash()
		value := base64.StdEncoding.EncodeToString(ret[:])
		return "return", &value
	default:
		return "none", nil
	}
}

func transactionTimeBounds(env xdr.TransactionEnvelope) (*time.Time, *time.Time) {
	var tb *xdr.TimeBounds
	switch env.Type {
	case xdr.EnvelopeTypeEnvelopeTypeTxV0:
		tb = env.V0.Tx.TimeBounds
	case xdr.EnvelopeTypeEnvelopeTypeTx:
		if env.V1.Tx.Cond.Type == xdr.PreconditionTypePrecondTime {
			tb = env.V1.Tx.Cond.TimeBounds
		}
	}
	if tb == nil {
		return nil, nil
	}
	var after, before *time.Time
	if tb.MinTime > 0 {
		t := time.Unix(int64(tb.MinTime), 0).UTC()
		after = &t
	}
	if tb.MaxTime > 0 {
		t := time.Unix(int64(tb.MaxTime), 0).UTC()
		before = &t
	}
	return after, before
}
