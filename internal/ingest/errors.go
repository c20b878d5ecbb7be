package ingest

import "errors"

// Errors surfaced by the importer. All of them abort the whole atomic scope
// for the ledger being imported; nothing is partially committed.
var (
	// ErrLedgerNotFound means the requested sequence has not been produced
	// by the upstream source store yet. Callers may retry later.
	ErrLedgerNotFound = errors.New("ledger not found in source store")

	// ErrChainDiscontinuity means the predecessor ledger is missing from the
	// history store, or its recorded hash does not match the loaded header's
	// previous-ledger hash. The gap must be backfilled before this sequence
	// can be imported.
	ErrChainDiscontinuity = errors.New("ledger chain discontinuity")

	// ErrReferentialIntegrity means an operation or transaction references an
	// address with no corresponding account row after account-creation
	// processing. This indicates a decoding or ordering defect and is never
	// retried.
	ErrReferentialIntegrity = errors.New("participant account not found")

	// ErrUnsupportedAsset means an operation carries the native asset where a
	// credit asset is required, or an asset encoding outside the two
	// supported credit forms.
	ErrUnsupportedAsset = errors.New("unsupported asset for operation")

	// ErrConflict means another importer committed the same sequence
	// concurrently. The store is intact; the caller may re-check state.
	ErrConflict = errors.New("ledger already imported concurrently")
)
