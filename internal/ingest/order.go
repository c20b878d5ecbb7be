package ingest

// MakeKey derives a single surrogate key from a position in the chain's
// history. Keys sort in chronological order: ledger sequence first, then the
// 1-based transaction index within the ledger, then the 1-based operation
// index within the transaction.
//
// Layout: 32 bits of ledger sequence, 20 bits of transaction index, 12 bits
// of operation index. A transaction index of 0 with operation index 0
// addresses the ledger itself.
func MakeKey(ledgerSeq uint32, txIndex int32, opIndex int32) uint64 {
	return uint64(ledgerSeq)<<32 | uint64(uint32(txIndex)&0xfffff)<<12 | uint64(uint32(opIndex)&0xfff)
}
