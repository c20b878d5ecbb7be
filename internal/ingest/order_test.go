package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeKey(t *testing.T) {
	assert.Equal(t, uint64(0), MakeKey(0, 0, 0))
	assert.Equal(t, uint64(1)<<32|1<<12|1, MakeKey(1, 1, 1))
	assert.Equal(t, uint64(4294967296), MakeKey(1, 0, 0))
}

func TestMakeKeyOrdering(t *testing.T) {
	// Keys must sort by ledger, then transaction, then operation.
	keys := []uint64{
		MakeKey(1, 1, 1),
		MakeKey(1, 1, 2),
		MakeKey(1, 2, 1),
		MakeKey(1, 1048575, 4095),
		MakeKey(2, 1, 1),
		MakeKey(2, 1, 2),
		MakeKey(3, 1, 1),
	}
	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1], keys[i], "key %d not greater than its predecessor", i)
	}
}
