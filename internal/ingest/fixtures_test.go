package ingest

import (
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/require"
)

// testAddress derives a deterministic account address from a single seed byte.
func testAddress(t *testing.T, seed byte) string {
	t.Helper()
	var raw [32]byte
	for i := range raw {
		raw[i] = seed
	}
	kp, err := keypair.FromRawSeed(raw)
	require.NoError(t, err)
	return kp.Address()
}

func nativeAsset() xdr.Asset {
	return xdr.MustNewNativeAsset()
}

func creditAsset(t *testing.T, code, issuer string) xdr.Asset {
	t.Helper()
	asset, err := xdr.NewCreditAsset(code, issuer)
	require.NoError(t, err)
	return asset
}

func paymentOp(t *testing.T, dest string, asset xdr.Asset, amt int64) xdr.Operation {
	t.Helper()
	return xdr.Operation{
		Body: xdr.OperationBody{
			Type: xdr.OperationTypePayment,
			PaymentOp: &xdr.PaymentOp{
				Destination: xdr.MustMuxedAddress(dest),
				Asset:       asset,
				Amount:      xdr.Int64(amt),
			},
		},
	}
}

func createAccountOp(t *testing.T, dest string, balance int64) xdr.Operation {
	t.Helper()
	return xdr.Operation{
		Body: xdr.OperationBody{
			Type: xdr.OperationTypeCreateAccount,
			CreateAccountOp: &xdr.CreateAccountOp{
				Destination:     xdr.MustAddress(dest),
				StartingBalance: xdr.Int64(balance),
			},
		},
	}
}

func orderBookClaim(t *testing.T, seller string, offerID int64, sold xdr.Asset, amountSold int64, bought xdr.Asset, amountBought int64) xdr.ClaimAtom {
	t.Helper()
	return xdr.ClaimAtom{
		Type: xdr.ClaimAtomTypeClaimAtomTypeOrderBook,
		OrderBook: &xdr.ClaimOfferAtom{
			SellerId:     xdr.MustAddress(seller),
			OfferId:      xdr.Int64(offerID),
			AssetSold:    sold,
			AmountSold:   xdr.Int64(amountSold),
			AssetBought:  bought,
			AmountBought: xdr.Int64(amountBought),
		},
	}
}

func opSuccess(typ xdr.OperationType, tr xdr.OperationResultTr) xdr.OperationResult {
	tr.Type = typ
	return xdr.OperationResult{
		Code: xdr.OperationResultCodeOpInner,
		Tr:   &tr,
	}
}
