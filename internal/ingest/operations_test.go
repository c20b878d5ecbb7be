package ingest

import (
	"testing"

	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOperationCreateAccount(t *testing.T) {
	source := testAddress(t, 1)
	dest := testAddress(t, 2)

	d, err := decodeOperation(createAccountOp(t, dest, 10000000000), source, nil)
	require.NoError(t, err)

	assert.Equal(t, source, d.source)
	assert.Equal(t, "create_account", d.typ)
	assert.Equal(t, int32(xdr.OperationTypeCreateAccount), d.typeCode)
	assert.Equal(t, map[string]interface{}{
		"funder":           source,
		"account":          dest,
		"starting_balance": "1000.0000000",
	}, d.details)
	assert.Equal(t, []string{source, dest}, d.participants)
	assert.Equal(t, []string{dest}, d.newAccounts)
}

func TestDecodeOperationSourceOverride(t *testing.T) {
	txSource := testAddress(t, 1)
	opSource := testAddress(t, 2)
	dest := testAddress(t, 3)

	op := paymentOp(t, dest, nativeAsset(), 50000000)
	muxed := xdr.MustMuxedAddress(opSource)
	op.SourceAccount = &muxed

	d, err := decodeOperation(op, txSource, nil)
	require.NoError(t, err)

	assert.Equal(t, opSource, d.source)
	assert.Equal(t, opSource, d.details["from"])
	assert.Equal(t, []string{opSource, dest}, d.participants)
}

func TestDecodeOperationPayment(t *testing.T) {
	source := testAddress(t, 1)
	dest := testAddress(t, 2)
	issuer := testAddress(t, 3)

	d, err := decodeOperation(paymentOp(t, dest, creditAsset(t, "USD", issuer), 12345678), source, nil)
	require.NoError(t, err)

	assert.Equal(t, "payment", d.typ)
	assert.Equal(t, map[string]interface{}{
		"from":         source,
		"to":           dest,
		"amount":       "1.2345678",
		"asset_type":   "credit_alphanum4",
		"asset_code":   "USD",
		"asset_issuer": issuer,
	}, d.details)
}

func TestDecodeOperationPathPayment(t *testing.T) {
	source := testAddress(t, 1)
	dest := testAddress(t, 2)
	issuer := testAddress(t, 3)
	usd := creditAsset(t, "USD", issuer)

	op := xdr.Operation{
		Body: xdr.OperationBody{
			Type: xdr.OperationTypePathPaymentStrictReceive,
			PathPaymentStrictReceiveOp: &xdr.PathPaymentStrictReceiveOp{
				SendAsset:   nativeAsset(),
				SendMax:     100000000,
				Destination: xdr.MustMuxedAddress(dest),
				DestAsset:   usd,
				DestAmount:  50000000,
				Path:        []xdr.Asset{creditAsset(t, "EURO", issuer)},
			},
		},
	}
	result := opSuccess(xdr.OperationTypePathPaymentStrictReceive, xdr.OperationResultTr{
		PathPaymentStrictReceiveResult: &xdr.PathPaymentStrictReceiveResult{
			Code: xdr.PathPaymentStrictReceiveResultCodePathPaymentStrictReceiveSuccess,
			Success: &xdr.PathPaymentStrictReceiveResultSuccess{
				Last: xdr.SimplePaymentResult{
					Destination: xdr.MustAddress(dest),
					Asset:       usd,
					Amount:      70000000,
				},
			},
		},
	})

	d, err := decodeOperation(op, source, result.Tr)
	require.NoError(t, err)

	assert.Equal(t, "path_payment", d.typ)
	assert.Equal(t, "5.0000000", d.details["amount"])
	assert.Equal(t, "10.0000000", d.details["source_max"])
	// With no offers claimed the source paid the direct amount.
	assert.Equal(t, "7.0000000", d.details["source_amount"])
	assert.Equal(t, "credit_alphanum4", d.details["asset_type"])
	assert.Equal(t, "native", d.details["source_asset_type"])

	hops, ok := d.details["path"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, hops, 1)
	assert.Equal(t, "EURO", hops[0]["asset_code"])
}

func TestPathPaymentSourceAmountSumsFirstHop(t *testing.T) {
	seller := testAddress(t, 4)
	issuer := testAddress(t, 3)
	usd := creditAsset(t, "USD", issuer)
	eur := creditAsset(t, "EUR", issuer)

	res := xdr.PathPaymentStrictReceiveResult{
		Code: xdr.PathPaymentStrictReceiveResultCodePathPaymentStrictReceiveSuccess,
		Success: &xdr.PathPaymentStrictReceiveResultSuccess{
			Offers: []xdr.ClaimAtom{
				// Two claims against the sender's asset, then a later hop.
				orderBookClaim(t, seller, 1, usd, 10, nativeAsset(), 30000000),
				orderBookClaim(t, seller, 2, usd, 5, nativeAsset(), 20000000),
				orderBookClaim(t, seller, 3, eur, 7, usd, 15),
			},
			Last: xdr.SimplePaymentResult{Amount: 999},
		},
	}

	assert.Equal(t, xdr.Int64(50000000), pathPaymentSourceAmount(res))
}

func TestDecodeOperationManageOffer(t *testing.T) {
	source := testAddress(t, 1)
	issuer := testAddress(t, 3)

	op := xdr.Operation{
		Body: xdr.OperationBody{
			Type: xdr.OperationTypeManageSellOffer,
			ManageSellOfferOp: &xdr.ManageSellOfferOp{
				Selling: nativeAsset(),
				Buying:  creditAsset(t, "USD", issuer),
				Amount:  40000000,
				Price:   xdr.Price{N: 1, D: 3},
				OfferId: 42,
			},
		},
	}

	d, err := decodeOperation(op, source, nil)
	require.NoError(t, err)

	assert.Equal(t, "manage_offer", d.typ)
	assert.Equal(t, int64(42), d.details["offer_id"])
	assert.Equal(t, "4.0000000", d.details["amount"])
	assert.Equal(t, "0.3333333", d.details["price"])
	assert.Equal(t, map[string]interface{}{"n": int32(1), "d": int32(3)}, d.details["price_r"])
	assert.Equal(t, "native", d.details["selling_asset_type"])
	assert.Equal(t, "USD", d.details["buying_asset_code"])
	assert.Equal(t, []string{source}, d.participants)
}

func TestDecodeOperationSetOptionsPartial(t *testing.T) {
	source := testAddress(t, 1)

	domain := xdr.String32("example.com")
	weight := xdr.Uint32(2)
	op := xdr.Operation{
		Body: xdr.OperationBody{
			Type: xdr.OperationTypeSetOptions,
			SetOptionsOp: &xdr.SetOptionsOp{
				HomeDomain:   &domain,
				MasterWeight: &weight,
			},
		},
	}

	d, err := decodeOperation(op, source, nil)
	require.NoError(t, err)

	// Only the fields present on the operation appear in the projection.
	assert.Equal(t, map[string]interface{}{
		"home_domain":       "example.com",
		"master_key_weight": uint32(2),
	}, d.details)
}

func TestDecodeOperationSetOptionsFlags(t *testing.T) {
	source := testAddress(t, 1)

	set := xdr.Uint32(uint32(xdr.AccountFlagsAuthRequiredFlag | xdr.AccountFlagsAuthRevocableFlag))
	clear := xdr.Uint32(uint32(xdr.AccountFlagsAuthImmutableFlag))
	op := xdr.Operation{
		Body: xdr.OperationBody{
			Type: xdr.OperationTypeSetOptions,
			SetOptionsOp: &xdr.SetOptionsOp{
				SetFlags:   &set,
				ClearFlags: &clear,
			},
		},
	}

	d, err := decodeOperation(op, source, nil)
	require.NoError(t, err)

	assert.Equal(t, []int32{1, 2}, d.details["set_flags"])
	assert.Equal(t, []string{"auth_required", "auth_revocable"}, d.details["set_flags_s"])
	assert.Equal(t, []int32{4}, d.details["clear_flags"])
	assert.Equal(t, []string{"auth_immutable"}, d.details["clear_flags_s"])
}

func TestDecodeOperationChangeTrust(t *testing.T) {
	source := testAddress(t, 1)
	issuer := testAddress(t, 3)
	asset := creditAsset(t, "USD", issuer)

	op := xdr.Operation{
		Body: xdr.OperationBody{
			Type: xdr.OperationTypeChangeTrust,
			ChangeTrustOp: &xdr.ChangeTrustOp{
				Line: xdr.ChangeTrustAsset{
					Type:      xdr.AssetTypeAssetTypeCreditAlphanum4,
					AlphaNum4: asset.AlphaNum4,
				},
				Limit: 9223372036854775807,
			},
		},
	}

	d, err := decodeOperation(op, source, nil)
	require.NoError(t, err)

	assert.Equal(t, "change_trust", d.typ)
	assert.Equal(t, source, d.details["trustor"])
	assert.Equal(t, issuer, d.details["trustee"])
	assert.Equal(t, "922337203685.4775807", d.details["limit"])
	assert.Equal(t, "USD", d.details["asset_code"])
}

func TestDecodeOperationChangeTrustNative(t *testing.T) {
	source := testAddress(t, 1)

	op := xdr.Operation{
		Body: xdr.OperationBody{
			Type: xdr.OperationTypeChangeTrust,
			ChangeTrustOp: &xdr.ChangeTrustOp{
				Line:  xdr.ChangeTrustAsset{Type: xdr.AssetTypeAssetTypeNative},
				Limit: 100,
			},
		},
	}

	_, err := decodeOperation(op, source, nil)
	assert.ErrorIs(t, err, ErrUnsupportedAsset)
}

func TestDecodeOperationAllowTrust(t *testing.T) {
	trustee := testAddress(t, 1)
	trustor := testAddress(t, 2)

	op := xdr.Operation{
		Body: xdr.OperationBody{
			Type: xdr.OperationTypeAllowTrust,
			AllowTrustOp: &xdr.AllowTrustOp{
				Trustor: xdr.MustAddress(trustor),
				Asset: xdr.AssetCode{
					Type:       xdr.AssetTypeAssetTypeCreditAlphanum4,
					AssetCode4: &xdr.AssetCode4{'U', 'S', 'D', 0},
				},
				Authorize: xdr.Uint32(xdr.TrustLineFlagsAuthorizedFlag),
			},
		},
	}

	d, err := decodeOperation(op, trustee, nil)
	require.NoError(t, err)

	assert.Equal(t, "allow_trust", d.typ)
	assert.Equal(t, map[string]interface{}{
		"trustee":    trustee,
		"trustor":    trustor,
		"authorize":  true,
		"asset_type": "credit_alphanum4",
		"asset_code": "USD",
	}, d.details)
	assert.Equal(t, []string{trustee, trustor}, d.participants)
}

func TestDecodeOperationAccountMerge(t *testing.T) {
	source := testAddress(t, 1)
	dest := testAddress(t, 2)

	muxed := xdr.MustMuxedAddress(dest)
	op := xdr.Operation{
		Body: xdr.OperationBody{
			Type:        xdr.OperationTypeAccountMerge,
			Destination: &muxed,
		},
	}

	d, err := decodeOperation(op, source, nil)
	require.NoError(t, err)

	assert.Equal(t, "account_merge", d.typ)
	assert.Equal(t, map[string]interface{}{"account": source, "into": dest}, d.details)
	assert.Equal(t, []string{source, dest}, d.participants)
}

func TestDecodeOperationInflation(t *testing.T) {
	source := testAddress(t, 1)

	op := xdr.Operation{Body: xdr.OperationBody{Type: xdr.OperationTypeInflation}}
	d, err := decodeOperation(op, source, nil)
	require.NoError(t, err)

	assert.Equal(t, "inflation", d.typ)
	assert.Empty(t, d.details)
	assert.Equal(t, []string{source}, d.participants)
}

func TestDecodeOperationUnknownType(t *testing.T) {
	source := testAddress(t, 1)

	op := xdr.Operation{Body: xdr.OperationBody{Type: xdr.OperationTypeManageData}}
	d, err := decodeOperation(op, source, nil)
	require.NoError(t, err)

	assert.Equal(t, op.Body.Type.String(), d.typ)
	assert.Equal(t, int32(op.Body.Type), d.typeCode)
	assert.Empty(t, d.details)
}
