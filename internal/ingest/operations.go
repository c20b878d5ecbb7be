package ingest

import (
	"github.com/stellar/go/support/errors"
	"github.com/stellar/go/xdr"

	"github.com/withObsrvr/stellar-history-ingester/internal/amount"
)

// Operation type tags stored on operation rows. The numeric code is the XDR
// operation type discriminant.
const (
	typeCreateAccount      = "create_account"
	typePayment            = "payment"
	typePathPayment        = "path_payment"
	typeManageOffer        = "manage_offer"
	typeCreatePassiveOffer = "create_passive_offer"
	typeSetOptions         = "set_options"
	typeChangeTrust        = "change_trust"
	typeAllowTrust         = "allow_trust"
	typeAccountMerge       = "account_merge"
	typeInflation          = "inflation"
)

// decodedOperation is the normalized projection of one operation: its
// effective source account, a type tag, a flat details map, the implied
// participant addresses (source always first, deduplicated), and any
// addresses the operation brings into existence.
type decodedOperation struct {
	source       string
	typ          string
	typeCode     int32
	details      map[string]interface{}
	participants []string
	newAccounts  []string
}

func operationTypeName(t xdr.OperationType) string {
	switch t {
	case xdr.OperationTypeCreateAccount:
		return typeCreateAccount
	case xdr.OperationTypePayment:
		return typePayment
	case xdr.OperationTypePathPaymentStrictReceive:
		return typePathPayment
	case xdr.OperationTypeManageSellOffer:
		return typeManageOffer
	case xdr.OperationTypeCreatePassiveSellOffer:
		return typeCreatePassiveOffer
	case xdr.OperationTypeSetOptions:
		return typeSetOptions
	case xdr.OperationTypeChangeTrust:
		return typeChangeTrust
	case xdr.OperationTypeAllowTrust:
		return typeAllowTrust
	case xdr.OperationTypeAccountMerge:
		return typeAccountMerge
	case xdr.OperationTypeInflation:
		return typeInflation
	default:
		return t.String()
	}
}

// decodeOperation projects one operation and its execution result into a
// decodedOperation. txSource is the enclosing transaction's source account,
// used when the operation carries no source override. result may carry
// per-type execution data (e.g. the actual amount taken by a path payment).
func decodeOperation(op xdr.Operation, txSource string, result *xdr.OperationResultTr) (*decodedOperation, error) {
	source := txSource
	if op.SourceAccount != nil {
		source = op.SourceAccount.ToAccountId().Address()
	}

	d := &decodedOperation{
		source:       source,
		typ:          operationTypeName(op.Body.Type),
		typeCode:     int32(op.Body.Type),
		details:      map[string]interface{}{},
		participants: []string{source},
	}

	switch op.Body.Type {
	case xdr.OperationTypeCreateAccount:
		create := op.Body.MustCreateAccountOp()
		dest := create.Destination.Address()
		d.details["funder"] = source
		d.details["account"] = dest
		d.details["starting_balance"] = amount.String(int64(create.StartingBalance))
		d.addParticipant(dest)
		d.newAccounts = append(d.newAccounts, dest)

	case xdr.OperationTypePayment:
		payment := op.Body.MustPaymentOp()
		dest := payment.Destination.ToAccountId().Address()
		d.details["from"] = source
		d.details["to"] = dest
		d.details["amount"] = amount.String(int64(payment.Amount))
		addAssetDetails(d.details, "", payment.Asset)
		d.addParticipant(dest)

	case xdr.OperationTypePathPaymentStrictReceive:
		path := op.Body.MustPathPaymentStrictReceiveOp()
		dest := path.Destination.ToAccountId().Address()
		d.details["from"] = source
		d.details["to"] = dest
		d.details["amount"] = amount.String(int64(path.DestAmount))
		d.details["source_max"] = amount.String(int64(path.SendMax))
		addAssetDetails(d.details, "", path.DestAsset)
		addAssetDetails(d.details, "source_", path.SendAsset)
		if result != nil {
			res := result.MustPathPaymentStrictReceiveResult()
			d.details["source_amount"] = amount.String(int64(pathPaymentSourceAmount(res)))
		}
		hops := make([]map[string]interface{}, 0, len(path.Path))
		for _, hop := range path.Path {
			hops = append(hops, assetProjection(hop))
		}
		d.details["path"] = hops
		d.addParticipant(dest)

	case xdr.OperationTypeManageSellOffer:
		offer := op.Body.MustManageSellOfferOp()
		d.details["offer_id"] = int64(offer.OfferId)
		d.details["amount"] = amount.String(int64(offer.Amount))
		d.details["price"] = amount.Price(int32(offer.Price.N), int32(offer.Price.D))
		d.details["price_r"] = map[string]interface{}{
			"n": int32(offer.Price.N),
			"d": int32(offer.Price.D),
		}
		addAssetDetails(d.details, "selling_", offer.Selling)
		addAssetDetails(d.details, "buying_", offer.Buying)

	case xdr.OperationTypeCreatePassiveSellOffer:
		offer := op.Body.MustCreatePassiveSellOfferOp()
		d.details["amount"] = amount.String(int64(offer.Amount))
		d.details["price"] = amount.Price(int32(offer.Price.N), int32(offer.Price.D))
		d.details["price_r"] = map[string]interface{}{
			"n": int32(offer.Price.N),
			"d": int32(offer.Price.D),
		}
		addAssetDetails(d.details, "selling_", offer.Selling)
		addAssetDetails(d.details, "buying_", offer.Buying)

	case xdr.OperationTypeSetOptions:
		setOpts := op.Body.MustSetOptionsOp()
		if setOpts.InflationDest != nil {
			d.details["inflation_dest"] = setOpts.InflationDest.Address()
		}
		if setOpts.SetFlags != nil && *setOpts.SetFlags > 0 {
			flags, names := accountFlagDetails(uint32(*setOpts.SetFlags))
			d.details["set_flags"] = flags
			d.details["set_flags_s"] = names
		}
		if setOpts.ClearFlags != nil && *setOpts.ClearFlags > 0 {
			flags, names := accountFlagDetails(uint32(*setOpts.ClearFlags))
			d.details["clear_flags"] = flags
			d.details["clear_flags_s"] = names
		}
		if setOpts.MasterWeight != nil {
			d.details["master_key_weight"] = uint32(*setOpts.MasterWeight)
		}
		if setOpts.LowThreshold != nil {
			d.details["low_threshold"] = uint32(*setOpts.LowThreshold)
		}
		if setOpts.MedThreshold != nil {
			d.details["med_threshold"] = uint32(*setOpts.MedThreshold)
		}
		if setOpts.HighThreshold != nil {
			d.details["high_threshold"] = uint32(*setOpts.HighThreshold)
		}
		if setOpts.HomeDomain != nil {
			d.details["home_domain"] = string(*setOpts.HomeDomain)
		}
		if setOpts.Signer != nil {
			d.details["signer_key"] = setOpts.Signer.Key.Address()
			d.details["signer_weight"] = uint32(setOpts.Signer.Weight)
		}

	case xdr.OperationTypeChangeTrust:
		change := op.Body.MustChangeTrustOp()
		asset, err := changeTrustAsset(change.Line)
		if err != nil {
			return nil, err
		}
		_, issuer := assetCodeIssuer(asset)
		d.details["trustor"] = source
		d.details["trustee"] = issuer
		d.details["limit"] = amount.String(int64(change.Limit))
		addAssetDetails(d.details, "", asset)

	case xdr.OperationTypeAllowTrust:
		allow := op.Body.MustAllowTrustOp()
		code, err := allowTrustAssetCode(allow.Asset)
		if err != nil {
			return nil, err
		}
		trustor := allow.Trustor.Address()
		d.details["trustee"] = source
		d.details["trustor"] = trustor
		d.details["authorize"] = trustLineAuthorized(allow.Authorize)
		d.details["asset_type"] = assetTypeString(allow.Asset.Type)
		d.details["asset_code"] = code
		d.addParticipant(trustor)

	case xdr.OperationTypeAccountMerge:
		dest := op.Body.MustDestination().ToAccountId().Address()
		d.details["account"] = source
		d.details["into"] = dest
		d.addParticipant(dest)

	case xdr.OperationTypeInflation:
		// Informational operation, no details.

	default:
		// Unknown or post-era operation type: recorded with its XDR type tag
		// and an empty details projection.
	}

	return d, nil
}

func (d *decodedOperation) addParticipant(address string) {
	for _, p := range d.participants {
		if p == address {
			return
		}
	}
	d.participants = append(d.participants, address)
}

// pathPaymentSourceAmount returns the amount actually taken from the sender,
// which is the sum of the first-hop claims in the result (or the direct
// payment amount when no offers were claimed). This differs from the
// operation's send-max ceiling.
func pathPaymentSourceAmount(res xdr.PathPaymentStrictReceiveResult) xdr.Int64 {
	success, ok := res.GetSuccess()
	if !ok {
		return 0
	}
	if len(success.Offers) == 0 {
		return success.Last.Amount
	}
	firstHop := success.Offers[0].AssetBought()
	total := xdr.Int64(0)
	for _, claim := range success.Offers {
		if !claim.AssetBought().Equals(firstHop) {
			break
		}
		total += claim.AmountBought()
	}
	return total
}

// changeTrustAsset unwraps a trustline target. Trust lines cannot target the
// native asset, and pool-share lines are outside the two supported credit
// encodings.
func changeTrustAsset(line xdr.ChangeTrustAsset) (xdr.Asset, error) {
	switch line.Type {
	case xdr.AssetTypeAssetTypeCreditAlphanum4, xdr.AssetTypeAssetTypeCreditAlphanum12:
		return line.ToAsset(), nil
	case xdr.AssetTypeAssetTypeNative:
		return xdr.Asset{}, errors.Wrap(ErrUnsupportedAsset, "change_trust on native asset")
	default:
		return xdr.Asset{}, errors.Wrapf(ErrUnsupportedAsset, "change_trust on asset type %d", line.Type)
	}
}

// allowTrustAssetCode extracts the asset code of an allow_trust target. The
// issuer is implicitly the trustee and is not restated.
func allowTrustAssetCode(code xdr.AssetCode) (string, error) {
	switch code.Type {
	case xdr.AssetTypeAssetTypeCreditAlphanum4:
		return trimNullBytes(string(code.AssetCode4[:])), nil
	case xdr.AssetTypeAssetTypeCreditAlphanum12:
		return trimNullBytes(string(code.AssetCode12[:])), nil
	default:
		return "", errors.Wrapf(ErrUnsupportedAsset, "allow_trust on asset type %d", code.Type)
	}
}

func trustLineAuthorized(flags xdr.Uint32) bool {
	return xdr.TrustLineFlags(flags)&xdr.TrustLineFlagsAuthorizedFlag != 0
}

// accountFlagDetails expands a flag bitmask into parallel numeric and
// symbolic projections.
func accountFlagDetails(mask uint32) ([]int32, []string) {
	var flags []int32
	var names []string
	if mask&uint32(xdr.AccountFlagsAuthRequiredFlag) != 0 {
		flags = append(flags, int32(xdr.AccountFlagsAuthRequiredFlag))
		names = append(names, "auth_required")
	}
	if mask&uint32(xdr.AccountFlagsAuthRevocableFlag) != 0 {
		flags = append(flags, int32(xdr.AccountFlagsAuthRevocableFlag))
		names = append(names, "auth_revocable")
	}
	if mask&uint32(xdr.AccountFlagsAuthImmutableFlag) != 0 {
		flags = append(flags, int32(xdr.AccountFlagsAuthImmutableFlag))
		names = append(names, "auth_immutable")
	}
	return flags, names
}
