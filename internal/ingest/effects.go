package ingest

import (
	"github.com/stellar/go/xdr"

	"github.com/withObsrvr/stellar-history-ingester/internal/amount"
)

// Effect type tags and codes, matching the public history taxonomy.
const (
	EffectAccountCreated        = "account_created"
	EffectAccountRemoved        = "account_removed"
	EffectAccountCredited       = "account_credited"
	EffectAccountDebited        = "account_debited"
	EffectThresholdsUpdated     = "account_thresholds_updated"
	EffectHomeDomainUpdated     = "account_home_domain_updated"
	EffectFlagsUpdated          = "account_flags_updated"
	EffectSignerCreated         = "signer_created"
	EffectSignerRemoved         = "signer_removed"
	EffectSignerUpdated         = "signer_updated"
	EffectTrustlineCreated      = "trustline_created"
	EffectTrustlineRemoved      = "trustline_removed"
	EffectTrustlineUpdated      = "trustline_updated"
	EffectTrustlineAuthorized   = "trustline_authorized"
	EffectTrustlineDeauthorized = "trustline_deauthorized"
	EffectTrade                 = "trade"
)

var effectCodes = map[string]int32{
	EffectAccountCreated:        0,
	EffectAccountRemoved:        1,
	EffectAccountCredited:       2,
	EffectAccountDebited:        3,
	EffectThresholdsUpdated:     4,
	EffectHomeDomainUpdated:     5,
	EffectFlagsUpdated:          6,
	EffectSignerCreated:         10,
	EffectSignerRemoved:         11,
	EffectSignerUpdated:         12,
	EffectTrustlineCreated:      20,
	EffectTrustlineRemoved:      21,
	EffectTrustlineUpdated:      22,
	EffectTrustlineAuthorized:   23,
	EffectTrustlineDeauthorized: 24,
	EffectTrade:                 33,
}

// effect is one derived state change, addressed to a single account. Its
// position within the operation is assigned by the importer when persisted.
type effect struct {
	account string
	typ     string
	details map[string]interface{}
}

// effectList accumulates effects in emission order. The order is part of the
// importer's contract with downstream consumers.
type effectList struct {
	effects []effect
}

func (l *effectList) add(account, typ string, details map[string]interface{}) {
	l.effects = append(l.effects, effect{account: account, typ: typ, details: details})
}

// deriveEffects produces the ordered state-change records implied by one
// successfully executed operation. source is the operation's effective source
// account, result its execution result and changes the operation's ledger
// entry changes from the transaction meta. Arms that need the result emit
// nothing when it is absent. The second return value is false when the
// operation type has no defined effect rule; the caller records the anomaly
// and continues.
func deriveEffects(op xdr.Operation, source string, result *xdr.OperationResultTr, changes xdr.LedgerEntryChanges) ([]effect, bool) {
	var l effectList

	switch op.Body.Type {
	case xdr.OperationTypeCreateAccount:
		create := op.Body.MustCreateAccountOp()
		dest := create.Destination.Address()
		balance := amount.String(int64(create.StartingBalance))
		l.add(dest, EffectAccountCreated, map[string]interface{}{
			"starting_balance": balance,
		})
		l.add(source, EffectAccountDebited, map[string]interface{}{
			"amount":     balance,
			"asset_type": "native",
		})
		l.add(dest, EffectSignerCreated, map[string]interface{}{
			"weight":     int32(1),
			"public_key": dest,
		})

	case xdr.OperationTypePayment:
		payment := op.Body.MustPaymentOp()
		dest := payment.Destination.ToAccountId().Address()
		details := map[string]interface{}{"amount": amount.String(int64(payment.Amount))}
		addAssetDetails(details, "", payment.Asset)
		l.add(dest, EffectAccountCredited, details)

		debit := map[string]interface{}{"amount": amount.String(int64(payment.Amount))}
		addAssetDetails(debit, "", payment.Asset)
		l.add(source, EffectAccountDebited, debit)

	case xdr.OperationTypePathPaymentStrictReceive:
		if result == nil {
			break
		}
		path := op.Body.MustPathPaymentStrictReceiveOp()
		res := result.MustPathPaymentStrictReceiveResult()
		dest := path.Destination.ToAccountId().Address()

		credit := map[string]interface{}{"amount": amount.String(int64(path.DestAmount))}
		addAssetDetails(credit, "", path.DestAsset)
		l.add(dest, EffectAccountCredited, credit)

		// The debit carries the amount actually taken from the sender, not
		// the send-max ceiling.
		debit := map[string]interface{}{"amount": amount.String(int64(pathPaymentSourceAmount(res)))}
		addAssetDetails(debit, "", path.SendAsset)
		l.add(source, EffectAccountDebited, debit)

		if success, ok := res.GetSuccess(); ok {
			l.addTrades(source, success.Offers)
		}

	case xdr.OperationTypeManageSellOffer:
		if result == nil {
			break
		}
		res := result.MustManageSellOfferResult()
		if success, ok := res.GetSuccess(); ok {
			l.addTrades(source, success.OffersClaimed)
		}

	case xdr.OperationTypeCreatePassiveSellOffer:
		if result == nil {
			break
		}
		res := result.MustCreatePassiveSellOfferResult()
		if success, ok := res.GetSuccess(); ok {
			l.addTrades(source, success.OffersClaimed)
		}

	case xdr.OperationTypeSetOptions:
		l.addSetOptionsEffects(source, op.Body.MustSetOptionsOp())

	case xdr.OperationTypeChangeTrust:
		change := op.Body.MustChangeTrustOp()
		asset, err := changeTrustAsset(change.Line)
		if err != nil {
			// The decoder already rejected this operation; no effects.
			return nil, true
		}
		details := map[string]interface{}{"limit": amount.String(int64(change.Limit))}
		addAssetDetails(details, "", asset)

		typ := EffectTrustlineUpdated
		switch {
		case change.Limit == 0:
			typ = EffectTrustlineRemoved
		case trustlineCreatedInMeta(changes, source, asset):
			typ = EffectTrustlineCreated
		}
		l.add(source, typ, details)

	case xdr.OperationTypeAllowTrust:
		allow := op.Body.MustAllowTrustOp()
		code, err := allowTrustAssetCode(allow.Asset)
		if err != nil {
			return nil, true
		}
		details := map[string]interface{}{
			"trustor":    allow.Trustor.Address(),
			"asset_type": assetTypeString(allow.Asset.Type),
			"asset_code": code,
		}
		if trustLineAuthorized(allow.Authorize) {
			l.add(source, EffectTrustlineAuthorized, details)
		} else {
			l.add(source, EffectTrustlineDeauthorized, details)
		}

	case xdr.OperationTypeAccountMerge:
		if result == nil {
			break
		}
		dest := op.Body.MustDestination().ToAccountId().Address()
		balance := amount.String(int64(result.MustAccountMergeResult().MustSourceAccountBalance()))
		l.add(source, EffectAccountDebited, map[string]interface{}{
			"amount":     balance,
			"asset_type": "native",
		})
		l.add(dest, EffectAccountCredited, map[string]interface{}{
			"amount":     balance,
			"asset_type": "native",
		})
		l.add(source, EffectAccountRemoved, map[string]interface{}{})

	case xdr.OperationTypeInflation:
		if result == nil {
			break
		}
		payouts := result.MustInflationResult().MustPayouts()
		for _, payout := range payouts {
			l.add(payout.Destination.Address(), EffectAccountCredited, map[string]interface{}{
				"amount":     amount.String(int64(payout.Amount)),
				"asset_type": "native",
			})
		}

	default:
		return nil, false
	}

	return l.effects, true
}

// addTrades emits the paired trade effects for every claimed offer, in claim
// order: first the acting account (the buyer in the exchange), immediately
// followed by the offer's original owner. Bought/sold amounts and assets are
// mirrored between the pair.
func (l *effectList) addTrades(buyer string, claims []xdr.ClaimAtom) {
	for _, claim := range claims {
		if claim.Type == xdr.ClaimAtomTypeClaimAtomTypeLiquidityPool {
			// Pool claims have no counterparty account; outside this
			// importer's order-book trade model.
			continue
		}
		seller := claim.SellerId().Address()

		bought := map[string]interface{}{
			"seller":        seller,
			"offer_id":      int64(claim.OfferId()),
			"bought_amount": amount.String(int64(claim.AmountSold())),
			"sold_amount":   amount.String(int64(claim.AmountBought())),
		}
		addAssetDetails(bought, "bought_", claim.AssetSold())
		addAssetDetails(bought, "sold_", claim.AssetBought())
		l.add(buyer, EffectTrade, bought)

		sold := map[string]interface{}{
			"seller":        buyer,
			"offer_id":      int64(claim.OfferId()),
			"bought_amount": amount.String(int64(claim.AmountBought())),
			"sold_amount":   amount.String(int64(claim.AmountSold())),
		}
		addAssetDetails(sold, "bought_", claim.AssetBought())
		addAssetDetails(sold, "sold_", claim.AssetSold())
		l.add(seller, EffectTrade, sold)
	}
}

// addSetOptionsEffects emits set_options effects in their fixed order: home
// domain, thresholds, flags, master key weight, additional signer.
func (l *effectList) addSetOptionsEffects(source string, setOpts xdr.SetOptionsOp) {
	if setOpts.HomeDomain != nil {
		l.add(source, EffectHomeDomainUpdated, map[string]interface{}{
			"home_domain": string(*setOpts.HomeDomain),
		})
	}

	thresholds := map[string]interface{}{}
	if setOpts.LowThreshold != nil {
		thresholds["low_threshold"] = uint32(*setOpts.LowThreshold)
	}
	if setOpts.MedThreshold != nil {
		thresholds["med_threshold"] = uint32(*setOpts.MedThreshold)
	}
	if setOpts.HighThreshold != nil {
		thresholds["high_threshold"] = uint32(*setOpts.HighThreshold)
	}
	if len(thresholds) > 0 {
		l.add(source, EffectThresholdsUpdated, thresholds)
	}

	flags := map[string]interface{}{}
	if setOpts.SetFlags != nil {
		flagUpdates(flags, uint32(*setOpts.SetFlags), true)
	}
	if setOpts.ClearFlags != nil {
		flagUpdates(flags, uint32(*setOpts.ClearFlags), false)
	}
	if len(flags) > 0 {
		l.add(source, EffectFlagsUpdated, flags)
	}

	if setOpts.MasterWeight != nil {
		weight := uint32(*setOpts.MasterWeight)
		if weight == 0 {
			l.add(source, EffectSignerRemoved, map[string]interface{}{
				"public_key": source,
			})
		} else {
			l.add(source, EffectSignerUpdated, map[string]interface{}{
				"weight":     int32(weight),
				"public_key": source,
			})
		}
	}

	if setOpts.Signer != nil {
		key := setOpts.Signer.Key.Address()
		weight := uint32(setOpts.Signer.Weight)
		// The execution result does not distinguish a first-time signer
		// addition from a weight update; a nonzero weight is recorded as a
		// creation.
		if weight == 0 {
			l.add(source, EffectSignerRemoved, map[string]interface{}{
				"public_key": key,
			})
		} else {
			l.add(source, EffectSignerCreated, map[string]interface{}{
				"weight":     int32(weight),
				"public_key": key,
			})
		}
	}
}

func flagUpdates(into map[string]interface{}, mask uint32, value bool) {
	if mask&uint32(xdr.AccountFlagsAuthRequiredFlag) != 0 {
		into["auth_required_flag"] = value
	}
	if mask&uint32(xdr.AccountFlagsAuthRevocableFlag) != 0 {
		into["auth_revocable_flag"] = value
	}
	if mask&uint32(xdr.AccountFlagsAuthImmutableFlag) != 0 {
		into["auth_immutable_flag"] = value
	}
}

// trustlineCreatedInMeta reports whether the operation's meta contains a
// created trustline entry for the given account and asset, distinguishing a
// fresh trustline from a limit update.
func trustlineCreatedInMeta(changes xdr.LedgerEntryChanges, account string, asset xdr.Asset) bool {
	for _, change := range changes {
		if change.Type != xdr.LedgerEntryChangeTypeLedgerEntryCreated {
			continue
		}
		entry := change.MustCreated()
		if entry.Data.Type != xdr.LedgerEntryTypeTrustline {
			continue
		}
		line := entry.Data.MustTrustLine()
		if line.AccountId.Address() != account {
			continue
		}
		if line.Asset.Type != xdr.AssetTypeAssetTypeCreditAlphanum4 &&
			line.Asset.Type != xdr.AssetTypeAssetTypeCreditAlphanum12 {
			continue
		}
		if line.Asset.ToAsset().Equals(asset) {
			return true
		}
	}
	return false
}
