package ingest

import "github.com/stellar/go/xdr"

// assetTypeString maps the XDR asset discriminant to the type tag stored in
// details projections.
func assetTypeString(t xdr.AssetType) string {
	switch t {
	case xdr.AssetTypeAssetTypeNative:
		return "native"
	case xdr.AssetTypeAssetTypeCreditAlphanum4:
		return "credit_alphanum4"
	case xdr.AssetTypeAssetTypeCreditAlphanum12:
		return "credit_alphanum12"
	default:
		return "unknown"
	}
}

// assetCodeIssuer extracts the trimmed code and issuer address of a credit
// asset. Both are empty for the native asset.
func assetCodeIssuer(asset xdr.Asset) (code string, issuer string) {
	switch asset.Type {
	case xdr.AssetTypeAssetTypeCreditAlphanum4:
		a4 := asset.MustAlphaNum4()
		code = trimNullBytes(string(a4.AssetCode[:]))
		issuer = a4.Issuer.Address()
	case xdr.AssetTypeAssetTypeCreditAlphanum12:
		a12 := asset.MustAlphaNum12()
		code = trimNullBytes(string(a12.AssetCode[:]))
		issuer = a12.Issuer.Address()
	}
	return
}

// addAssetDetails writes the 3-field asset projection into details, with each
// key prefixed (e.g. "selling_asset_type"). The native asset gets only the
// type field.
func addAssetDetails(details map[string]interface{}, prefix string, asset xdr.Asset) {
	details[prefix+"asset_type"] = assetTypeString(asset.Type)
	if asset.Type == xdr.AssetTypeAssetTypeNative {
		return
	}
	code, issuer := assetCodeIssuer(asset)
	details[prefix+"asset_code"] = code
	details[prefix+"asset_issuer"] = issuer
}

// assetProjection is addAssetDetails into a fresh map, used for asset lists
// such as a path payment's intermediate hops.
func assetProjection(asset xdr.Asset) map[string]interface{} {
	m := make(map[string]interface{}, 3)
	addAssetDetails(m, "", asset)
	return m
}

func trimNullBytes(s string) string {
	for i, c := range s {
		if c == 0 {
			return s[:i]
		}
	}
	return s
}
