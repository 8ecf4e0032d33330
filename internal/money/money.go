// Package money holds the supported asset registry and fixed-point helpers.
// All balances are stored as float64 and rounded to the asset's decimal
// precision at every mutation, which is also how amounts appear in the
// snapshot document exchanged between peers.
package money

import (
	"math"
	"math/big"
	"strings"
)

const (
	AssetCredit = "CREDIT"
	AssetUSDC   = "USDC"
	AssetUSDT   = "USDT"
)

// AssetMeta describes an on-chain asset the node can verify deposits for.
type AssetMeta struct {
	ChainID         int64
	Symbol          string
	ContractAddress string
	Decimals        int
}

// Meta lists the chain-backed assets. CREDIT is native and has no entry.
var Meta = map[string]AssetMeta{
	AssetUSDC: {
		ChainID:         1,
		Symbol:          AssetUSDC,
		ContractAddress: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		Decimals:        6,
	},
	AssetUSDT: {
		ChainID:         1,
		Symbol:          AssetUSDT,
		ContractAddress: "0xdac17f958d2ee523a2206206994597c13d831ec7",
		Decimals:        6,
	},
}

var decimalsByAsset = map[string]int{
	AssetCredit: 2,
	AssetUSDC:   6,
	AssetUSDT:   6,
}

// Assets returns every supported asset symbol, native credit first.
func Assets() []string {
	return []string{AssetCredit, AssetUSDC, AssetUSDT}
}

// Supported reports whether the symbol is a known asset.
func Supported(asset string) bool {
	_, ok := decimalsByAsset[asset]
	return ok
}

// Normalize uppercases/trims the input and returns "" when unsupported.
// Empty input falls back to the given default.
func Normalize(input, fallback string) string {
	asset := strings.ToUpper(strings.TrimSpace(input))
	if asset == "" {
		asset = fallback
	}
	if !Supported(asset) {
		return ""
	}
	return asset
}

// Decimals returns the asset's precision, defaulting to 2.
func Decimals(asset string) int {
	if d, ok := decimalsByAsset[asset]; ok {
		return d
	}
	return 2
}

// Round rounds the value to the asset's precision.
func Round(value float64, asset string) float64 {
	return RoundTo(value, Decimals(asset))
}

// RoundTo rounds to the given number of decimal places.
func RoundTo(value float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	base := math.Pow10(decimals)
	return math.Round(value*base) / base
}

// Round2 rounds to two decimals (reputation and native credit precision).
func Round2(value float64) float64 { return RoundTo(value, 2) }

// Clamp bounds value to [min, max].
func Clamp(value, min, max float64) float64 {
	return math.Min(max, math.Max(min, value))
}

// FromRaw converts a raw on-chain integer amount to a decimal value using
// the asset's precision, e.g. 1_500_000 with 6 decimals -> 1.5.
func FromRaw(raw *big.Int, decimals int) float64 {
	if raw == nil || raw.Sign() <= 0 {
		return 0
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(raw, factor, new(big.Int))
	wholeF, _ := new(big.Float).SetInt(whole).Float64()
	fracF, _ := new(big.Float).SetInt(frac).Float64()
	factorF, _ := new(big.Float).SetInt(factor).Float64()
	return wholeF + fracF/factorF
}
