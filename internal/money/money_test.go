package money

import (
	"math/big"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		input    string
		fallback string
		want     string
	}{
		{"usdc", "CREDIT", "USDC"},
		{" usdt ", "CREDIT", "USDT"},
		{"", "CREDIT", "CREDIT"},
		{"DOGE", "CREDIT", ""},
		{"", "nope", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.input, tc.fallback); got != tc.want {
			t.Errorf("Normalize(%q, %q) = %q, want %q", tc.input, tc.fallback, got, tc.want)
		}
	}
}

func TestRoundByAssetPrecision(t *testing.T) {
	if got := Round(1.005+1e-9, AssetCredit); got != 1.01 {
		t.Errorf("CREDIT rounds to 2dp, got %v", got)
	}
	if got := Round(0.1234567, AssetUSDC); got != 0.123457 {
		t.Errorf("USDC rounds to 6dp, got %v", got)
	}
	if got := Round(2.567, "UNKNOWN"); got != 2.57 {
		t.Errorf("unknown asset falls back to 2dp, got %v", got)
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(1.3, 0, 1); got != 1 {
		t.Errorf("Clamp above = %v", got)
	}
	if got := Clamp(-0.2, 0, 1); got != 0 {
		t.Errorf("Clamp below = %v", got)
	}
	if got := Clamp(0.4, 0, 1); got != 0.4 {
		t.Errorf("Clamp inside = %v", got)
	}
}

func TestFromRaw(t *testing.T) {
	// 12.5 USDC expressed in 6-decimal base units.
	raw := big.NewInt(12_500_000)
	if got := FromRaw(raw, 6); got != 12.5 {
		t.Errorf("FromRaw = %v, want 12.5", got)
	}
	if got := FromRaw(nil, 6); got != 0 {
		t.Errorf("FromRaw(nil) = %v, want 0", got)
	}
}

func TestMetaCoversChainAssets(t *testing.T) {
	for _, asset := range []string{AssetUSDC, AssetUSDT} {
		meta, ok := Meta[asset]
		if !ok {
			t.Fatalf("missing meta for %s", asset)
		}
		if meta.ChainID != 1 || meta.Decimals != 6 || meta.ContractAddress == "" {
			t.Errorf("unexpected meta for %s: %+v", asset, meta)
		}
	}
}
