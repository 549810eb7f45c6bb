package asset

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

// LovelacePerADA is the number of lovelace in one ADA
const LovelacePerADA = 1_000_000

// Fingerprint computes the CIP-14 asset fingerprint (asset1...).
func Fingerprint(policyID, assetNameHex string) (string, error) {
	policy, err := hex.DecodeString(policyID)
	if err != nil {
		return "", fmt.Errorf("policy id: %w", err)
	}
	name, err := hex.DecodeString(assetNameHex)
	if err != nil {
		return "", fmt.Errorf("asset name: %w", err)
	}

	h, err := blake2b.New(20, nil)
	if err != nil {
		return "", err
	}
	h.Write(policy)
	h.Write(name)

	conv, err := bech32.ConvertBits(h.Sum(nil), 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode("asset", conv)
}

// FormatQuantity renders an integer quantity shifted by decimals, exactly.
func FormatQuantity(quantity *big.Int, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return decimal.NewFromBigInt(quantity, -int32(decimals)).String()
}

// FormatADA renders lovelace as ADA
func FormatADA(lovelace int64) string {
	return decimal.New(lovelace, -6).StringFixed(2)
}

// Compact renders large amounts as 1.23K / 4.56M / 7.89B
func Compact(quantity *big.Int, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	d := decimal.NewFromBigInt(quantity, -int32(decimals))
	abs := d.Abs()

	switch {
	case abs.GreaterThanOrEqual(decimal.New(1, 9)):
		return d.Shift(-9).StringFixed(2) + "B"
	case abs.GreaterThanOrEqual(decimal.New(1, 6)):
		return d.Shift(-6).StringFixed(2) + "M"
	case abs.GreaterThanOrEqual(decimal.New(1, 3)):
		return d.Shift(-3).StringFixed(2) + "K"
	default:
		return d.StringFixed(2)
	}
}
