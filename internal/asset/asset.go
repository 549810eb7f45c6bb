package asset

import (
	"encoding/hex"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Record is one native asset held by a wallet
type Record struct {
	PolicyID         string         `json:"policyId"`
	AssetName        string         `json:"assetName"` // hex
	Quantity         string         `json:"quantity"`  // base-10 integer, may exceed 2^64
	Decimals         int            `json:"decimals"`
	DisplayName      string         `json:"displayName,omitempty"`
	Fingerprint      string         `json:"fingerprint,omitempty"`
	OnchainMetadata  map[string]any `json:"onchainMetadata"`
	RegistryMetadata map[string]any `json:"registryMetadata"`
}

// Unit is the policy id followed by the hex asset name
func (r *Record) Unit() string {
	return r.PolicyID + r.AssetName
}

// Amount parses Quantity. Unparseable quantities are treated as zero.
func (r *Record) Amount() *big.Int {
	n, ok := new(big.Int).SetString(strings.TrimSpace(r.Quantity), 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

// Name returns the best human-readable name for the asset
func (r *Record) Name() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	if s := stringField(r.OnchainMetadata, "name"); s != "" {
		return s
	}
	if s := stringField(r.RegistryMetadata, "name"); s != "" {
		return s
	}
	if s := decodeAssetName(r.AssetName); s != "" {
		return s
	}
	if r.Fingerprint != "" {
		return r.Fingerprint
	}
	if fp, err := Fingerprint(r.PolicyID, r.AssetName); err == nil {
		return fp
	}
	return r.Unit()
}

func decodeAssetName(h string) string {
	b, err := hex.DecodeString(h)
	if err != nil || len(b) == 0 || !utf8.Valid(b) {
		return ""
	}
	s := string(b)
	for _, c := range s {
		if !unicode.IsPrint(c) {
			return ""
		}
	}
	return s
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	return joinString(m[key])
}

// joinString accepts a string or a chunked array of strings, which is how
// long metadata values are split on chain.
func joinString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		var sb strings.Builder
		for _, part := range t {
			s, ok := part.(string)
			if !ok {
				return ""
			}
			sb.WriteString(s)
		}
		return sb.String()
	case []string:
		return strings.Join(t, "")
	default:
		return ""
	}
}
