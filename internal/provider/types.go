package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/suspectuso/ada-tracker/internal/asset"
)

// Lovelace decodes from either a JSON number or a numeric string
type Lovelace int64

func (l *Lovelace) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*l = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("lovelace %q: %w", data, err)
	}
	*l = Lovelace(v)
	return nil
}

// WalletResponse is the response from the wallet endpoint
type WalletResponse struct {
	Address      string   `json:"address,omitempty"`
	Balance      Lovelace `json:"balance"`
	StakeAddress string   `json:"stake_address,omitempty"`
	Assets       []Asset  `json:"assets"`
}

// Asset is a native asset as returned by the wallet endpoint
type Asset struct {
	Unit            string         `json:"unit"`
	PolicyID        string         `json:"policy_id"`
	AssetName       string         `json:"asset_name"`
	Quantity        string         `json:"quantity"`
	Decimals        int            `json:"decimals"`
	DisplayName     string         `json:"display_name,omitempty"`
	Fingerprint     string         `json:"fingerprint,omitempty"`
	OnchainMetadata map[string]any `json:"onchain_metadata,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Record converts the wire asset into the stored form
func (a *Asset) Record() asset.Record {
	policyID, assetName := a.PolicyID, a.AssetName
	if policyID == "" && len(a.Unit) >= 56 {
		policyID, assetName = a.Unit[:56], a.Unit[56:]
	}

	rec := asset.Record{
		PolicyID:         policyID,
		AssetName:        assetName,
		Quantity:         a.Quantity,
		Decimals:         a.Decimals,
		DisplayName:      a.DisplayName,
		Fingerprint:      a.Fingerprint,
		OnchainMetadata:  a.OnchainMetadata,
		RegistryMetadata: a.Metadata,
	}
	if rec.Decimals < 0 {
		rec.Decimals = 0
	}
	if rec.Fingerprint == "" {
		rec.Fingerprint, _ = asset.Fingerprint(policyID, assetName)
	}
	return rec
}

// PaymentRequest is the response from the initiate-payment endpoint
type PaymentRequest struct {
	PaymentID string `json:"paymentId"`
	Amount    int64  `json:"amount"` // lovelace
	Address   string `json:"address"`
	// ClaimToken lets the initiator repeat verification after a lost response
	ClaimToken string `json:"claimToken,omitempty"`
}

// PaymentStatus is the response from the verify-payment endpoint
type PaymentStatus struct {
	Verified bool `json:"verified"`
	Used     bool `json:"used"`
}

// ErrorResponse is the body of a non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIError is returned for responses with status >= 400
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

// decodeError extracts the error message from a JSON error body, if any
func decodeError(status int, data []byte) *APIError {
	var er ErrorResponse
	if err := json.Unmarshal(data, &er); err == nil && er.Error != "" {
		return &APIError{StatusCode: status, Body: er.Error}
	}
	return &APIError{StatusCode: status, Body: string(data)}
}
