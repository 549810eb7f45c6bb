package blockfrost

import "fmt"

// Amount is one unit/quantity pair. Unit "lovelace" is ADA.
type Amount struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

// Address is the response of /addresses/{address}
type Address struct {
	Address      string   `json:"address"`
	Amount       []Amount `json:"amount"`
	StakeAddress string   `json:"stake_address"`
	Type         string   `json:"type"`
	Script       bool     `json:"script"`
}

// Lovelace returns the ADA part of the balance as a decimal string
func (a *Address) Lovelace() string {
	for _, am := range a.Amount {
		if am.Unit == "lovelace" {
			return am.Quantity
		}
	}
	return "0"
}

// Tokens returns the native asset part of the balance
func (a *Address) Tokens() []Amount {
	var out []Amount
	for _, am := range a.Amount {
		if am.Unit != "lovelace" {
			out = append(out, am)
		}
	}
	return out
}

// TokenMetadata is the off-chain registry entry of an asset
type TokenMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Ticker      string `json:"ticker"`
	URL         string `json:"url"`
	Logo        string `json:"logo"`
	Decimals    *int   `json:"decimals"`
}

// Asset is the response of /assets/{unit}
type Asset struct {
	Asset             string         `json:"asset"`
	PolicyID          string         `json:"policy_id"`
	AssetName         string         `json:"asset_name"`
	Fingerprint       string         `json:"fingerprint"`
	Quantity          string         `json:"quantity"`
	InitialMintTxHash string         `json:"initial_mint_tx_hash"`
	MintOrBurnCount   int            `json:"mint_or_burn_count"`
	OnchainMetadata   map[string]any `json:"onchain_metadata"`
	Metadata          *TokenMetadata `json:"metadata"`
}

// AddressTransaction is one item of /addresses/{address}/transactions
type AddressTransaction struct {
	TxHash      string `json:"tx_hash"`
	TxIndex     int    `json:"tx_index"`
	BlockHeight int64  `json:"block_height"`
	BlockTime   int64  `json:"block_time"` // unix seconds
}

// TxOutput is one output of a transaction
type TxOutput struct {
	Address     string   `json:"address"`
	Amount      []Amount `json:"amount"`
	OutputIndex int      `json:"output_index"`
}

// TxUTXOs is the response of /txs/{hash}/utxos
type TxUTXOs struct {
	Hash    string     `json:"hash"`
	Inputs  []TxOutput `json:"inputs"`
	Outputs []TxOutput `json:"outputs"`
}

// ErrorResponse is the body Blockfrost returns with status >= 400
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// APIError is returned for responses with status >= 400 other than 404
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("blockfrost error %d: %s", e.StatusCode, e.Message)
}
