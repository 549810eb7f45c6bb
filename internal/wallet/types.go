package wallet

import (
	"strings"

	"github.com/suspectuso/ada-tracker/internal/asset"
)

// Type is the wallet brand shown next to a bookmarked address
type Type string

const (
	TypeNone   Type = "None"
	TypeCustom Type = "Custom"
	TypeNami   Type = "Nami"
	TypeEternl Type = "Eternl"
	TypeFlint  Type = "Flint"
	TypeTyphon Type = "Typhon"
	TypeYoroi  Type = "Yoroi"
	TypeLace   Type = "Lace"
	TypeGero   Type = "Gero"
	TypeNuFi   Type = "NuFi"
	TypeBegin  Type = "Begin"
	TypeVespr  Type = "Vespr"
)

// KnownTypes lists every selectable wallet type
var KnownTypes = []Type{
	TypeNone, TypeNami, TypeEternl, TypeFlint, TypeTyphon, TypeYoroi,
	TypeLace, TypeGero, TypeNuFi, TypeBegin, TypeVespr, TypeCustom,
}

// ParseType matches s case-insensitively against KnownTypes.
// Empty input is TypeNone.
func ParseType(s string) (Type, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TypeNone, true
	}
	for _, t := range KnownTypes {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return "", false
}

// Record is one bookmarked address
type Record struct {
	Address        string         `json:"address"`
	StakeAddress   string         `json:"stakeAddress,omitempty"`
	Name           string         `json:"name"`
	WalletType     Type           `json:"walletType"`
	Balance        int64          `json:"balance"` // lovelace
	Assets         []asset.Record `json:"assets"`
	Timestamp      int64          `json:"timestamp"` // unix ms of last refresh
	CustomIconData string         `json:"customIconData,omitempty"`

	// Loading is set only on placeholders announced while the provider call
	// is in flight. Persisted records never carry it.
	Loading bool `json:"loading,omitempty"`
}

// syncedRecord is the subset of Record mirrored to the synced scope
type syncedRecord struct {
	Address      string `json:"address"`
	StakeAddress string `json:"stakeAddress,omitempty"`
	Name         string `json:"name"`
	WalletType   Type   `json:"walletType"`
	Balance      int64  `json:"balance"`
	Timestamp    int64  `json:"timestamp"`
}

func (r *Record) synced() syncedRecord {
	return syncedRecord{
		Address:      r.Address,
		StakeAddress: r.StakeAddress,
		Name:         r.Name,
		WalletType:   r.WalletType,
		Balance:      r.Balance,
		Timestamp:    r.Timestamp,
	}
}

// EventKind says what happened to a wallet during an add
type EventKind int

const (
	// EventLoading is announced before the provider call of an add
	EventLoading EventKind = iota
	// EventLoaded is announced after the new wallet was persisted
	EventLoaded
	// EventFailed is announced when an add failed after EventLoading
	EventFailed
)

// Event is announced to other surfaces while a wallet is being added
type Event struct {
	Kind   EventKind
	Wallet Record
}
