package wallet

import (
	"errors"
	"strings"
)

var (
	ErrInvalidAddress   = errors.New("invalid cardano address")
	ErrInvalidName      = errors.New("wallet name is empty")
	ErrDuplicateName    = errors.New("wallet name already used")
	ErrDuplicateAddress = errors.New("wallet already added")
	ErrSlotsExhausted   = errors.New("all wallet slots are used")
	ErrInvalidType      = errors.New("unknown wallet type")
	ErrNotFound         = errors.New("wallet not found")
	ErrProvider         = errors.New("wallet data provider")
	ErrStorage          = errors.New("wallet storage")
)

// MinAddressLength is the shortest accepted payment address. Shelley
// enterprise addresses on mainnet are 58 characters.
const MinAddressLength = 58

var addressPrefixes = []string{"addr1", "addr_test1"}

// ValidateAddress checks the shape of a Cardano payment address.
func ValidateAddress(address string) error {
	if address == "" {
		return ErrInvalidAddress
	}

	hasPrefix := false
	for _, p := range addressPrefixes {
		if strings.HasPrefix(address, p) {
			hasPrefix = true
			break
		}
	}
	if !hasPrefix || len(address) < MinAddressLength {
		return ErrInvalidAddress
	}
	return nil
}

func normalizeName(name string) string {
	return strings.TrimSpace(name)
}

func indexByAddress(wallets []Record, address string) int {
	for i := range wallets {
		if wallets[i].Address == address {
			return i
		}
	}
	return -1
}

func nameTaken(wallets []Record, name, exceptAddress string) bool {
	for i := range wallets {
		if wallets[i].Address != exceptAddress && strings.EqualFold(wallets[i].Name, name) {
			return true
		}
	}
	return false
}
