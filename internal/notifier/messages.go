package notifier

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/suspectuso/ada-tracker/internal/wallet"
)

var (
	ErrUnknownMessage   = errors.New("unknown message")
	ErrMalformedMessage = errors.New("malformed message")
)

// Wire names
const (
	ActionWalletAdded   = "walletAdded"
	ActionWalletLoading = "walletLoading"
	ActionWalletLoaded  = "walletLoaded"
	TypeSlotsUpdated    = "SLOTS_UPDATED"
	TypeOpenFullView    = "OPEN_FULLVIEW"
	TypeReloadWallets   = "RELOAD_WALLETS"
	TypeUpdateSlots     = "UPDATE_SLOTS"
)

// Message is one of the cross-surface message variants below
type Message interface {
	Kind() string
	message()
}

// WalletAdded is sent by a surface after it added a wallet
type WalletAdded struct{}

// SlotsUpdated tells surfaces the unlocked slot count changed
type SlotsUpdated struct {
	Slots int
}

// OpenFullView asks the background to open the full view surface
type OpenFullView struct{}

// ReloadWallets tells surfaces to re-read the registry from the store
type ReloadWallets struct{}

// UpdateSlots is sent by a surface after it unlocked slots
type UpdateSlots struct {
	Slots int
}

// WalletLoading carries a placeholder while a wallet is being fetched
type WalletLoading struct {
	Wallet wallet.Record
}

// WalletLoaded carries a wallet that was just persisted
type WalletLoaded struct {
	Wallet wallet.Record
}

func (WalletAdded) Kind() string   { return ActionWalletAdded }
func (SlotsUpdated) Kind() string  { return TypeSlotsUpdated }
func (OpenFullView) Kind() string  { return TypeOpenFullView }
func (ReloadWallets) Kind() string { return TypeReloadWallets }
func (UpdateSlots) Kind() string   { return TypeUpdateSlots }
func (WalletLoading) Kind() string { return ActionWalletLoading }
func (WalletLoaded) Kind() string  { return ActionWalletLoaded }

func (WalletAdded) message()   {}
func (SlotsUpdated) message()  {}
func (OpenFullView) message()  {}
func (ReloadWallets) message() {}
func (UpdateSlots) message()   {}
func (WalletLoading) message() {}
func (WalletLoaded) message()  {}

// envelope is the wire shape. Wallet events use "action", the rest use "type".
type envelope struct {
	Action string         `json:"action,omitempty"`
	Type   string         `json:"type,omitempty"`
	Slots  *int           `json:"slots,omitempty"`
	Wallet *wallet.Record `json:"wallet,omitempty"`
}

// Encode converts a message to its wire JSON
func Encode(msg Message) ([]byte, error) {
	var env envelope
	switch m := msg.(type) {
	case WalletAdded:
		env.Action = ActionWalletAdded
	case WalletLoading:
		env.Action = ActionWalletLoading
		env.Wallet = &m.Wallet
	case WalletLoaded:
		env.Action = ActionWalletLoaded
		env.Wallet = &m.Wallet
	case SlotsUpdated:
		env.Type = TypeSlotsUpdated
		env.Slots = &m.Slots
	case UpdateSlots:
		env.Type = TypeUpdateSlots
		env.Slots = &m.Slots
	case OpenFullView:
		env.Type = TypeOpenFullView
	case ReloadWallets:
		env.Type = TypeReloadWallets
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
	return json.Marshal(env)
}

// Decode parses wire JSON into a message
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	switch env.Action {
	case "":
	case ActionWalletAdded:
		return WalletAdded{}, nil
	case ActionWalletLoading, ActionWalletLoaded:
		if env.Wallet == nil {
			return nil, fmt.Errorf("%w: %s without wallet", ErrMalformedMessage, env.Action)
		}
		if env.Action == ActionWalletLoading {
			return WalletLoading{Wallet: *env.Wallet}, nil
		}
		return WalletLoaded{Wallet: *env.Wallet}, nil
	default:
		return nil, fmt.Errorf("%w: action %q", ErrUnknownMessage, env.Action)
	}

	switch env.Type {
	case TypeOpenFullView:
		return OpenFullView{}, nil
	case TypeReloadWallets:
		return ReloadWallets{}, nil
	case TypeSlotsUpdated, TypeUpdateSlots:
		if env.Slots == nil {
			return nil, fmt.Errorf("%w: %s without slots", ErrMalformedMessage, env.Type)
		}
		if env.Type == TypeSlotsUpdated {
			return SlotsUpdated{Slots: *env.Slots}, nil
		}
		return UpdateSlots{Slots: *env.Slots}, nil
	default:
		return nil, fmt.Errorf("%w: type %q", ErrUnknownMessage, env.Type)
	}
}
