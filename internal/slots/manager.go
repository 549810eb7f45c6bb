package slots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/suspectuso/ada-tracker/internal/storage"
)

// Store keys
const (
	KeyUnlocked       = "unlockedSlots"
	KeyInstallationID = "installationId"
	keyMirrorPrefix   = "slots:"
	keyWallets        = "wallets"
)

var (
	ErrInvalidAmount  = errors.New("slot amount must be positive")
	ErrInvalidOptions = errors.New("invalid slot options")
)

// State is the slot usage of this installation
type State struct {
	UnlockedSlots int `json:"unlockedSlots"`
	UsedSlots     int `json:"usedSlots"`
	MaxSlots      int `json:"maxSlots"`
}

// Available returns how many more wallets fit
func (s State) Available() int {
	if s.UsedSlots >= s.UnlockedSlots {
		return 0
	}
	return s.UnlockedSlots - s.UsedSlots
}

// Counter reports how many wallets occupy slots
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Options configures a Manager
type Options struct {
	FreeSlots       int
	SlotsPerPayment int
	MaxTotalSlots   int
}

// Manager tracks how many wallet slots are unlocked
type Manager struct {
	store          storage.Store
	opts           Options
	installationID string
	counter        Counter
	log            *slog.Logger

	// serializes read-modify-write of the counter within this process
	mu sync.Mutex
}

// NewManager creates a slot manager, assigning an installation id on first run
func NewManager(ctx context.Context, store storage.Store, opts Options, log *slog.Logger) (*Manager, error) {
	if opts.MaxTotalSlots <= 0 || opts.FreeSlots <= 0 || opts.FreeSlots > opts.MaxTotalSlots ||
		opts.SlotsPerPayment <= 0 {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidOptions, opts)
	}

	id, err := installationID(ctx, store)
	if err != nil {
		return nil, err
	}

	return &Manager{
		store:          store,
		opts:           opts,
		installationID: id,
		log:            log,
	}, nil
}

func installationID(ctx context.Context, store storage.Store) (string, error) {
	var id string
	err := store.Get(ctx, storage.Local, KeyInstallationID, &id)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	id = uuid.NewString()
	if err := store.Set(ctx, storage.Local, KeyInstallationID, id); err != nil {
		return "", err
	}
	return id, nil
}

// SetCounter makes State count used slots through c instead of the
// local wallet list. Call it before the manager is shared.
func (m *Manager) SetCounter(c Counter) {
	m.counter = c
}

// InstallationID identifies this installation in namespaced keys
func (m *Manager) InstallationID() string {
	return m.installationID
}

// SlotsPerPayment is the grant of one confirmed payment
func (m *Manager) SlotsPerPayment() int {
	return m.opts.SlotsPerPayment
}

// Unlock adds amount slots, clamped to the maximum, and persists the result.
// Surfaces learn about it through the store's change notification.
func (m *Manager) Unlock(ctx context.Context, amount int) (State, error) {
	if amount <= 0 {
		return State{}, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.unlocked(ctx)
	if err != nil {
		return State{}, err
	}

	next := current + amount
	if next > m.opts.MaxTotalSlots {
		next = m.opts.MaxTotalSlots
	}

	if err := m.store.Set(ctx, storage.Local, keyMirrorPrefix+m.installationID, next); err != nil {
		return State{}, err
	}
	if err := m.store.Set(ctx, storage.Synced, KeyUnlocked, next); err != nil {
		return State{}, err
	}

	m.log.Info("slots unlocked",
		"amount", amount,
		"previous", current,
		"unlocked", next,
	)

	return m.State(ctx)
}

// State reads the current counts from the store
func (m *Manager) State(ctx context.Context) (State, error) {
	unlocked, err := m.unlocked(ctx)
	if err != nil {
		return State{}, err
	}

	used, err := m.used(ctx)
	if err != nil {
		return State{}, err
	}

	return State{
		UnlockedSlots: unlocked,
		UsedSlots:     used,
		MaxSlots:      m.opts.MaxTotalSlots,
	}, nil
}

func (m *Manager) used(ctx context.Context) (int, error) {
	if m.counter != nil {
		return m.counter.Count(ctx)
	}

	var wallets []json.RawMessage
	err := m.store.Get(ctx, storage.Local, keyWallets, &wallets)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}
	return len(wallets), nil
}

// Capacity returns the unlocked slot count
func (m *Manager) Capacity(ctx context.Context) (int, error) {
	return m.unlocked(ctx)
}

// unlocked reads the synced counter and the local mirror and takes the
// larger one, since the synced value may not have arrived on this device yet.
func (m *Manager) unlocked(ctx context.Context) (int, error) {
	n := m.opts.FreeSlots

	var synced int
	err := m.store.Get(ctx, storage.Synced, KeyUnlocked, &synced)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}
	if err == nil && synced > n {
		n = synced
	}

	var mirror int
	err = m.store.Get(ctx, storage.Local, keyMirrorPrefix+m.installationID, &mirror)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}
	if err == nil && mirror > n {
		n = mirror
	}

	if n > m.opts.MaxTotalSlots {
		n = m.opts.MaxTotalSlots
	}
	return n, nil
}
