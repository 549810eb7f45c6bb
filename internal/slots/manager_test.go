package slots

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/ada-tracker/internal/provider"
	"github.com/suspectuso/ada-tracker/internal/storage"
	"github.com/suspectuso/ada-tracker/internal/wallet"
)

var testOpts = Options{FreeSlots: 6, SlotsPerPayment: 6, MaxTotalSlots: 100}

func newManager(t *testing.T, store storage.Store) *Manager {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := NewManager(context.Background(), store, testOpts, log)
	require.NoError(t, err)
	return m
}

func TestFreeTier(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, storage.NewMemory())

	st, err := m.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, State{UnlockedSlots: 6, UsedSlots: 0, MaxSlots: 100}, st)
	assert.Equal(t, 6, st.Available())
}

func TestUnlockClampsAndPersists(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := newManager(t, store)

	var changes []storage.Change
	store.OnChange(KeyUnlocked, func(c storage.Change) { changes = append(changes, c) })

	st, err := m.Unlock(ctx, m.SlotsPerPayment())
	require.NoError(t, err)
	assert.Equal(t, 12, st.UnlockedSlots)

	var n int
	require.NoError(t, store.Get(ctx, storage.Synced, KeyUnlocked, &n))
	assert.Equal(t, 12, n)
	require.NoError(t, store.Get(ctx, storage.Local, "slots:"+m.InstallationID(), &n))
	assert.Equal(t, 12, n)
	require.Len(t, changes, 1)

	st, err = m.Unlock(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, 100, st.UnlockedSlots)

	_, err = m.Unlock(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = m.Unlock(ctx, -3)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestUnlockIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := newManager(t, store)

	// a stale or tampered synced value below the free tier is ignored
	require.NoError(t, store.Set(ctx, storage.Synced, KeyUnlocked, 2))
	c, err := m.Capacity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, c)

	prev := c
	for i := 0; i < 25; i++ {
		st, err := m.Unlock(ctx, 6)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, st.UnlockedSlots, prev)
		assert.LessOrEqual(t, st.UnlockedSlots, 100)
		prev = st.UnlockedSlots
	}
}

func TestStateReadsStore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := newManager(t, store)

	// another device wrote a newer count and this device has two wallets
	require.NoError(t, store.Set(ctx, storage.Synced, KeyUnlocked, 18))
	require.NoError(t, store.Set(ctx, storage.Local, "wallets", []map[string]string{{"address": "a"}, {"address": "b"}}))

	st, err := m.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 18, st.UnlockedSlots)
	assert.Equal(t, 2, st.UsedSlots)
	assert.Equal(t, 16, st.Available())
}

func TestLocalMirrorCoversMissingSync(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := newManager(t, store)

	_, err := m.Unlock(ctx, 6)
	require.NoError(t, err)
	require.NoError(t, store.Remove(ctx, storage.Synced, KeyUnlocked))

	c, err := m.Capacity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, c)
}

func TestInstallationIDIsStable(t *testing.T) {
	store := storage.NewMemory()
	a := newManager(t, store)
	b := newManager(t, store)
	assert.NotEmpty(t, a.InstallationID())
	assert.Equal(t, a.InstallationID(), b.InstallationID())
}

func TestInvalidOptions(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, opts := range []Options{
		{FreeSlots: 0, SlotsPerPayment: 6, MaxTotalSlots: 10},
		{FreeSlots: 20, SlotsPerPayment: 6, MaxTotalSlots: 10},
		{FreeSlots: 6, SlotsPerPayment: 0, MaxTotalSlots: 10},
		{FreeSlots: 6, SlotsPerPayment: -1, MaxTotalSlots: 10},
		{FreeSlots: 6, SlotsPerPayment: 6, MaxTotalSlots: 0},
	} {
		_, err := NewManager(context.Background(), storage.NewMemory(), opts, log)
		assert.ErrorIs(t, err, ErrInvalidOptions, "%+v", opts)
	}
}

type staticProvider struct{}

func (staticProvider) GetWallet(ctx context.Context, address string) (*provider.WalletResponse, error) {
	return &provider.WalletResponse{Address: address, Balance: 1_000_000}, nil
}

func TestStateCountsRestoredWallets(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := newManager(t, store)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := wallet.NewRegistry(store, staticProvider{}, m, nil, log)
	m.SetCounter(registry)

	base := "addr1q" + strings.Repeat("x", 60)
	_, err := registry.Add(ctx, base+"a", "One", wallet.TypeNone)
	require.NoError(t, err)
	_, err = registry.Add(ctx, base+"b", "Two", wallet.TypeNone)
	require.NoError(t, err)

	// a restored device has only the synced index
	require.NoError(t, store.Remove(ctx, storage.Local, "wallets"))

	st, err := m.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.UsedSlots)
	assert.Equal(t, 4, st.Available())
}
