package notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/ada-tracker/internal/slots"
	"github.com/suspectuso/ada-tracker/internal/storage"
	"github.com/suspectuso/ada-tracker/internal/wallet"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSurface struct {
	id    string
	err   error
	panic bool

	mu   sync.Mutex
	msgs []Message
}

func (s *recordingSurface) ID() string { return s.id }

func (s *recordingSurface) Handle(ctx context.Context, msg Message) error {
	if s.panic {
		panic("boom")
	}
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSurface) received() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.msgs...)
}

func TestEncodeWireShapes(t *testing.T) {
	w := wallet.Record{Address: "addr1xyz", Name: "Main", WalletType: wallet.TypeNami, Balance: 5}

	tests := []struct {
		msg  Message
		want string
	}{
		{WalletAdded{}, `{"action":"walletAdded"}`},
		{SlotsUpdated{Slots: 12}, `{"type":"SLOTS_UPDATED","slots":12}`},
		{SlotsUpdated{Slots: 0}, `{"type":"SLOTS_UPDATED","slots":0}`},
		{OpenFullView{}, `{"type":"OPEN_FULLVIEW"}`},
		{ReloadWallets{}, `{"type":"RELOAD_WALLETS"}`},
		{UpdateSlots{Slots: 18}, `{"type":"UPDATE_SLOTS","slots":18}`},
		{WalletLoading{Wallet: wallet.Record{Address: "addr1xyz", Name: "Main", WalletType: wallet.TypeNone, Loading: true}},
			`{"action":"walletLoading","wallet":{"address":"addr1xyz","name":"Main","walletType":"None","balance":0,"assets":null,"timestamp":0,"loading":true}}`},
		{WalletLoaded{Wallet: w},
			`{"action":"walletLoaded","wallet":{"address":"addr1xyz","name":"Main","walletType":"Nami","balance":5,"assets":null,"timestamp":0}}`},
	}

	for _, tt := range tests {
		t.Run(tt.msg.Kind(), func(t *testing.T) {
			data, err := Encode(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))

			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, got)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode([]byte(`{"type":"SELF_DESTRUCT"}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = Decode([]byte(`{"action":"walletRemoved"}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = Decode([]byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = Decode([]byte(`{"type":"SLOTS_UPDATED"}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = Decode([]byte(`{"action":"walletLoaded"}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestBroadcastSkipsOriginInOrder(t *testing.T) {
	hub := NewHub(testLogger())

	var order []string
	var mu sync.Mutex
	for _, id := range []string{"a", "b", "c"} {
		hub.Register(orderSurface{id: id, order: &order, mu: &mu})
	}

	n := hub.Broadcast(context.Background(), "b", ReloadWallets{})
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "c"}, order)
}

type orderSurface struct {
	id    string
	order *[]string
	mu    *sync.Mutex
}

func (s orderSurface) ID() string { return s.id }

func (s orderSurface) Handle(ctx context.Context, msg Message) error {
	s.mu.Lock()
	*s.order = append(*s.order, s.id)
	s.mu.Unlock()
	return nil
}

func TestBroadcastWithoutSurfaces(t *testing.T) {
	hub := NewHub(testLogger())
	assert.Equal(t, 0, hub.Broadcast(context.Background(), "", ReloadWallets{}))
}

func TestFailingSurfaceDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(testLogger())

	first := &recordingSurface{id: "first"}
	failing := &recordingSurface{id: "failing", err: errors.New("closed")}
	panicking := &recordingSurface{id: "panicking", panic: true}
	last := &recordingSurface{id: "last"}
	for _, s := range []Surface{first, failing, panicking, last} {
		hub.Register(s)
	}

	n := hub.Broadcast(context.Background(), "", ReloadWallets{})
	assert.Equal(t, 2, n)
	assert.Equal(t, []Message{ReloadWallets{}}, first.received())
	assert.Equal(t, []Message{ReloadWallets{}}, failing.received())
	assert.Equal(t, []Message{ReloadWallets{}}, last.received())
}

func TestUnregister(t *testing.T) {
	hub := NewHub(testLogger())
	a := &recordingSurface{id: "a"}
	b := &recordingSurface{id: "b"}
	unregister := hub.Register(a)
	hub.Register(b)

	unregister()
	unregister()

	hub.Broadcast(context.Background(), "", ReloadWallets{})
	assert.Empty(t, a.received())
	assert.Len(t, b.received(), 1)
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(testLogger())
	sender := &recordingSurface{id: "popup"}
	other := &recordingSurface{id: "fullview"}
	hub.Register(sender)
	hub.Register(other)

	require.NoError(t, hub.Dispatch(ctx, "popup", WalletAdded{}))
	require.NoError(t, hub.Dispatch(ctx, "popup", UpdateSlots{Slots: 12}))
	require.NoError(t, hub.Dispatch(ctx, "popup", WalletLoaded{Wallet: wallet.Record{Address: "addr1"}}))

	assert.Empty(t, sender.received())
	assert.Equal(t, []Message{
		ReloadWallets{},
		SlotsUpdated{Slots: 12},
		WalletLoaded{Wallet: wallet.Record{Address: "addr1"}},
	}, other.received())

	assert.ErrorIs(t, hub.Dispatch(ctx, "popup", OpenFullView{}), ErrNoOpener)

	var openedFor string
	hub.SetOpener(func(ctx context.Context, origin string) error {
		openedFor = origin
		return nil
	})
	require.NoError(t, hub.Dispatch(ctx, "popup", OpenFullView{}))
	assert.Equal(t, "popup", openedFor)
}

func TestAnnounce(t *testing.T) {
	hub := NewHub(testLogger())
	origin := &recordingSurface{id: "origin"}
	other := &recordingSurface{id: "other"}
	hub.Register(origin)
	hub.Register(other)

	ctx := storage.WithWriter(context.Background(), "origin")
	placeholder := wallet.Record{Address: "addr1", Name: "Main", Loading: true}

	hub.Announce(ctx, wallet.Event{Kind: wallet.EventLoading, Wallet: placeholder})
	hub.Announce(ctx, wallet.Event{Kind: wallet.EventFailed, Wallet: placeholder})

	assert.Empty(t, origin.received())
	assert.Equal(t, []Message{WalletLoading{Wallet: placeholder}, ReloadWallets{}}, other.received())
}

func TestRelay(t *testing.T) {
	store := storage.NewMemory()
	hub := NewHub(testLogger())
	writer := &recordingSurface{id: "bot"}
	other := &recordingSurface{id: "fullview"}
	hub.Register(writer)
	hub.Register(other)

	relay := NewRelay(context.Background(), store, hub, testLogger())

	ctx := storage.WithWriter(context.Background(), "bot")
	require.NoError(t, store.Set(ctx, storage.Local, wallet.KeyWallets, []wallet.Record{{Address: "addr1"}}))
	require.NoError(t, store.Set(ctx, storage.Synced, slots.KeyUnlocked, 12))
	// same key in the other scope is not the registry
	require.NoError(t, store.Set(ctx, storage.Synced, wallet.KeyWallets, []string{}))
	require.NoError(t, store.Remove(ctx, storage.Synced, slots.KeyUnlocked))

	assert.Empty(t, writer.received())
	assert.Equal(t, []Message{ReloadWallets{}, SlotsUpdated{Slots: 12}}, other.received())

	relay.Close()
	require.NoError(t, store.Set(ctx, storage.Local, wallet.KeyWallets, []wallet.Record{}))
	assert.Len(t, other.received(), 2)
}

func TestRelayWithRegistryAndSlots(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	hub := NewHub(testLogger())
	surface := &recordingSurface{id: "fullview"}
	hub.Register(surface)
	relay := NewRelay(ctx, store, hub, testLogger())
	defer relay.Close()

	mgr, err := slots.NewManager(ctx, store, slots.Options{FreeSlots: 6, SlotsPerPayment: 6, MaxTotalSlots: 100}, testLogger())
	require.NoError(t, err)

	_, err = mgr.Unlock(storage.WithWriter(ctx, "popup"), 6)
	require.NoError(t, err)
	assert.Equal(t, []Message{SlotsUpdated{Slots: 12}}, surface.received())
}
