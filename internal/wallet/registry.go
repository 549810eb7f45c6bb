package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/suspectuso/ada-tracker/internal/asset"
	"github.com/suspectuso/ada-tracker/internal/provider"
	"github.com/suspectuso/ada-tracker/internal/storage"
)

// Store keys
const (
	KeyWallets      = "wallets"
	KeyIndex        = "wallet_index"
	keyWalletPrefix = "wallet_"
	keyAssetsPrefix = "assets_"
	keyIconPrefix   = "wallet_icon_"
)

// Provider fetches balance and assets for an address
type Provider interface {
	GetWallet(ctx context.Context, address string) (*provider.WalletResponse, error)
}

// Capacity reports how many wallets may be stored
type Capacity interface {
	Capacity(ctx context.Context) (int, error)
}

// Announcer relays add progress to other surfaces
type Announcer interface {
	Announce(ctx context.Context, ev Event)
}

// Registry owns the bookmarked wallets. The store is the source of truth:
// every operation re-reads it before checking names and slots, and mutations
// report success only after the full list was written back.
type Registry struct {
	store     storage.Store
	provider  Provider
	slots     Capacity
	announcer Announcer
	log       *slog.Logger
	now       func() time.Time

	// serializes mutations made through this process
	mu sync.Mutex
}

// NewRegistry creates a registry. announcer may be nil.
func NewRegistry(store storage.Store, p Provider, slots Capacity, announcer Announcer, log *slog.Logger) *Registry {
	return &Registry{
		store:     store,
		provider:  p,
		slots:     slots,
		announcer: announcer,
		log:       log,
		now:       time.Now,
	}
}

// Add bookmarks a new address after fetching its data from the provider.
func (r *Registry) Add(ctx context.Context, address, name string, walletType Type) (*Record, error) {
	return r.add(ctx, Record{
		Address:    strings.TrimSpace(address),
		Name:       normalizeName(name),
		WalletType: walletType,
	})
}

// AddCustom bookmarks an address shown with a user-supplied icon.
func (r *Registry) AddCustom(ctx context.Context, address, name, iconData string) (*Record, error) {
	return r.add(ctx, Record{
		Address:        strings.TrimSpace(address),
		Name:           normalizeName(name),
		WalletType:     TypeCustom,
		CustomIconData: iconData,
	})
}

func (r *Registry) add(ctx context.Context, rec Record) (*Record, error) {
	if err := ValidateAddress(rec.Address); err != nil {
		return nil, err
	}
	if rec.Name == "" {
		return nil, ErrInvalidName
	}
	t, ok := ParseType(string(rec.WalletType))
	if !ok {
		return nil, ErrInvalidType
	}
	rec.WalletType = t
	if rec.WalletType != TypeCustom {
		rec.CustomIconData = ""
	}

	r.mu.Lock()
	_, err := r.checkInsert(ctx, rec)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	placeholder := rec
	placeholder.Loading = true
	r.announce(ctx, EventLoading, placeholder)

	data, err := r.provider.GetWallet(ctx, rec.Address)
	if err != nil {
		r.log.Warn("fetch wallet", "address", rec.Address, "error", err)
		r.announce(ctx, EventFailed, placeholder)
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	apply(&rec, data, r.now())

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another writer may have filled the last slot or taken the address
	// while the provider call was in flight.
	wallets, err := r.checkInsert(ctx, rec)
	if err != nil {
		r.announce(ctx, EventFailed, placeholder)
		return nil, err
	}
	next := append(clone(wallets), rec)
	if err := r.persist(ctx, next, []Record{rec}, nil); err != nil {
		r.announce(ctx, EventFailed, placeholder)
		return nil, err
	}

	r.log.Info("wallet added",
		"address", rec.Address,
		"name", rec.Name,
		"assets", len(rec.Assets),
	)
	r.announce(ctx, EventLoaded, rec)

	return &rec, nil
}

// checkInsert runs the uniqueness and capacity checks in their fixed order.
// Caller holds r.mu.
func (r *Registry) checkInsert(ctx context.Context, rec Record) ([]Record, error) {
	wallets, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	if nameTaken(wallets, rec.Name, "") {
		return nil, ErrDuplicateName
	}

	capacity, err := r.slots.Capacity(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if len(wallets) >= capacity {
		return nil, ErrSlotsExhausted
	}

	if indexByAddress(wallets, rec.Address) >= 0 {
		return nil, ErrDuplicateAddress
	}
	return wallets, nil
}

// Refresh re-fetches balance and assets of a bookmarked address.
func (r *Registry) Refresh(ctx context.Context, address string) (*Record, error) {
	if _, err := r.Get(ctx, address); err != nil {
		return nil, err
	}

	data, err := r.provider.GetWallet(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	wallets, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	idx := indexByAddress(wallets, address)
	if idx < 0 {
		// removed while fetching
		return nil, ErrNotFound
	}

	next := clone(wallets)
	apply(&next[idx], data, r.now())
	if err := r.persist(ctx, next, []Record{next[idx]}, nil); err != nil {
		return nil, err
	}

	rec := next[idx]
	return &rec, nil
}

// Remove deletes a bookmarked address and its per-wallet keys.
func (r *Registry) Remove(ctx context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wallets, err := r.load(ctx)
	if err != nil {
		return err
	}
	idx := indexByAddress(wallets, address)
	if idx < 0 {
		return ErrNotFound
	}

	next := make([]Record, 0, len(wallets)-1)
	next = append(next, wallets[:idx]...)
	next = append(next, wallets[idx+1:]...)
	if err := r.persist(ctx, next, nil, []string{address}); err != nil {
		return err
	}

	r.log.Info("wallet removed", "address", address)
	return nil
}

// Rename changes the display name of a bookmarked address.
func (r *Registry) Rename(ctx context.Context, address, name string) (*Record, error) {
	name = normalizeName(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	wallets, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	idx := indexByAddress(wallets, address)
	if idx < 0 {
		return nil, ErrNotFound
	}
	if nameTaken(wallets, name, address) {
		return nil, ErrDuplicateName
	}

	next := clone(wallets)
	next[idx].Name = name
	if err := r.persist(ctx, next, []Record{next[idx]}, nil); err != nil {
		return nil, err
	}

	rec := next[idx]
	return &rec, nil
}

// List returns the bookmarked wallets as currently stored.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	return r.Load(ctx)
}

// Get returns one bookmarked wallet.
func (r *Registry) Get(ctx context.Context, address string) (*Record, error) {
	wallets, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	idx := indexByAddress(wallets, address)
	if idx < 0 {
		return nil, ErrNotFound
	}
	rec := wallets[idx]
	return &rec, nil
}

// Count returns how many wallets are bookmarked
func (r *Registry) Count(ctx context.Context) (int, error) {
	wallets, err := r.Load(ctx)
	if err != nil {
		return 0, err
	}
	return len(wallets), nil
}

// Stale returns addresses whose last refresh is older than ttl.
func (r *Registry) Stale(ctx context.Context, ttl time.Duration) ([]string, error) {
	wallets, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := r.now().Add(-ttl).UnixMilli()
	var stale []string
	for _, w := range wallets {
		if w.Timestamp < cutoff {
			stale = append(stale, w.Address)
		}
	}
	return stale, nil
}

// Load reads the full registry from the store. It does not wait for
// in-flight mutations, so surfaces may call it from change handlers.
func (r *Registry) Load(ctx context.Context) ([]Record, error) {
	return r.load(ctx)
}

// Save overwrites the full registry in the store.
func (r *Registry) Save(ctx context.Context, wallets []Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, err := r.load(ctx)
	if err != nil {
		return err
	}

	var removed []string
	for _, w := range prev {
		if indexByAddress(wallets, w.Address) < 0 {
			removed = append(removed, w.Address)
		}
	}
	return r.persist(ctx, wallets, wallets, removed)
}

func (r *Registry) load(ctx context.Context) ([]Record, error) {
	var wallets []Record
	err := r.store.Get(ctx, storage.Local, KeyWallets, &wallets)
	if errors.Is(err, storage.ErrNotFound) {
		return r.restore(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return wallets, nil
}

// restore rebuilds the registry from the synced mirror, which is all a
// freshly installed device has.
func (r *Registry) restore(ctx context.Context) ([]Record, error) {
	index, _, err := r.readIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if len(index) == 0 {
		return nil, nil
	}

	wallets := make([]Record, 0, len(index))
	for _, address := range index {
		var s syncedRecord
		if err := r.store.Get(ctx, storage.Synced, keyWalletPrefix+address, &s); err != nil {
			r.log.Warn("restore wallet", "address", address, "error", err)
			continue
		}

		rec := Record{
			Address:      s.Address,
			StakeAddress: s.StakeAddress,
			Name:         s.Name,
			WalletType:   s.WalletType,
			Balance:      s.Balance,
			Timestamp:    s.Timestamp,
		}
		// assets and icons are device-local and may be missing
		_ = r.store.Get(ctx, storage.Local, keyAssetsPrefix+address, &rec.Assets)
		_ = r.store.Get(ctx, storage.Local, keyIconPrefix+address, &rec.CustomIconData)
		wallets = append(wallets, rec)
	}

	if len(wallets) > 0 {
		r.log.Info("restored wallets from synced index", "count", len(wallets))
	}
	return wallets, nil
}

// indexKey names the n-th chunk of the synced address index
func indexKey(n int) string {
	if n == 0 {
		return KeyIndex
	}
	return fmt.Sprintf("%s_%d", KeyIndex, n)
}

// readIndex concatenates the index chunks and reports how many there were
func (r *Registry) readIndex(ctx context.Context) ([]string, int, error) {
	var index []string
	for n := 0; ; n++ {
		var chunk []string
		err := r.store.Get(ctx, storage.Synced, indexKey(n), &chunk)
		if errors.Is(err, storage.ErrNotFound) {
			return index, n, nil
		}
		if err != nil {
			return nil, 0, err
		}
		index = append(index, chunk...)
	}
}

// chunkIndex splits addresses so every chunk fits one synced item
func chunkIndex(addresses []string) [][]string {
	var chunks [][]string
	var cur []string
	size := 2 // []
	for _, a := range addresses {
		limit := storage.SyncedQuotaBytesPerItem - len(indexKey(len(chunks)))
		item := len(a) + 3 // quotes and comma
		if len(cur) > 0 && size+item > limit {
			chunks = append(chunks, cur)
			cur, size = nil, 2
		}
		cur = append(cur, a)
		size += item
	}
	if len(cur) > 0 || len(chunks) == 0 {
		chunks = append(chunks, append([]string{}, cur...))
	}
	return chunks
}

// persist writes per-wallet keys for changed, the chunked synced index and
// finally the full list. The list is written last because that write is what
// other surfaces reload on. A failed write undoes the ones before it.
func (r *Registry) persist(ctx context.Context, wallets, changed []Record, removed []string) error {
	b := &batch{store: r.store}
	if err := r.write(ctx, b, wallets, changed); err != nil {
		b.rollback(ctx, r.log)
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	for _, address := range removed {
		if err := r.store.Remove(ctx, storage.Synced, keyWalletPrefix+address); err != nil {
			r.log.Warn("remove synced wallet", "address", address, "error", err)
		}
		if err := r.store.Remove(ctx, storage.Local, keyAssetsPrefix+address, keyIconPrefix+address); err != nil {
			r.log.Warn("remove wallet keys", "address", address, "error", err)
		}
	}
	return nil
}

func (r *Registry) write(ctx context.Context, b *batch, wallets, changed []Record) error {
	for i := range changed {
		w := &changed[i]
		if err := b.set(ctx, storage.Synced, keyWalletPrefix+w.Address, w.synced()); err != nil {
			return err
		}
		if err := b.set(ctx, storage.Local, keyAssetsPrefix+w.Address, w.Assets); err != nil {
			return err
		}
		if w.CustomIconData != "" {
			if err := b.set(ctx, storage.Local, keyIconPrefix+w.Address, w.CustomIconData); err != nil {
				return err
			}
		}
	}

	_, prevChunks, err := r.readIndex(ctx)
	if err != nil {
		return err
	}

	index := make([]string, len(wallets))
	for i, w := range wallets {
		index[i] = w.Address
	}
	chunks := chunkIndex(index)
	// chunks left over from a longer index
	for n := prevChunks - 1; n >= len(chunks); n-- {
		if err := b.remove(ctx, storage.Synced, indexKey(n)); err != nil {
			return err
		}
	}
	for n, chunk := range chunks {
		if err := b.set(ctx, storage.Synced, indexKey(n), chunk); err != nil {
			return err
		}
	}

	return b.set(ctx, storage.Local, KeyWallets, wallets)
}

func (r *Registry) announce(ctx context.Context, kind EventKind, rec Record) {
	if r.announcer == nil {
		return
	}
	r.announcer.Announce(ctx, Event{Kind: kind, Wallet: rec})
}

func apply(rec *Record, data *provider.WalletResponse, now time.Time) {
	rec.Balance = int64(data.Balance)
	if data.StakeAddress != "" {
		rec.StakeAddress = data.StakeAddress
	}

	assets := make([]asset.Record, 0, len(data.Assets))
	for i := range data.Assets {
		assets = append(assets, data.Assets[i].Record())
	}
	rec.Assets = assets
	rec.Timestamp = now.UnixMilli()
}

func clone(wallets []Record) []Record {
	return append([]Record(nil), wallets...)
}
