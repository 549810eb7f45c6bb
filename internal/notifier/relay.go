package notifier

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/suspectuso/ada-tracker/internal/slots"
	"github.com/suspectuso/ada-tracker/internal/storage"
	"github.com/suspectuso/ada-tracker/internal/wallet"
)

// Relay turns store changes into hub broadcasts
type Relay struct {
	ctx         context.Context
	hub         *Hub
	log         *slog.Logger
	unsubscribe []func()
}

// NewRelay subscribes to the registry and slot keys of store
func NewRelay(ctx context.Context, store storage.Store, hub *Hub, log *slog.Logger) *Relay {
	r := &Relay{
		ctx: ctx,
		hub: hub,
		log: log,
	}
	r.unsubscribe = []func(){
		store.OnChange(wallet.KeyWallets, r.walletsChanged),
		store.OnChange(slots.KeyUnlocked, r.slotsChanged),
	}
	return r
}

// Close stops relaying
func (r *Relay) Close() {
	for _, fn := range r.unsubscribe {
		fn()
	}
}

func (r *Relay) walletsChanged(c storage.Change) {
	if c.Scope != storage.Local {
		return
	}
	r.hub.Broadcast(r.ctx, c.Writer, ReloadWallets{})
}

func (r *Relay) slotsChanged(c storage.Change) {
	if c.Scope != storage.Synced || c.Removed() {
		return
	}

	var n int
	if err := json.Unmarshal(c.NewValue, &n); err != nil {
		r.log.Warn("decode slot count", "error", err)
		return
	}
	r.hub.Broadcast(r.ctx, c.Writer, SlotsUpdated{Slots: n})
}
