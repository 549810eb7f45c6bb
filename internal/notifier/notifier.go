package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/suspectuso/ada-tracker/internal/storage"
	"github.com/suspectuso/ada-tracker/internal/wallet"
)

var ErrNoOpener = errors.New("no full view opener configured")

// Surface is an independently running view that receives messages
type Surface interface {
	ID() string
	Handle(ctx context.Context, msg Message) error
}

// OpenerFunc opens the full view on behalf of origin
type OpenerFunc func(ctx context.Context, origin string) error

type registration struct {
	seq     uint64
	surface Surface
}

// Hub delivers messages to every registered surface
type Hub struct {
	mu      sync.RWMutex
	seq     uint64
	entries []registration
	opener  OpenerFunc
	log     *slog.Logger
}

// NewHub creates an empty hub
func NewHub(log *slog.Logger) *Hub {
	return &Hub{log: log}
}

// Register adds a surface. The returned func unregisters it.
func (h *Hub) Register(s Surface) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	seq := h.seq
	h.entries = append(h.entries, registration{seq: seq, surface: s})
	h.log.Debug("surface registered", "surface", s.ID())

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, e := range h.entries {
			if e.seq == seq {
				h.entries = append(h.entries[:i:i], h.entries[i+1:]...)
				h.log.Debug("surface unregistered", "surface", s.ID())
				return
			}
		}
	}
}

// SetOpener configures how OpenFullView is handled
func (h *Hub) SetOpener(fn OpenerFunc) {
	h.mu.Lock()
	h.opener = fn
	h.mu.Unlock()
}

// Broadcast delivers msg to every surface except origin, in registration
// order. It returns how many surfaces accepted the message.
func (h *Hub) Broadcast(ctx context.Context, origin string, msg Message) int {
	h.mu.RLock()
	entries := make([]registration, len(h.entries))
	copy(entries, h.entries)
	h.mu.RUnlock()

	delivered := 0
	for _, e := range entries {
		id := e.surface.ID()
		if origin != "" && id == origin {
			continue
		}
		if err := deliver(ctx, e.surface, msg); err != nil {
			h.log.Warn("deliver message",
				"surface", id,
				"kind", msg.Kind(),
				"error", err,
			)
			continue
		}
		delivered++
	}
	return delivered
}

func deliver(ctx context.Context, s Surface, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("surface panicked: %v", r)
		}
	}()
	return s.Handle(ctx, msg)
}

// Dispatch handles a message a surface sent to the background process
func (h *Hub) Dispatch(ctx context.Context, origin string, msg Message) error {
	switch m := msg.(type) {
	case WalletAdded:
		h.Broadcast(ctx, origin, ReloadWallets{})
	case UpdateSlots:
		h.Broadcast(ctx, origin, SlotsUpdated{Slots: m.Slots})
	case OpenFullView:
		h.mu.RLock()
		open := h.opener
		h.mu.RUnlock()
		if open == nil {
			return ErrNoOpener
		}
		return open(ctx, origin)
	case ReloadWallets, SlotsUpdated, WalletLoading, WalletLoaded:
		h.Broadcast(ctx, origin, msg)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
	return nil
}

// Announce relays wallet add progress. The writer on ctx is the origin.
func (h *Hub) Announce(ctx context.Context, ev wallet.Event) {
	origin := storage.WriterFrom(ctx)

	switch ev.Kind {
	case wallet.EventLoading:
		h.Broadcast(ctx, origin, WalletLoading{Wallet: ev.Wallet})
	case wallet.EventLoaded:
		h.Broadcast(ctx, origin, WalletLoaded{Wallet: ev.Wallet})
	case wallet.EventFailed:
		// drops the placeholder everywhere
		h.Broadcast(ctx, origin, ReloadWallets{})
	}
}
