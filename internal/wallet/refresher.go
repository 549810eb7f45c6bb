package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Refresher periodically re-fetches wallets whose data is older than a TTL
type Refresher struct {
	registry *Registry
	ttl      time.Duration
	log      *slog.Logger
}

// NewRefresher creates a new stale-wallet refresher
func NewRefresher(registry *Registry, ttl time.Duration, log *slog.Logger) *Refresher {
	return &Refresher{
		registry: registry,
		ttl:      ttl,
		log:      log,
	}
}

// Run sweeps for stale wallets every interval until ctx is done
func (rf *Refresher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rf.log.Info("wallet refresher started", "interval", interval, "ttl", rf.ttl)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rf.RefreshStale(ctx); err != nil {
				rf.log.Error("refresh stale wallets", "error", err)
			}
		}
	}
}

// RefreshStale refreshes every stale wallet once. Failures do not stop the
// sweep; they are returned together.
func (rf *Refresher) RefreshStale(ctx context.Context) error {
	stale, err := rf.registry.Stale(ctx, rf.ttl)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	var result *multierror.Error
	refreshed := 0
	for _, address := range stale {
		if ctx.Err() != nil {
			result = multierror.Append(result, ctx.Err())
			break
		}
		if _, err := rf.registry.Refresh(ctx, address); err != nil {
			result = multierror.Append(result, fmt.Errorf("refresh %s: %w", address, err))
			continue
		}
		refreshed++
	}

	rf.log.Info("stale wallets refreshed", "stale", len(stale), "refreshed", refreshed)
	return result.ErrorOrNil()
}
