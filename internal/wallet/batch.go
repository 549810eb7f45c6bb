package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/suspectuso/ada-tracker/internal/storage"
)

// batch remembers what each write replaced so a failed persist can put the
// store back the way it was.
type batch struct {
	store storage.Store
	undo  []func(ctx context.Context) error
}

func (b *batch) set(ctx context.Context, scope storage.Scope, key string, v any) error {
	restore, err := b.snapshot(ctx, scope, key)
	if err != nil {
		return err
	}
	if err := b.store.Set(ctx, scope, key, v); err != nil {
		return err
	}
	b.undo = append(b.undo, restore)
	return nil
}

func (b *batch) remove(ctx context.Context, scope storage.Scope, key string) error {
	restore, err := b.snapshot(ctx, scope, key)
	if err != nil {
		return err
	}
	if err := b.store.Remove(ctx, scope, key); err != nil {
		return err
	}
	b.undo = append(b.undo, restore)
	return nil
}

func (b *batch) snapshot(ctx context.Context, scope storage.Scope, key string) (func(ctx context.Context) error, error) {
	var prev json.RawMessage
	err := b.store.Get(ctx, scope, key, &prev)
	switch {
	case err == nil:
		return func(ctx context.Context) error {
			return b.store.Set(ctx, scope, key, prev)
		}, nil
	case errors.Is(err, storage.ErrNotFound):
		return func(ctx context.Context) error {
			return b.store.Remove(ctx, scope, key)
		}, nil
	default:
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
}

// rollback undoes the recorded writes, newest first
func (b *batch) rollback(ctx context.Context, log *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	for i := len(b.undo) - 1; i >= 0; i-- {
		if err := b.undo[i](ctx); err != nil {
			log.Error("rollback wallet write", "error", err)
		}
	}
	b.undo = nil
}
