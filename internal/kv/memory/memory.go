// Package memory is an in-process kv.Backend. It backs local development and
// the store unit tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"stockwatch/internal/kv"
)

// Backend keeps items in a map guarded by a single lock. Transactions stage
// their writes and commit them under the lock, so they are atomic and
// serialised with every other write.
type Backend struct {
	mu    sync.RWMutex
	items map[kv.Key]kv.Attributes
}

// New creates an empty backend.
func New() *Backend {
	return &Backend{items: make(map[kv.Key]kv.Attributes)}
}

// Get returns a copy of the item under key.
func (b *Backend) Get(ctx context.Context, key kv.Key) (kv.Item, error) {
	if err := ctx.Err(); err != nil {
		return kv.Item{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	attrs, ok := b.items[key]
	if !ok {
		return kv.Item{}, kv.ErrNotFound
	}
	return kv.Item{Key: key, Attributes: kv.Clone(attrs)}, nil
}

// Query returns every item in partition pk ordered by sort key.
func (b *Backend) Query(ctx context.Context, pk string) ([]kv.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	items := []kv.Item{}
	for key, attrs := range b.items {
		if key.PK == pk {
			items = append(items, kv.Item{Key: key, Attributes: kv.Clone(attrs)})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key.SK < items[j].Key.SK })
	return items, nil
}

// Put writes a single item.
func (b *Backend) Put(ctx context.Context, put kv.Put) error {
	return b.single(ctx, kv.TransactItem{Put: &put})
}

// Update modifies a single item.
func (b *Backend) Update(ctx context.Context, update kv.Update) error {
	return b.single(ctx, kv.TransactItem{Update: &update})
}

// Delete removes a single item.
func (b *Backend) Delete(ctx context.Context, del kv.Delete) error {
	return b.single(ctx, kv.TransactItem{Delete: &del})
}

func (b *Backend) single(ctx context.Context, item kv.TransactItem) error {
	err := b.TransactWrite(ctx, []kv.TransactItem{item})
	if tc, ok := err.(*kv.TransactionCanceledError); ok && tc.ConditionFailedAt(0) {
		return &kv.ConditionFailedError{Key: item.Key()}
	}
	return err
}

// TransactWrite applies items atomically.
func (b *Backend) TransactWrite(ctx context.Context, items []kv.TransactItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Stage every write against a view of the store so that later items in
	// the same transaction see the effects of earlier ones.
	staged := make(map[kv.Key]kv.Attributes, len(items))
	deleted := make(map[kv.Key]bool, len(items))
	current := func(key kv.Key) kv.Attributes {
		if deleted[key] {
			return nil
		}
		if attrs, ok := staged[key]; ok {
			return attrs
		}
		return b.items[key]
	}

	reasons := make([]kv.CancelReason, len(items))
	failed := false
	for i, item := range items {
		reasons[i] = kv.CancelReason{Code: kv.ReasonNone}
		key := item.Key()

		ok, err := kv.Check(current(key), item.Conditions())
		if err != nil {
			reasons[i] = kv.CancelReason{Code: kv.ReasonValidationError, Message: err.Error()}
			failed = true
			continue
		}
		if !ok {
			reasons[i] = kv.CancelReason{Code: kv.ReasonConditionalCheckFailed}
			failed = true
			continue
		}

		switch {
		case item.Put != nil:
			attrs, err := kv.NormalizeAttributes(item.Put.Item.Attributes)
			if err != nil {
				reasons[i] = kv.CancelReason{Code: kv.ReasonValidationError, Message: err.Error()}
				failed = true
				continue
			}
			staged[key] = attrs
			delete(deleted, key)
		case item.Update != nil:
			attrs, err := kv.Apply(current(key), *item.Update)
			if err != nil {
				reasons[i] = kv.CancelReason{Code: kv.ReasonValidationError, Message: err.Error()}
				failed = true
				continue
			}
			staged[key] = attrs
			delete(deleted, key)
		case item.Delete != nil:
			delete(staged, key)
			deleted[key] = true
		}
	}

	if failed {
		return &kv.TransactionCanceledError{Reasons: reasons}
	}

	for key := range deleted {
		delete(b.items, key)
	}
	for key, attrs := range staged {
		b.items[key] = attrs
	}
	return nil
}

// Len returns the number of stored items.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}
