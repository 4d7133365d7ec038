package usage

import "context"

// CounterStore is the persistence needed by StoreCounter.
type CounterStore interface {
	IncrementUsage(ctx context.Context, userID, day string) (int, error)
}

// StoreCounter counts usage in the relational store.
type StoreCounter struct {
	store CounterStore
}

// NewStoreCounter creates a counter backed by store.
func NewStoreCounter(store CounterStore) *StoreCounter {
	return &StoreCounter{store: store}
}

// Increment implements Counter.
func (c *StoreCounter) Increment(ctx context.Context, userID, day string) (int, error) {
	return c.store.IncrementUsage(ctx, userID, day)
}
