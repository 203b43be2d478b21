// Package kv describes the key-value transaction backend the stores are built
// on: point reads and writes, partition range queries, conditional writes and
// atomic multi-item transactions with per-item preconditions.
//
// Items are addressed by a partition key (PK) and a sort key (SK). Attribute
// values are limited to strings, booleans, numbers and nil; every backend
// returns numbers as decimal.Decimal regardless of how they were written.
package kv

import (
	"context"
)

// Key addresses a single item.
type Key struct {
	PK string
	SK string
}

// Attributes holds the non-key attributes of an item.
type Attributes map[string]any

// Item is a stored record.
type Item struct {
	Key        Key
	Attributes Attributes
}

// ConditionKind enumerates the supported write preconditions.
type ConditionKind int

const (
	// CondExists requires the item to exist.
	CondExists ConditionKind = iota + 1
	// CondNotExists requires the item to be absent.
	CondNotExists
	// CondAtLeast requires a numeric attribute to be >= Value.
	CondAtLeast
	// CondNotEqual requires an attribute to differ from Value. A missing
	// attribute (or a missing item) satisfies it.
	CondNotEqual
)

// Condition is a single precondition. Conditions on one item are AND-ed.
type Condition struct {
	Kind      ConditionKind
	Attribute string
	Value     any
}

// Exists requires the item to exist.
func Exists() Condition { return Condition{Kind: CondExists} }

// NotExists requires the item to be absent.
func NotExists() Condition { return Condition{Kind: CondNotExists} }

// AtLeast requires attribute >= n.
func AtLeast(attribute string, n int64) Condition {
	return Condition{Kind: CondAtLeast, Attribute: attribute, Value: n}
}

// NotEqual requires attribute != v.
func NotEqual(attribute string, v any) Condition {
	return Condition{Kind: CondNotEqual, Attribute: attribute, Value: v}
}

// Put writes a whole item, replacing any existing one.
type Put struct {
	Item       Item
	Conditions []Condition
}

// Update modifies an item in place. Set assigns attributes; Add adds a signed
// delta to numeric attributes, treating a missing attribute as zero. Updating
// a missing item creates it unless a condition forbids that.
type Update struct {
	Key        Key
	Set        Attributes
	Add        map[string]int64
	Conditions []Condition
}

// Delete removes an item.
type Delete struct {
	Key        Key
	Conditions []Condition
}

// TransactItem is one operation of a transaction. Exactly one field is set.
type TransactItem struct {
	Put    *Put
	Update *Update
	Delete *Delete
}

// Key returns the key the operation targets.
func (t TransactItem) Key() Key {
	switch {
	case t.Put != nil:
		return t.Put.Item.Key
	case t.Update != nil:
		return t.Update.Key
	case t.Delete != nil:
		return t.Delete.Key
	}
	return Key{}
}

// Conditions returns the operation's preconditions.
func (t TransactItem) Conditions() []Condition {
	switch {
	case t.Put != nil:
		return t.Put.Conditions
	case t.Update != nil:
		return t.Update.Conditions
	case t.Delete != nil:
		return t.Delete.Conditions
	}
	return nil
}

// Backend is the storage capability. Implementations must be safe for
// concurrent use; they are shared by every request.
type Backend interface {
	// Get returns the item under key or ErrNotFound.
	Get(ctx context.Context, key Key) (Item, error)

	// Put writes an item. A failed condition yields *ConditionFailedError.
	Put(ctx context.Context, put Put) error

	// Update modifies an item. A failed condition yields *ConditionFailedError.
	Update(ctx context.Context, update Update) error

	// Delete removes an item. A failed condition yields *ConditionFailedError.
	Delete(ctx context.Context, del Delete) error

	// Query returns every item in the partition pk, in backend order.
	Query(ctx context.Context, pk string) ([]Item, error)

	// TransactWrite applies all items atomically. If any condition fails
	// nothing is written and *TransactionCanceledError reports a reason per
	// item, in request order.
	TransactWrite(ctx context.Context, items []TransactItem) error
}
