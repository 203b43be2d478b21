// Package postgres implements kv.Backend on PostgreSQL. Items live in a single
// table keyed by (pk, sk) with their attributes in a JSONB column. Conditional
// writes lock the target row with SELECT ... FOR UPDATE and evaluate the
// precondition inside the same transaction, so concurrent writers to one item
// serialise on the row lock.
package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"stockwatch/internal/kv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Schema creates the item table.
const Schema = `
	CREATE TABLE IF NOT EXISTS kv_items (
		pk    TEXT  NOT NULL,
		sk    TEXT  NOT NULL,
		attrs JSONB NOT NULL,
		PRIMARY KEY (pk, sk)
	);
`

// Backend is a PostgreSQL-backed kv.Backend.
type Backend struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New creates a backend on an existing pool.
func New(pool *pgxpool.Pool, logger zerolog.Logger) *Backend {
	return &Backend{
		pool:   pool,
		logger: logger.With().Str("component", "kv-postgres").Logger(),
	}
}

// Migrate creates the item table if it does not exist.
func (b *Backend) Migrate(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, Schema); err != nil {
		b.logger.Error().Err(err).Msg("failed to create kv schema")
		return wrapError("migrate", err)
	}
	return nil
}

// Get retrieves a single item.
func (b *Backend) Get(ctx context.Context, key kv.Key) (kv.Item, error) {
	query := `SELECT attrs FROM kv_items WHERE pk = $1 AND sk = $2`

	var raw []byte
	err := b.pool.QueryRow(ctx, query, key.PK, key.SK).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return kv.Item{}, kv.ErrNotFound
		}
		b.logger.Error().Err(err).Str("pk", key.PK).Str("sk", key.SK).Msg("failed to query item")
		return kv.Item{}, wrapError("get", err)
	}

	attrs, err := decodeAttributes(raw)
	if err != nil {
		return kv.Item{}, &kv.BackendError{Op: "get", Code: "DecodeError", Message: err.Error(), Err: err}
	}
	return kv.Item{Key: key, Attributes: attrs}, nil
}

// Query returns every item of partition pk ordered by sort key.
func (b *Backend) Query(ctx context.Context, pk string) ([]kv.Item, error) {
	query := `SELECT sk, attrs FROM kv_items WHERE pk = $1 ORDER BY sk`

	rows, err := b.pool.Query(ctx, query, pk)
	if err != nil {
		b.logger.Error().Err(err).Str("pk", pk).Msg("failed to query partition")
		return nil, wrapError("query", err)
	}
	defer rows.Close()

	items := []kv.Item{}
	for rows.Next() {
		var sk string
		var raw []byte
		if err := rows.Scan(&sk, &raw); err != nil {
			b.logger.Error().Err(err).Msg("failed to scan item row")
			return nil, wrapError("query", err)
		}
		attrs, err := decodeAttributes(raw)
		if err != nil {
			return nil, &kv.BackendError{Op: "query", Code: "DecodeError", Message: err.Error(), Err: err}
		}
		items = append(items, kv.Item{Key: kv.Key{PK: pk, SK: sk}, Attributes: attrs})
	}

	if err := rows.Err(); err != nil {
		b.logger.Error().Err(err).Msg("error iterating item rows")
		return nil, wrapError("query", err)
	}

	return items, nil
}

// Put writes a single item.
func (b *Backend) Put(ctx context.Context, put kv.Put) error {
	return b.single(ctx, "put", kv.TransactItem{Put: &put})
}

// Update modifies a single item.
func (b *Backend) Update(ctx context.Context, update kv.Update) error {
	return b.single(ctx, "update", kv.TransactItem{Update: &update})
}

// Delete removes a single item.
func (b *Backend) Delete(ctx context.Context, del kv.Delete) error {
	return b.single(ctx, "delete", kv.TransactItem{Delete: &del})
}

func (b *Backend) single(ctx context.Context, op string, item kv.TransactItem) error {
	err := b.transact(ctx, op, []kv.TransactItem{item})
	var tc *kv.TransactionCanceledError
	if errors.As(err, &tc) && tc.ConditionFailedAt(0) {
		return &kv.ConditionFailedError{Key: item.Key()}
	}
	return err
}

// TransactWrite applies items in one database transaction.
func (b *Backend) TransactWrite(ctx context.Context, items []kv.TransactItem) error {
	return b.transact(ctx, "transact_write", items)
}

func (b *Backend) transact(ctx context.Context, op string, items []kv.TransactItem) error {
	reasons := make([]kv.CancelReason, len(items))
	for i := range reasons {
		reasons[i] = kv.CancelReason{Code: kv.ReasonNone}
	}

	err := pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		for i, item := range items {
			code, err := b.apply(ctx, tx, item)
			if err != nil {
				return err
			}
			if code != kv.ReasonNone {
				reasons[i] = kv.CancelReason{Code: code}
				// Returning an error rolls the whole transaction back.
				return &kv.TransactionCanceledError{Reasons: reasons}
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}

	var tc *kv.TransactionCanceledError
	if errors.As(err, &tc) {
		b.logger.Debug().Str("op", op).Str("reasons", tc.Error()).Msg("transaction cancelled")
		return tc
	}
	b.logger.Error().Err(err).Str("op", op).Int("items", len(items)).Msg("transaction failed")
	return wrapError(op, err)
}

// apply executes one transaction item and returns its cancellation reason,
// kv.ReasonNone when it was written.
func (b *Backend) apply(ctx context.Context, tx pgx.Tx, item kv.TransactItem) (string, error) {
	key := item.Key()

	current, err := lockItem(ctx, tx, key)
	if err != nil {
		return "", err
	}

	ok, err := kv.Check(current, item.Conditions())
	if err != nil {
		return kv.ReasonValidationError, nil
	}
	if !ok {
		return kv.ReasonConditionalCheckFailed, nil
	}

	switch {
	case item.Put != nil:
		attrs, err := kv.NormalizeAttributes(item.Put.Item.Attributes)
		if err != nil {
			return kv.ReasonValidationError, nil
		}
		return writeItem(ctx, tx, key, attrs, current == nil && hasNotExists(item.Put.Conditions))
	case item.Update != nil:
		attrs, err := kv.Apply(current, *item.Update)
		if err != nil {
			return kv.ReasonValidationError, nil
		}
		return writeItem(ctx, tx, key, attrs, false)
	case item.Delete != nil:
		if _, err := tx.Exec(ctx, `DELETE FROM kv_items WHERE pk = $1 AND sk = $2`, key.PK, key.SK); err != nil {
			return "", err
		}
	}
	return kv.ReasonNone, nil
}

// lockItem reads and row-locks the item under key. It returns nil attributes
// when the item does not exist.
func lockItem(ctx context.Context, tx pgx.Tx, key kv.Key) (kv.Attributes, error) {
	var raw []byte
	err := tx.QueryRow(ctx,
		`SELECT attrs FROM kv_items WHERE pk = $1 AND sk = $2 FOR UPDATE`,
		key.PK, key.SK,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return decodeAttributes(raw)
}

// writeItem stores attrs under key. With insertOnly set, a row that appeared
// after lockItem saw none (a concurrent insert) fails the condition instead
// of being overwritten.
func writeItem(ctx context.Context, tx pgx.Tx, key kv.Key, attrs kv.Attributes, insertOnly bool) (string, error) {
	raw, err := encodeAttributes(attrs)
	if err != nil {
		return kv.ReasonValidationError, nil
	}

	if insertOnly {
		tag, err := tx.Exec(ctx,
			`INSERT INTO kv_items (pk, sk, attrs) VALUES ($1, $2, $3::jsonb) ON CONFLICT (pk, sk) DO NOTHING`,
			key.PK, key.SK, string(raw),
		)
		if err != nil {
			return "", err
		}
		if tag.RowsAffected() == 0 {
			return kv.ReasonConditionalCheckFailed, nil
		}
		return kv.ReasonNone, nil
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO kv_items (pk, sk, attrs) VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (pk, sk) DO UPDATE SET attrs = EXCLUDED.attrs`,
		key.PK, key.SK, string(raw),
	)
	if err != nil {
		return "", err
	}
	return kv.ReasonNone, nil
}

func hasNotExists(conds []kv.Condition) bool {
	for _, c := range conds {
		if c.Kind == kv.CondNotExists {
			return true
		}
	}
	return false
}

func encodeAttributes(attrs kv.Attributes) ([]byte, error) {
	doc := make(map[string]any, len(attrs))
	for name, v := range attrs {
		if d, ok := v.(decimal.Decimal); ok {
			doc[name] = json.Number(d.String())
			continue
		}
		doc[name] = v
	}
	return json.Marshal(doc)
}

func decodeAttributes(raw []byte) (kv.Attributes, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode attributes: %w", err)
	}
	return kv.NormalizeAttributes(doc)
}

// retryableClasses are SQLSTATE classes worth retrying: connection
// exceptions, transaction rollbacks (serialisation, deadlock) and
// insufficient resources.
var retryableClasses = map[string]bool{
	"08": true,
	"40": true,
	"53": true,
	"57": true,
}

func wrapError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &kv.BackendError{
			Op:        op,
			Code:      pgErr.Code,
			Message:   pgErr.Message,
			Retryable: len(pgErr.Code) >= 2 && retryableClasses[pgErr.Code[:2]],
			Err:       err,
		}
	}
	return &kv.BackendError{
		Op:        op,
		Message:   err.Error(),
		Retryable: pgconn.Timeout(err) || pgconn.SafeToRetry(err) || errors.Is(err, context.DeadlineExceeded),
		Err:       err,
	}
}
