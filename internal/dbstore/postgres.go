package dbstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresCollection is a Collection[T] backed by a Postgres table
// shaped `(id text primary key, doc jsonb, updated_at timestamptz)`,
// storing each document as an opaque JSONB payload rather than a
// relational schema per entity. table must already exist; see Schema and Migrate.
type postgresCollection[T Document] struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresCollection returns a Collection[T] backed by the named
// table in pool.
func NewPostgresCollection[T Document](pool *pgxpool.Pool, table string) Collection[T] {
	return &postgresCollection[T]{pool: pool, table: table}
}

func (c *postgresCollection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	var raw []byte
	err := c.pool.QueryRow(
		ctx,
		fmt.Sprintf("SELECT doc FROM %s WHERE id = $1", c.table),
		id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, &NotFoundError{Collection: c.table, ID: id}
		}
		return zero, fmt.Errorf("get %s/%s: %w", c.table, id, err)
	}
	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return zero, fmt.Errorf("decode %s/%s: %w", c.table, id, err)
	}
	return doc, nil
}

func (c *postgresCollection[T]) List(ctx context.Context, filter func(T) bool) ([]T, error) {
	rows, err := c.pool.Query(ctx, fmt.Sprintf("SELECT doc FROM %s ORDER BY updated_at DESC", c.table))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.table, err)
		}
		var doc T
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c.table, err)
		}
		if filter == nil || filter(doc) {
			out = append(out, doc)
		}
	}
	return out, rows.Err()
}

func (c *postgresCollection[T]) Create(ctx context.Context, doc T) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", c.table, doc.DocID(), err)
	}
	_, err = c.pool.Exec(
		ctx,
		fmt.Sprintf("INSERT INTO %s (id, doc, updated_at) VALUES ($1, $2, $3)", c.table),
		doc.DocID(), raw, doc.DocUpdatedAt(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return &ConflictError{Collection: c.table, ID: doc.DocID(), Reason: pgErr.Detail}
		}
		return fmt.Errorf("create %s/%s: %w", c.table, doc.DocID(), err)
	}
	return nil
}

// CompareAndSwap locks the row with SELECT ... FOR UPDATE inside a
// transaction so the read-mutate-write cycle is atomic even with
// concurrent callers, giving state-transition claims (the Evaluation
// Scheduler's scheduled->firing CAS, the Deployment Tracker's
// reconciliation write-if-changed) their at-most-once guarantee.
func (c *postgresCollection[T]) CompareAndSwap(
	ctx context.Context,
	id string,
	mutate func(current T) (T, error),
) (T, error) {
	var zero T
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return zero, fmt.Errorf("begin cas %s/%s: %w", c.table, id, err)
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(
		ctx,
		fmt.Sprintf("SELECT doc FROM %s WHERE id = $1 FOR UPDATE", c.table),
		id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, &NotFoundError{Collection: c.table, ID: id}
		}
		return zero, fmt.Errorf("cas read %s/%s: %w", c.table, id, err)
	}

	var current T
	if err := json.Unmarshal(raw, &current); err != nil {
		return zero, fmt.Errorf("cas decode %s/%s: %w", c.table, id, err)
	}

	updated, err := mutate(current)
	if err != nil {
		return zero, err
	}

	updatedRaw, err := json.Marshal(updated)
	if err != nil {
		return zero, fmt.Errorf("cas encode %s/%s: %w", c.table, id, err)
	}

	_, err = tx.Exec(
		ctx,
		fmt.Sprintf("UPDATE %s SET doc = $2, updated_at = $3 WHERE id = $1", c.table),
		id, updatedRaw, updated.DocUpdatedAt(),
	)
	if err != nil {
		return zero, fmt.Errorf("cas write %s/%s: %w", c.table, id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("cas commit %s/%s: %w", c.table, id, err)
	}
	return updated, nil
}

func (c *postgresCollection[T]) Delete(ctx context.Context, id string) error {
	_, err := c.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", c.table), id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c.table, id, err)
	}
	return nil
}
