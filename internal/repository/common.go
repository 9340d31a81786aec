// Package repository provides the SQLite data access layer. Every method
// takes an optional transaction: pass nil to run against the pool.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/wasteops/wasteops/internal/models"
)

const (
	tableParks            = "parks"
	tableClients          = "clients"
	tableStorageAreas     = "storage_areas"
	tableEntries          = "entries"
	tableLots             = "lots"
	tableLotEntries       = "lot_entries"
	tableLotZones         = "lot_zones"
	tableProductionCycles = "client_production_cycles"
	tableCollectionOrders = "collection_orders"
)

// builder returns a squirrel statement builder using SQLite placeholders.
func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// base is embedded by every repository.
type base struct {
	db *sqlx.DB
}

// ext picks the transaction when one is given. Inside a transaction the
// pool must not be used: it holds a single connection.
func (b base) ext(tx *sqlx.Tx) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return b.db
}

func (b base) getx(ctx context.Context, tx *sqlx.Tx, dest any, query sq.Sqlizer) error {
	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("building query: %w", err)
	}
	return sqlx.GetContext(ctx, b.ext(tx), dest, stmt, args...)
}

func (b base) selectx(ctx context.Context, tx *sqlx.Tx, dest any, query sq.Sqlizer) error {
	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("building query: %w", err)
	}
	return sqlx.SelectContext(ctx, b.ext(tx), dest, stmt, args...)
}

func (b base) execx(ctx context.Context, tx *sqlx.Tx, query sq.Sqlizer) (sql.Result, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	return b.ext(tx).ExecContext(ctx, stmt, args...)
}

// count runs a SELECT COUNT(*) built from query.
func (b base) count(ctx context.Context, tx *sqlx.Tx, query sq.SelectBuilder) (int, error) {
	var n int
	if err := b.getx(ctx, tx, &n, query); err != nil {
		return 0, err
	}
	return n, nil
}

// wrapErr maps driver errors onto the model error taxonomy.
func wrapErr(op, entity, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &models.NotFoundError{Entity: entity, ID: id}
	}
	var nf *models.NotFoundError
	if errors.As(err, &nf) {
		return err
	}
	return &models.DataAccessError{Op: op, Err: err}
}

// affected returns NotFoundError when result touched no rows.
func affected(result sql.Result, entity, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return &models.DataAccessError{Op: "rows affected", Err: err}
	}
	if n == 0 {
		return &models.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}
