package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/wasteops/wasteops/internal/models"
)

var storageAreaColumns = []string{
	"id", "park_id", "code", "name", "is_blocked", "blocked_reason",
	"blocked_at", "blocked_by", "created_at", "updated_at",
}

// StorageAreaRepository handles storage area data access.
type StorageAreaRepository struct {
	base
}

// NewStorageAreaRepository creates a new storage area repository.
func NewStorageAreaRepository(db *sqlx.DB) *StorageAreaRepository {
	return &StorageAreaRepository{base{db: db}}
}

// Create inserts a new storage area.
func (r *StorageAreaRepository) Create(ctx context.Context, tx *sqlx.Tx, area *models.StorageArea) error {
	if err := area.Validate(); err != nil {
		return models.NewValidationError("storage_area", "%v", err)
	}

	now := time.Now().UTC()
	area.CreatedAt = now
	area.UpdatedAt = now

	query := builder().Insert(tableStorageAreas).
		Columns(storageAreaColumns...).
		Values(
			area.ID, area.ParkID, area.Code, area.Name, area.IsBlocked, area.BlockedReason,
			area.BlockedAt, area.BlockedBy, area.CreatedAt, area.UpdatedAt,
		)

	if _, err := r.execx(ctx, tx, query); err != nil {
		return wrapErr("inserting storage area", "storage_area", area.ID, err)
	}
	return nil
}

// GetByID retrieves a storage area by ID.
func (r *StorageAreaRepository) GetByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.StorageArea, error) {
	query := builder().Select(storageAreaColumns...).From(tableStorageAreas).Where(sq.Eq{"id": id})

	var area models.StorageArea
	if err := r.getx(ctx, tx, &area, query); err != nil {
		return nil, wrapErr("getting storage area", "storage_area", id, err)
	}
	return &area, nil
}

// ListByPark returns the storage areas of a park ordered by code.
func (r *StorageAreaRepository) ListByPark(ctx context.Context, tx *sqlx.Tx, parkID string) ([]*models.StorageArea, error) {
	query := builder().Select(storageAreaColumns...).
		From(tableStorageAreas).
		Where(sq.Eq{"park_id": parkID}).
		OrderBy("code")

	var areas []*models.StorageArea
	if err := r.selectx(ctx, tx, &areas, query); err != nil {
		return nil, wrapErr("listing storage areas", "storage_area", "", err)
	}
	return areas, nil
}

// Block marks an area as blocked by a lot in treatment.
func (r *StorageAreaRepository) Block(ctx context.Context, tx *sqlx.Tx, id, reason, operator string, at time.Time) error {
	query := builder().Update(tableStorageAreas).
		Set("is_blocked", true).
		Set("blocked_reason", reason).
		Set("blocked_at", at).
		Set("blocked_by", operator).
		Set("updated_at", at).
		Where(sq.Eq{"id": id})

	result, err := r.execx(ctx, tx, query)
	if err != nil {
		return wrapErr("blocking storage area", "storage_area", id, err)
	}
	return affected(result, "storage_area", id)
}

// Unblock clears the blocking fields of an area. It reports whether the
// area was blocked before the call.
func (r *StorageAreaRepository) Unblock(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) (bool, error) {
	query := builder().Update(tableStorageAreas).
		Set("is_blocked", false).
		Set("blocked_reason", nil).
		Set("blocked_at", nil).
		Set("blocked_by", nil).
		Set("updated_at", at).
		Where(sq.Eq{"id": id, "is_blocked": true})

	result, err := r.execx(ctx, tx, query)
	if err != nil {
		return false, wrapErr("unblocking storage area", "storage_area", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, &models.DataAccessError{Op: "rows affected", Err: err}
	}
	return n > 0, nil
}
