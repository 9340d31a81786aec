package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/wasteops/wasteops/internal/models"
)

var entryColumns = []string{
	"id", "park_id", "client_id", "entry_number", "ler_code", "net_weight_kg",
	"inspection_result", "has_major_divergence", "has_critical_divergence",
	"status", "confirmed_at", "created_at",
}

// receivedAtExpr orders entries by confirmation, falling back to creation.
const receivedAtExpr = "COALESCE(confirmed_at, created_at)"

// EntryRepository handles weighed-entry data access.
type EntryRepository struct {
	base
}

// NewEntryRepository creates a new entry repository.
func NewEntryRepository(db *sqlx.DB) *EntryRepository {
	return &EntryRepository{base{db: db}}
}

// Create inserts a new entry. CreatedAt is kept when already set so
// historical deliveries can be imported.
func (r *EntryRepository) Create(ctx context.Context, tx *sqlx.Tx, entry *models.Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := entry.Validate(); err != nil {
		return models.NewValidationError("entry", "%v", err)
	}

	query := builder().Insert(tableEntries).
		Columns(entryColumns...).
		Values(
			entry.ID, entry.ParkID, entry.ClientID, entry.EntryNumber, entry.LERCode,
			entry.NetWeightKg, entry.InspectionResult, entry.HasMajorDivergence,
			entry.HasCriticalDivergence, entry.Status, entry.ConfirmedAt, entry.CreatedAt,
		)

	if _, err := r.execx(ctx, tx, query); err != nil {
		return wrapErr("inserting entry", "entry", entry.ID, err)
	}
	return nil
}

// GetByID retrieves an entry by ID.
func (r *EntryRepository) GetByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Entry, error) {
	query := builder().Select(entryColumns...).From(tableEntries).Where(sq.Eq{"id": id})

	var entry models.Entry
	if err := r.getx(ctx, tx, &entry, query); err != nil {
		return nil, wrapErr("getting entry", "entry", id, err)
	}
	return &entry, nil
}

// ListConfirmed returns the confirmed entries of a client at a park, oldest first.
func (r *EntryRepository) ListConfirmed(ctx context.Context, tx *sqlx.Tx, clientID, parkID string) ([]*models.Entry, error) {
	query := builder().Select(entryColumns...).
		From(tableEntries).
		Where(sq.Eq{
			"client_id": clientID,
			"park_id":   parkID,
			"status":    models.EntryStatusConfirmed,
		}).
		OrderBy(receivedAtExpr, "id")

	var entries []*models.Entry
	if err := r.selectx(ctx, tx, &entries, query); err != nil {
		return nil, wrapErr("listing confirmed entries", "entry", "", err)
	}
	return entries, nil
}

// ListSupplierClientIDs returns the IDs of supplying clients with at least
// one confirmed entry at the park.
func (r *EntryRepository) ListSupplierClientIDs(ctx context.Context, tx *sqlx.Tx, parkID string) ([]string, error) {
	query := builder().Select("DISTINCT e.client_id").
		From(tableEntries + " e").
		Join(tableClients + " c ON c.id = e.client_id").
		Where(sq.Eq{
			"e.park_id":     parkID,
			"e.status":      models.EntryStatusConfirmed,
			"c.client_type": []models.ClientType{models.ClientTypeSupplier, models.ClientTypeBoth},
		}).
		OrderBy("e.client_id")

	var ids []string
	if err := r.selectx(ctx, tx, &ids, query); err != nil {
		return nil, wrapErr("listing supplier clients", "client", "", err)
	}
	return ids, nil
}
