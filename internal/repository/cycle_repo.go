package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/wasteops/wasteops/internal/models"
)

var cycleColumns = []string{
	"id", "client_id", "park_id", "avg_interval_days", "std_dev_days",
	"last_entry_date", "next_predicted_date", "entry_count", "confidence", "calculated_at",
}

// ProductionCycleRepository handles client production-cycle snapshots.
type ProductionCycleRepository struct {
	base
}

// NewProductionCycleRepository creates a new production-cycle repository.
func NewProductionCycleRepository(db *sqlx.DB) *ProductionCycleRepository {
	return &ProductionCycleRepository{base{db: db}}
}

// Upsert writes the snapshot for (client, park), overwriting any previous one.
// The row keeps its original ID on overwrite.
func (r *ProductionCycleRepository) Upsert(ctx context.Context, tx *sqlx.Tx, c *models.ClientProductionCycle) error {
	query := builder().Insert(tableProductionCycles).
		Columns(cycleColumns...).
		Values(
			c.ID, c.ClientID, c.ParkID, c.AvgIntervalDays, c.StdDevDays,
			c.LastEntryDate, c.NextPredictedDate, c.EntryCount, c.Confidence, c.CalculatedAt,
		).
		Suffix(`ON CONFLICT (client_id, park_id) DO UPDATE SET
			avg_interval_days = excluded.avg_interval_days,
			std_dev_days = excluded.std_dev_days,
			last_entry_date = excluded.last_entry_date,
			next_predicted_date = excluded.next_predicted_date,
			entry_count = excluded.entry_count,
			confidence = excluded.confidence,
			calculated_at = excluded.calculated_at`)

	if _, err := r.execx(ctx, tx, query); err != nil {
		return wrapErr("upserting production cycle", "production_cycle", c.ClientID, err)
	}
	return nil
}

// Get returns the snapshot for (client, park).
func (r *ProductionCycleRepository) Get(ctx context.Context, tx *sqlx.Tx, clientID, parkID string) (*models.ClientProductionCycle, error) {
	query := builder().Select(cycleColumns...).
		From(tableProductionCycles).
		Where(sq.Eq{"client_id": clientID, "park_id": parkID})

	var c models.ClientProductionCycle
	if err := r.getx(ctx, tx, &c, query); err != nil {
		return nil, wrapErr("getting production cycle", "production_cycle", clientID, err)
	}
	return &c, nil
}

// ListByPark returns every snapshot at a park keyed by client ID.
func (r *ProductionCycleRepository) ListByPark(ctx context.Context, tx *sqlx.Tx, parkID string) (map[string]*models.ClientProductionCycle, error) {
	query := builder().Select(cycleColumns...).
		From(tableProductionCycles).
		Where(sq.Eq{"park_id": parkID})

	var cycles []*models.ClientProductionCycle
	if err := r.selectx(ctx, tx, &cycles, query); err != nil {
		return nil, wrapErr("listing production cycles", "production_cycle", "", err)
	}

	byClient := make(map[string]*models.ClientProductionCycle, len(cycles))
	for _, c := range cycles {
		byClient[c.ClientID] = c
	}
	return byClient, nil
}

// ListDueBy returns known forecasts at a park whose next predicted date is
// on or before cutoff, soonest first.
func (r *ProductionCycleRepository) ListDueBy(ctx context.Context, parkID string, cutoff time.Time) ([]*models.ClientProductionCycle, error) {
	query := builder().Select(cycleColumns...).
		From(tableProductionCycles).
		Where(sq.Eq{"park_id": parkID}).
		Where(sq.NotEq{"next_predicted_date": nil}).
		Where(sq.LtOrEq{"next_predicted_date": cutoff}).
		OrderBy("next_predicted_date", "client_id")

	var cycles []*models.ClientProductionCycle
	if err := r.selectx(ctx, nil, &cycles, query); err != nil {
		return nil, wrapErr("listing due production cycles", "production_cycle", "", err)
	}
	return cycles, nil
}
