package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/wasteops/wasteops/internal/models"
)

var orderColumns = []string{
	"id", "park_id", "client_id", "order_number", "priority", "status", "sla_deadline",
	"planning_score", "score_priority", "score_sla", "score_cycle", "scored_at",
	"notes", "created_at", "updated_at",
}

// CollectionOrderRepository handles collection order data access.
type CollectionOrderRepository struct {
	base
}

// NewCollectionOrderRepository creates a new collection order repository.
func NewCollectionOrderRepository(db *sqlx.DB) *CollectionOrderRepository {
	return &CollectionOrderRepository{base{db: db}}
}

// Create inserts a new collection order.
func (r *CollectionOrderRepository) Create(ctx context.Context, tx *sqlx.Tx, order *models.CollectionOrder) error {
	if err := order.Validate(); err != nil {
		return models.NewValidationError("collection_order", "%v", err)
	}

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	query := builder().Insert(tableCollectionOrders).
		Columns(orderColumns...).
		Values(
			order.ID, order.ParkID, order.ClientID, order.OrderNumber, order.Priority, order.Status,
			order.SLADeadline, order.PlanningScore, order.ScorePriority, order.ScoreSLA,
			order.ScoreCycle, order.ScoredAt, order.Notes, order.CreatedAt, order.UpdatedAt,
		)

	if _, err := r.execx(ctx, tx, query); err != nil {
		return wrapErr("inserting collection order", "collection_order", order.ID, err)
	}
	return nil
}

// GetByID retrieves a collection order by ID.
func (r *CollectionOrderRepository) GetByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.CollectionOrder, error) {
	query := builder().Select(orderColumns...).From(tableCollectionOrders).Where(sq.Eq{"id": id})

	var order models.CollectionOrder
	if err := r.getx(ctx, tx, &order, query); err != nil {
		return nil, wrapErr("getting collection order", "collection_order", id, err)
	}
	return &order, nil
}

// ListScorable returns the pending and planned orders of a park.
func (r *CollectionOrderRepository) ListScorable(ctx context.Context, tx *sqlx.Tx, parkID string) ([]*models.CollectionOrder, error) {
	query := builder().Select(orderColumns...).
		From(tableCollectionOrders).
		Where(sq.Eq{"park_id": parkID, "status": models.ScorableOrderStatuses()}).
		OrderBy("created_at", "id")

	var orders []*models.CollectionOrder
	if err := r.selectx(ctx, tx, &orders, query); err != nil {
		return nil, wrapErr("listing scorable orders", "collection_order", "", err)
	}
	return orders, nil
}

// UpdateScore persists a planning score and its components.
func (r *CollectionOrderRepository) UpdateScore(ctx context.Context, tx *sqlx.Tx, orderID string, score float64, parts models.ScoreBreakdown, at time.Time) error {
	query := builder().Update(tableCollectionOrders).
		Set("planning_score", score).
		Set("score_priority", parts.Priority).
		Set("score_sla", parts.SLA).
		Set("score_cycle", parts.Cycle).
		Set("scored_at", at).
		Set("updated_at", at).
		Where(sq.Eq{"id": orderID})

	result, err := r.execx(ctx, tx, query)
	if err != nil {
		return wrapErr("updating planning score", "collection_order", orderID, err)
	}
	return affected(result, "collection_order", orderID)
}

// ListRanked returns scored pending and planned orders of a park, highest
// score first. A limit of 0 returns all of them.
func (r *CollectionOrderRepository) ListRanked(ctx context.Context, parkID string, limit uint64) ([]*models.CollectionOrder, error) {
	query := builder().Select(orderColumns...).
		From(tableCollectionOrders).
		Where(sq.Eq{"park_id": parkID, "status": models.ScorableOrderStatuses()}).
		Where(sq.NotEq{"planning_score": nil}).
		OrderBy("planning_score DESC", "sla_deadline IS NULL", "sla_deadline", "id")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var orders []*models.CollectionOrder
	if err := r.selectx(ctx, nil, &orders, query); err != nil {
		return nil, wrapErr("listing ranked orders", "collection_order", "", err)
	}
	return orders, nil
}
