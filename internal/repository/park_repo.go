package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/wasteops/wasteops/internal/models"
)

var parkColumns = []string{"id", "code", "name", "created_at"}

// ParkRepository handles park data access.
type ParkRepository struct {
	base
}

// NewParkRepository creates a new park repository.
func NewParkRepository(db *sqlx.DB) *ParkRepository {
	return &ParkRepository{base{db: db}}
}

// Create inserts a new park.
func (r *ParkRepository) Create(ctx context.Context, tx *sqlx.Tx, park *models.Park) error {
	if err := park.Validate(); err != nil {
		return models.NewValidationError("park", "%v", err)
	}

	park.CreatedAt = time.Now().UTC()

	query := builder().Insert(tableParks).
		Columns(parkColumns...).
		Values(park.ID, park.Code, park.Name, park.CreatedAt)

	if _, err := r.execx(ctx, tx, query); err != nil {
		return wrapErr("inserting park", "park", park.ID, err)
	}
	return nil
}

// GetByID retrieves a park by ID.
func (r *ParkRepository) GetByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Park, error) {
	query := builder().Select(parkColumns...).From(tableParks).Where(sq.Eq{"id": id})

	var park models.Park
	if err := r.getx(ctx, tx, &park, query); err != nil {
		return nil, wrapErr("getting park", "park", id, err)
	}
	return &park, nil
}

// GetByCode retrieves a park by its short code.
func (r *ParkRepository) GetByCode(ctx context.Context, tx *sqlx.Tx, code string) (*models.Park, error) {
	query := builder().Select(parkColumns...).From(tableParks).Where(sq.Eq{"code": code})

	var park models.Park
	if err := r.getx(ctx, tx, &park, query); err != nil {
		return nil, wrapErr("getting park by code", "park", code, err)
	}
	return &park, nil
}

// List returns all parks ordered by code.
func (r *ParkRepository) List(ctx context.Context) ([]*models.Park, error) {
	query := builder().Select(parkColumns...).From(tableParks).OrderBy("code")

	var parks []*models.Park
	if err := r.selectx(ctx, nil, &parks, query); err != nil {
		return nil, wrapErr("listing parks", "park", "", err)
	}
	return parks, nil
}
