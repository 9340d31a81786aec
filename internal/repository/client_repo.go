package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/wasteops/wasteops/internal/models"
)

var clientColumns = []string{"id", "name", "client_type", "tax_id", "created_at", "updated_at"}

// ClientRepository handles client data access.
type ClientRepository struct {
	base
}

// NewClientRepository creates a new client repository.
func NewClientRepository(db *sqlx.DB) *ClientRepository {
	return &ClientRepository{base{db: db}}
}

// Create inserts a new client.
func (r *ClientRepository) Create(ctx context.Context, tx *sqlx.Tx, client *models.Client) error {
	if err := client.Validate(); err != nil {
		return models.NewValidationError("client", "%v", err)
	}

	now := time.Now().UTC()
	client.CreatedAt = now
	client.UpdatedAt = now

	query := builder().Insert(tableClients).
		Columns(clientColumns...).
		Values(client.ID, client.Name, client.ClientType, client.TaxID, client.CreatedAt, client.UpdatedAt)

	if _, err := r.execx(ctx, tx, query); err != nil {
		return wrapErr("inserting client", "client", client.ID, err)
	}
	return nil
}

// GetByID retrieves a client by ID.
func (r *ClientRepository) GetByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Client, error) {
	query := builder().Select(clientColumns...).From(tableClients).Where(sq.Eq{"id": id})

	var client models.Client
	if err := r.getx(ctx, tx, &client, query); err != nil {
		return nil, wrapErr("getting client", "client", id, err)
	}
	return &client, nil
}

// ListByIDs returns the clients that exist among ids, keyed by ID.
// Missing IDs are simply absent from the map.
func (r *ClientRepository) ListByIDs(ctx context.Context, tx *sqlx.Tx, ids []string) (map[string]*models.Client, error) {
	result := make(map[string]*models.Client, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := builder().Select(clientColumns...).From(tableClients).Where(sq.Eq{"id": ids})

	var clients []*models.Client
	if err := r.selectx(ctx, tx, &clients, query); err != nil {
		return nil, wrapErr("listing clients", "client", "", err)
	}

	for _, c := range clients {
		result[c.ID] = c
	}
	return result, nil
}

// Delete removes a client.
func (r *ClientRepository) Delete(ctx context.Context, tx *sqlx.Tx, id string) error {
	result, err := r.execx(ctx, tx, builder().Delete(tableClients).Where(sq.Eq{"id": id}))
	if err != nil {
		return wrapErr("deleting client", "client", id, err)
	}
	return affected(result, "client", id)
}
