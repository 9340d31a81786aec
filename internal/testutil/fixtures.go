package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wasteops/wasteops/internal/database"
	"github.com/wasteops/wasteops/internal/models"
	"github.com/wasteops/wasteops/internal/repository"
)

// FixturePark creates a test park with sensible defaults.
func FixturePark(overrides ...func(*models.Park)) *models.Park {
	id := uuid.New().String()

	park := &models.Park{
		ID:   id,
		Code: "P" + id[:6],
		Name: "Test Park",
	}

	for _, override := range overrides {
		override(park)
	}

	return park
}

// FixtureClient creates a supplying test client.
func FixtureClient(overrides ...func(*models.Client)) *models.Client {
	id := uuid.New().String()

	client := &models.Client{
		ID:         id,
		Name:       "Client " + id[:8],
		ClientType: models.ClientTypeSupplier,
	}

	for _, override := range overrides {
		override(client)
	}

	return client
}

// FixtureStorageArea creates an unblocked test storage area in parkID.
func FixtureStorageArea(parkID string, overrides ...func(*models.StorageArea)) *models.StorageArea {
	id := uuid.New().String()

	area := &models.StorageArea{
		ID:     id,
		ParkID: parkID,
		Code:   "Z-" + id[:6],
		Name:   "Zone " + id[:6],
	}

	for _, override := range overrides {
		override(area)
	}

	return area
}

// FixtureEntry creates a confirmed, approved 1000 kg entry.
func FixtureEntry(parkID, clientID string, overrides ...func(*models.Entry)) *models.Entry {
	id := uuid.New().String()
	now := time.Now().UTC()

	entry := &models.Entry{
		ID:               id,
		ParkID:           parkID,
		ClientID:         clientID,
		EntryNumber:      "E-" + id[:8],
		LERCode:          "15 01 01",
		NetWeightKg:      decimal.NewFromInt(1000),
		InspectionResult: models.InspectionApproved,
		Status:           models.EntryStatusConfirmed,
		ConfirmedAt:      &now,
		CreatedAt:        now,
	}

	for _, override := range overrides {
		override(entry)
	}

	return entry
}

// FixtureCollectionOrder creates a pending normal-priority order without SLA.
func FixtureCollectionOrder(parkID, clientID string, overrides ...func(*models.CollectionOrder)) *models.CollectionOrder {
	id := uuid.New().String()

	order := &models.CollectionOrder{
		ID:          id,
		ParkID:      parkID,
		ClientID:    clientID,
		OrderNumber: "PR-" + id[:8],
		Priority:    models.PriorityNormal,
		Status:      models.OrderStatusPending,
	}

	for _, override := range overrides {
		override(order)
	}

	return order
}

// Seeder inserts fixtures through the repositories, failing the test on error.
type Seeder struct {
	t       *testing.T
	ctx     context.Context
	Parks   *repository.ParkRepository
	Clients *repository.ClientRepository
	Areas   *repository.StorageAreaRepository
	Entries *repository.EntryRepository
	Orders  *repository.CollectionOrderRepository
}

// NewSeeder creates a Seeder on db.
func NewSeeder(t *testing.T, db *database.DB) *Seeder {
	t.Helper()
	return &Seeder{
		t:       t,
		ctx:     context.Background(),
		Parks:   repository.NewParkRepository(db.DB),
		Clients: repository.NewClientRepository(db.DB),
		Areas:   repository.NewStorageAreaRepository(db.DB),
		Entries: repository.NewEntryRepository(db.DB),
		Orders:  repository.NewCollectionOrderRepository(db.DB),
	}
}

// Park inserts a park.
func (s *Seeder) Park(overrides ...func(*models.Park)) *models.Park {
	s.t.Helper()
	p := FixturePark(overrides...)
	if err := s.Parks.Create(s.ctx, nil, p); err != nil {
		s.t.Fatalf("seeding park: %v", err)
	}
	return p
}

// Client inserts a client.
func (s *Seeder) Client(overrides ...func(*models.Client)) *models.Client {
	s.t.Helper()
	c := FixtureClient(overrides...)
	if err := s.Clients.Create(s.ctx, nil, c); err != nil {
		s.t.Fatalf("seeding client: %v", err)
	}
	return c
}

// Area inserts a storage area.
func (s *Seeder) Area(parkID string, overrides ...func(*models.StorageArea)) *models.StorageArea {
	s.t.Helper()
	a := FixtureStorageArea(parkID, overrides...)
	if err := s.Areas.Create(s.ctx, nil, a); err != nil {
		s.t.Fatalf("seeding storage area: %v", err)
	}
	return a
}

// Entry inserts an entry.
func (s *Seeder) Entry(parkID, clientID string, overrides ...func(*models.Entry)) *models.Entry {
	s.t.Helper()
	e := FixtureEntry(parkID, clientID, overrides...)
	if err := s.Entries.Create(s.ctx, nil, e); err != nil {
		s.t.Fatalf("seeding entry: %v", err)
	}
	return e
}

// Order inserts a collection order.
func (s *Seeder) Order(parkID, clientID string, overrides ...func(*models.CollectionOrder)) *models.CollectionOrder {
	s.t.Helper()
	o := FixtureCollectionOrder(parkID, clientID, overrides...)
	if err := s.Orders.Create(s.ctx, nil, o); err != nil {
		s.t.Fatalf("seeding collection order: %v", err)
	}
	return o
}

// ConfirmedAt returns an override that confirms an entry at t.
func ConfirmedAt(t time.Time) func(*models.Entry) {
	return func(e *models.Entry) {
		t = t.UTC()
		e.ConfirmedAt = &t
		e.CreatedAt = t
	}
}
