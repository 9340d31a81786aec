package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wasteops/wasteops/internal/database"
	"github.com/wasteops/wasteops/internal/models"
	"github.com/wasteops/wasteops/internal/repository"
	"github.com/wasteops/wasteops/internal/util"
)

// Config configures the seed data generator.
type Config struct {
	ParkCode    string
	ParkName    string
	Suppliers   int
	Buyers      int
	Areas       int
	HistoryDays int
	Orders      int
	Now         time.Time
	RandomSeed  int64
}

// DefaultConfig returns a default seed configuration for a park.
func DefaultConfig(parkCode, parkName string) Config {
	return Config{
		ParkCode:    parkCode,
		ParkName:    parkName,
		Suppliers:   12,
		Buyers:      3,
		Areas:       8,
		HistoryDays: 120,
		Orders:      20,
		Now:         time.Now().UTC(),
		RandomSeed:  2026,
	}
}

// Summary counts what a run inserted.
type Summary struct {
	Park    *models.Park
	Areas   int
	Clients int
	Entries int
	Orders  int
}

// Generator generates seed data for a park.
type Generator struct {
	db     *database.DB
	cfg    Config
	logger *zap.Logger
	rng    *rand.Rand
	idGen  *util.IDGenerator

	parks   *repository.ParkRepository
	clients *repository.ClientRepository
	areas   *repository.StorageAreaRepository
	entries *repository.EntryRepository
	orders  *repository.CollectionOrderRepository

	summary   Summary
	suppliers []*models.Client
}

// NewGenerator creates a new seed data generator.
func NewGenerator(db *database.DB, cfg Config, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		db:      db,
		cfg:     cfg,
		logger:  logger.Named("seed"),
		rng:     rand.New(rand.NewSource(cfg.RandomSeed)),
		idGen:   util.NewIDGenerator(),
		parks:   repository.NewParkRepository(db.DB),
		clients: repository.NewClientRepository(db.DB),
		areas:   repository.NewStorageAreaRepository(db.DB),
		entries: repository.NewEntryRepository(db.DB),
		orders:  repository.NewCollectionOrderRepository(db.DB),
	}
}

// Generate creates a park with storage areas, clients, a delivery history
// and open collection orders in one transaction.
func (g *Generator) Generate(ctx context.Context) (*Summary, error) {
	g.logger.Info("starting seed data generation",
		zap.String("park", g.cfg.ParkCode),
		zap.Int("suppliers", g.cfg.Suppliers),
		zap.Int("history_days", g.cfg.HistoryDays),
	)

	err := g.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if err := g.generatePark(ctx, tx); err != nil {
			return fmt.Errorf("generating park: %w", err)
		}

		if err := g.generateAreas(ctx, tx); err != nil {
			return fmt.Errorf("generating storage areas: %w", err)
		}

		if err := g.generateClients(ctx, tx); err != nil {
			return fmt.Errorf("generating clients: %w", err)
		}

		if err := g.generateEntries(ctx, tx); err != nil {
			return fmt.Errorf("generating entries: %w", err)
		}

		if err := g.generateOrders(ctx, tx); err != nil {
			return fmt.Errorf("generating orders: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info("seed data generation complete",
		zap.Int("areas", g.summary.Areas),
		zap.Int("clients", g.summary.Clients),
		zap.Int("entries", g.summary.Entries),
		zap.Int("orders", g.summary.Orders),
	)
	return &g.summary, nil
}

func (g *Generator) generatePark(ctx context.Context, tx *sqlx.Tx) error {
	park := &models.Park{
		ID:   g.idGen.NewID(),
		Code: g.cfg.ParkCode,
		Name: g.cfg.ParkName,
	}
	if err := g.parks.Create(ctx, tx, park); err != nil {
		return err
	}
	g.summary.Park = park
	return nil
}

func (g *Generator) generateAreas(ctx context.Context, tx *sqlx.Tx) error {
	for i := 0; i < g.cfg.Areas; i++ {
		area := &models.StorageArea{
			ID:     g.idGen.NewID(),
			ParkID: g.summary.Park.ID,
			Code:   fmt.Sprintf("Z%02d", i+1),
			Name:   fmt.Sprintf("%s %d", ZoneKinds[i%len(ZoneKinds)], i/len(ZoneKinds)+1),
		}
		if err := g.areas.Create(ctx, tx, area); err != nil {
			return fmt.Errorf("inserting area %s: %w", area.Code, err)
		}
		g.summary.Areas++
	}
	return nil
}

func (g *Generator) generateClients(ctx context.Context, tx *sqlx.Tx) error {
	total := g.cfg.Suppliers + g.cfg.Buyers
	for i := 0; i < total; i++ {
		clientType := models.ClientTypeSupplier
		switch {
		case i >= g.cfg.Suppliers:
			clientType = models.ClientTypeBuyer
		case i%5 == 4:
			clientType = models.ClientTypeBoth
		}

		client := &models.Client{
			ID:         g.idGen.NewID(),
			Name:       g.companyName(),
			ClientType: clientType,
		}
		if err := g.clients.Create(ctx, tx, client); err != nil {
			return fmt.Errorf("inserting client %s: %w", client.Name, err)
		}
		if clientType.Supplies() {
			g.suppliers = append(g.suppliers, client)
		}
		g.summary.Clients++
	}
	return nil
}

// generateEntries gives every supplier a cadence of 3-30 days with up to
// 25% jitter and a favourite waste code.
func (g *Generator) generateEntries(ctx context.Context, tx *sqlx.Tx) error {
	start := g.cfg.Now.AddDate(0, 0, -g.cfg.HistoryDays)

	for _, client := range g.suppliers {
		cadence := float64(3 + g.rng.Intn(28))
		waste := WasteCodes[g.rng.Intn(len(WasteCodes))]

		at := start.Add(time.Duration(g.rng.Float64()*cadence*24) * time.Hour)
		for at.Before(g.cfg.Now) {
			if err := g.insertEntry(ctx, tx, client, waste, at); err != nil {
				return err
			}

			jitter := 1 + (g.rng.Float64()-0.5)*0.5
			at = at.Add(time.Duration(cadence*jitter*24) * time.Hour)
		}
	}
	return nil
}

func (g *Generator) insertEntry(ctx context.Context, tx *sqlx.Tx, client *models.Client, waste WasteCode, at time.Time) error {
	kg := waste.MinKg + g.rng.Intn(waste.MaxKg-waste.MinKg+1)

	entry := &models.Entry{
		ID:               g.idGen.NewID(),
		ParkID:           g.summary.Park.ID,
		ClientID:         client.ID,
		EntryNumber:      fmt.Sprintf("E-%s-%06d", g.cfg.ParkCode, g.summary.Entries+1),
		LERCode:          waste.Code,
		NetWeightKg:      decimal.NewFromInt(int64(kg)),
		InspectionResult: models.InspectionApproved,
		Status:           models.EntryStatusConfirmed,
		ConfirmedAt:      &at,
		CreatedAt:        at,
	}

	// Roughly one in eight deliveries diverges from its declaration.
	switch roll := g.rng.Intn(40); {
	case roll == 0:
		entry.InspectionResult = models.InspectionRejected
	case roll < 5:
		entry.InspectionResult = models.InspectionApprovedWithDivergence
		entry.HasMajorDivergence = roll < 3
		entry.HasCriticalDivergence = roll == 1
	}

	if err := g.entries.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("inserting entry %s: %w", entry.EntryNumber, err)
	}
	g.summary.Entries++
	return nil
}

func (g *Generator) generateOrders(ctx context.Context, tx *sqlx.Tx) error {
	if len(g.suppliers) == 0 {
		return nil
	}

	priorities := []models.OrderPriority{
		models.PriorityNormal, models.PriorityNormal, models.PriorityNormal,
		models.PriorityUrgent, models.PriorityUrgent, models.PriorityCritical,
	}

	for i := 0; i < g.cfg.Orders; i++ {
		client := g.suppliers[g.rng.Intn(len(g.suppliers))]
		order := &models.CollectionOrder{
			ID:          g.idGen.NewID(),
			ParkID:      g.summary.Park.ID,
			ClientID:    client.ID,
			OrderNumber: fmt.Sprintf("PR-%s-%05d", g.cfg.ParkCode, i+1),
			Priority:    priorities[g.rng.Intn(len(priorities))],
			Status:      models.OrderStatusPending,
			CreatedAt:   g.cfg.Now.Add(-time.Duration(g.rng.Intn(72)) * time.Hour),
		}

		// A quarter of orders have no deadline; the rest fall between two
		// days overdue and three weeks out.
		if g.rng.Intn(4) > 0 {
			deadline := g.cfg.Now.Add(time.Duration(g.rng.Intn(23*24)-48) * time.Hour)
			order.SLADeadline = &deadline
		}
		if i%4 == 3 {
			order.Status = models.OrderStatusPlanned
		}

		if err := g.orders.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("inserting order %s: %w", order.OrderNumber, err)
		}
		g.summary.Orders++
	}
	return nil
}

func (g *Generator) companyName() string {
	return CompanyPrefixes[g.rng.Intn(len(CompanyPrefixes))] + " " +
		CompanySuffixes[g.rng.Intn(len(CompanySuffixes))]
}
