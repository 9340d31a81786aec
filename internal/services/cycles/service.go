// Package cycles estimates supplier delivery cadence from confirmed entries
// and keeps one forecast snapshot per client and park.
package cycles

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wasteops/wasteops/internal/config"
	"github.com/wasteops/wasteops/internal/database"
	"github.com/wasteops/wasteops/internal/models"
	"github.com/wasteops/wasteops/internal/repository"
	"github.com/wasteops/wasteops/internal/util"
)

// Service provides production-cycle operations.
type Service struct {
	db          *database.DB
	cfg         config.CyclesConfig
	logger      *zap.Logger
	clock       util.Clock
	idGenerator *util.IDGenerator

	parks   *repository.ParkRepository
	clients *repository.ClientRepository
	entries *repository.EntryRepository
	cycles  *repository.ProductionCycleRepository
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for calculated_at.
func WithClock(c util.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// NewService creates a new production-cycle service.
func NewService(db *database.DB, cfg config.CyclesConfig, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		db:          db,
		cfg:         cfg,
		logger:      logger.Named("cycles"),
		clock:       util.SystemClock{},
		idGenerator: util.NewIDGenerator(),
		parks:       repository.NewParkRepository(db.DB),
		clients:     repository.NewClientRepository(db.DB),
		entries:     repository.NewEntryRepository(db.DB),
		cycles:      repository.NewProductionCycleRepository(db.DB),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecalculateProductionCycle recomputes the forecast of one client at one
// park from every confirmed entry and overwrites the stored snapshot.
// Fewer than two entries persist a cleared snapshot, never an error.
func (s *Service) RecalculateProductionCycle(ctx context.Context, clientID, parkID string) (*models.ClientProductionCycle, error) {
	var cycle *models.ClientProductionCycle
	err := s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.clients.GetByID(ctx, tx, clientID); err != nil {
			return err
		}
		if _, err := s.parks.GetByID(ctx, tx, parkID); err != nil {
			return err
		}

		f, err := s.forecast(ctx, tx, clientID, parkID)
		if err != nil {
			return err
		}

		cycle, err = s.save(ctx, tx, clientID, parkID, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("recalculating production cycle: %w", err)
	}

	s.logger.Debug("production cycle recalculated",
		zap.String("client", clientID),
		zap.Int("entries", cycle.EntryCount),
		zap.Float64p("avg_interval_days", cycle.AvgIntervalDays),
		zap.Float64("confidence", cycle.Confidence),
	)
	return cycle, nil
}

// RecalculatePark recomputes the forecast of every supplying client with
// confirmed entries at a park, and of every client already holding a
// forecast there so stale ones are cleared. Forecasts are computed
// concurrently and persisted together in one transaction.
func (s *Service) RecalculatePark(ctx context.Context, parkID string) ([]*models.ClientProductionCycle, error) {
	if _, err := s.parks.GetByID(ctx, nil, parkID); err != nil {
		return nil, err
	}

	clientIDs, err := s.parkClientIDs(ctx, parkID)
	if err != nil {
		return nil, err
	}

	forecasts := make(map[string]Forecast, len(clientIDs))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	if s.cfg.Workers > 0 {
		eg.SetLimit(s.cfg.Workers)
	}
	for _, clientID := range clientIDs {
		eg.Go(func() error {
			f, err := s.forecast(egCtx, nil, clientID, parkID)
			if err != nil {
				return fmt.Errorf("client %s: %w", clientID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			forecasts[clientID] = f
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("computing forecasts: %w", err)
	}

	cycles := make([]*models.ClientProductionCycle, 0, len(clientIDs))
	err = s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		for _, clientID := range clientIDs {
			c, err := s.save(ctx, tx, clientID, parkID, forecasts[clientID])
			if err != nil {
				return err
			}
			cycles = append(cycles, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("saving forecasts: %w", err)
	}

	s.logger.Info("park production cycles recalculated",
		zap.String("park", parkID),
		zap.Int("clients", len(cycles)),
	)
	return cycles, nil
}

// Upcoming returns known forecasts at a park whose next predicted date is
// within withinDays of asOf, overdue ones included, soonest first.
func (s *Service) Upcoming(ctx context.Context, parkID string, asOf time.Time, withinDays int) ([]*models.ClientProductionCycle, error) {
	if withinDays < 0 {
		return nil, models.NewValidationError("within_days", "must be non-negative")
	}
	cutoff := util.DateOnly(asOf).AddDate(0, 0, withinDays)
	return s.cycles.ListDueBy(ctx, parkID, cutoff)
}

// GetCycle returns the stored snapshot for (client, park).
func (s *Service) GetCycle(ctx context.Context, clientID, parkID string) (*models.ClientProductionCycle, error) {
	return s.cycles.Get(ctx, nil, clientID, parkID)
}

// parkClientIDs merges the park's suppliers with the clients of its stored
// forecasts, sorted.
func (s *Service) parkClientIDs(ctx context.Context, parkID string) ([]string, error) {
	ids, err := s.entries.ListSupplierClientIDs(ctx, nil, parkID)
	if err != nil {
		return nil, fmt.Errorf("listing suppliers: %w", err)
	}

	stored, err := s.cycles.ListByPark(ctx, nil, parkID)
	if err != nil {
		return nil, fmt.Errorf("listing stored forecasts: %w", err)
	}
	for clientID := range stored {
		ids = append(ids, clientID)
	}

	slices.Sort(ids)
	return slices.Compact(ids), nil
}

func (s *Service) forecast(ctx context.Context, tx *sqlx.Tx, clientID, parkID string) (Forecast, error) {
	entries, err := s.entries.ListConfirmed(ctx, tx, clientID, parkID)
	if err != nil {
		return Forecast{}, err
	}

	times := make([]time.Time, len(entries))
	for i, e := range entries {
		times[i] = e.ReceivedAt()
	}
	return Predict(times, s.cfg.ConfidenceSaturation), nil
}

// save overwrites the snapshot and reads it back so the stored ID is returned.
func (s *Service) save(ctx context.Context, tx *sqlx.Tx, clientID, parkID string, f Forecast) (*models.ClientProductionCycle, error) {
	c := &models.ClientProductionCycle{
		ID:                s.idGenerator.NewID(),
		ClientID:          clientID,
		ParkID:            parkID,
		AvgIntervalDays:   f.AvgIntervalDays,
		StdDevDays:        f.StdDevDays,
		LastEntryDate:     f.LastEntryDate,
		NextPredictedDate: f.NextPredictedDate,
		EntryCount:        f.EntryCount,
		Confidence:        f.Confidence,
		CalculatedAt:      s.clock.Now(),
	}
	if err := s.cycles.Upsert(ctx, tx, c); err != nil {
		return nil, err
	}
	return s.cycles.Get(ctx, tx, clientID, parkID)
}
