// Package planning ranks pending collection orders for dispatch.
package planning

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/wasteops/wasteops/internal/config"
	"github.com/wasteops/wasteops/internal/database"
	"github.com/wasteops/wasteops/internal/models"
	"github.com/wasteops/wasteops/internal/repository"
	"github.com/wasteops/wasteops/internal/util"
)

// Service provides collection-order planning operations.
type Service struct {
	db     *database.DB
	scorer Scorer
	logger *zap.Logger
	clock  util.Clock

	parks   *repository.ParkRepository
	clients *repository.ClientRepository
	cycles  *repository.ProductionCycleRepository
	orders  *repository.CollectionOrderRepository
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock scores are computed against.
func WithClock(c util.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// NewService creates a new planning service.
func NewService(db *database.DB, cfg config.PlanningConfig, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		db:      db,
		scorer:  NewScorer(cfg),
		logger:  logger.Named("planning"),
		clock:   util.SystemClock{},
		parks:   repository.NewParkRepository(db.DB),
		clients: repository.NewClientRepository(db.DB),
		cycles:  repository.NewProductionCycleRepository(db.DB),
		orders:  repository.NewCollectionOrderRepository(db.DB),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is the planning score of one order.
type Result struct {
	OrderID     string
	OrderNumber string
	ClientID    string
	Priority    models.OrderPriority
	Score       float64
	Breakdown   models.ScoreBreakdown
	Bucket      Band
}

// CalculatePlanningScores scores every pending and planned order at a park
// and persists the scores in one transaction. Orders whose client no longer
// exists are skipped. Results are in no particular order.
func (s *Service) CalculatePlanningScores(ctx context.Context, parkID string) ([]Result, error) {
	var (
		results []Result
		skipped int
	)
	err := s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.parks.GetByID(ctx, tx, parkID); err != nil {
			return err
		}

		orders, err := s.orders.ListScorable(ctx, tx, parkID)
		if err != nil {
			return err
		}

		clientIDs := make([]string, 0, len(orders))
		for _, o := range orders {
			clientIDs = append(clientIDs, o.ClientID)
		}
		clients, err := s.clients.ListByIDs(ctx, tx, clientIDs)
		if err != nil {
			return err
		}

		cycles, err := s.cycles.ListByPark(ctx, tx, parkID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		results = make([]Result, 0, len(orders))
		for _, o := range orders {
			if _, ok := clients[o.ClientID]; !ok {
				s.logger.Warn("skipping order of unknown client",
					zap.String("order", o.OrderNumber),
					zap.String("client", o.ClientID),
				)
				skipped++
				continue
			}

			score, parts := s.scorer.Score(o, cycles[o.ClientID], now)
			if err := s.orders.UpdateScore(ctx, tx, o.ID, score, parts, now); err != nil {
				return err
			}
			results = append(results, Result{
				OrderID:     o.ID,
				OrderNumber: o.OrderNumber,
				ClientID:    o.ClientID,
				Priority:    o.Priority,
				Score:       score,
				Breakdown:   parts,
				Bucket:      Bucket(score),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("calculating planning scores: %w", err)
	}

	s.logger.Info("planning scores calculated",
		zap.String("park", parkID),
		zap.Int("scored", len(results)),
		zap.Int("skipped", skipped),
	)
	return results, nil
}

// RankedOrders returns the persisted scores of a park, highest first, with
// earlier deadlines breaking ties. A limit of 0 returns every scored order.
func (s *Service) RankedOrders(ctx context.Context, parkID string, limit uint64) ([]Result, error) {
	orders, err := s.orders.ListRanked(ctx, parkID, limit)
	if err != nil {
		return nil, fmt.Errorf("ranking orders: %w", err)
	}

	results := make([]Result, 0, len(orders))
	for _, o := range orders {
		r := Result{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			ClientID:    o.ClientID,
			Priority:    o.Priority,
			Score:       *o.PlanningScore,
		}
		if o.ScorePriority != nil && o.ScoreSLA != nil && o.ScoreCycle != nil {
			r.Breakdown = models.ScoreBreakdown{Priority: *o.ScorePriority, SLA: *o.ScoreSLA, Cycle: *o.ScoreCycle}
		}
		r.Bucket = Bucket(r.Score)
		results = append(results, r)
	}
	return results, nil
}
