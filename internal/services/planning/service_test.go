package planning

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/wasteops/wasteops/internal/config"
	"github.com/wasteops/wasteops/internal/database"
	"github.com/wasteops/wasteops/internal/models"
	"github.com/wasteops/wasteops/internal/repository"
	"github.com/wasteops/wasteops/internal/testutil"
	"github.com/wasteops/wasteops/internal/util"
)

type planningFixture struct {
	svc  *Service
	db   *database.DB
	seed *testutil.Seeder
	park *models.Park
	ctx  context.Context
}

func setupPlanningTest(t *testing.T) *planningFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	seed := testutil.NewSeeder(t, db)

	return &planningFixture{
		svc:  NewService(db, config.Default().Planning, nil, WithClock(util.NewFixedClock(now))),
		db:   db,
		seed: seed,
		park: seed.Park(),
		ctx:  context.Background(),
	}
}

func (f *planningFixture) order(t *testing.T, clientID string, p models.OrderPriority, deadline *time.Time, created int) *models.CollectionOrder {
	t.Helper()
	return f.seed.Order(f.park.ID, clientID, func(o *models.CollectionOrder) {
		o.Priority = p
		o.SLADeadline = deadline
		o.CreatedAt = now.Add(time.Duration(created) * time.Minute)
	})
}

func TestService_CalculatePlanningScores(t *testing.T) {
	f := setupPlanningTest(t)
	client := f.seed.Client()

	overdue := f.order(t, client.ID, models.PriorityCritical, at(-24*time.Hour), 1)
	distant := f.order(t, client.ID, models.PriorityCritical, at(30*24*time.Hour), 2)
	normal := f.order(t, client.ID, models.PriorityNormal, nil, 3)
	done := f.seed.Order(f.park.ID, client.ID, func(o *models.CollectionOrder) {
		o.Priority = models.PriorityCritical
		o.SLADeadline = at(-time.Hour)
		o.Status = models.OrderStatusCompleted
	})

	results, err := f.svc.CalculatePlanningScores(f.ctx, f.park.ID)
	if err != nil {
		t.Fatalf("CalculatePlanningScores failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 scored orders, got %d", len(results))
	}

	scores := make(map[string]float64)
	for _, r := range results {
		scores[r.OrderID] = r.Score
		if r.Bucket != Bucket(r.Score) {
			t.Errorf("order %s: bucket %s does not match score %v", r.OrderNumber, r.Bucket, r.Score)
		}
	}
	if scores[normal.ID] != 25 || Bucket(scores[normal.ID]) != BandLow {
		t.Errorf("expected normal order without deadline to score 25, got %v", scores[normal.ID])
	}
	if scores[overdue.ID] < scores[distant.ID] {
		t.Errorf("overdue %v should score at least distant %v", scores[overdue.ID], scores[distant.ID])
	}

	stored, err := f.seed.Orders.GetByID(f.ctx, nil, overdue.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.PlanningScore == nil || *stored.PlanningScore != scores[overdue.ID] {
		t.Errorf("expected persisted score %v, got %v", scores[overdue.ID], stored.PlanningScore)
	}
	if stored.ScoreSLA == nil || *stored.ScoreSLA != 100 || stored.ScoredAt == nil {
		t.Errorf("expected persisted breakdown and scored_at, got %+v", stored)
	}

	untouched, _ := f.seed.Orders.GetByID(f.ctx, nil, done.ID)
	if untouched.PlanningScore != nil {
		t.Error("completed orders must not be scored")
	}

	t.Run("Ranking", func(t *testing.T) {
		ranked, err := f.svc.RankedOrders(f.ctx, f.park.ID, 0)
		if err != nil {
			t.Fatalf("RankedOrders failed: %v", err)
		}
		if len(ranked) != 3 {
			t.Fatalf("expected 3 ranked orders, got %d", len(ranked))
		}
		if ranked[0].OrderID != overdue.ID || ranked[0].Bucket != BandHigh {
			t.Errorf("expected overdue critical order first in high band, got %s (%s)", ranked[0].OrderNumber, ranked[0].Bucket)
		}
		for i := 1; i < len(ranked); i++ {
			if ranked[i].Score > ranked[i-1].Score {
				t.Errorf("ranking not descending at %d", i)
			}
		}
		if ranked[0].Breakdown.Priority != 100 {
			t.Errorf("expected stored priority component, got %+v", ranked[0].Breakdown)
		}

		top, err := f.svc.RankedOrders(f.ctx, f.park.ID, 1)
		if err != nil {
			t.Fatalf("RankedOrders failed: %v", err)
		}
		if len(top) != 1 || top[0].OrderID != overdue.ID {
			t.Errorf("expected limit 1 to return the top order")
		}
	})
}

func TestService_CycleBoost(t *testing.T) {
	f := setupPlanningTest(t)
	expected := f.seed.Client()
	unknown := f.seed.Client()

	next := util.DateOnly(now).AddDate(0, 0, 1)
	cycles := repository.NewProductionCycleRepository(f.db.DB)
	if err := cycles.Upsert(f.ctx, nil, &models.ClientProductionCycle{
		ID:                util.NewID(),
		ClientID:          expected.ID,
		ParkID:            f.park.ID,
		NextPredictedDate: &next,
		EntryCount:        5,
		Confidence:        0.8,
		CalculatedAt:      now,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	deadline := at(48 * time.Hour)
	boosted := f.order(t, expected.ID, models.PriorityUrgent, deadline, 1)
	plain := f.order(t, unknown.ID, models.PriorityUrgent, deadline, 2)

	results, err := f.svc.CalculatePlanningScores(f.ctx, f.park.ID)
	if err != nil {
		t.Fatalf("CalculatePlanningScores failed: %v", err)
	}

	byID := make(map[string]Result)
	for _, r := range results {
		byID[r.OrderID] = r
	}
	if byID[boosted.ID].Score <= byID[plain.ID].Score {
		t.Errorf("expected forecast boost: %v vs %v", byID[boosted.ID].Score, byID[plain.ID].Score)
	}
	if byID[plain.ID].Breakdown.Cycle != 0 {
		t.Errorf("expected no cycle component without forecast, got %v", byID[plain.ID].Breakdown.Cycle)
	}
}

func TestService_SkipsOrphanOrders(t *testing.T) {
	f := setupPlanningTest(t)
	kept := f.seed.Client()
	gone := f.seed.Client()

	ok := f.order(t, kept.ID, models.PriorityNormal, nil, 1)
	orphan := f.order(t, gone.ID, models.PriorityCritical, nil, 2)
	if err := f.seed.Clients.Delete(f.ctx, nil, gone.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	results, err := f.svc.CalculatePlanningScores(f.ctx, f.park.ID)
	if err != nil {
		t.Fatalf("CalculatePlanningScores failed: %v", err)
	}
	if len(results) != 1 || results[0].OrderID != ok.ID {
		t.Fatalf("expected only the order with a client to be scored, got %d", len(results))
	}

	stored, _ := f.seed.Orders.GetByID(f.ctx, nil, orphan.ID)
	if stored.PlanningScore != nil {
		t.Error("orphan order must not be scored")
	}
}

func TestService_NoPartialWrites(t *testing.T) {
	f := setupPlanningTest(t)
	client := f.seed.Client()

	first := f.order(t, client.ID, models.PriorityNormal, nil, 1)
	second := f.order(t, client.ID, models.PriorityUrgent, nil, 2)
	third := f.order(t, client.ID, models.PriorityCritical, nil, 3)

	testutil.ExecSQL(t, f.db, fmt.Sprintf(`
		CREATE TRIGGER fail_score BEFORE UPDATE OF planning_score ON collection_orders
		WHEN NEW.id = '%s'
		BEGIN SELECT RAISE(ABORT, 'disk full'); END`, third.ID))

	if _, err := f.svc.CalculatePlanningScores(f.ctx, f.park.ID); err == nil {
		t.Fatal("expected CalculatePlanningScores to fail")
	}

	for _, o := range []*models.CollectionOrder{first, second, third} {
		stored, err := f.seed.Orders.GetByID(f.ctx, nil, o.ID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if stored.PlanningScore != nil {
			t.Errorf("order %s kept a partial score", o.OrderNumber)
		}
	}
}

func TestService_UnknownPark(t *testing.T) {
	f := setupPlanningTest(t)
	if _, err := f.svc.CalculatePlanningScores(f.ctx, "nope"); !models.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}
