package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wasteops/wasteops/internal/models"
	"github.com/wasteops/wasteops/internal/repository"
	"github.com/wasteops/wasteops/internal/testutil"
)

func ptr[T any](v T) *T { return &v }

func TestProductionCycleRepository_UpsertOverwrites(t *testing.T) {
	db := testutil.NewTestDB(t)
	seed := testutil.NewSeeder(t, db)
	repo := repository.NewProductionCycleRepository(db.DB)
	ctx := context.Background()

	park := seed.Park()
	client := seed.Client()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first := &models.ClientProductionCycle{
		ID:                uuid.New().String(),
		ClientID:          client.ID,
		ParkID:            park.ID,
		AvgIntervalDays:   ptr(10.0),
		StdDevDays:        ptr(2.0),
		LastEntryDate:     &day,
		NextPredictedDate: ptr(day.AddDate(0, 0, 10)),
		EntryCount:        4,
		Confidence:        0.5,
		CalculatedAt:      day,
	}
	if err := repo.Upsert(ctx, nil, first); err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}

	cleared := &models.ClientProductionCycle{
		ID:           uuid.New().String(),
		ClientID:     client.ID,
		ParkID:       park.ID,
		EntryCount:   1,
		CalculatedAt: day.Add(time.Hour),
	}
	if err := repo.Upsert(ctx, nil, cleared); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	testutil.AssertRowCount(t, db, "client_production_cycles", 1)

	got, err := repo.Get(ctx, nil, client.ID, park.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("expected row id to be kept, got %s", got.ID)
	}
	if got.AvgIntervalDays != nil || got.NextPredictedDate != nil {
		t.Error("expected forecast fields to be cleared")
	}
	if got.EntryCount != 1 || got.Confidence != 0 {
		t.Errorf("expected entry_count=1 confidence=0, got %d %v", got.EntryCount, got.Confidence)
	}
}

func TestProductionCycleRepository_ListDueBy(t *testing.T) {
	db := testutil.NewTestDB(t)
	seed := testutil.NewSeeder(t, db)
	repo := repository.NewProductionCycleRepository(db.DB)
	ctx := context.Background()

	park := seed.Park()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	offsets := []int{-2, 3, 9}
	for _, off := range offsets {
		c := seed.Client()
		cycle := &models.ClientProductionCycle{
			ID:                uuid.New().String(),
			ClientID:          c.ID,
			ParkID:            park.ID,
			AvgIntervalDays:   ptr(7.0),
			NextPredictedDate: ptr(base.AddDate(0, 0, off)),
			EntryCount:        3,
			CalculatedAt:      base,
		}
		if err := repo.Upsert(ctx, nil, cycle); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	due, err := repo.ListDueBy(ctx, park.ID, base.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("ListDueBy failed: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 forecasts within a week, got %d", len(due))
	}
	if !due[0].NextPredictedDate.Before(*due[1].NextPredictedDate) {
		t.Error("expected soonest forecast first")
	}
}

func TestCollectionOrderRepository_ScorableAndRanked(t *testing.T) {
	db := testutil.NewTestDB(t)
	seed := testutil.NewSeeder(t, db)
	repo := repository.NewCollectionOrderRepository(db.DB)
	ctx := context.Background()

	park := seed.Park()
	client := seed.Client()

	pending := seed.Order(park.ID, client.ID)
	planned := seed.Order(park.ID, client.ID, func(o *models.CollectionOrder) {
		o.Status = models.OrderStatusPlanned
	})
	seed.Order(park.ID, client.ID, func(o *models.CollectionOrder) {
		o.Status = models.OrderStatusCompleted
	})

	orders, err := repo.ListScorable(ctx, nil, park.ID)
	if err != nil {
		t.Fatalf("ListScorable failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 scorable orders, got %d", len(orders))
	}

	now := time.Now().UTC()
	if err := repo.UpdateScore(ctx, nil, pending.ID, 35, models.ScoreBreakdown{Priority: 10, SLA: 15, Cycle: 10}, now); err != nil {
		t.Fatalf("UpdateScore failed: %v", err)
	}
	if err := repo.UpdateScore(ctx, nil, planned.ID, 80, models.ScoreBreakdown{Priority: 50, SLA: 30}, now); err != nil {
		t.Fatalf("UpdateScore failed: %v", err)
	}

	ranked, err := repo.ListRanked(ctx, park.ID, 0)
	if err != nil {
		t.Fatalf("ListRanked failed: %v", err)
	}
	if len(ranked) != 2 || ranked[0].ID != planned.ID {
		t.Fatalf("expected planned order ranked first, got %+v", ranked)
	}
	if ranked[0].ScorePriority == nil || *ranked[0].ScorePriority != 50 {
		t.Errorf("expected priority component 50, got %v", ranked[0].ScorePriority)
	}

	t.Run("Limit", func(t *testing.T) {
		top, err := repo.ListRanked(ctx, park.ID, 1)
		if err != nil {
			t.Fatalf("ListRanked failed: %v", err)
		}
		if len(top) != 1 {
			t.Errorf("expected 1 order, got %d", len(top))
		}
	})

	t.Run("Score on missing order", func(t *testing.T) {
		err := repo.UpdateScore(ctx, nil, "missing", 1, models.ScoreBreakdown{}, now)
		if !models.IsNotFound(err) {
			t.Errorf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("Dispatched orders are not ranked", func(t *testing.T) {
		moving := seed.Order(park.ID, client.ID, func(o *models.CollectionOrder) {
			o.Status = models.OrderStatusInTransit
		})
		if err := repo.UpdateScore(ctx, nil, moving.ID, 99, models.ScoreBreakdown{Priority: 100}, now); err != nil {
			t.Fatalf("UpdateScore failed: %v", err)
		}
		ranked, _ := repo.ListRanked(ctx, park.ID, 0)
		if len(ranked) != 2 || ranked[0].ID != planned.ID {
			t.Errorf("expected only the pending and planned orders, got %d orders", len(ranked))
		}
	})
}

func TestCollectionOrderRepository_OrphanClient(t *testing.T) {
	db := testutil.NewTestDB(t)
	seed := testutil.NewSeeder(t, db)
	clients := repository.NewClientRepository(db.DB)
	ctx := context.Background()

	park := seed.Park()
	client := seed.Client()
	order := seed.Order(park.ID, client.ID)

	if err := clients.Delete(ctx, nil, client.ID); err != nil {
		t.Fatalf("deleting client: %v", err)
	}

	found, err := clients.ListByIDs(ctx, nil, []string{order.ClientID})
	if err != nil {
		t.Fatalf("ListByIDs failed: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("expected deleted client to be absent, got %d", len(found))
	}
}

func TestEntryRepository_ListConfirmed(t *testing.T) {
	db := testutil.NewTestDB(t)
	seed := testutil.NewSeeder(t, db)
	repo := repository.NewEntryRepository(db.DB)
	ctx := context.Background()

	park := seed.Park()
	supplier := seed.Client()
	buyer := seed.Client(func(c *models.Client) { c.ClientType = models.ClientTypeBuyer })
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	seed.Entry(park.ID, supplier.ID, testutil.ConfirmedAt(base.AddDate(0, 0, 14)))
	seed.Entry(park.ID, supplier.ID, testutil.ConfirmedAt(base))
	seed.Entry(park.ID, supplier.ID, func(e *models.Entry) {
		e.Status = models.EntryStatusDraft
		e.ConfirmedAt = nil
	})
	seed.Entry(park.ID, buyer.ID)

	entries, err := repo.ListConfirmed(ctx, nil, supplier.ID, park.ID)
	if err != nil {
		t.Fatalf("ListConfirmed failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 confirmed entries, got %d", len(entries))
	}
	if !entries[0].ReceivedAt().Equal(base) {
		t.Errorf("expected oldest entry first, got %v", entries[0].ReceivedAt())
	}

	ids, err := repo.ListSupplierClientIDs(ctx, nil, park.ID)
	if err != nil {
		t.Fatalf("ListSupplierClientIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != supplier.ID {
		t.Errorf("expected only the supplier, got %v", ids)
	}
}

func TestStorageAreaRepository_BlockUnblock(t *testing.T) {
	db := testutil.NewTestDB(t)
	seed := testutil.NewSeeder(t, db)
	repo := repository.NewStorageAreaRepository(db.DB)
	ctx := context.Background()

	park := seed.Park()
	area := seed.Area(park.ID)
	now := time.Now().UTC()

	if err := repo.Block(ctx, nil, area.ID, "Lot L-1 in treatment", "op", now); err != nil {
		t.Fatalf("Block failed: %v", err)
	}

	got, err := repo.GetByID(ctx, nil, area.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.IsBlocked || got.BlockedReason == nil || *got.BlockedBy != "op" || got.BlockedAt == nil {
		t.Errorf("expected blocked area with reason and operator, got %+v", got)
	}

	was, err := repo.Unblock(ctx, nil, area.ID, now)
	if err != nil || !was {
		t.Fatalf("Unblock = %v, %v", was, err)
	}

	was, err = repo.Unblock(ctx, nil, area.ID, now)
	if err != nil || was {
		t.Errorf("second Unblock = %v, %v; want false, nil", was, err)
	}

	got, _ = repo.GetByID(ctx, nil, area.ID)
	if got.IsBlocked || got.BlockedReason != nil || got.BlockedAt != nil || got.BlockedBy != nil {
		t.Errorf("expected cleared blocking fields, got %+v", got)
	}

	if err := repo.Block(ctx, nil, "missing", "x", "op", now); !models.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}
