package seed

import (
	"context"
	"testing"
	"time"

	"github.com/wasteops/wasteops/internal/config"
	"github.com/wasteops/wasteops/internal/services/cycles"
	"github.com/wasteops/wasteops/internal/testutil"
)

func TestGenerator_Generate(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)

	cfg := DefaultConfig("DEMO", "Demo Park")
	cfg.Now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	summary, err := NewGenerator(db, cfg, nil).Generate(ctx)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if summary.Areas != cfg.Areas || summary.Clients != cfg.Suppliers+cfg.Buyers || summary.Orders != cfg.Orders {
		t.Errorf("unexpected summary %+v", summary)
	}
	if summary.Entries < cfg.Suppliers*3 {
		t.Errorf("expected at least three deliveries per supplier, got %d", summary.Entries)
	}

	testutil.AssertRowCount(t, db, "storage_areas", cfg.Areas)
	testutil.AssertRowCount(t, db, "collection_orders", cfg.Orders)
	testutil.AssertRowCount(t, db, "entries", summary.Entries)

	// Every supplier has enough history for a forecast.
	svc := cycles.NewService(db, config.Default().Cycles, nil)
	forecasts, err := svc.RecalculatePark(ctx, summary.Park.ID)
	if err != nil {
		t.Fatalf("RecalculatePark failed: %v", err)
	}
	if len(forecasts) != cfg.Suppliers {
		t.Fatalf("expected %d forecasts, got %d", cfg.Suppliers, len(forecasts))
	}
	for _, f := range forecasts {
		if !f.Known() {
			t.Errorf("expected known forecast for client %s", f.ClientID)
		}
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig("DET", "Deterministic Park")
	cfg.Now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	first, err := NewGenerator(testutil.NewTestDB(t), cfg, nil).Generate(ctx)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	second, err := NewGenerator(testutil.NewTestDB(t), cfg, nil).Generate(ctx)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if first.Entries != second.Entries {
		t.Errorf("same seed produced %d and %d entries", first.Entries, second.Entries)
	}
}
