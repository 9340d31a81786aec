package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wasteops/wasteops/internal/config"
	"github.com/wasteops/wasteops/internal/database"
	"github.com/wasteops/wasteops/internal/models"
	"github.com/wasteops/wasteops/internal/services/lots"
)

func newTestApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	db, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("NewInMemory failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Park.Code = "CLI01"

	var out bytes.Buffer
	return newApp(db, cfg, nil, &out), &out
}

func TestApp_Workflow(t *testing.T) {
	ctx := context.Background()
	a, out := newTestApp(t)

	steps := []struct {
		cmd  string
		args []string
		want string
	}{
		{"migrate", nil, "schema at version 1"},
		{"seed", nil, "park CLI01:"},
		{"cycles", []string{"400"}, "supplier cycles recalculated"},
		{"score", nil, "orders scored"},
		{"ranking", []string{"5"}, "ORDER"},
		{"lots", nil, "0 of 0 lots"},
	}

	for _, s := range steps {
		out.Reset()
		if err := a.dispatch(ctx, s.cmd, s.args); err != nil {
			t.Fatalf("%s failed: %v", s.cmd, err)
		}
		if !strings.Contains(out.String(), s.want) {
			t.Errorf("%s: expected output containing %q, got %q", s.cmd, s.want, out.String())
		}
	}
}

func TestApp_Errors(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)

	if err := a.dispatch(ctx, "score", nil); !models.IsNotFound(err) {
		t.Errorf("expected NotFoundError for a missing park, got %v", err)
	}

	if err := a.dispatch(ctx, "seed", nil); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	tests := []struct {
		cmd  string
		args []string
	}{
		{"start", nil},
		{"close", []string{"lot", "x", "10"}},
		{"lots", []string{"archived"}},
		{"migrate", []string{"sideways"}},
		{"explode", nil},
	}
	for _, tt := range tests {
		if err := a.dispatch(ctx, tt.cmd, tt.args); err == nil {
			t.Errorf("%s %v: expected error", tt.cmd, tt.args)
		}
	}
}

func TestApp_LotReferences(t *testing.T) {
	ctx := context.Background()
	a, out := newTestApp(t)

	if err := a.dispatch(ctx, "seed", nil); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	park, err := a.parks.GetByCode(ctx, nil, "CLI01")
	if err != nil {
		t.Fatalf("GetByCode failed: %v", err)
	}
	lot, err := a.lots.CreateLot(ctx, lots.CreateLotInput{
		ParkID:   park.ID,
		LERCodes: []string{"15 01 01"},
		Operator: "op-1",
	})
	if err != nil {
		t.Fatalf("CreateLot failed: %v", err)
	}

	out.Reset()
	if err := a.dispatch(ctx, "start", []string{lot.LotNumber}); err != nil {
		t.Fatalf("start by number failed: %v", err)
	}
	if !strings.Contains(out.String(), lot.LotNumber+"  in_treatment") {
		t.Errorf("expected lot in treatment, got %q", out.String())
	}

	out.Reset()
	if err := a.dispatch(ctx, "close", []string{lot.ID, "4", "0"}); err != nil {
		t.Fatalf("close by id failed: %v", err)
	}
	if !strings.Contains(out.String(), lot.LotNumber+"  closed") {
		t.Errorf("expected lot closed, got %q", out.String())
	}

	t.Run("Number of another park", func(t *testing.T) {
		if err := a.dispatch(ctx, "start", []string{"L-OTHER-2026-0001"}); !models.IsValidation(err) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	})

	t.Run("Unknown number", func(t *testing.T) {
		if err := a.dispatch(ctx, "start", []string{"L-CLI01-2026-0999"}); !models.IsNotFound(err) {
			t.Errorf("expected NotFoundError, got %v", err)
		}
	})
}

func TestApp_ClosedDatabase(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := a.dispatch(context.Background(), "lots", nil); !errors.Is(err, database.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
