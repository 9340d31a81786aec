package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wasteops/wasteops/internal/models"
	"github.com/wasteops/wasteops/internal/repository"
	"github.com/wasteops/wasteops/internal/testutil"
)

type lotFixture struct {
	repo *repository.LotRepository
	seed *testutil.Seeder
	park *models.Park
	ctx  context.Context
}

func setupLotTest(t *testing.T) *lotFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	seed := testutil.NewSeeder(t, db)
	return &lotFixture{
		repo: repository.NewLotRepository(db.DB),
		seed: seed,
		park: seed.Park(),
		ctx:  context.Background(),
	}
}

func (f *lotFixture) newLot(t *testing.T, seq int, codes ...string) *models.Lot {
	t.Helper()
	if len(codes) == 0 {
		codes = []string{"15 01 01"}
	}
	now := time.Now().UTC()
	lot := &models.Lot{
		ID:              uuid.New().String(),
		ParkID:          f.park.ID,
		LotNumber:       "L-TEST-" + uuid.New().String()[:6],
		LotSeq:          seq,
		Status:          models.LotStatusOpen,
		AllowedLERCodes: codes,
		TotalInputKg:    decimal.Zero,
		OpenedAt:        now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := f.repo.Create(f.ctx, nil, lot); err != nil {
		t.Fatalf("creating lot: %v", err)
	}
	return lot
}

func (f *lotFixture) link(t *testing.T, lotID, areaID string) *models.LotZone {
	t.Helper()
	zone := &models.LotZone{
		ID:            uuid.New().String(),
		LotID:         lotID,
		StorageAreaID: areaID,
		AddedAt:       time.Now().UTC(),
	}
	if err := f.repo.LinkZone(f.ctx, nil, zone); err != nil {
		t.Fatalf("linking zone: %v", err)
	}
	return zone
}

func TestLotRepository_CreateAndGet(t *testing.T) {
	f := setupLotTest(t)
	lot := f.newLot(t, 1, "15 01 01", "15 01 02")

	got, err := f.repo.GetByID(f.ctx, nil, lot.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.LotNumber != lot.LotNumber {
		t.Errorf("expected lot number %s, got %s", lot.LotNumber, got.LotNumber)
	}
	if got.Status != models.LotStatusOpen {
		t.Errorf("expected status open, got %s", got.Status)
	}
	if len(got.AllowedLERCodes) != 2 || !got.AllowedLERCodes.Contains("15 01 02") {
		t.Errorf("expected both LER codes, got %v", got.AllowedLERCodes)
	}
	if !got.TotalInputKg.IsZero() {
		t.Errorf("expected zero input, got %s", got.TotalInputKg)
	}
	if got.TotalOutputKg.Valid {
		t.Error("expected null total_output_kg")
	}

	t.Run("Get by number", func(t *testing.T) {
		byNum, err := f.repo.GetByNumber(f.ctx, nil, f.park.ID, lot.LotNumber)
		if err != nil {
			t.Fatalf("GetByNumber failed: %v", err)
		}
		if byNum.ID != lot.ID {
			t.Errorf("expected %s, got %s", lot.ID, byNum.ID)
		}
	})

	t.Run("Missing lot is NotFoundError", func(t *testing.T) {
		_, err := f.repo.GetByID(f.ctx, nil, "missing")
		if !models.IsNotFound(err) {
			t.Errorf("expected NotFoundError, got %v", err)
		}
	})
}

func TestLotRepository_NextLotSequence(t *testing.T) {
	f := setupLotTest(t)

	seq, err := f.repo.NextLotSequence(f.ctx, nil, f.park.ID)
	if err != nil {
		t.Fatalf("NextLotSequence failed: %v", err)
	}
	if seq != 1 {
		t.Errorf("expected 1 for empty park, got %d", seq)
	}

	f.newLot(t, 1)
	f.newLot(t, 2)

	seq, err = f.repo.NextLotSequence(f.ctx, nil, f.park.ID)
	if err != nil {
		t.Fatalf("NextLotSequence failed: %v", err)
	}
	if seq != 3 {
		t.Errorf("expected 3, got %d", seq)
	}
}

func TestLotRepository_ConditionalTransitions(t *testing.T) {
	f := setupLotTest(t)
	lot := f.newLot(t, 1)
	now := time.Now().UTC()

	ok, err := f.repo.StartTreatment(f.ctx, nil, lot.ID, now)
	if err != nil || !ok {
		t.Fatalf("first StartTreatment = %v, %v", ok, err)
	}

	ok, err = f.repo.StartTreatment(f.ctx, nil, lot.ID, now)
	if err != nil {
		t.Fatalf("second StartTreatment error: %v", err)
	}
	if ok {
		t.Error("second StartTreatment should not match an in_treatment lot")
	}

	ok, err = f.repo.UpdateTotals(f.ctx, nil, lot.ID, decimal.NewFromInt(10), nil, now)
	if err != nil {
		t.Fatalf("UpdateTotals error: %v", err)
	}
	if ok {
		t.Error("UpdateTotals should not match a lot in treatment")
	}

	got, _ := f.repo.GetByID(f.ctx, nil, lot.ID)
	if got.Status != models.LotStatusInTreatment {
		t.Errorf("expected in_treatment, got %s", got.Status)
	}
	if got.TreatmentStartedAt == nil {
		t.Error("expected treatment_started_at to be set")
	}

	grade := 4.0
	got.TransformedGrade = &grade
	got.TotalOutputKg = decimal.NewNullDecimal(decimal.NewFromInt(5))
	got.ClosedAt = &now
	got.UpdatedAt = now

	ok, err = f.repo.SaveClosure(f.ctx, nil, got)
	if err != nil || !ok {
		t.Fatalf("SaveClosure = %v, %v", ok, err)
	}

	ok, _ = f.repo.SaveClosure(f.ctx, nil, got)
	if ok {
		t.Error("SaveClosure should not match a closed lot")
	}
}

func TestLotRepository_Entries(t *testing.T) {
	f := setupLotTest(t)
	lot := f.newLot(t, 1)
	client := f.seed.Client()
	entry := f.seed.Entry(f.park.ID, client.ID)

	le := &models.LotEntry{
		ID:               uuid.New().String(),
		LotID:            lot.ID,
		EntryID:          entry.ID,
		ContributionKg:   decimal.RequireFromString("1250.5"),
		EntryRawGrade:    5,
		InspectionResult: models.InspectionApproved,
		CreatedAt:        time.Now().UTC(),
	}
	if err := f.repo.AddEntry(f.ctx, nil, le); err != nil {
		t.Fatalf("AddEntry failed: %v", err)
	}

	entries, err := f.repo.ListEntries(f.ctx, nil, lot.ID)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if !entries[0].ContributionKg.Equal(le.ContributionKg) {
		t.Errorf("expected contribution %s, got %s", le.ContributionKg, entries[0].ContributionKg)
	}

	lotID, err := f.repo.EntryLotID(f.ctx, nil, entry.ID)
	if err != nil || lotID != lot.ID {
		t.Errorf("EntryLotID = %q, %v; want %q", lotID, err, lot.ID)
	}

	other := f.seed.Entry(f.park.ID, client.ID)
	lotID, err = f.repo.EntryLotID(f.ctx, nil, other.ID)
	if err != nil || lotID != "" {
		t.Errorf("unassigned entry: EntryLotID = %q, %v", lotID, err)
	}

	t.Run("Entry contributes to one lot only", func(t *testing.T) {
		second := f.newLot(t, 2)
		dup := *le
		dup.ID = uuid.New().String()
		dup.LotID = second.ID
		if err := f.repo.AddEntry(f.ctx, nil, &dup); err == nil {
			t.Error("expected unique violation for reused entry")
		}
	})

	t.Run("Non-positive contribution rejected", func(t *testing.T) {
		bad := *le
		bad.ID = uuid.New().String()
		bad.ContributionKg = decimal.Zero
		if err := f.repo.AddEntry(f.ctx, nil, &bad); !models.IsValidation(err) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	})
}

func TestLotRepository_Zones(t *testing.T) {
	f := setupLotTest(t)
	lot := f.newLot(t, 1)
	area := f.seed.Area(f.park.ID)

	f.link(t, lot.ID, area.ID)

	occupant, err := f.repo.OccupantOfArea(f.ctx, nil, area.ID)
	if err != nil {
		t.Fatalf("OccupantOfArea failed: %v", err)
	}
	if occupant.ID != lot.ID {
		t.Errorf("expected occupant %s, got %s", lot.ID, occupant.ID)
	}

	t.Run("Double occupancy rejected", func(t *testing.T) {
		other := f.newLot(t, 2)
		zone := &models.LotZone{
			ID:            uuid.New().String(),
			LotID:         other.ID,
			StorageAreaID: area.ID,
			AddedAt:       time.Now().UTC(),
		}
		if err := f.repo.LinkZone(f.ctx, nil, zone); err == nil {
			t.Error("expected unique violation for occupied area")
		}
	})

	n, err := f.repo.ReleaseArea(f.ctx, nil, area.ID, time.Now().UTC())
	if err != nil || n != 1 {
		t.Fatalf("ReleaseArea = %d, %v", n, err)
	}

	n, err = f.repo.ReleaseArea(f.ctx, nil, area.ID, time.Now().UTC())
	if err != nil || n != 0 {
		t.Errorf("second ReleaseArea = %d, %v; want 0, nil", n, err)
	}

	zones, err := f.repo.ActiveZones(f.ctx, nil, lot.ID)
	if err != nil {
		t.Fatalf("ActiveZones failed: %v", err)
	}
	if len(zones) != 0 {
		t.Errorf("expected no active zones after release, got %d", len(zones))
	}

	if _, err := f.repo.ActiveLinkForArea(f.ctx, nil, area.ID); !models.IsNotFound(err) {
		t.Errorf("expected NotFoundError for released area, got %v", err)
	}

	t.Run("Released area can be relinked", func(t *testing.T) {
		other := f.newLot(t, 3)
		f.link(t, other.ID, area.ID)
	})
}

func TestLotRepository_List(t *testing.T) {
	f := setupLotTest(t)

	f.newLot(t, 1, "15 01 01")
	second := f.newLot(t, 2, "15 01 02")
	f.newLot(t, 3, "15 01 01", "17 02 01")

	if _, err := f.repo.StartTreatment(f.ctx, nil, second.ID, time.Now().UTC()); err != nil {
		t.Fatalf("StartTreatment failed: %v", err)
	}

	tests := []struct {
		name   string
		filter models.LotFilter
		want   int
	}{
		{"All lots in park", models.LotFilter{ParkID: f.park.ID}, 3},
		{"Open only", models.LotFilter{ParkID: f.park.ID, Statuses: []models.LotStatus{models.LotStatusOpen}}, 2},
		{"By LER code", models.LotFilter{ParkID: f.park.ID, LERCode: "15 01 01"}, 2},
		{"By LER code and status", models.LotFilter{
			ParkID:   f.park.ID,
			Statuses: []models.LotStatus{models.LotStatusInTreatment},
			LERCode:  "15 01 02",
		}, 1},
		{"Other park", models.LotFilter{ParkID: "elsewhere"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := f.repo.List(f.ctx, tt.filter, models.DefaultPagination())
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if list.Total != tt.want || len(list.Lots) != tt.want {
				t.Errorf("expected %d lots, got total=%d len=%d", tt.want, list.Total, len(list.Lots))
			}
		})
	}

	t.Run("Newest first with pagination", func(t *testing.T) {
		list, err := f.repo.List(f.ctx, models.LotFilter{ParkID: f.park.ID}, models.Pagination{Page: 1, PageSize: 2})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(list.Lots) != 2 || list.TotalPages != 2 {
			t.Fatalf("expected 2 lots over 2 pages, got %d over %d", len(list.Lots), list.TotalPages)
		}
		if list.Lots[0].LotSeq != 3 {
			t.Errorf("expected newest lot first, got seq %d", list.Lots[0].LotSeq)
		}
	})
}
