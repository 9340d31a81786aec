// Package lots implements the lot lifecycle: entry intake, treatment with
// zone locking, closure with the lot quality index, and zone release.
package lots

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wasteops/wasteops/internal/config"
	"github.com/wasteops/wasteops/internal/database"
	"github.com/wasteops/wasteops/internal/models"
	"github.com/wasteops/wasteops/internal/repository"
	"github.com/wasteops/wasteops/internal/util"
)

// Service provides lot lifecycle operations. Every mutating operation runs
// in a single transaction and returns the authoritative updated record.
type Service struct {
	db          *database.DB
	cfg         config.LotsConfig
	logger      *zap.Logger
	clock       util.Clock
	idGenerator *util.IDGenerator
	validate    *validator.Validate

	parks   *repository.ParkRepository
	areas   *repository.StorageAreaRepository
	entries *repository.EntryRepository
	lots    *repository.LotRepository
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for timestamps.
func WithClock(c util.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// NewService creates a new lots service.
func NewService(db *database.DB, cfg config.LotsConfig, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		db:          db,
		cfg:         cfg,
		logger:      logger.Named("lots"),
		clock:       util.SystemClock{},
		idGenerator: util.NewIDGenerator(),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		parks:       repository.NewParkRepository(db.DB),
		areas:       repository.NewStorageAreaRepository(db.DB),
		entries:     repository.NewEntryRepository(db.DB),
		lots:        repository.NewLotRepository(db.DB),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateLotInput contains data for explicitly opening a lot.
type CreateLotInput struct {
	ParkID         string   `validate:"required"`
	LERCodes       []string `validate:"required,min=1,dive,required"`
	StorageAreaIDs []string `validate:"dive,required"`
	Operator       string
	Notes          string
}

// AddEntryInput contains data for adding an entry's contribution to a lot.
type AddEntryInput struct {
	LotID                 string                  `validate:"required"`
	EntryID               string                  `validate:"required"`
	ContributionKg        decimal.Decimal         `validate:"-"`
	InspectionResult      models.InspectionResult `validate:"required"`
	HasMajorDivergence    bool
	HasCriticalDivergence bool
}

// CloseLotInput contains the closing measurements of a lot.
type CloseLotInput struct {
	LotID            string          `validate:"required"`
	TransformedGrade float64         `validate:"gte=1,lte=5"`
	TotalOutputKg    decimal.Decimal `validate:"-"`
	Notes            *string
}

// AutoAssignInput identifies the zone and waste code needing a lot.
type AutoAssignInput struct {
	StorageAreaID string `validate:"required"`
	LERCode       string `validate:"required"`
	Operator      string
}

// CreateLot opens a new lot and links the given storage areas to it.
func (s *Service) CreateLot(ctx context.Context, input CreateLotInput) (*models.Lot, error) {
	if err := s.check(input); err != nil {
		return nil, err
	}

	var lot *models.Lot
	err := s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		park, err := s.parks.GetByID(ctx, tx, input.ParkID)
		if err != nil {
			return err
		}

		lot, err = s.openLot(ctx, tx, park, input.LERCodes, input.Operator, input.Notes)
		if err != nil {
			return err
		}

		for _, areaID := range input.StorageAreaIDs {
			if _, err := s.linkZone(ctx, tx, lot, areaID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating lot: %w", err)
	}

	s.logger.Info("lot opened",
		zap.String("lot", lot.LotNumber),
		zap.Strings("ler_codes", lot.AllowedLERCodes),
		zap.Int("zones", len(input.StorageAreaIDs)),
	)
	return lot, nil
}

// LinkZone adds a storage area to an open lot.
func (s *Service) LinkZone(ctx context.Context, lotID, storageAreaID string) (*models.LotZone, error) {
	var zone *models.LotZone
	err := s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		lot, err := s.lots.GetByID(ctx, tx, lotID)
		if err != nil {
			return err
		}
		zone, err = s.linkZone(ctx, tx, lot, storageAreaID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("linking zone: %w", err)
	}
	return zone, nil
}

// AddEntryToLot appends an entry's contribution to an open lot and
// recomputes its input total and raw grade from every contribution.
func (s *Service) AddEntryToLot(ctx context.Context, input AddEntryInput) (*models.Lot, error) {
	grade, err := s.entryGrade(input)
	if err != nil {
		return nil, err
	}

	var lot *models.Lot
	err = s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		lot, err = s.addEntry(ctx, tx, input, grade)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("adding entry to lot: %w", err)
	}

	s.logger.Debug("entry added to lot",
		zap.String("lot", lot.LotNumber),
		zap.String("entry", input.EntryID),
		zap.String("total_input_kg", lot.TotalInputKg.String()),
	)
	return lot, nil
}

// StartTreatment moves an open lot to in_treatment and blocks every zone it
// currently occupies on behalf of operator.
func (s *Service) StartTreatment(ctx context.Context, lotID, operator string) (*models.Lot, error) {
	if operator == "" {
		return nil, models.NewValidationError("operator", "is required")
	}

	var (
		lot     *models.Lot
		blocked int
	)
	err := s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		current, err := s.lots.GetByID(ctx, tx, lotID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(models.LotStatusInTreatment) {
			return invalidLotState(current, "start treatment on")
		}

		now := s.clock.Now()
		ok, err := s.lots.StartTreatment(ctx, tx, lotID, now)
		if err != nil {
			return err
		}
		if !ok {
			return s.lostRace(ctx, tx, lotID, "start treatment on")
		}

		zones, err := s.lots.ActiveZones(ctx, tx, lotID)
		if err != nil {
			return err
		}

		reason := fmt.Sprintf("Lot %s in treatment", current.LotNumber)
		for _, z := range zones {
			if err := s.areas.Block(ctx, tx, z.StorageAreaID, reason, operator, now); err != nil {
				return fmt.Errorf("blocking area %s: %w", z.StorageAreaID, err)
			}
		}
		blocked = len(zones)

		lot, err = s.lots.GetByID(ctx, tx, lotID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("starting treatment: %w", err)
	}

	s.logger.Info("treatment started",
		zap.String("lot", lot.LotNumber),
		zap.Int("zones_blocked", blocked),
		zap.String("operator", operator),
	)
	return lot, nil
}

// CloseLot closes a lot in treatment, recording the transformed grade and
// output mass and deriving the yield rate and quality index. Zones stay
// blocked until released explicitly.
func (s *Service) CloseLot(ctx context.Context, input CloseLotInput) (*models.Lot, error) {
	if err := s.check(input); err != nil {
		return nil, err
	}
	if input.TotalOutputKg.IsNegative() {
		return nil, models.NewValidationError("total_output_kg", "must be non-negative")
	}

	var lot *models.Lot
	err := s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		current, err := s.lots.GetByID(ctx, tx, input.LotID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(models.LotStatusClosed) {
			return invalidLotState(current, "close")
		}

		now := s.clock.Now()
		transformed := input.TransformedGrade
		yield := yieldRate(current.TotalInputKg, input.TotalOutputKg)
		index, grade := GradeLQI(s.cfg.LQI, current.RawGrade, transformed, yield)

		current.TransformedGrade = &transformed
		current.TotalOutputKg = decimal.NewNullDecimal(input.TotalOutputKg)
		current.YieldRate = yield
		current.LotQualityIndex = &index
		current.LQIGrade = &grade
		current.ClosedAt = &now
		current.UpdatedAt = now
		if input.Notes != nil {
			current.Notes = input.Notes
		}

		ok, err := s.lots.SaveClosure(ctx, tx, current)
		if err != nil {
			return err
		}
		if !ok {
			return s.lostRace(ctx, tx, input.LotID, "close")
		}

		lot, err = s.lots.GetByID(ctx, tx, input.LotID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("closing lot: %w", err)
	}

	s.logger.Info("lot closed",
		zap.String("lot", lot.LotNumber),
		zap.Float64p("yield_rate", lot.YieldRate),
		zap.Float64p("lqi", lot.LotQualityIndex),
	)
	return lot, nil
}

// ReleaseZone clears the blocking fields of a storage area and ends its
// current lot link. Releasing a free area is a no-op.
func (s *Service) ReleaseZone(ctx context.Context, storageAreaID string) (*models.StorageArea, error) {
	var (
		area       *models.StorageArea
		wasBlocked bool
		released   int64
	)
	err := s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.areas.GetByID(ctx, tx, storageAreaID); err != nil {
			return err
		}

		now := s.clock.Now()
		var err error
		if wasBlocked, err = s.areas.Unblock(ctx, tx, storageAreaID, now); err != nil {
			return err
		}
		if released, err = s.lots.ReleaseArea(ctx, tx, storageAreaID, now); err != nil {
			return err
		}

		area, err = s.areas.GetByID(ctx, tx, storageAreaID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("releasing zone: %w", err)
	}

	if wasBlocked || released > 0 {
		s.logger.Info("zone released",
			zap.String("area", area.Code),
			zap.Bool("was_blocked", wasBlocked),
			zap.Int64("links_closed", released),
		)
	}
	return area, nil
}

// AutoAssignLot returns the open lot occupying the storage area that accepts
// lerCode, creating and linking a new single-code lot when the area is free.
func (s *Service) AutoAssignLot(ctx context.Context, input AutoAssignInput) (*models.Lot, error) {
	if err := s.check(input); err != nil {
		return nil, err
	}

	var (
		lot     *models.Lot
		created bool
	)
	err := s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		lot, created, err = s.autoAssign(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("auto-assigning lot: %w", err)
	}

	if created {
		s.logger.Info("lot opened", zap.String("lot", lot.LotNumber), zap.String("ler_code", input.LERCode))
	}
	return lot, nil
}

// AssignEntry routes a confirmed entry into the lot of the storage area it
// was unloaded in, opening a lot when needed, in one transaction.
func (s *Service) AssignEntry(ctx context.Context, entryID, storageAreaID, operator string) (*models.Lot, error) {
	var lot *models.Lot
	err := s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		entry, err := s.entries.GetByID(ctx, tx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != models.EntryStatusConfirmed {
			return &models.InvalidStateError{
				Entity: "entry", ID: entry.ID, State: string(entry.Status), Operation: "assign",
			}
		}

		grade, err := s.gradeFor(entry.NetWeightKg, entry.InspectionResult, entry.HasMajorDivergence, entry.HasCriticalDivergence)
		if err != nil {
			return err
		}

		target, _, err := s.autoAssign(ctx, tx, AutoAssignInput{
			StorageAreaID: storageAreaID,
			LERCode:       entry.LERCode,
			Operator:      operator,
		})
		if err != nil {
			return err
		}

		lot, err = s.addEntry(ctx, tx, AddEntryInput{
			LotID:                 target.ID,
			EntryID:               entry.ID,
			ContributionKg:        entry.NetWeightKg,
			InspectionResult:      entry.InspectionResult,
			HasMajorDivergence:    entry.HasMajorDivergence,
			HasCriticalDivergence: entry.HasCriticalDivergence,
		}, grade)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("assigning entry: %w", err)
	}

	s.logger.Info("entry assigned",
		zap.String("entry", entryID),
		zap.String("lot", lot.LotNumber),
		zap.String("total_input_kg", lot.TotalInputKg.String()),
	)
	return lot, nil
}

// GetLot retrieves a lot by ID.
func (s *Service) GetLot(ctx context.Context, id string) (*models.Lot, error) {
	return s.lots.GetByID(ctx, nil, id)
}

// FindLot resolves ref as a lot number of park when it has the lot number
// format, and as a lot ID otherwise.
func (s *Service) FindLot(ctx context.Context, park *models.Park, ref string) (*models.Lot, error) {
	code, year, seq, err := util.ParseLotNumber(s.cfg.LotNumberPrefix, ref)
	if err != nil {
		return s.lots.GetByID(ctx, nil, ref)
	}
	if !strings.EqualFold(code, park.Code) {
		return nil, models.NewValidationError("lot", "lot %s belongs to park %s, not %s", ref, code, park.Code)
	}
	number := util.FormatLotNumber(s.cfg.LotNumberPrefix, code, year, seq)
	return s.lots.GetByNumber(ctx, nil, park.ID, number)
}

// ListLots retrieves lots with filtering and pagination.
func (s *Service) ListLots(ctx context.Context, filter models.LotFilter, page models.Pagination) (*models.LotList, error) {
	return s.lots.List(ctx, filter, page)
}

// LotEntries returns the entry contributions of a lot.
func (s *Service) LotEntries(ctx context.Context, lotID string) ([]*models.LotEntry, error) {
	if _, err := s.lots.GetByID(ctx, nil, lotID); err != nil {
		return nil, err
	}
	return s.lots.ListEntries(ctx, nil, lotID)
}

// ActiveZones returns the storage areas a lot currently occupies.
func (s *Service) ActiveZones(ctx context.Context, lotID string) ([]*models.LotZone, error) {
	if _, err := s.lots.GetByID(ctx, nil, lotID); err != nil {
		return nil, err
	}
	return s.lots.ActiveZones(ctx, nil, lotID)
}

// openLot allocates the next lot number of the park and inserts an open lot.
func (s *Service) openLot(ctx context.Context, tx *sqlx.Tx, park *models.Park, codes []string, operator, notes string) (*models.Lot, error) {
	seq, err := s.lots.NextLotSequence(ctx, tx, park.ID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	lot := &models.Lot{
		ID:              s.idGenerator.NewID(),
		ParkID:          park.ID,
		LotNumber:       util.FormatLotNumber(s.cfg.LotNumberPrefix, park.Code, now.Year(), seq),
		LotSeq:          seq,
		Status:          models.LotStatusOpen,
		AllowedLERCodes: append(models.LERCodes(nil), codes...),
		TotalInputKg:    decimal.Zero,
		OpenedAt:        now,
		OpenedBy:        optional(operator),
		Notes:           optional(notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.lots.Create(ctx, tx, lot); err != nil {
		return nil, err
	}
	return lot, nil
}

// linkZone links an unoccupied storage area of the lot's park to an open lot.
func (s *Service) linkZone(ctx context.Context, tx *sqlx.Tx, lot *models.Lot, areaID string) (*models.LotZone, error) {
	if !lot.Status.CanTransitionTo(models.LotStatusInTreatment) {
		return nil, invalidLotState(lot, "link a zone to")
	}

	area, err := s.areas.GetByID(ctx, tx, areaID)
	if err != nil {
		return nil, err
	}
	if area.ParkID != lot.ParkID {
		return nil, models.NewValidationError("storage_area_id", "area %s belongs to another park", area.Code)
	}

	existing, err := s.lots.ActiveLinkForArea(ctx, tx, areaID)
	switch {
	case err == nil:
		return nil, &models.InvalidStateError{
			Entity:    "storage_area",
			ID:        area.ID,
			State:     "occupied by lot " + existing.LotID,
			Operation: "link",
		}
	case !models.IsNotFound(err):
		return nil, err
	}

	zone := &models.LotZone{
		ID:            s.idGenerator.NewID(),
		LotID:         lot.ID,
		StorageAreaID: areaID,
		AddedAt:       s.clock.Now(),
	}
	if err := s.lots.LinkZone(ctx, tx, zone); err != nil {
		return nil, err
	}
	return zone, nil
}

// autoAssign finds or creates the lot for (area, LER code) inside tx.
func (s *Service) autoAssign(ctx context.Context, tx *sqlx.Tx, input AutoAssignInput) (*models.Lot, bool, error) {
	area, err := s.areas.GetByID(ctx, tx, input.StorageAreaID)
	if err != nil {
		return nil, false, err
	}

	occupant, err := s.lots.OccupantOfArea(ctx, tx, area.ID)
	switch {
	case err == nil:
		if occupant.Status == models.LotStatusOpen && occupant.AllowedLERCodes.Contains(input.LERCode) {
			return occupant, false, nil
		}
		return nil, false, &models.InvalidStateError{
			Entity:    "storage_area",
			ID:        area.ID,
			State:     fmt.Sprintf("occupied by %s lot %s", occupant.Status, occupant.LotNumber),
			Operation: "auto-assign " + input.LERCode + " in",
		}
	case !models.IsNotFound(err):
		return nil, false, err
	}

	if area.IsBlocked {
		return nil, false, &models.InvalidStateError{
			Entity: "storage_area", ID: area.ID, State: "blocked", Operation: "auto-assign in",
		}
	}

	park, err := s.parks.GetByID(ctx, tx, area.ParkID)
	if err != nil {
		return nil, false, err
	}

	lot, err := s.openLot(ctx, tx, park, []string{input.LERCode}, input.Operator, "")
	if err != nil {
		return nil, false, err
	}
	if _, err := s.linkZone(ctx, tx, lot, area.ID); err != nil {
		return nil, false, err
	}
	return lot, true, nil
}

// entryGrade validates an AddEntryInput and returns the entry's raw grade.
func (s *Service) entryGrade(input AddEntryInput) (float64, error) {
	if err := s.check(input); err != nil {
		return 0, err
	}
	return s.gradeFor(input.ContributionKg, input.InspectionResult, input.HasMajorDivergence, input.HasCriticalDivergence)
}

// gradeFor rejects non-positive contributions and grades the inspection.
func (s *Service) gradeFor(kg decimal.Decimal, result models.InspectionResult, major, critical bool) (float64, error) {
	if !kg.IsPositive() {
		return 0, models.NewValidationError("contribution_kg", "must be positive")
	}
	return RawGradeForInspection(s.cfg.Grading, result, major, critical)
}

// addEntry inserts the contribution and rewrites the lot totals inside tx.
func (s *Service) addEntry(ctx context.Context, tx *sqlx.Tx, input AddEntryInput, grade float64) (*models.Lot, error) {
	lot, err := s.lots.GetByID(ctx, tx, input.LotID)
	if err != nil {
		return nil, err
	}
	// Entries are accepted only until treatment starts.
	if !lot.Status.CanTransitionTo(models.LotStatusInTreatment) {
		return nil, invalidLotState(lot, "add an entry to")
	}

	entry, err := s.entries.GetByID(ctx, tx, input.EntryID)
	if err != nil {
		return nil, err
	}
	if entry.ParkID != lot.ParkID {
		return nil, models.NewValidationError("entry_id", "entry %s belongs to another park", entry.EntryNumber)
	}
	if entry.Status != models.EntryStatusConfirmed {
		return nil, &models.InvalidStateError{
			Entity: "entry", ID: entry.ID, State: string(entry.Status), Operation: "add",
		}
	}

	assigned, err := s.lots.EntryLotID(ctx, tx, entry.ID)
	if err != nil {
		return nil, err
	}
	if assigned != "" {
		return nil, &models.InvalidStateError{
			Entity: "entry", ID: entry.ID, State: "assigned to lot " + assigned, Operation: "add",
		}
	}
	if err := matchInspection(entry, input); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	le := &models.LotEntry{
		ID:               s.idGenerator.NewID(),
		LotID:            lot.ID,
		EntryID:          entry.ID,
		ContributionKg:   input.ContributionKg,
		EntryRawGrade:    grade,
		InspectionResult: input.InspectionResult,
		CreatedAt:        now,
	}
	if err := s.lots.AddEntry(ctx, tx, le); err != nil {
		return nil, err
	}

	contributions, err := s.lots.ListEntries(ctx, tx, lot.ID)
	if err != nil {
		return nil, err
	}
	total, raw := weightedRawGrade(contributions)

	ok, err := s.lots.UpdateTotals(ctx, tx, lot.ID, total, raw, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.lostRace(ctx, tx, lot.ID, "add an entry to")
	}

	return s.lots.GetByID(ctx, tx, lot.ID)
}

// matchInspection refuses rejected entries and inputs whose inspection
// outcome differs from the recorded one.
func matchInspection(entry *models.Entry, input AddEntryInput) error {
	if entry.InspectionResult == models.InspectionRejected {
		return models.NewValidationError("entry_id", "entry %s was rejected at inspection", entry.EntryNumber)
	}
	if input.InspectionResult != entry.InspectionResult ||
		input.HasMajorDivergence != entry.HasMajorDivergence ||
		input.HasCriticalDivergence != entry.HasCriticalDivergence {
		return models.NewValidationError("inspection_result", "does not match the inspection recorded for entry %s", entry.EntryNumber)
	}
	return nil
}

// lostRace builds the InvalidStateError for a conditional update that
// matched no row because the lot changed status underneath it.
func (s *Service) lostRace(ctx context.Context, tx *sqlx.Tx, lotID, op string) error {
	lot, err := s.lots.GetByID(ctx, tx, lotID)
	if err != nil {
		return err
	}
	return invalidLotState(lot, op)
}

// check runs struct validation and converts failures to ValidationError.
func (s *Service) check(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg := "failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		return models.NewValidationError(fe.Field(), "%s", msg)
	}
	return models.NewValidationError("", "%v", err)
}

func invalidLotState(lot *models.Lot, op string) error {
	return &models.InvalidStateError{
		Entity:    "lot",
		ID:        lot.LotNumber,
		State:     string(lot.Status),
		Operation: op,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
