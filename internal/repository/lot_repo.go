package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/wasteops/wasteops/internal/models"
)

var lotColumns = []string{
	"id", "park_id", "lot_number", "lot_seq", "status", "allowed_ler_codes",
	"raw_grade", "transformed_grade", "yield_rate", "lot_quality_index", "lqi_grade",
	"total_input_kg", "total_output_kg", "opened_at", "opened_by",
	"treatment_started_at", "closed_at", "notes", "created_at", "updated_at",
}

var lotEntryColumns = []string{
	"id", "lot_id", "entry_id", "contribution_kg", "entry_raw_grade", "inspection_result", "created_at",
}

var lotZoneColumns = []string{"id", "lot_id", "storage_area_id", "added_at", "removed_at"}

// prefixed qualifies columns with a table alias.
func prefixed(alias string, columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = alias + "." + c
	}
	return out
}

// LotRepository handles lots and their entry and zone associations.
type LotRepository struct {
	base
}

// NewLotRepository creates a new lot repository.
func NewLotRepository(db *sqlx.DB) *LotRepository {
	return &LotRepository{base{db: db}}
}

// Create inserts a new lot.
func (r *LotRepository) Create(ctx context.Context, tx *sqlx.Tx, lot *models.Lot) error {
	if err := lot.Validate(); err != nil {
		return models.NewValidationError("lot", "%v", err)
	}

	query := builder().Insert(tableLots).
		Columns(lotColumns...).
		Values(
			lot.ID, lot.ParkID, lot.LotNumber, lot.LotSeq, lot.Status, lot.AllowedLERCodes,
			lot.RawGrade, lot.TransformedGrade, lot.YieldRate, lot.LotQualityIndex, lot.LQIGrade,
			lot.TotalInputKg, lot.TotalOutputKg, lot.OpenedAt, lot.OpenedBy,
			lot.TreatmentStartedAt, lot.ClosedAt, lot.Notes, lot.CreatedAt, lot.UpdatedAt,
		)

	if _, err := r.execx(ctx, tx, query); err != nil {
		return wrapErr("inserting lot", "lot", lot.ID, err)
	}
	return nil
}

// GetByID retrieves a lot by ID.
func (r *LotRepository) GetByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Lot, error) {
	query := builder().Select(lotColumns...).From(tableLots).Where(sq.Eq{"id": id})

	var lot models.Lot
	if err := r.getx(ctx, tx, &lot, query); err != nil {
		return nil, wrapErr("getting lot", "lot", id, err)
	}
	return &lot, nil
}

// GetByNumber retrieves a lot by its park-scoped number.
func (r *LotRepository) GetByNumber(ctx context.Context, tx *sqlx.Tx, parkID, lotNumber string) (*models.Lot, error) {
	query := builder().Select(lotColumns...).
		From(tableLots).
		Where(sq.Eq{"park_id": parkID, "lot_number": lotNumber})

	var lot models.Lot
	if err := r.getx(ctx, tx, &lot, query); err != nil {
		return nil, wrapErr("getting lot by number", "lot", lotNumber, err)
	}
	return &lot, nil
}

// NextLotSequence returns the next lot sequence number for a park.
// Must run inside the transaction that inserts the lot.
func (r *LotRepository) NextLotSequence(ctx context.Context, tx *sqlx.Tx, parkID string) (int, error) {
	query := builder().Select("COALESCE(MAX(lot_seq), 0) + 1").
		From(tableLots).
		Where(sq.Eq{"park_id": parkID})

	var seq int
	if err := r.getx(ctx, tx, &seq, query); err != nil {
		return 0, wrapErr("allocating lot sequence", "lot", parkID, err)
	}
	return seq, nil
}

// OccupantOfArea returns the lot currently linked to a storage area, in any status.
func (r *LotRepository) OccupantOfArea(ctx context.Context, tx *sqlx.Tx, areaID string) (*models.Lot, error) {
	query := builder().Select(prefixed("l", lotColumns)...).
		From(tableLots + " l").
		Join(tableLotZones + " z ON z.lot_id = l.id").
		Where(sq.Eq{"z.storage_area_id": areaID, "z.removed_at": nil})

	var lot models.Lot
	if err := r.getx(ctx, tx, &lot, query); err != nil {
		return nil, wrapErr("finding lot for area", "lot", areaID, err)
	}
	return &lot, nil
}

// UpdateTotals writes the input total and raw grade of a lot that is still open.
// It reports false when the lot is no longer open.
func (r *LotRepository) UpdateTotals(ctx context.Context, tx *sqlx.Tx, lotID string, totalInput decimal.Decimal, rawGrade *float64, at time.Time) (bool, error) {
	query := builder().Update(tableLots).
		Set("total_input_kg", totalInput).
		Set("raw_grade", rawGrade).
		Set("updated_at", at).
		Where(sq.Eq{"id": lotID, "status": models.LotStatusOpen})

	return r.conditional(ctx, tx, query, "updating lot totals", lotID)
}

// StartTreatment moves an open lot to in_treatment.
// It reports false when the lot was not open.
func (r *LotRepository) StartTreatment(ctx context.Context, tx *sqlx.Tx, lotID string, at time.Time) (bool, error) {
	query := builder().Update(tableLots).
		Set("status", models.LotStatusInTreatment).
		Set("treatment_started_at", at).
		Set("updated_at", at).
		Where(sq.Eq{"id": lotID, "status": models.LotStatusOpen})

	return r.conditional(ctx, tx, query, "starting treatment", lotID)
}

// SaveClosure writes the closing quality fields of a lot in treatment and
// marks it closed. It reports false when the lot was not in treatment.
func (r *LotRepository) SaveClosure(ctx context.Context, tx *sqlx.Tx, lot *models.Lot) (bool, error) {
	query := builder().Update(tableLots).
		Set("status", models.LotStatusClosed).
		Set("transformed_grade", lot.TransformedGrade).
		Set("total_output_kg", lot.TotalOutputKg).
		Set("yield_rate", lot.YieldRate).
		Set("lot_quality_index", lot.LotQualityIndex).
		Set("lqi_grade", lot.LQIGrade).
		Set("closed_at", lot.ClosedAt).
		Set("notes", lot.Notes).
		Set("updated_at", lot.UpdatedAt).
		Where(sq.Eq{"id": lot.ID, "status": models.LotStatusInTreatment})

	return r.conditional(ctx, tx, query, "closing lot", lot.ID)
}

func (r *LotRepository) conditional(ctx context.Context, tx *sqlx.Tx, query sq.UpdateBuilder, op, id string) (bool, error) {
	result, err := r.execx(ctx, tx, query)
	if err != nil {
		return false, wrapErr(op, "lot", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, &models.DataAccessError{Op: op, Err: err}
	}
	return n == 1, nil
}

// List retrieves lots with filtering and pagination, newest first.
func (r *LotRepository) List(ctx context.Context, filter models.LotFilter, page models.Pagination) (*models.LotList, error) {
	where := sq.And{}
	if filter.ParkID != "" {
		where = append(where, sq.Eq{"park_id": filter.ParkID})
	}
	if len(filter.Statuses) > 0 {
		where = append(where, sq.Eq{"status": filter.Statuses})
	}
	if filter.LERCode != "" {
		where = append(where, sq.Expr(
			"EXISTS (SELECT 1 FROM json_each(lots.allowed_ler_codes) WHERE json_each.value = ?)",
			filter.LERCode,
		))
	}

	total, err := r.count(ctx, nil, builder().Select("COUNT(*)").From(tableLots).Where(where))
	if err != nil {
		return nil, wrapErr("counting lots", "lot", "", err)
	}

	query := builder().Select(lotColumns...).
		From(tableLots).
		Where(where).
		OrderBy("lot_seq DESC").
		Limit(page.Limit()).
		Offset(page.Offset())

	var lots []*models.Lot
	if err := r.selectx(ctx, nil, &lots, query); err != nil {
		return nil, wrapErr("listing lots", "lot", "", err)
	}

	return &models.LotList{
		Lots:       lots,
		Total:      total,
		Page:       page.Page,
		PageSize:   int(page.Limit()),
		TotalPages: page.TotalPages(total),
	}, nil
}

// AddEntry records an entry's contribution to a lot.
func (r *LotRepository) AddEntry(ctx context.Context, tx *sqlx.Tx, le *models.LotEntry) error {
	if err := le.Validate(); err != nil {
		return models.NewValidationError("lot_entry", "%v", err)
	}

	query := builder().Insert(tableLotEntries).
		Columns(lotEntryColumns...).
		Values(le.ID, le.LotID, le.EntryID, le.ContributionKg, le.EntryRawGrade, le.InspectionResult, le.CreatedAt)

	if _, err := r.execx(ctx, tx, query); err != nil {
		return wrapErr("inserting lot entry", "lot_entry", le.ID, err)
	}
	return nil
}

// ListEntries returns the entry contributions of a lot in insertion order.
func (r *LotRepository) ListEntries(ctx context.Context, tx *sqlx.Tx, lotID string) ([]*models.LotEntry, error) {
	query := builder().Select(lotEntryColumns...).
		From(tableLotEntries).
		Where(sq.Eq{"lot_id": lotID}).
		OrderBy("created_at", "id")

	var entries []*models.LotEntry
	if err := r.selectx(ctx, tx, &entries, query); err != nil {
		return nil, wrapErr("listing lot entries", "lot_entry", "", err)
	}
	return entries, nil
}

// EntryLotID returns the lot an entry already contributes to, or "" if none.
func (r *LotRepository) EntryLotID(ctx context.Context, tx *sqlx.Tx, entryID string) (string, error) {
	query := builder().Select("lot_id").From(tableLotEntries).Where(sq.Eq{"entry_id": entryID})

	var lotID string
	err := r.getx(ctx, tx, &lotID, query)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", wrapErr("checking entry assignment", "lot_entry", entryID, err)
	}
	return lotID, nil
}

// LinkZone records that a lot occupies a storage area.
func (r *LotRepository) LinkZone(ctx context.Context, tx *sqlx.Tx, zone *models.LotZone) error {
	query := builder().Insert(tableLotZones).
		Columns(lotZoneColumns...).
		Values(zone.ID, zone.LotID, zone.StorageAreaID, zone.AddedAt, zone.RemovedAt)

	if _, err := r.execx(ctx, tx, query); err != nil {
		return wrapErr("linking zone", "lot_zone", zone.ID, err)
	}
	return nil
}

// ActiveZones returns the zone links of a lot that have not been released.
func (r *LotRepository) ActiveZones(ctx context.Context, tx *sqlx.Tx, lotID string) ([]*models.LotZone, error) {
	query := builder().Select(lotZoneColumns...).
		From(tableLotZones).
		Where(sq.Eq{"lot_id": lotID, "removed_at": nil}).
		OrderBy("added_at", "id")

	var zones []*models.LotZone
	if err := r.selectx(ctx, tx, &zones, query); err != nil {
		return nil, wrapErr("listing active zones", "lot_zone", "", err)
	}
	return zones, nil
}

// ActiveLinkForArea returns the unreleased zone link of a storage area.
func (r *LotRepository) ActiveLinkForArea(ctx context.Context, tx *sqlx.Tx, areaID string) (*models.LotZone, error) {
	query := builder().Select(lotZoneColumns...).
		From(tableLotZones).
		Where(sq.Eq{"storage_area_id": areaID, "removed_at": nil})

	var zone models.LotZone
	if err := r.getx(ctx, tx, &zone, query); err != nil {
		return nil, wrapErr("getting zone link", "lot_zone", areaID, err)
	}
	return &zone, nil
}

// ReleaseArea stamps removed_at on the active link of a storage area and
// returns the number of links released (0 or 1).
func (r *LotRepository) ReleaseArea(ctx context.Context, tx *sqlx.Tx, areaID string, at time.Time) (int64, error) {
	query := builder().Update(tableLotZones).
		Set("removed_at", at).
		Where(sq.Eq{"storage_area_id": areaID, "removed_at": nil})

	result, err := r.execx(ctx, tx, query)
	if err != nil {
		return 0, wrapErr("releasing zone link", "lot_zone", areaID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, &models.DataAccessError{Op: "releasing zone link", Err: err}
	}
	return n, nil
}
