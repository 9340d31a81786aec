package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// LotStatus represents the lifecycle stage of a lot.
type LotStatus string

const (
	LotStatusOpen        LotStatus = "open"
	LotStatusInTreatment LotStatus = "in_treatment"
	LotStatusClosed      LotStatus = "closed"
)

// Valid returns true if the lot status is valid.
func (s LotStatus) Valid() bool {
	switch s {
	case LotStatusOpen, LotStatusInTreatment, LotStatusClosed:
		return true
	default:
		return false
	}
}

// Next returns the only status s may move to. Closed lots have none.
func (s LotStatus) Next() (LotStatus, bool) {
	switch s {
	case LotStatusOpen:
		return LotStatusInTreatment, true
	case LotStatusInTreatment:
		return LotStatusClosed, true
	default:
		return "", false
	}
}

// CanTransitionTo reports whether s -> to is a legal forward step.
func (s LotStatus) CanTransitionTo(to LotStatus) bool {
	next, ok := s.Next()
	return ok && next == to
}

// LQIGrade is the letter derived from a lot quality index.
type LQIGrade string

const (
	LQIGradeA LQIGrade = "A"
	LQIGradeB LQIGrade = "B"
	LQIGradeC LQIGrade = "C"
	LQIGradeD LQIGrade = "D"
	LQIGradeE LQIGrade = "E"
)

// GradeForIndex maps a lot quality index to its letter.
func GradeForIndex(index float64) LQIGrade {
	switch {
	case index >= 4.5:
		return LQIGradeA
	case index >= 3.5:
		return LQIGradeB
	case index >= 2.5:
		return LQIGradeC
	case index >= 1.5:
		return LQIGradeD
	default:
		return LQIGradeE
	}
}

// LERCodes is the set of waste classification codes a lot accepts.
// Stored as a JSON array.
type LERCodes []string

// Contains reports whether code is accepted.
func (c LERCodes) Contains(code string) bool {
	return slices.Contains(c, code)
}

// Value implements driver.Valuer.
func (c LERCodes) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(c))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (c *LERCodes) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported LER codes column type %T", src)
	}
	var codes []string
	if err := json.Unmarshal(raw, &codes); err != nil {
		return fmt.Errorf("decoding LER codes: %w", err)
	}
	*c = codes
	return nil
}

// Lot is a batch of same-classification waste moving through treatment.
type Lot struct {
	ID                 string              `db:"id" json:"id"`
	ParkID             string              `db:"park_id" json:"park_id"`
	LotNumber          string              `db:"lot_number" json:"lot_number"`
	LotSeq             int                 `db:"lot_seq" json:"-"`
	Status             LotStatus           `db:"status" json:"status"`
	AllowedLERCodes    LERCodes            `db:"allowed_ler_codes" json:"allowed_ler_codes"`
	RawGrade           *float64            `db:"raw_grade" json:"raw_grade,omitempty"`
	TransformedGrade   *float64            `db:"transformed_grade" json:"transformed_grade,omitempty"`
	YieldRate          *float64            `db:"yield_rate" json:"yield_rate,omitempty"`
	LotQualityIndex    *float64            `db:"lot_quality_index" json:"lot_quality_index,omitempty"`
	LQIGrade           *LQIGrade           `db:"lqi_grade" json:"lqi_grade,omitempty"`
	TotalInputKg       decimal.Decimal     `db:"total_input_kg" json:"total_input_kg"`
	TotalOutputKg      decimal.NullDecimal `db:"total_output_kg" json:"total_output_kg"`
	OpenedAt           time.Time           `db:"opened_at" json:"opened_at"`
	OpenedBy           *string             `db:"opened_by" json:"opened_by,omitempty"`
	TreatmentStartedAt *time.Time          `db:"treatment_started_at" json:"treatment_started_at,omitempty"`
	ClosedAt           *time.Time          `db:"closed_at" json:"closed_at,omitempty"`
	Notes              *string             `db:"notes" json:"notes,omitempty"`
	CreatedAt          time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updated_at"`
}

// Validate checks if the lot data is valid.
func (l *Lot) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("id is required")
	}
	if l.ParkID == "" {
		return fmt.Errorf("park_id is required")
	}
	if l.LotNumber == "" {
		return fmt.Errorf("lot_number is required")
	}
	if !l.Status.Valid() {
		return fmt.Errorf("invalid status: %s", l.Status)
	}
	if len(l.AllowedLERCodes) == 0 {
		return fmt.Errorf("at least one allowed LER code is required")
	}
	if l.TotalInputKg.IsNegative() {
		return fmt.Errorf("total_input_kg must be non-negative")
	}
	return nil
}

// IsClosed returns true once the lot has been closed.
func (l *Lot) IsClosed() bool {
	return l.Status == LotStatusClosed
}

// LotEntry records one weighed delivery's contribution to a lot.
type LotEntry struct {
	ID               string           `db:"id" json:"id"`
	LotID            string           `db:"lot_id" json:"lot_id"`
	EntryID          string           `db:"entry_id" json:"entry_id"`
	ContributionKg   decimal.Decimal  `db:"contribution_kg" json:"contribution_kg"`
	EntryRawGrade    float64          `db:"entry_raw_grade" json:"entry_raw_grade"`
	InspectionResult InspectionResult `db:"inspection_result" json:"inspection_result"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// Validate checks if the lot entry data is valid.
func (e *LotEntry) Validate() error {
	if e.LotID == "" || e.EntryID == "" {
		return fmt.Errorf("lot_id and entry_id are required")
	}
	if !e.ContributionKg.IsPositive() {
		return fmt.Errorf("contribution_kg must be positive")
	}
	if e.EntryRawGrade < 1 || e.EntryRawGrade > 5 {
		return fmt.Errorf("entry_raw_grade must be between 1 and 5")
	}
	return nil
}

// LotZone links a lot to a storage area it occupies. A nil RemovedAt means
// the lot still occupies the area.
type LotZone struct {
	ID            string     `db:"id" json:"id"`
	LotID         string     `db:"lot_id" json:"lot_id"`
	StorageAreaID string     `db:"storage_area_id" json:"storage_area_id"`
	AddedAt       time.Time  `db:"added_at" json:"added_at"`
	RemovedAt     *time.Time `db:"removed_at" json:"removed_at,omitempty"`
}

// IsActive reports whether the lot still occupies the area.
func (z *LotZone) IsActive() bool {
	return z.RemovedAt == nil
}

// LotFilter defines filtering options for lot queries.
type LotFilter struct {
	ParkID   string
	Statuses []LotStatus
	LERCode  string
}

// LotList represents a paginated list of lots.
type LotList struct {
	Lots       []*Lot
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}
