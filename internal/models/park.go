package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Park is a waste reception/treatment site. Every core operation is scoped
// to one park.
type Park struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Validate checks if the park data is valid.
func (p *Park) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.Code == "" {
		return fmt.Errorf("code is required")
	}
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// ClientType says whether a client delivers waste, buys material, or both.
type ClientType string

const (
	ClientTypeSupplier ClientType = "supplier"
	ClientTypeBuyer    ClientType = "buyer"
	ClientTypeBoth     ClientType = "both"
)

// Valid returns true if the client type is valid.
func (t ClientType) Valid() bool {
	switch t {
	case ClientTypeSupplier, ClientTypeBuyer, ClientTypeBoth:
		return true
	default:
		return false
	}
}

// Supplies reports whether clients of this type deliver waste.
func (t ClientType) Supplies() bool {
	return t == ClientTypeSupplier || t == ClientTypeBoth
}

// Client is a supplier or buyer.
type Client struct {
	ID         string     `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	ClientType ClientType `db:"client_type" json:"client_type"`
	TaxID      *string    `db:"tax_id" json:"tax_id,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// Validate checks if the client data is valid.
func (c *Client) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !c.ClientType.Valid() {
		return fmt.Errorf("invalid client_type: %s", c.ClientType)
	}
	return nil
}

// StorageArea is a physical or logical zone where waste is staged or treated.
type StorageArea struct {
	ID            string     `db:"id" json:"id"`
	ParkID        string     `db:"park_id" json:"park_id"`
	Code          string     `db:"code" json:"code"`
	Name          string     `db:"name" json:"name"`
	IsBlocked     bool       `db:"is_blocked" json:"is_blocked"`
	BlockedReason *string    `db:"blocked_reason" json:"blocked_reason,omitempty"`
	BlockedAt     *time.Time `db:"blocked_at" json:"blocked_at,omitempty"`
	BlockedBy     *string    `db:"blocked_by" json:"blocked_by,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Validate checks if the storage area data is valid.
func (a *StorageArea) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.ParkID == "" {
		return fmt.Errorf("park_id is required")
	}
	if a.Code == "" {
		return fmt.Errorf("code is required")
	}
	if a.IsBlocked && a.BlockedAt == nil {
		return fmt.Errorf("blocked_at is required when blocked")
	}
	return nil
}

// InspectionResult is the outcome of the reception inspection of an entry.
type InspectionResult string

const (
	InspectionApproved               InspectionResult = "approved"
	InspectionApprovedWithDivergence InspectionResult = "approved_with_divergence"
	InspectionRejected               InspectionResult = "rejected"
)

// Valid returns true if the inspection result is valid.
func (r InspectionResult) Valid() bool {
	switch r {
	case InspectionApproved, InspectionApprovedWithDivergence, InspectionRejected:
		return true
	default:
		return false
	}
}

// EntryStatus is the reception state of a weighed delivery.
type EntryStatus string

const (
	EntryStatusDraft     EntryStatus = "draft"
	EntryStatusConfirmed EntryStatus = "confirmed"
	EntryStatusCancelled EntryStatus = "cancelled"
)

// Valid returns true if the entry status is valid.
func (s EntryStatus) Valid() bool {
	switch s {
	case EntryStatusDraft, EntryStatusConfirmed, EntryStatusCancelled:
		return true
	default:
		return false
	}
}

// Entry is a weighed waste delivery received at a park.
type Entry struct {
	ID                    string           `db:"id" json:"id"`
	ParkID                string           `db:"park_id" json:"park_id"`
	ClientID              string           `db:"client_id" json:"client_id"`
	EntryNumber           string           `db:"entry_number" json:"entry_number"`
	LERCode               string           `db:"ler_code" json:"ler_code"`
	NetWeightKg           decimal.Decimal  `db:"net_weight_kg" json:"net_weight_kg"`
	InspectionResult      InspectionResult `db:"inspection_result" json:"inspection_result"`
	HasMajorDivergence    bool             `db:"has_major_divergence" json:"has_major_divergence"`
	HasCriticalDivergence bool             `db:"has_critical_divergence" json:"has_critical_divergence"`
	Status                EntryStatus      `db:"status" json:"status"`
	ConfirmedAt           *time.Time       `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CreatedAt             time.Time        `db:"created_at" json:"created_at"`
}

// Validate checks if the entry data is valid.
func (e *Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.ParkID == "" || e.ClientID == "" {
		return fmt.Errorf("park_id and client_id are required")
	}
	if e.LERCode == "" {
		return fmt.Errorf("ler_code is required")
	}
	if !e.NetWeightKg.IsPositive() {
		return fmt.Errorf("net_weight_kg must be positive")
	}
	if !e.InspectionResult.Valid() {
		return fmt.Errorf("invalid inspection_result: %s", e.InspectionResult)
	}
	if !e.Status.Valid() {
		return fmt.Errorf("invalid status: %s", e.Status)
	}
	if e.Status == EntryStatusConfirmed && e.ConfirmedAt == nil {
		return fmt.Errorf("confirmed_at is required for confirmed entries")
	}
	return nil
}

// ReceivedAt is the timestamp the delivery counts from: confirmation when
// known, creation otherwise.
func (e *Entry) ReceivedAt() time.Time {
	if e.ConfirmedAt != nil {
		return *e.ConfirmedAt
	}
	return e.CreatedAt
}
