package models

import (
	"fmt"
	"time"
)

// ClientProductionCycle is the delivery-cadence snapshot of one client at
// one park. Recomputed from scratch, never appended to.
type ClientProductionCycle struct {
	ID                string     `db:"id" json:"id"`
	ClientID          string     `db:"client_id" json:"client_id"`
	ParkID            string     `db:"park_id" json:"park_id"`
	AvgIntervalDays   *float64   `db:"avg_interval_days" json:"avg_interval_days,omitempty"`
	StdDevDays        *float64   `db:"std_dev_days" json:"std_dev_days,omitempty"`
	LastEntryDate     *time.Time `db:"last_entry_date" json:"last_entry_date,omitempty"`
	NextPredictedDate *time.Time `db:"next_predicted_date" json:"next_predicted_date,omitempty"`
	EntryCount        int        `db:"entry_count" json:"entry_count"`
	Confidence        float64    `db:"confidence" json:"confidence"`
	CalculatedAt      time.Time  `db:"calculated_at" json:"calculated_at"`
}

// Known reports whether a forecast could be computed.
func (c *ClientProductionCycle) Known() bool {
	return c != nil && c.NextPredictedDate != nil
}

// OrderPriority is the requested urgency of a collection order.
type OrderPriority string

const (
	PriorityNormal   OrderPriority = "normal"
	PriorityUrgent   OrderPriority = "urgent"
	PriorityCritical OrderPriority = "critical"
)

// Valid returns true if the priority is valid.
func (p OrderPriority) Valid() bool {
	switch p {
	case PriorityNormal, PriorityUrgent, PriorityCritical:
		return true
	default:
		return false
	}
}

// OrderStatus is the dispatch state of a collection order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPlanned   OrderStatus = "planned"
	OrderStatusInTransit OrderStatus = "in_transit"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid returns true if the order status is valid.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPlanned, OrderStatusInTransit,
		OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Scorable reports whether a planning score is meaningful in this status.
func (s OrderStatus) Scorable() bool {
	return s == OrderStatusPending || s == OrderStatusPlanned
}

// ScorableOrderStatuses lists the statuses the planning scorer ranks.
func ScorableOrderStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusPending, OrderStatusPlanned}
}

// CollectionOrder is a pending pickup request from a client.
type CollectionOrder struct {
	ID            string        `db:"id" json:"id"`
	ParkID        string        `db:"park_id" json:"park_id"`
	ClientID      string        `db:"client_id" json:"client_id"`
	OrderNumber   string        `db:"order_number" json:"order_number"`
	Priority      OrderPriority `db:"priority" json:"priority"`
	Status        OrderStatus   `db:"status" json:"status"`
	SLADeadline   *time.Time    `db:"sla_deadline" json:"sla_deadline,omitempty"`
	PlanningScore *float64      `db:"planning_score" json:"planning_score,omitempty"`
	ScorePriority *float64      `db:"score_priority" json:"score_priority,omitempty"`
	ScoreSLA      *float64      `db:"score_sla" json:"score_sla,omitempty"`
	ScoreCycle    *float64      `db:"score_cycle" json:"score_cycle,omitempty"`
	ScoredAt      *time.Time    `db:"scored_at" json:"scored_at,omitempty"`
	Notes         *string       `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// Validate checks if the collection order data is valid.
func (o *CollectionOrder) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("id is required")
	}
	if o.ParkID == "" || o.ClientID == "" {
		return fmt.Errorf("park_id and client_id are required")
	}
	if !o.Priority.Valid() {
		return fmt.Errorf("invalid priority: %s", o.Priority)
	}
	if !o.Status.Valid() {
		return fmt.Errorf("invalid status: %s", o.Status)
	}
	return nil
}

// IsOverdue returns true if the SLA deadline has passed.
func (o *CollectionOrder) IsOverdue(asOf time.Time) bool {
	if o.SLADeadline == nil {
		return false
	}
	return !asOf.Before(*o.SLADeadline)
}

// ScoreBreakdown holds the 0-100 components of a planning score before
// weighting.
type ScoreBreakdown struct {
	Priority float64 `json:"priority"`
	SLA      float64 `json:"sla"`
	Cycle    float64 `json:"cycle"`
}
