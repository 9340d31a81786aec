package planning

import (
	"math"
	"time"

	"github.com/wasteops/wasteops/internal/config"
	"github.com/wasteops/wasteops/internal/models"
	"github.com/wasteops/wasteops/internal/util"
)

// Band is the display bucket of a planning score.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// Bucket thresholds.
const (
	HighThreshold   = 70.0
	MediumThreshold = 40.0
)

// Bucket maps a 0-100 planning score to its band.
func Bucket(score float64) Band {
	switch {
	case score >= HighThreshold:
		return BandHigh
	case score >= MediumThreshold:
		return BandMedium
	default:
		return BandLow
	}
}

// Scorer computes planning scores from order, deadline and forecast data.
// Every component is on a 0-100 scale; the score is their weighted mean.
type Scorer struct {
	cfg config.PlanningConfig
}

// NewScorer creates a scorer with the given weights and horizons.
func NewScorer(cfg config.PlanningConfig) Scorer {
	return Scorer{cfg: cfg}
}

// Score returns the planning score of an order at now and its components.
// cycle may be nil when the client has no forecast.
func (s Scorer) Score(order *models.CollectionOrder, cycle *models.ClientProductionCycle, now time.Time) (float64, models.ScoreBreakdown) {
	parts := models.ScoreBreakdown{
		Priority: s.PriorityComponent(order.Priority),
		SLA:      s.SLAComponent(order, now),
		Cycle:    s.CycleComponent(cycle, now),
	}

	total := s.cfg.PriorityWeight + s.cfg.SLAWeight + s.cfg.CycleWeight
	if total <= 0 {
		return 0, parts
	}

	weighted := s.cfg.PriorityWeight*parts.Priority +
		s.cfg.SLAWeight*parts.SLA +
		s.cfg.CycleWeight*parts.Cycle

	return round2(clamp(weighted/total, 0, 100)), parts
}

// PriorityComponent maps an order priority to its configured points.
func (s Scorer) PriorityComponent(p models.OrderPriority) float64 {
	switch p {
	case models.PriorityCritical:
		return s.cfg.PriorityPoints.Critical
	case models.PriorityUrgent:
		return s.cfg.PriorityPoints.Urgent
	default:
		return s.cfg.PriorityPoints.Normal
	}
}

// SLAComponent is 100 once the deadline is reached and falls linearly to 0
// at the configured horizon. Orders without a deadline get the neutral value.
func (s Scorer) SLAComponent(order *models.CollectionOrder, now time.Time) float64 {
	if order.SLADeadline == nil {
		return s.cfg.NeutralSLA
	}
	if order.IsOverdue(now) {
		return 100
	}

	hoursLeft := order.SLADeadline.Sub(now).Hours()
	return round2(clamp(100*(1-hoursLeft/s.cfg.SLAHorizonHours), 0, 100))
}

// CycleComponent boosts orders whose client is predicted to deliver within
// the cycle window, fully when the date is due or past. The boost is scaled
// between half and full by the forecast confidence.
func (s Scorer) CycleComponent(cycle *models.ClientProductionCycle, now time.Time) float64 {
	if !cycle.Known() {
		return 0
	}

	daysUntil := float64(util.CalendarDaysUntil(now, *cycle.NextPredictedDate))

	var proximity float64
	switch {
	case daysUntil <= 0:
		proximity = 1
	case daysUntil >= s.cfg.CycleWindowDays:
		proximity = 0
	default:
		proximity = 1 - daysUntil/s.cfg.CycleWindowDays
	}

	trust := 0.5 + 0.5*clamp(cycle.Confidence, 0, 1)
	return round2(100 * proximity * trust)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
