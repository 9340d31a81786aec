package lots

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/wasteops/wasteops/internal/config"
	"github.com/wasteops/wasteops/internal/models"
)

const (
	minGrade = 1.0
	maxGrade = 5.0
)

// RawGradeForInspection maps an inspection outcome to an entry grade.
// Approved entries grade 5; divergences subtract the configured penalties
// down to a floor of 1. Rejected entries never enter a lot.
func RawGradeForInspection(cfg config.GradingConfig, result models.InspectionResult, major, critical bool) (float64, error) {
	switch result {
	case models.InspectionApproved:
		return maxGrade, nil
	case models.InspectionApprovedWithDivergence:
		grade := maxGrade - cfg.DivergencePenalty
		if major {
			grade -= cfg.MajorDivergencePenalty
		}
		if critical {
			grade -= cfg.CriticalDivergencePenalty
		}
		return clampGrade(grade), nil
	case models.InspectionRejected:
		return 0, models.NewValidationError("inspection_result", "rejected entries cannot be added to a lot")
	default:
		return 0, models.NewValidationError("inspection_result", "unknown inspection result %q", result)
	}
}

// weightedRawGrade returns the contribution-weighted mean grade of entries
// and the sum of their contributions. The grade is nil when there are none.
func weightedRawGrade(entries []*models.LotEntry) (decimal.Decimal, *float64) {
	total := decimal.Zero
	weighted := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.ContributionKg)
		weighted = weighted.Add(e.ContributionKg.Mul(decimal.NewFromFloat(e.EntryRawGrade)))
	}
	if !total.IsPositive() {
		return total, nil
	}
	grade := clampGrade(round2(weighted.Div(total).InexactFloat64()))
	return total, &grade
}

// yieldRate returns output/input as a percentage rounded to 2 decimals, or
// nil when there was no input.
func yieldRate(input, output decimal.Decimal) *float64 {
	if !input.IsPositive() {
		return nil
	}
	rate := output.Div(input).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	return &rate
}

func clampGrade(g float64) float64 {
	return math.Max(minGrade, math.Min(maxGrade, g))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
