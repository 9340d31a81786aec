package lots

import (
	"math"

	"github.com/wasteops/wasteops/internal/config"
	"github.com/wasteops/wasteops/internal/models"
)

// YieldGrade maps a yield percentage onto the 1-5 grade scale.
// 0% maps to 1, 100% or more maps to 5.
func YieldGrade(yield float64) float64 {
	return minGrade + (maxGrade-minGrade)*math.Max(0, math.Min(1, yield/100))
}

// ComputeLQI combines the raw grade, transformed grade and yield rate into
// the lot quality index as a weighted mean on the grade scale. Missing
// inputs drop out and the remaining weights are renormalised. The result is
// within [1, 5], rounded to 2 decimals, and never decreases when any input
// increases.
func ComputeLQI(w config.LQIConfig, rawGrade *float64, transformedGrade float64, yield *float64) float64 {
	var sum, weights float64

	if rawGrade != nil && w.RawWeight > 0 {
		sum += w.RawWeight * clampGrade(*rawGrade)
		weights += w.RawWeight
	}
	if w.TransformedWeight > 0 {
		sum += w.TransformedWeight * clampGrade(transformedGrade)
		weights += w.TransformedWeight
	}
	if yield != nil && w.YieldWeight > 0 {
		sum += w.YieldWeight * YieldGrade(*yield)
		weights += w.YieldWeight
	}

	if weights == 0 {
		return round2(clampGrade(transformedGrade))
	}
	return clampGrade(round2(sum / weights))
}

// GradeLQI returns the index together with its letter.
func GradeLQI(w config.LQIConfig, rawGrade *float64, transformedGrade float64, yield *float64) (float64, models.LQIGrade) {
	index := ComputeLQI(w, rawGrade, transformedGrade, yield)
	return index, models.GradeForIndex(index)
}
