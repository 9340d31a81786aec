package cycles

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/wasteops/wasteops/internal/util"
)

// Forecast is the delivery cadence derived from a client's entry history.
// A forecast built from fewer than two entries carries only EntryCount.
type Forecast struct {
	EntryCount        int
	AvgIntervalDays   *float64
	StdDevDays        *float64
	LastEntryDate     *time.Time
	NextPredictedDate *time.Time
	Confidence        float64
}

// Known reports whether a next delivery date could be predicted.
func (f Forecast) Known() bool {
	return f.NextPredictedDate != nil
}

// Predict estimates the delivery cadence from entry timestamps sorted
// ascending. Identical timestamps count as zero-length intervals.
//
// Confidence is (1 / (1 + cv)) * (1 - exp(-(k-1)/saturation)) where cv is
// the coefficient of variation of the k intervals. It is 0 for a single
// interval or a zero mean, and tends to 1/(1+cv) as k grows.
func Predict(times []time.Time, saturation float64) Forecast {
	f := Forecast{EntryCount: len(times)}
	if len(times) < 2 {
		return f
	}

	intervals := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		intervals = append(intervals, math.Max(0, util.DaysBetween(times[i-1], times[i])))
	}

	last := util.DateOnly(times[len(times)-1])
	f.LastEntryDate = &last

	var mean, std float64
	if len(intervals) == 1 {
		mean = intervals[0]
	} else {
		mean, std = stat.MeanStdDev(intervals, nil)
		s := round(std, 2)
		f.StdDevDays = &s
	}

	avg := round(mean, 2)
	f.AvgIntervalDays = &avg

	next := util.AddDays(last, mean)
	f.NextPredictedDate = &next

	f.Confidence = confidence(mean, std, len(intervals), saturation)
	return f
}

func confidence(mean, std float64, intervals int, saturation float64) float64 {
	if intervals < 2 || mean <= 0 || saturation <= 0 {
		return 0
	}

	dispersion := 1 / (1 + std/mean)
	samples := 1 - math.Exp(-float64(intervals-1)/saturation)

	return round(math.Min(1, math.Max(0, dispersion*samples)), 3)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
