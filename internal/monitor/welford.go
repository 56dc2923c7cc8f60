package monitor

import (
	"math"
	"slices"
	"time"

	"github.com/rewired-gh/doseoracle/internal/models"
)

// IntervalStats accumulates the hours between consecutive injections using
// Welford's online algorithm.
type IntervalStats struct {
	Count int
	Mean  float64
	M2    float64
}

func UpdateWelford(stats *IntervalStats, hours float64) {
	stats.Count++
	delta := hours - stats.Mean
	stats.Mean += delta / float64(stats.Count)
	delta2 := hours - stats.Mean
	stats.M2 += delta * delta2
}

// GetSigma returns the sample standard deviation in hours, 0 below two samples.
func GetSigma(stats *IntervalStats) float64 {
	if stats.Count < 2 {
		return 0
	}
	return math.Sqrt(stats.M2 / float64(stats.Count-1))
}

// IntervalStatsOf computes interval statistics over injections in any order.
func IntervalStatsOf(injections []*models.Injection) IntervalStats {
	dates := make([]time.Time, 0, len(injections))
	for _, inj := range injections {
		dates = append(dates, inj.Date)
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })

	var stats IntervalStats
	for i := 1; i < len(dates); i++ {
		UpdateWelford(&stats, dates[i].Sub(dates[i-1]).Hours())
	}
	return stats
}

func (s IntervalStats) MeanDuration() time.Duration {
	return time.Duration(s.Mean * float64(time.Hour))
}

func (s IntervalStats) StdDevDuration() time.Duration {
	return time.Duration(GetSigma(&s) * float64(time.Hour))
}
