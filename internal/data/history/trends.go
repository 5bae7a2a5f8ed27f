package history

import (
	"fmt"
	"math"
	"time"
)

// BuildTrendReport compares consecutive runs of one network. Deltas are taken
// against the previous successful run; failed runs only count toward
// FailuresInWindow.
func BuildTrendReport(network string, runs []Run, window time.Duration) (TrendReport, error) {
	if len(runs) == 0 {
		return TrendReport{}, fmt.Errorf("no runs available")
	}

	points := make([]TrendPoint, 0, len(runs))
	prev := -1
	for i, current := range runs {
		point := TrendPoint{
			RunID:       current.ID,
			StartedAt:   current.StartedAt,
			Status:      current.Status,
			MinPressure: current.MinPressure,
			MaxPressure: current.MaxPressure,
			EnergyCost:  current.EnergyCost,
		}
		if current.Status == StatusOK {
			if prev >= 0 {
				point.DeltaMinPressure = round2(current.MinPressure - runs[prev].MinPressure)
				point.DeltaEnergyCost = round2(current.EnergyCost - runs[prev].EnergyCost)
			}
			prev = i
		}

		avg, failures := windowStats(runs, i, window)
		point.AvgMinPressure = round2(avg)
		point.FailuresInWindow = failures
		point.WindowHours = round2(window.Hours())
		points = append(points, point)
	}

	return TrendReport{
		SchemaVersion: SchemaVersion,
		Network:       network,
		Since:         runs[0].StartedAt,
		Until:         runs[len(runs)-1].StartedAt,
		Window:        window.String(),
		RunCount:      len(points),
		Points:        points,
	}, nil
}

func windowStats(runs []Run, index int, window time.Duration) (float64, int) {
	cutoff := runs[index].StartedAt.Add(-window)
	var total float64
	count, failures := 0, 0
	for i := index; i >= 0; i-- {
		if window > 0 && runs[i].StartedAt.Before(cutoff) {
			break
		}
		if window <= 0 && i != index {
			break
		}
		if runs[i].Status != StatusOK {
			failures++
			continue
		}
		total += runs[i].MinPressure
		count++
	}
	if count == 0 {
		return 0, failures
	}
	return total / float64(count), failures
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
