// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package reconcile

import (
	"math"
	"sort"
)

// computeStatistics summarizes values. Defined is false when there are
// fewer than two values, or when the mean is zero (variancePercent is
// undefined in that case, per spec §4.7 step 3).
func computeStatistics(values []float64) Statistics {
	if len(values) < 2 {
		return Statistics{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	min := sorted[0]
	max := sorted[len(sorted)-1]

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	median := medianOf(sorted)

	var variance float64
	for _, v := range sorted {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(sorted))
	stdDev := math.Sqrt(variance)

	if mean == 0 {
		return Statistics{Min: min, Max: max, Mean: mean, Median: median, StdDev: stdDev, Defined: false}
	}

	variancePercent := (max - min) / abs(mean)

	return Statistics{
		Min:             min,
		Max:             max,
		Mean:            mean,
		Median:          median,
		StdDev:          stdDev,
		VariancePercent: variancePercent,
		Defined:         true,
	}
}

func medianOf(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func abs(f float64) float64 {
	return math.Abs(f)
}
