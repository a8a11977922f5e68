package kpi

import "math"

// ResultScore is the attainment of value against target, capped at 100.
// A non-positive target scores 0.
func ResultScore(value, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return math.Min(100, value/target*100)
}

// TotalScore is the weight-averaged score of the results, rounded to two
// decimals. No results, or no weight, gives 0.
func TotalScore(results []Result) float64 {
	var sum float64
	var weights int
	for _, r := range results {
		sum += r.Score * float64(r.Weight)
		weights += r.Weight
	}
	if weights == 0 {
		return 0
	}
	return round2(sum / float64(weights))
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
