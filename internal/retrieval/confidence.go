package retrieval

import "math"

// DistanceToConfidence maps a similarity distance to a confidence in [0,1].
// Distances are assumed to lie in the [0,2] operating range of Euclidean
// distance on normalized vectors: 0 maps to 1, anything at or beyond 2 maps
// to 0. A store with a different metric needs an equivalent monotonically
// decreasing mapping.
func DistanceToConfidence(distance float64) float64 {
	if distance <= 0 {
		return 1
	}
	return math.Max(0, math.Min(1, 1-distance/2))
}

// AnswerConfidence aggregates per-snippet confidences into a single answer
// score: 0.6 times the best of the top three plus 0.4 times their mean,
// rounded to 4 decimal places. An empty input yields 0.
func AnswerConfidence(confidences []float64) float64 {
	if len(confidences) == 0 {
		return 0
	}
	top := confidences
	if len(top) > 3 {
		top = top[:3]
	}
	best, sum := top[0], 0.0
	for _, c := range top {
		if c > best {
			best = c
		}
		sum += c
	}
	return round4(0.6*best + 0.4*sum/float64(len(top)))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
