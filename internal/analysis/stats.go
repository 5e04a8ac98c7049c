package analysis

import "math"

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, v := range xs {
		s += v
	}
	return s / float64(len(xs))
}

// sampleStd is the n-1 standard deviation, matching how the source
// datasets were normalized. Needs at least 2 values.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	ss := 0.0
	for _, v := range xs {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func meanAbsError(truth, pred []float64) float64 {
	if len(truth) == 0 {
		return 0
	}
	s := 0.0
	for i := range truth {
		s += math.Abs(truth[i] - pred[i])
	}
	return s / float64(len(truth))
}

func meanSquaredError(truth, pred []float64) float64 {
	if len(truth) == 0 {
		return 0
	}
	s := 0.0
	for i := range truth {
		d := truth[i] - pred[i]
		s += d * d
	}
	return s / float64(len(truth))
}
