package stats

import "math"

// Bucketize partitions durations into numBuckets equal-width bins spanning
// [lo, hi]. Bins are sized (hi-lo+1)/numBuckets and a duration d lands
// in floor((d-lo-1)/size).
//
// That formula puts d == lo (and anything within one unit above it) at a
// negative index, and values outside [lo, hi] beyond either end. Indices
// are clamped into [0, numBuckets-1], so the lowest values share the first
// bin and every duration is counted exactly once.
func Bucketize(numBuckets int, lo, hi float64, durations []float64) ([]int, error) {
	if numBuckets <= 0 {
		return nil, ErrBucketCount
	}

	buckets := make([]int, numBuckets)
	size := (hi - lo + 1) / float64(numBuckets)

	for _, d := range durations {
		idx := 0
		if size > 0 {
			f := math.Floor((d - lo - 1) / size)
			switch {
			case math.IsNaN(f) || f < 0:
				idx = 0
			case f >= float64(numBuckets):
				idx = numBuckets - 1
			default:
				idx = int(f)
			}
		}
		buckets[idx]++
	}

	return buckets, nil
}
