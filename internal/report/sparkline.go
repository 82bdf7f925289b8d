package report

import "math"

var sparkTicks = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders bucket counts as block glyphs scaled between the smallest
// and largest count. A flat series renders as the lowest glyph.
func Sparkline(values []int) string {
	if len(values) == 0 {
		return ""
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	out := make([]rune, len(values))
	for i, v := range values {
		idx := 0
		if hi > lo {
			idx = int(math.Round(float64(v-lo) / float64(hi-lo) * float64(len(sparkTicks)-1)))
		}
		out[i] = sparkTicks[idx]
	}
	return string(out)
}
