package progression

import "math"

// ThresholdForLevel returns the experience required to advance past level.
// It is pure, deterministic and strictly increasing in level: floor(100 * level^1.5).
// math.Sqrt and the float multiply are correctly-rounded IEEE-754 operations,
// so the result is reproducible bit-for-bit across platforms.
func ThresholdForLevel(level int) int {
	l := float64(level)
	return int(math.Floor(100 * l * math.Sqrt(l)))
}
