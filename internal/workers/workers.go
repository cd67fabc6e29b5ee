package workers

import "runtime"

// Count scales the usable CPU count by multiplier and caps it at limit
// (0 for no cap). It never returns less than one.
//
// GOMAXPROCS follows container CPU limits, unlike runtime.NumCPU.
func Count(multiplier float64, limit int) int {
	n := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// ForIO sizes pools that mostly wait on the filesystem, two per CPU.
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// Resolve returns configured when positive, otherwise fallback().
func Resolve(configured int, fallback func(int) int, limit int) int {
	if configured > 0 {
		return configured
	}
	return fallback(limit)
}
