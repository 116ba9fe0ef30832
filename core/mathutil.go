package core

import "golang.org/x/exp/constraints"

// clamp limits v to [lo, hi]
func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// abs for signed integers
func abs[T constraints.Signed](x T) T {
	if x < 0 {
		return -x
	}
	return x
}
