package risk

import "math/bits"

const maxInt64 = int64(^uint64(0) >> 1)

// mulChecked multiplies non-negative operands and reports overflow.
func mulChecked(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	if a < 0 || b < 0 {
		return 0, true
	}
	if a > maxInt64/b {
		return 0, true
	}
	return a * b, false
}

// mulDiv returns a*b/c for non-negative operands without intermediate
// overflow. The quotient must fit in int64.
func mulDiv(a, b, c int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, _ := bits.Div64(hi, lo, uint64(c))
	return int64(q)
}

func minSize[T ~int64](a, b T) T {
	if a < b {
		return a
	}
	return b
}
