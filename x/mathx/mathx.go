package mathx

import "golang.org/x/exp/constraints"

// Between reports lo <= v && v <= hi (order-insensitive).
func Between[T constraints.Ordered](v, lo, hi T) bool {
	if hi < lo {
		lo, hi = hi, lo
	}
	return v >= lo && v <= hi
}

// Band returns how many of the ascending upper bounds v exceeds.
// Band(v, 24, 48) is 0 for v <= 24, 1 for v <= 48 and 2 above.
func Band[T constraints.Ordered](v T, bounds ...T) int {
	n := 0
	for _, b := range bounds {
		if v <= b {
			break
		}
		n++
	}
	return n
}

// Mask returns a right-aligned mask of width bits.
func Mask[T constraints.Unsigned](width uint8) T {
	if width == 0 {
		return 0
	}
	var all T = ^T(0)
	return all >> (T(8*sizeOf[T]()) - T(width))
}

func sizeOf[T constraints.Unsigned]() int {
	var v T = ^T(0)
	n := 0
	for v != 0 {
		v >>= 8
		n++
	}
	return n
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}
