package chunkenc

// ConcealSize returns the padded stream length that hides the true
// content length: n rounded up to a multiple of a log2-proportional
// granule. Average waste is about 0.78%, at most 1.5625%, and tiny
// streams always pad to a multiple of 16.
func ConcealSize(n int64) int64 {
	padded := roundUpToNearest(max(1, n), concealmentGranule(n))
	if padded < n {
		panic("chunkenc: concealed size shrank")
	}
	return padded
}

// concealmentGranule is max(16, 2^floor(log2 n) / 64).
func concealmentGranule(n int64) int64 {
	return max(16, int64(1)<<floorLog2(n)/64)
}

func floorLog2(n int64) uint {
	var log uint
	for n > 1 {
		n >>= 1
		log++
	}
	return log
}

func roundUpToNearest(n, nearest int64) int64 {
	return divCeil(n, nearest) * nearest
}

func divCeil(x, y int64) int64 {
	d := x / y
	if x%y != 0 {
		d++
	}
	return d
}
