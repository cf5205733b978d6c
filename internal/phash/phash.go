// Package phash computes a 64-bit average hash (aHash) over RGBA frames and
// the Hamming distance between two hashes, used by the recorder to skip
// near-duplicate frames before they reach the encoder or the store.
package phash

import "math/bits"

const gridSize = 8

// Hash computes the average hash of a tightly-packed RGBA frame of the given
// width and height. It downsamples the frame to an 8x8 grid of grayscale
// block averages (ITU-R BT.601 luma), then sets bit i of the result when
// block i's average is >= the grid mean.
func Hash(rgba []byte, width, height int) uint64 {
	var blockSum [gridSize * gridSize]float64
	var blockCount [gridSize * gridSize]int

	for y := 0; y < height; y++ {
		gy := y * gridSize / height
		if gy >= gridSize {
			gy = gridSize - 1
		}
		rowOff := y * width * 4
		for x := 0; x < width; x++ {
			gx := x * gridSize / width
			if gx >= gridSize {
				gx = gridSize - 1
			}
			off := rowOff + x*4
			r := float64(rgba[off])
			g := float64(rgba[off+1])
			b := float64(rgba[off+2])
			luma := (299*r + 587*g + 114*b) / 1000
			idx := gy*gridSize + gx
			blockSum[idx] += luma
			blockCount[idx]++
		}
	}

	var blockAvg [gridSize * gridSize]float64
	var mean float64
	for i := range blockSum {
		if blockCount[i] > 0 {
			blockAvg[i] = blockSum[i] / float64(blockCount[i])
		}
		mean += blockAvg[i]
	}
	mean /= float64(gridSize * gridSize)

	var hash uint64
	for i, avg := range blockAvg {
		if avg >= mean {
			hash |= 1 << uint(i)
		}
	}
	return hash
}

// Distance returns the Hamming distance between two hashes: the number of
// bit positions at which a and b differ. It is symmetric, zero iff a == b,
// and satisfies the triangle inequality.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// IsDuplicate reports whether b is within threshold of a (distance <= threshold).
func IsDuplicate(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}
