package audiocap

import "math"

// FoldToMono averages interleaved samples across channels into a single
// mono stream (arithmetic mean), per the duplicator's documented contract
// that downstream fold-down is the encoder's (recorder's) responsibility.
func FoldToMono(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(interleaved))
		copy(out, interleaved)
		return out
	}
	n := len(interleaved) / channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts a mono f32 stream from srcRate to dstRate. Downsampling
// first runs a simple moving-average low-pass (box filter sized to the
// decimation factor) to attenuate frequencies above the new Nyquist limit
// before linear-interpolating to the target rate; upsampling interpolates
// directly. This is a deliberately simple band-limiting strategy rather
// than a full polyphase filter bank.
func Resample(mono []float32, srcRate, dstRate uint32) []float32 {
	if srcRate == dstRate || len(mono) == 0 {
		out := make([]float32, len(mono))
		copy(out, mono)
		return out
	}

	src := mono
	if dstRate < srcRate {
		factor := int(srcRate / dstRate)
		if factor < 1 {
			factor = 1
		}
		src = boxLowPass(mono, factor)
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(float64(len(src)) / ratio)
	out := make([]float32, outLen)
	for i := range out {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)
		if idx+1 < len(src) {
			out[i] = float32(float64(src[idx])*(1-frac) + float64(src[idx+1])*frac)
		} else if idx < len(src) {
			out[i] = src[idx]
		}
	}
	return out
}

// boxLowPass applies a simple moving-average filter of the given window
// size, used as an anti-aliasing pre-filter before decimation.
func boxLowPass(samples []float32, window int) []float32 {
	if window <= 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	out := make([]float32, len(samples))
	half := window / 2
	for i := range samples {
		var sum float32
		count := 0
		for k := -half; k <= half; k++ {
			j := i + k
			if j >= 0 && j < len(samples) {
				sum += samples[j]
				count++
			}
		}
		out[i] = sum / float32(count)
	}
	return out
}

// ToPCM16 converts f32 samples in [-1, 1] to signed 16-bit PCM, clamping
// out-of-range values rather than wrapping.
func ToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = int16(math.Round(v * 32767))
	}
	return out
}
