package asr

import (
	"fmt"
	"math"
)

const (
	nfft       = 512 // next power of two covering the 400-sample window
	fftBins    = nfft/2 + 1
	melLowHz   = 0.0
	melHighHz  = sampleRateHz / 2
	logEpsilon = 1e-10
)

// Spectrogram computes a 128-bin log-mel spectrogram over 16kHz mono PCM16
// with a 25ms window and 10ms hop, per §4.7: each returned frame is one
// time step, each frame holds melBins log-energy values.
func Spectrogram(pcm []int16, sampleRate int) ([][]float32, error) {
	if sampleRate != sampleRateHz {
		return nil, errUnsupportedRate(sampleRate)
	}
	if len(pcm) == 0 {
		return nil, nil
	}

	samples := make([]float64, len(pcm))
	for i, s := range pcm {
		samples[i] = float64(s) / 32768
	}

	window := hannWindow(windowSamples)
	filterbank := melFilterbank(melBins, fftBins, sampleRateHz)

	numFrames := 0
	if len(samples) >= windowSamples {
		numFrames = (len(samples)-windowSamples)/hopSamples + 1
	}

	frames := make([][]float32, numFrames)
	buf := make([]float64, nfft)
	for f := 0; f < numFrames; f++ {
		start := f * hopSamples
		for i := 0; i < nfft; i++ {
			if i < windowSamples {
				buf[i] = samples[start+i] * window[i]
			} else {
				buf[i] = 0
			}
		}

		power := powerSpectrum(buf)

		melEnergies := make([]float32, melBins)
		for m := 0; m < melBins; m++ {
			var sum float64
			for b, weight := range filterbank[m] {
				sum += power[b] * weight
			}
			melEnergies[m] = float32(math.Log(sum + logEpsilon))
		}
		frames[f] = melEnergies
	}

	return frames, nil
}

// powerSpectrum computes |DFT(x)|^2 for bins 0..nfft/2 via a direct DFT.
// The window is fixed at 512 samples so the O(n^2) cost is small and the
// implementation stays simple and easy to verify against a reference.
func powerSpectrum(x []float64) []float64 {
	n := len(x)
	out := make([]float64, fftBins)
	for k := 0; k < fftBins; k++ {
		var re, im float64
		angleStep := -2 * math.Pi * float64(k) / float64(n)
		for t := 0; t < n; t++ {
			angle := angleStep * float64(t)
			re += x[t] * math.Cos(angle)
			im += x[t] * math.Sin(angle)
		}
		out[k] = re*re + im*im
	}
	return out
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// melFilterbank builds nMel triangular filters spanning [melLowHz, melHighHz]
// on the mel scale, each expressed as a weight vector over nBins linear FFT
// bins, per the standard mel-filterbank construction (e.g. HTK/librosa).
func melFilterbank(nMel, nBins int, sampleRate int) [][]float64 {
	toMel := func(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }
	fromMel := func(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

	melLow := toMel(melLowHz)
	melHigh := toMel(melHighHz)

	points := make([]float64, nMel+2)
	for i := range points {
		points[i] = melLow + (melHigh-melLow)*float64(i)/float64(nMel+1)
	}

	binIndices := make([]int, nMel+2)
	for i, mel := range points {
		hz := fromMel(mel)
		binIndices[i] = int(math.Floor(float64(nfft+1) * hz / float64(sampleRate)))
	}

	filters := make([][]float64, nMel)
	for m := 0; m < nMel; m++ {
		filter := make([]float64, nBins)
		left, center, right := binIndices[m], binIndices[m+1], binIndices[m+2]
		for b := left; b < center && b < nBins; b++ {
			if center > left {
				filter[b] = float64(b-left) / float64(center-left)
			}
		}
		for b := center; b < right && b < nBins; b++ {
			if right > center {
				filter[b] = float64(right-b) / float64(right-center)
			}
		}
		filters[m] = filter
	}
	return filters
}

func errUnsupportedRate(rate int) error {
	return fmt.Errorf("asr: spectrogram requires 16kHz mono input, got %d Hz", rate)
}
