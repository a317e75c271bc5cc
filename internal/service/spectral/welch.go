// Package spectral estimates power spectral density with Welch's method and
// picks the dominant frequency of a span of audio.
package spectral

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"ai-dialog-analysis-service/internal/analysiserr"
)

// DefaultSegmentLength is the Welch segment length used when none is set.
const DefaultSegmentLength = 256

// Options tunes the estimator. The zero value uses the defaults.
type Options struct {
	// SegmentLength is the samples per Welch segment. Segments overlap by half
	// and are shortened to the input length for short inputs.
	SegmentLength int
}

// Spectrum is a one-sided power spectral density.
type Spectrum struct {
	Frequencies []float64 // Hz
	Power       []float64 // V**2/Hz
}

// Peak is the bin of maximum power.
type Peak struct {
	Frequency float64
	Power     float64
}

// Welch computes the PSD of samples taken at sampleRate Hz: periodic Hann
// window, 50% overlap, constant detrend, density scaling, mean of segments.
// An empty input yields an empty spectrum.
func Welch(samples []int16, sampleRate int, opts Options) (Spectrum, error) {
	if sampleRate <= 0 {
		return Spectrum{}, fmt.Errorf("%w: sample rate must be positive, got %d", analysiserr.ErrAudioFormat, sampleRate)
	}
	n := len(samples)
	if n == 0 {
		return Spectrum{}, nil
	}

	nperseg := opts.SegmentLength
	if nperseg <= 0 {
		nperseg = DefaultSegmentLength
	}
	if nperseg > n {
		nperseg = n
	}
	noverlap := nperseg / 2
	step := nperseg - noverlap
	nseg := (n-nperseg)/step + 1

	win := hann(nperseg)
	fs := float64(sampleRate)
	scale := 1 / (fs * floats.Dot(win, win))

	nfreq := nperseg/2 + 1
	power := make([]float64, nfreq)
	fft := fourier.NewFFT(nperseg)
	seg := make([]float64, nperseg)
	coeff := make([]complex128, nfreq)

	for s := 0; s < nseg; s++ {
		off := s * step
		for i := 0; i < nperseg; i++ {
			seg[i] = float64(samples[off+i])
		}
		mean := stat.Mean(seg, nil)
		for i := range seg {
			seg[i] = (seg[i] - mean) * win[i]
		}
		coeff = fft.Coefficients(coeff, seg)
		for k, c := range coeff {
			p := (real(c)*real(c) + imag(c)*imag(c)) * scale
			if k > 0 && !(nperseg%2 == 0 && k == nfreq-1) {
				p *= 2
			}
			power[k] += p
		}
	}
	floats.Scale(1/float64(nseg), power)

	for k, p := range power {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return Spectrum{}, fmt.Errorf("%w: non-finite power at bin %d", analysiserr.ErrSpectralComputation, k)
		}
	}

	freqs := make([]float64, nfreq)
	for k := range freqs {
		freqs[k] = float64(k) * fs / float64(nperseg)
	}
	return Spectrum{Frequencies: freqs, Power: power}, nil
}

// Dominant returns the first bin of maximum power, or the zero Peak for an
// empty spectrum.
func (s Spectrum) Dominant() Peak {
	if len(s.Power) == 0 {
		return Peak{}
	}
	idx := floats.MaxIdx(s.Power)
	return Peak{Frequency: s.Frequencies[idx], Power: s.Power[idx]}
}

// DominantFrequency is Welch followed by Dominant.
func DominantFrequency(samples []int16, sampleRate int, opts Options) (Peak, error) {
	spec, err := Welch(samples, sampleRate, opts)
	if err != nil {
		return Peak{}, err
	}
	return spec.Dominant(), nil
}

// hann returns the periodic Hann window of length n: the symmetric window of
// length n+1 without its last point.
func hann(n int) []float64 {
	if n == 1 {
		return []float64{1}
	}
	w := make([]float64, n+1)
	for i := range w {
		w[i] = 1
	}
	return window.Hann(w)[:n]
}
