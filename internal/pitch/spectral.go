package pitch

import (
	"math"
	"sort"

	vecmath "github.com/cwbudde/algo-vecmath"
	"github.com/mjibson/go-dsp/fft"
)

// SpectralEstimator finds the strongest spectral peak inside a frequency
// band. It is coarser than Autocorrelate on short windows but tolerates
// breathy tone better.
type SpectralEstimator struct {
	MinFrequency  float64 // Lowest frequency to detect (Hz)
	MaxFrequency  float64 // Highest frequency to detect (Hz)
	NoiseFloor    float64 // Minimum peak magnitude
	PeakThreshold float64 // Minimum peak height as fraction of highest peak

	window []float64
	re, im []float64
	mag    []float64
}

// NewSpectralEstimator creates an estimator tuned for the trumpet range.
func NewSpectralEstimator() *SpectralEstimator {
	return &SpectralEstimator{
		MinFrequency:  50.0,
		MaxFrequency:  2000.0,
		NoiseFloor:    0.01,
		PeakThreshold: 0.2,
	}
}

// peak is a local maximum in the magnitude spectrum.
type peak struct {
	Bin       int
	Magnitude float64
	Frequency float64
}

// Estimate implements Estimator. The receiver keeps scratch buffers, so one
// SpectralEstimator must not be shared between goroutines.
func (s *SpectralEstimator) Estimate(buffer []float64, sampleRate float64) Estimate {
	rms := RMS(buffer)
	if rms < silenceRMS || len(buffer) < 4 {
		return Estimate{Frequency: NoPitch, RMS: rms}
	}

	spectrum := fft.FFTReal(s.applyHannWindow(buffer))
	freq := s.findFundamentalFrequency(spectrum, sampleRate)

	return Estimate{Frequency: freq, RMS: rms}
}

// applyHannWindow applies a cached Hann window to a copy of samples.
func (s *SpectralEstimator) applyHannWindow(samples []float64) []float64 {
	n := len(samples)
	if len(s.window) != n {
		s.window = make([]float64, n)
		for i := range s.window {
			s.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		}
	}

	out := make([]float64, n)
	for i, sample := range samples {
		out[i] = sample * s.window[i]
	}
	return out
}

// findFundamentalFrequency returns the interpolated frequency of the
// strongest peak, or NoPitch.
func (s *SpectralEstimator) findFundamentalFrequency(spectrum []complex128, sampleRate float64) float64 {
	half := len(spectrum) / 2
	binSizeHz := sampleRate / float64(len(spectrum))

	if cap(s.re) < half {
		s.re = make([]float64, half)
		s.im = make([]float64, half)
		s.mag = make([]float64, half)
	}
	s.re, s.im, s.mag = s.re[:half], s.im[:half], s.mag[:half]
	for i := 0; i < half; i++ {
		s.re[i] = real(spectrum[i])
		s.im[i] = imag(spectrum[i])
	}
	vecmath.Magnitude(s.mag, s.re, s.im)

	minBin := int(s.MinFrequency / binSizeHz)
	if minBin < 1 {
		minBin = 1 // skip DC
	}
	maxBin := int(s.MaxFrequency / binSizeHz)
	if maxBin >= half {
		maxBin = half - 1
	}
	if minBin+1 >= maxBin {
		return NoPitch
	}

	maxMagnitude := 0.0
	for i := minBin; i <= maxBin; i++ {
		if s.mag[i] > maxMagnitude {
			maxMagnitude = s.mag[i]
		}
	}
	if maxMagnitude < s.NoiseFloor {
		return NoPitch
	}

	var peaks []peak
	for i := minBin + 1; i < maxBin; i++ {
		prev, current, next := s.mag[i-1], s.mag[i], s.mag[i+1]
		if current <= prev || current <= next || current <= maxMagnitude*s.PeakThreshold {
			continue
		}

		// quadratic interpolation of the peak location
		delta := parabolicShift(prev, current, next)
		peaks = append(peaks, peak{
			Bin:       i,
			Magnitude: current,
			Frequency: (float64(i) + delta) * binSizeHz,
		})
	}

	if len(peaks) == 0 {
		return NoPitch
	}

	sort.Slice(peaks, func(i, j int) bool {
		return peaks[i].Magnitude > peaks[j].Magnitude
	})

	return peaks[0].Frequency
}
