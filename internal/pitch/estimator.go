package pitch

import "math"

// NoPitch is the frequency reported when no periodic signal was found.
const NoPitch = -1.0

const (
	// silenceRMS is the energy below which a window is treated as silence.
	silenceRMS = 0.005

	// goodCorrelation latches peak tracking once the similarity climbs past it.
	goodCorrelation = 0.9

	// minCorrelation is required for the unrefined fallback estimate.
	minCorrelation = 0.01
)

// Estimate is the result of analysing one window of samples.
type Estimate struct {
	Frequency float64 // Hz, or NoPitch
	RMS       float64
}

// Voiced reports whether the estimate carries a frequency.
func (e Estimate) Voiced() bool {
	return e.Frequency > 0
}

// Estimator finds the dominant periodic frequency of a sample window.
type Estimator interface {
	Estimate(buffer []float64, sampleRate float64) Estimate
}

// EstimatorFunc adapts a function to the Estimator interface.
type EstimatorFunc func(buffer []float64, sampleRate float64) Estimate

// Estimate calls f(buffer, sampleRate).
func (f EstimatorFunc) Estimate(buffer []float64, sampleRate float64) Estimate {
	return f(buffer, sampleRate)
}

// AutocorrelationEstimator is the default time-domain estimator.
var AutocorrelationEstimator Estimator = EstimatorFunc(Autocorrelate)

// RMS returns the root-mean-square amplitude of samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	sumSquares := 0.0
	for _, s := range samples {
		sumSquares += s * s
	}

	return math.Sqrt(sumSquares / float64(len(samples)))
}

// Autocorrelate estimates the fundamental frequency of buffer using a
// difference-based self-similarity scan over lags [0, N/2).
//
// The scan latches once similarity exceeds 0.9 while still rising and stops
// at the first decline after that, refining the best lag with a parabola
// through its neighbours. It does not search for a global maximum.
func Autocorrelate(buffer []float64, sampleRate float64) Estimate {
	rms := RMS(buffer)
	if rms < silenceRMS {
		return Estimate{Frequency: NoPitch, RMS: rms}
	}

	half := len(buffer) / 2
	if half < 2 {
		return Estimate{Frequency: NoPitch, RMS: rms}
	}

	var (
		bestOffset      = -1
		bestCorrelation = 0.0
		lastCorrelation = 1.0
		prevCorrelation = 1.0 // similarity one lag before lastCorrelation
		foundGood       = false
	)

	for offset := 0; offset < half; offset++ {
		diff := 0.0
		for i := 0; i < half; i++ {
			diff += math.Abs(buffer[i] - buffer[i+offset])
		}
		correlation := 1 - diff/float64(half)

		if correlation > goodCorrelation && correlation > lastCorrelation {
			foundGood = true
			if correlation > bestCorrelation {
				bestCorrelation = correlation
				bestOffset = offset
			}
		} else if foundGood {
			// bestOffset is offset-1 here: every lag since the latch was rising.
			shift := parabolicShift(prevCorrelation, bestCorrelation, correlation)
			return Estimate{Frequency: sampleRate / (float64(bestOffset) + shift), RMS: rms}
		}

		prevCorrelation = lastCorrelation
		lastCorrelation = correlation
	}

	if bestCorrelation > minCorrelation && bestOffset > 0 {
		return Estimate{Frequency: sampleRate / float64(bestOffset), RMS: rms}
	}

	return Estimate{Frequency: NoPitch, RMS: rms}
}

// parabolicShift returns the vertex offset, relative to the centre sample,
// of the parabola through (-1, before), (0, peak) and (1, after).
func parabolicShift(before, peak, after float64) float64 {
	denom := before - 2*peak + after
	if denom == 0 {
		return 0
	}
	return 0.5 * (before - after) / denom
}
