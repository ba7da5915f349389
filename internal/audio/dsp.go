package audio

import (
	"math"
	"time"
)

// TargetSampleRate is the rate the speech model expects.
const TargetSampleRate = 16000

// PeakNormalize scales samples in place so the loudest one sits headroomDB below
// full scale. Digital silence is left alone.
func PeakNormalize(samples []float32, headroomDB float64) {
	var peak float32
	for _, s := range samples {
		if a := abs32(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	gain := float32(dbToAmplitude(-headroomDB)) / peak
	for i := range samples {
		samples[i] *= gain
	}
}

// Downmix averages interleaved channels into mono.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// Resample converts mono audio between rates. Downsampling is preceded by a
// windowed-sinc low-pass at the new Nyquist frequency.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || len(samples) == 0 {
		return samples
	}

	src := samples
	if to < from {
		src = lowPass(samples, 0.45*float64(to)/float64(from), from/to+1)
	}

	ratio := float64(from) / float64(to)
	outLen := int(float64(len(src)) / ratio)
	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		if idx+1 < len(src) {
			out[i] = src[idx]*(1-frac) + src[idx+1]*frac
		} else {
			out[i] = src[len(src)-1]
		}
	}
	return out
}

// lowPass applies a Hann-windowed sinc FIR; cutoff is in cycles per sample.
func lowPass(samples []float32, cutoff float64, width int) []float32 {
	half := 8 * width
	taps := make([]float64, 2*half+1)
	var sum float64
	for n := range taps {
		k := float64(n - half)
		var h float64
		if k == 0 {
			h = 2 * cutoff
		} else {
			h = math.Sin(2*math.Pi*cutoff*k) / (math.Pi * k)
		}
		h *= 0.5 - 0.5*math.Cos(2*math.Pi*float64(n)/float64(len(taps)-1))
		taps[n] = h
		sum += h
	}
	for n := range taps {
		taps[n] /= sum
	}

	out := make([]float32, len(samples))
	for i := range samples {
		var acc float64
		for n, h := range taps {
			j := i + n - half
			if j < 0 || j >= len(samples) {
				continue
			}
			acc += h * float64(samples[j])
		}
		out[i] = float32(acc)
	}
	return out
}

// HighPass applies a first-order RC high-pass filter in place.
func HighPass(samples []float32, rate int, cutoffHz float64) {
	if len(samples) == 0 {
		return
	}
	rc := 1.0 / (2 * math.Pi * cutoffHz)
	dt := 1.0 / float64(rate)
	alpha := float32(rc / (rc + dt))

	prevIn := samples[0]
	prevOut := samples[0]
	for i := 1; i < len(samples); i++ {
		in := samples[i]
		out := alpha * (prevOut + in - prevIn)
		samples[i] = out
		prevIn = in
		prevOut = out
	}
}

// Compressor describes a downward dynamic-range compressor.
type Compressor struct {
	ThresholdDB float64
	Ratio       float64
	Attack      time.Duration
	Release     time.Duration
}

// SpeechCompressor evens out speech loudness: -20 dB threshold, 4:1.
var SpeechCompressor = Compressor{
	ThresholdDB: -20,
	Ratio:       4,
	Attack:      5 * time.Millisecond,
	Release:     50 * time.Millisecond,
}

// Apply compresses samples in place. The level detector is the RMS over the
// trailing attack window; attenuation ramps in over the attack time and back
// to zero over the release time once the level falls.
func (c Compressor) Apply(samples []float32, rate int) {
	attackFrames := framesFor(c.Attack, rate)
	releaseFrames := framesFor(c.Release, rate)
	threshold := dbToAmplitude(c.ThresholdDB)

	dry := make([]float32, len(samples))
	copy(dry, samples)

	var sumSq float64
	var attenuation, releaseStep float64
	for i := range dry {
		x := float64(dry[i])
		sumSq += x * x
		if j := i - attackFrames; j >= 0 {
			old := float64(dry[j])
			sumSq -= old * old
		}
		if sumSq < 0 {
			sumSq = 0
		}
		window := attackFrames
		if i+1 < window {
			window = i + 1
		}
		rms := math.Sqrt(sumSq / float64(window))

		var over float64
		if rms > 0 {
			over = math.Max(amplitudeToDB(rms/threshold), 0)
		}
		target := (1 - 1/c.Ratio) * over

		switch {
		case target > attenuation:
			attenuation = math.Min(attenuation+target/float64(attackFrames), target)
			releaseStep = 0
		case target < attenuation:
			// linear ramp from where the release started
			if releaseStep == 0 {
				releaseStep = attenuation / float64(releaseFrames)
			}
			attenuation = math.Max(attenuation-releaseStep, target)
		default:
			releaseStep = 0
		}

		if attenuation != 0 {
			samples[i] = float32(x * dbToAmplitude(-attenuation))
		}
	}
}

func framesFor(d time.Duration, rate int) int {
	n := int(d.Seconds() * float64(rate))
	if n < 1 {
		return 1
	}
	return n
}

func dbToAmplitude(db float64) float64 {
	return math.Pow(10, db/20)
}

func amplitudeToDB(ratio float64) float64 {
	return 20 * math.Log10(ratio)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
