package audio

import (
	"math"
	"time"
)

// VADConfig holds configuration for the energy-based voice activity detector
type VADConfig struct {
	SampleRate      int     // Audio sample rate (16kHz)
	FrameDurationMs int     // Frame duration in milliseconds (10ms)
	EnergyThreshold float64 // RMS threshold on the int16 scale
}

// VoiceActivityDetector classifies fixed-size frames as speech or silence
type VoiceActivityDetector struct {
	config          VADConfig
	samplesPerFrame int
}

// NewVAD creates a new Voice Activity Detector
func NewVAD(config VADConfig) *VoiceActivityDetector {
	if config.SampleRate == 0 {
		config.SampleRate = TargetSampleRate
	}
	if config.FrameDurationMs == 0 {
		config.FrameDurationMs = 10
	}
	if config.EnergyThreshold == 0 {
		config.EnergyThreshold = 100.0
	}

	return &VoiceActivityDetector{
		config:          config,
		samplesPerFrame: config.SampleRate * config.FrameDurationMs / 1000,
	}
}

// IsSpeech reports whether a single frame carries speech energy
func (v *VoiceActivityDetector) IsSpeech(frame []float32) bool {
	if len(frame) == 0 {
		return false
	}
	return frameEnergy(frame) > v.config.EnergyThreshold
}

// NoSpeechProbability estimates how likely the window [from, to) holds no
// speech as the fraction of silent frames inside it. Windows that fall outside
// the samples count as silence.
func (v *VoiceActivityDetector) NoSpeechProbability(samples []float32, from, to time.Duration) float64 {
	start := v.offset(from)
	end := v.offset(to)
	if end > len(samples) {
		end = len(samples)
	}
	if start < 0 {
		start = 0
	}
	if start >= end {
		return 1
	}

	var silent, total int
	for i := start; i < end; i += v.samplesPerFrame {
		j := i + v.samplesPerFrame
		if j > end {
			j = end
		}
		total++
		if !v.IsSpeech(samples[i:j]) {
			silent++
		}
	}
	return float64(silent) / float64(total)
}

func (v *VoiceActivityDetector) offset(d time.Duration) int {
	return int(d.Seconds() * float64(v.config.SampleRate))
}

// frameEnergy computes the RMS of a frame scaled to int16 range, so the
// threshold keeps the same meaning as for raw PCM16.
func frameEnergy(frame []float32) float64 {
	var sumSquares float64
	for _, s := range frame {
		val := float64(s) * 32768
		sumSquares += val * val
	}
	return math.Sqrt(sumSquares / float64(len(frame)))
}
