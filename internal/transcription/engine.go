package transcription

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/yourusername/voicenote-transcription/internal/audio"
	"github.com/yourusername/voicenote-transcription/internal/logger"
	"github.com/yourusername/voicenote-transcription/internal/metrics"
)

// AudioLoader decodes an untouched input for the model. Used when
// preprocessing degraded.
type AudioLoader interface {
	LoadForModel(ctx context.Context, in audio.Input) ([]float32, error)
}

// EngineConfig holds configuration for the transcription engine
type EngineConfig struct {
	Handle      *ModelHandle
	Options     DecodeOptions
	AudioLoader AudioLoader
	Metrics     *metrics.Metrics
	Logger      *logger.Logger
}

// Engine runs the speech model over normalized audio and filters what it
// decodes.
type Engine struct {
	handle  *ModelHandle
	opts    DecodeOptions
	loader  AudioLoader
	vad     *audio.VoiceActivityDetector
	metrics *metrics.Metrics
	log     *logger.ContextLogger
}

// NewEngine creates a new transcription engine
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	return &Engine{
		handle:  cfg.Handle,
		opts:    cfg.Options,
		loader:  cfg.AudioLoader,
		vad:     audio.NewVAD(audio.VADConfig{SampleRate: audio.TargetSampleRate}),
		metrics: cfg.Metrics,
		log:     cfg.Logger.With("engine"),
	}
}

// Options returns the decoding configuration.
func (e *Engine) Options() DecodeOptions {
	return e.opts
}

// Transcribe returns the raw transcript of the clip. An empty string with a
// nil error means no speech survived the gates. Errors are *Error values
// tagged with a FailureReason.
func (e *Engine) Transcribe(ctx context.Context, clip *audio.Normalized) (string, error) {
	if clip == nil {
		return "", fail(FailureInternal, errors.New("no audio"))
	}

	model, err := e.handle.Get(ctx)
	if err != nil {
		return "", fail(FailureModelLoad, err)
	}

	samples := clip.Samples
	if clip.Degraded {
		if e.loader == nil {
			return "", fail(FailureInference, errors.New("preprocessing failed and no fallback loader is configured"))
		}
		samples, err = e.loader.LoadForModel(ctx, clip.Input)
		if err != nil {
			return "", fail(FailureInference, errors.Wrap(err, "failed to load original audio"))
		}
	}
	if len(samples) == 0 {
		return "", nil
	}

	start := time.Now()
	segments, err := model.Transcribe(ctx, samples, e.opts)
	if err != nil {
		return "", fail(FailureInference, errors.Wrap(err, "failed to process audio"))
	}

	kept := make([]Segment, 0, len(segments))
	for i, seg := range segments {
		seg = e.score(seg, samples)
		if gate := rejectedBy(seg, e.opts); gate != "" {
			e.metrics.RecordRejectedSegment(gate)
			e.log.DebugWithFields("Segment rejected", map[string]interface{}{
				"segment": i,
				"gate":    gate,
				"text":    seg.Text,
			})
			continue
		}
		kept = append(kept, seg)
	}

	text := joinSegments(kept)
	e.log.DebugWithFields("Transcription complete", map[string]interface{}{
		"segments":    len(segments),
		"kept":        len(kept),
		"text_length": len(text),
		"elapsed":     fmt.Sprintf("%.2fs", time.Since(start).Seconds()),
	})
	return text, nil
}

// score fills in the segment scores the backend did not report.
func (e *Engine) score(seg Segment, samples []float32) Segment {
	if !known(seg.CompressionRatio) {
		seg.CompressionRatio = CompressionRatio(seg.Text)
	}
	if !known(seg.NoSpeechProb) && seg.End > seg.Start {
		seg.NoSpeechProb = e.vad.NoSpeechProbability(samples, seg.Start, seg.End)
	}
	return seg
}
