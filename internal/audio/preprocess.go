package audio

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/yourusername/voicenote-transcription/internal/logger"
)

const (
	normalizeHeadroomDB = 0.1
	highPassCutoffHz    = 80.0
)

// Normalized is the output of the preprocessor: 16 kHz mono float samples, or
// the untouched input when preprocessing failed.
type Normalized struct {
	Input      Input
	Samples    []float32
	SampleRate int

	// Degraded is set when any stage failed; Samples is then nil and the
	// engine must load Input itself.
	Degraded bool
	Err      error
}

// Duration returns the length of the normalized audio.
func (n *Normalized) Duration() time.Duration {
	if n == nil || n.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(n.Samples)) / float64(n.SampleRate) * float64(time.Second))
}

// PreprocessorConfig holds configuration for the preprocessor
type PreprocessorConfig struct {
	Decoder     Decoder
	FFmpegPath  string
	DebugWAVDir string // when set, every normalized clip is saved here
	Logger      *logger.Logger
}

// Preprocessor turns arbitrary voice notes into speech-model-ready audio.
type Preprocessor struct {
	decoder  Decoder
	fallback *FFmpegDecoder
	debugDir string
	log      *logger.ContextLogger
}

// NewPreprocessor creates a preprocessor
func NewPreprocessor(cfg PreprocessorConfig) *Preprocessor {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.Decoder == nil {
		cfg.Decoder = NewMultiDecoder(cfg.FFmpegPath)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	return &Preprocessor{
		decoder:  cfg.Decoder,
		fallback: &FFmpegDecoder{Path: cfg.FFmpegPath, SampleRate: TargetSampleRate, Channels: 1},
		debugDir: cfg.DebugWAVDir,
		log:      cfg.Logger.With("preprocess"),
	}
}

// Preprocess runs decode → peak normalize → mono → 16 kHz → high-pass → compress.
// It never fails: on any error the result is Degraded and carries the input.
func (p *Preprocessor) Preprocess(ctx context.Context, in Input) *Normalized {
	samples, err := p.process(ctx, in)
	if err != nil {
		p.log.WarnWithFields("Preprocessing failed, using original audio", map[string]interface{}{
			"path":  in.Path,
			"error": err.Error(),
		})
		return &Normalized{Input: in, Degraded: true, Err: err}
	}

	out := &Normalized{Input: in, Samples: samples, SampleRate: TargetSampleRate}
	p.log.DebugWithFields("Audio normalized", map[string]interface{}{
		"path":     in.Path,
		"duration": fmt.Sprintf("%.1fs", out.Duration().Seconds()),
	})

	if p.debugDir != "" {
		p.saveDebugWAV(in, samples)
	}
	return out
}

func (p *Preprocessor) process(ctx context.Context, in Input) (samples []float32, err error) {
	// decoders are third-party code fed untrusted files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()

	buf, err := p.decoder.Decode(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("decode: missing stream format")
	}
	if len(buf.Data) == 0 {
		return nil, fmt.Errorf("decode: no samples")
	}

	data := buf.Data
	PeakNormalize(data, normalizeHeadroomDB)
	mono := Downmix(data, buf.Format.NumChannels)
	mono = Resample(mono, buf.Format.SampleRate, TargetSampleRate)
	if len(mono) == 0 {
		return nil, fmt.Errorf("resample: clip too short")
	}
	HighPass(mono, TargetSampleRate, highPassCutoffHz)
	SpeechCompressor.Apply(mono, TargetSampleRate)
	return mono, nil
}

// LoadForModel decodes the untouched input straight to 16 kHz mono. It is the
// model-side loader used when preprocessing degraded.
func (p *Preprocessor) LoadForModel(ctx context.Context, in Input) ([]float32, error) {
	buf, err := p.fallback.Decode(ctx, in)
	if err != nil {
		return nil, err
	}
	return buf.Data, nil
}

func (p *Preprocessor) saveDebugWAV(in Input, samples []float32) {
	name := fmt.Sprintf("normalized-%d-%s.wav", time.Now().UnixNano(), filepath.Base(in.Path))
	wavPath := filepath.Join(p.debugDir, name)
	if err := WriteWAV(wavPath, samples, TargetSampleRate); err != nil {
		p.log.Warn("Failed to save debug WAV: %v", err)
	} else {
		p.log.Debug("Saved normalized clip to %s", wavPath)
	}
}
