// Package whispercpp runs speech recognition locally through the whisper.cpp
// Go bindings.
package whispercpp

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/yourusername/voicenote-transcription/internal/logger"
	"github.com/yourusername/voicenote-transcription/internal/transcription"
)

// Config holds configuration for the whisper.cpp backend
type Config struct {
	ModelPath string
	Threads   uint // 0 keeps the whisper.cpp default
	Logger    *logger.Logger
}

// Model wraps a whisper.cpp model shared by all requests. Each call gets its
// own context; calls are serialized because contexts share the model state.
type Model struct {
	model   whisper.Model
	mu      sync.Mutex
	threads uint
	path    string
	log     *logger.ContextLogger
}

// Load reads the ggml weights from disk.
func Load(cfg Config) (*Model, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	log := cfg.Logger.With("whisper")
	log.Info("Loading Whisper model from %s", cfg.ModelPath)

	model, err := whisper.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load Whisper model: %w", err)
	}

	log.InfoWithFields("Whisper model loaded", map[string]interface{}{
		"path":         cfg.ModelPath,
		"multilingual": model.IsMultilingual(),
	})
	return &Model{
		model:   model,
		threads: cfg.Threads,
		path:    cfg.ModelPath,
		log:     log,
	}, nil
}

// NewLoader returns a Loader that resolves the model path at load time, so a
// missing file can be downloaded on first use.
func NewLoader(resolve func(ctx context.Context) (string, error), cfg Config) transcription.Loader {
	return transcription.LoaderFunc(func(ctx context.Context) (transcription.Model, error) {
		path, err := resolve(ctx)
		if err != nil {
			return nil, err
		}
		cfg.ModelPath = path
		return Load(cfg)
	})
}

// Transcribe implements transcription.Model. Samples must be 16 kHz mono.
func (m *Model) Transcribe(ctx context.Context, samples []float32, opts transcription.DecodeOptions) ([]transcription.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(samples) == 0 {
		return nil, fmt.Errorf("empty audio samples")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wctx, err := m.newContext(opts)
	if err != nil {
		return nil, err
	}

	m.log.Debug("Processing %.2fs of audio", float64(len(samples))/16000.0)

	var segments []transcription.Segment
	err = wctx.Process(samples, nil, func(segment whisper.Segment) {
		m.log.DebugWithFields("Segment received", map[string]interface{}{
			"segment": len(segments) + 1,
			"text":    segment.Text,
			"start":   segment.Start.String(),
			"end":     segment.End.String(),
		})
		segments = append(segments, transcription.Segment{
			Text:             segment.Text,
			Start:            segment.Start,
			End:              segment.End,
			AvgLogProb:       avgLogProb(segment.Tokens),
			CompressionRatio: transcription.NotReported,
			NoSpeechProb:     transcription.NotReported,
		})
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to process audio: %w", err)
	}

	return segments, nil
}

func (m *Model) newContext(opts transcription.DecodeOptions) (whisper.Context, error) {
	wctx, err := m.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create Whisper context: %w", err)
	}

	if err := wctx.SetLanguage(opts.Language); err != nil {
		return nil, fmt.Errorf("failed to set language %q: %w", opts.Language, err)
	}
	if m.threads > 0 {
		wctx.SetThreads(m.threads)
	}
	wctx.SetTranslate(opts.Translate)
	wctx.SetTokenTimestamps(opts.WordTimestamps)
	wctx.SetTemperature(opts.Temperature)
	// no sampling fallback
	wctx.SetTemperatureFallback(0)
	if !opts.ConditionOnPreviousText {
		wctx.SetMaxContext(0)
	}
	if opts.InitialPrompt != "" {
		wctx.SetInitialPrompt(opts.InitialPrompt)
	}
	return wctx, nil
}

// Close releases the model weights.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.model == nil {
		return nil
	}
	err := m.model.Close()
	m.model = nil
	return err
}

// avgLogProb averages log(p) over the text tokens of a segment. Special tokens
// ([_BEG_], <|endoftext|>, timestamps) are skipped.
func avgLogProb(tokens []whisper.Token) float64 {
	var sum float64
	var n int
	for _, tok := range tokens {
		if isSpecial(tok.Text) {
			continue
		}
		p := float64(tok.P)
		if p < 1e-10 {
			p = 1e-10
		}
		sum += math.Log(p)
		n++
	}
	if n == 0 {
		return transcription.NotReported
	}
	return sum / float64(n)
}

func isSpecial(text string) bool {
	return strings.HasPrefix(text, "[_") || strings.HasPrefix(text, "<|")
}
