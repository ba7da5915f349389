// Package openai transcribes through an OpenAI-compatible audio API.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/yourusername/voicenote-transcription/internal/audio"
	"github.com/yourusername/voicenote-transcription/internal/logger"
	"github.com/yourusername/voicenote-transcription/internal/metrics"
	"github.com/yourusername/voicenote-transcription/internal/transcription"
)

// Config holds configuration for the remote backend
type Config struct {
	APIKey     string
	BaseURL    string // empty for api.openai.com
	Model      string // e.g. whisper-1
	HTTPClient *http.Client
	Retry      RetryConfig
	Metrics    *metrics.Metrics
	Logger     *logger.Logger
}

// Model sends normalized clips to the transcription endpoint as WAV.
type Model struct {
	client  *goopenai.Client
	model   string
	retry   RetryConfig
	metrics *metrics.Metrics
	log     *logger.ContextLogger
}

// New creates the remote model. No request is made until Transcribe.
func New(cfg Config) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.Whisper1
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	} else {
		clientCfg.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}

	return &Model{
		client:  goopenai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		retry:   cfg.Retry,
		metrics: cfg.Metrics,
		log:     cfg.Logger.With("openai"),
	}, nil
}

// NewLoader adapts New to transcription.Loader.
func NewLoader(cfg Config) transcription.Loader {
	return transcription.LoaderFunc(func(context.Context) (transcription.Model, error) {
		return New(cfg)
	})
}

// Transcribe implements transcription.Model.
func (m *Model) Transcribe(ctx context.Context, samples []float32, opts transcription.DecodeOptions) ([]transcription.Segment, error) {
	if opts.Translate {
		return nil, fmt.Errorf("translation is not supported by the transcription endpoint")
	}

	wav, err := audio.EncodeWAV(samples, audio.TargetSampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audio: %w", err)
	}

	var resp goopenai.AudioResponse
	err = withRetry(ctx, m.retry, func(attempt int, err error) {
		m.metrics.RecordBackendRetry()
		m.log.WarnWithFields("Retrying transcription request", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})
	}, func() error {
		var callErr error
		resp, callErr = m.client.CreateTranscription(ctx, goopenai.AudioRequest{
			Model:       m.model,
			FilePath:    "voice.wav",
			Reader:      bytes.NewReader(wav),
			Prompt:      opts.InitialPrompt,
			Temperature: opts.Temperature,
			Language:    opts.Language,
			Format:      goopenai.AudioResponseFormatVerboseJSON,
		})
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}

	return toSegments(resp), nil
}

// Close implements transcription.Model.
func (m *Model) Close() error {
	return nil
}

func toSegments(resp goopenai.AudioResponse) []transcription.Segment {
	if len(resp.Segments) == 0 {
		if resp.Text == "" {
			return nil
		}
		// models without verbose_json segments still return the text
		return []transcription.Segment{{
			Text:             resp.Text,
			End:              seconds(resp.Duration),
			AvgLogProb:       transcription.NotReported,
			CompressionRatio: transcription.NotReported,
			NoSpeechProb:     transcription.NotReported,
		}}
	}

	out := make([]transcription.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		out = append(out, transcription.Segment{
			Text:             s.Text,
			Start:            seconds(s.Start),
			End:              seconds(s.End),
			AvgLogProb:       s.AvgLogprob,
			CompressionRatio: s.CompressionRatio,
			NoSpeechProb:     s.NoSpeechProb,
		})
	}
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
