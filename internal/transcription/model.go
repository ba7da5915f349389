package transcription

//go:generate mockgen -source=model.go -destination=mock_model_test.go -package=transcription

import (
	"context"
	"math"
	"time"
)

// NotReported marks a segment score the backend does not provide.
var NotReported = math.NaN()

// Segment is one decoded span of speech.
type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration

	// Scores are NaN (NotReported) when the backend cannot compute them; the
	// engine fills in what it can.
	AvgLogProb       float64
	CompressionRatio float64
	NoSpeechProb     float64
}

// Model is a loaded speech-recognition model. Samples are 16 kHz mono floats.
type Model interface {
	Transcribe(ctx context.Context, samples []float32, opts DecodeOptions) ([]Segment, error)
	Close() error
}

// Loader loads model weights. It is called at most once per successful load.
type Loader interface {
	Load(ctx context.Context) (Model, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (Model, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context) (Model, error) {
	return f(ctx)
}
