package transcription

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/yourusername/voicenote-transcription/internal/audio"
	"github.com/yourusername/voicenote-transcription/internal/logger"
	"github.com/yourusername/voicenote-transcription/internal/metrics"
	"github.com/yourusername/voicenote-transcription/internal/worker"
)

// DefaultWorkers is the number of requests transcribed at the same time.
const DefaultWorkers = 2

// Preprocessor normalizes audio; it never fails.
type Preprocessor interface {
	Preprocess(ctx context.Context, in audio.Input) *audio.Normalized
}

// Transcriber produces a raw transcript from normalized audio.
type Transcriber interface {
	Transcribe(ctx context.Context, clip *audio.Normalized) (string, error)
}

// PipelineConfig holds configuration for the transcription pipeline
type PipelineConfig struct {
	Workers      int
	Preprocessor Preprocessor
	Engine       Transcriber
	Metrics      *metrics.Metrics
	Logger       *logger.Logger
}

// Pipeline handles the complete audio-to-text flow on a fixed worker pool.
// Flow: Input → Preprocess → Engine → Clean → Result
type Pipeline struct {
	pool    *worker.Pool
	pre     Preprocessor
	engine  Transcriber
	metrics *metrics.Metrics
	log     *logger.ContextLogger
}

// NewPipeline creates a pipeline and starts its workers
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}

	return &Pipeline{
		pool:    worker.NewPool(cfg.Workers, cfg.Logger),
		pre:     cfg.Preprocessor,
		engine:  cfg.Engine,
		metrics: cfg.Metrics,
		log:     cfg.Logger.With("pipeline"),
	}
}

// TranscribeAsync queues a request and returns immediately. Once a worker
// picks the request up it runs to completion. The future never carries an
// error unless the pipeline is closed.
func (p *Pipeline) TranscribeAsync(in audio.Input) *worker.Future[Result] {
	return p.dispatch(uuid.NewString(), in)
}

func (p *Pipeline) dispatch(id string, in audio.Input) *worker.Future[Result] {
	p.metrics.RecordTranscriptionRequest()

	f := worker.Go(p.pool, func() Result {
		p.metrics.SetQueueDepth(p.pool.Pending())
		return p.run(id, in)
	})
	p.metrics.SetQueueDepth(p.pool.Pending())
	return f
}

// Transcribe queues a request and waits for it. If ctx ends first the request
// keeps running in the background and an internal failure carrying the same
// request ID is returned.
func (p *Pipeline) Transcribe(ctx context.Context, in audio.Input) Result {
	id := uuid.NewString()
	res, err := p.dispatch(id, in).Wait(ctx)
	if err != nil {
		return Result{RequestID: id, Failure: FailureInternal, Err: errors.Wrap(err, "waiting for transcription")}
	}
	return res
}

// Pending returns the number of requests waiting for a worker.
func (p *Pipeline) Pending() int {
	return p.pool.Pending()
}

// Close stops accepting requests and waits for queued ones to finish.
func (p *Pipeline) Close() {
	p.pool.Close()
}

func (p *Pipeline) run(id string, in audio.Input) (res Result) {
	start := time.Now()
	res.RequestID = id

	defer func() {
		if r := recover(); r != nil {
			res = Result{
				RequestID: id,
				Failure:   FailureInternal,
				Err:       errors.Errorf("panic: %v\n%s", r, debug.Stack()),
				Degraded:  res.Degraded,
			}
		}
		res.Elapsed = time.Since(start)
		if res.Failed() {
			p.metrics.RecordTranscriptionFailure(res.Failure.String(), res.Elapsed.Seconds())
		} else {
			p.metrics.RecordTranscriptionSuccess(res.Elapsed.Seconds(), res.Empty())
		}
	}()

	// dispatched requests are never cancelled
	ctx := context.Background()

	clip := p.pre.Preprocess(ctx, in)
	res.Degraded = clip.Degraded
	res.AudioDuration = clip.Duration()
	if clip.Degraded {
		p.metrics.RecordDegraded()
	}
	p.metrics.RecordAudioDuration(res.AudioDuration.Seconds())

	raw, err := p.engine.Transcribe(ctx, clip)
	if err != nil {
		res.Failure = ReasonOf(err)
		res.Err = err
		return res
	}

	res.Text = Clean(raw)
	p.log.DebugWithFields("Request finished", map[string]interface{}{
		"request_id": id,
		"degraded":   res.Degraded,
		"duration":   fmt.Sprintf("%.1fs", res.AudioDuration.Seconds()),
		"chars":      len(res.Text),
	})
	return res
}
