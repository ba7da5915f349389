package transcription

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yourusername/voicenote-transcription/internal/audio"
)

// hallucinatingModel always claims to hear a phrase over the whole clip, the
// way real models do on silence (with low confidence), and tracks how many
// calls overlap.
type hallucinatingModel struct {
	delay   time.Duration
	running int32
	peak    int32
	calls   int32
}

func (m *hallucinatingModel) Transcribe(_ context.Context, samples []float32, _ DecodeOptions) ([]Segment, error) {
	n := atomic.AddInt32(&m.running, 1)
	defer atomic.AddInt32(&m.running, -1)
	atomic.AddInt32(&m.calls, 1)
	for {
		old := atomic.LoadInt32(&m.peak)
		if n <= old || atomic.CompareAndSwapInt32(&m.peak, old, n) {
			break
		}
	}
	time.Sleep(m.delay)

	logProb := -0.2
	var peak float32
	for _, v := range samples {
		if v > peak {
			peak = v
		}
	}
	if peak < 0.01 {
		logProb = -0.9
	}

	end := time.Duration(float64(len(samples)) / audio.TargetSampleRate * float64(time.Second))
	return []Segment{{
		Text:             " слава  україні .дякую",
		Start:            0,
		End:              end,
		AvgLogProb:       logProb,
		NoSpeechProb:     NotReported,
		CompressionRatio: NotReported,
	}}, nil
}

func (m *hallucinatingModel) Close() error { return nil }

func newTestPipeline(t *testing.T, model Model, workers int) *Pipeline {
	t.Helper()
	pre := audio.NewPreprocessor(audio.PreprocessorConfig{})
	engine := NewEngine(EngineConfig{
		Handle:      NewModelHandle(staticLoader(model), nil, nil),
		Options:     DefaultDecodeOptions(),
		AudioLoader: pre,
	})
	p := NewPipeline(PipelineConfig{Workers: workers, Preprocessor: pre, Engine: engine})
	t.Cleanup(p.Close)
	return p
}

func writeClip(t *testing.T, name string, samples []float32) audio.Input {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := audio.WriteWAV(path, samples, audio.TargetSampleRate); err != nil {
		t.Fatalf("Failed to write clip: %v", err)
	}
	return audio.NewInput(path)
}

func TestPipelineSpeechAndSilence(t *testing.T) {
	p := newTestPipeline(t, &hallucinatingModel{}, DefaultWorkers)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	speech := p.Transcribe(ctx, writeClip(t, "speech.wav", tone(audio.TargetSampleRate, 0.5)))
	if speech.Failed() {
		t.Fatalf("Speech clip failed: %v", speech.Err)
	}
	if speech.Text != "Слава україні. дякую" {
		t.Errorf("Expected cleaned transcript, got %q", speech.Text)
	}
	if speech.RequestID == "" {
		t.Error("Expected a request ID")
	}
	if speech.AudioDuration < 990*time.Millisecond {
		t.Errorf("Expected ~1s of audio, got %v", speech.AudioDuration)
	}

	silence := p.Transcribe(ctx, writeClip(t, "silence.wav", make([]float32, audio.TargetSampleRate)))
	if silence.Failed() {
		t.Fatalf("Silent clip failed: %v", silence.Err)
	}
	if silence.Text != "" {
		t.Errorf("Expected empty transcript for silence, got %q", silence.Text)
	}
}

func TestPipelineConcurrentRequests(t *testing.T) {
	const requests = 10

	model := &hallucinatingModel{delay: 20 * time.Millisecond}
	p := newTestPipeline(t, model, 2)
	in := writeClip(t, "speech.wav", tone(audio.TargetSampleRate/2, 0.5))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	results := make([]Result, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.Transcribe(ctx, in)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, res := range results {
		if res.Failed() || res.Text == "" {
			t.Errorf("Request %d: unexpected result %+v", i, res)
		}
		if seen[res.RequestID] {
			t.Errorf("Duplicate request ID %s", res.RequestID)
		}
		seen[res.RequestID] = true
	}
	if got := atomic.LoadInt32(&model.calls); got != requests {
		t.Errorf("Expected %d model calls, got %d", requests, got)
	}
	if peak := atomic.LoadInt32(&model.peak); peak > 2 {
		t.Errorf("Expected at most 2 concurrent inferences, saw %d", peak)
	}
}

type panickingEngine struct{}

func (panickingEngine) Transcribe(context.Context, *audio.Normalized) (string, error) {
	panic("index out of range")
}

func TestPipelineRecoversPanics(t *testing.T) {
	pre := audio.NewPreprocessor(audio.PreprocessorConfig{})
	p := NewPipeline(PipelineConfig{Workers: 1, Preprocessor: pre, Engine: panickingEngine{}})
	defer p.Close()

	res := p.Transcribe(context.Background(), writeClip(t, "a.wav", tone(1600, 0.3)))
	if res.Failure != FailureInternal || res.Err == nil || res.Text != "" {
		t.Errorf("Expected internal failure, got %+v", res)
	}

	// the worker must survive for the next request
	res = p.Transcribe(context.Background(), writeClip(t, "b.wav", tone(1600, 0.3)))
	if res.Failure != FailureInternal {
		t.Errorf("Expected second request to be handled, got %+v", res)
	}
}

func TestPipelineDegradedInputStillTranscribes(t *testing.T) {
	model := &hallucinatingModel{}
	engine := NewEngine(EngineConfig{
		Handle:      NewModelHandle(staticLoader(model), nil, nil),
		Options:     DefaultDecodeOptions(),
		AudioLoader: &fakeAudioLoader{samples: tone(audio.TargetSampleRate, 0.5)},
	})
	pre := audio.NewPreprocessor(audio.PreprocessorConfig{})
	p := NewPipeline(PipelineConfig{Workers: 1, Preprocessor: pre, Engine: engine})
	defer p.Close()

	in := audio.Input{Path: filepath.Join(t.TempDir(), "missing.wav"), Format: audio.FormatWAV}
	res := p.Transcribe(context.Background(), in)
	if !res.Degraded {
		t.Error("Expected degraded preprocessing")
	}
	if res.Failed() || res.Text == "" {
		t.Errorf("Expected transcript from fallback audio, got %+v", res)
	}
}

func TestPipelineModelLoadFailureIsTyped(t *testing.T) {
	engine := NewEngine(EngineConfig{
		Handle: NewModelHandle(LoaderFunc(func(context.Context) (Model, error) {
			return nil, context.DeadlineExceeded
		}), nil, nil),
		Options: DefaultDecodeOptions(),
	})
	pre := audio.NewPreprocessor(audio.PreprocessorConfig{})
	p := NewPipeline(PipelineConfig{Workers: 1, Preprocessor: pre, Engine: engine})
	defer p.Close()

	res := p.Transcribe(context.Background(), writeClip(t, "a.wav", tone(1600, 0.3)))
	if res.Failure != FailureModelLoad || res.Text != "" {
		t.Errorf("Expected model load failure, got %+v", res)
	}
}

func TestPipelineClosed(t *testing.T) {
	p := newTestPipeline(t, &hallucinatingModel{}, 1)
	p.Close()

	res := p.Transcribe(context.Background(), audio.Input{Path: "x.wav", Format: audio.FormatWAV})
	if res.Failure != FailureInternal || res.Err == nil {
		t.Errorf("Expected internal failure after Close, got %+v", res)
	}
	if res.RequestID == "" {
		t.Error("Expected a request ID on the failure")
	}
}

func TestPipelineWaitTimeoutKeepsRequestID(t *testing.T) {
	model := &hallucinatingModel{delay: 300 * time.Millisecond}
	p := newTestPipeline(t, model, 1)
	in := writeClip(t, "speech.wav", tone(audio.TargetSampleRate/4, 0.5))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := p.Transcribe(ctx, in)
	if res.Failure != FailureInternal || res.Err == nil {
		t.Fatalf("Expected internal failure on timeout, got %+v", res)
	}
	if res.RequestID == "" {
		t.Error("Expected the timed out result to carry its request ID")
	}
}
