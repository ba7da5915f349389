package transcription

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yourusername/voicenote-transcription/internal/audio"
)

func tone(n int, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*300*float64(i)/audio.TargetSampleRate))
	}
	return out
}

// fakeModel returns canned segments and records what it was given.
type fakeModel struct {
	mu       sync.Mutex
	segments []Segment
	err      error
	calls    int
	samples  []float32
	opts     DecodeOptions
}

func (m *fakeModel) Transcribe(_ context.Context, samples []float32, opts DecodeOptions) ([]Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.samples = samples
	m.opts = opts
	return m.segments, m.err
}

func (m *fakeModel) Close() error { return nil }

func staticLoader(m Model) Loader {
	return LoaderFunc(func(context.Context) (Model, error) { return m, nil })
}

type fakeAudioLoader struct {
	samples []float32
	err     error
	got     audio.Input
}

func (l *fakeAudioLoader) LoadForModel(_ context.Context, in audio.Input) ([]float32, error) {
	l.got = in
	return l.samples, l.err
}

func newTestEngine(m Model, loader AudioLoader) *Engine {
	return NewEngine(EngineConfig{
		Handle:      NewModelHandle(staticLoader(m), nil, nil),
		Options:     DefaultDecodeOptions(),
		AudioLoader: loader,
	})
}

func seg(text string, logProb, noSpeech float64) Segment {
	return Segment{Text: text, AvgLogProb: logProb, NoSpeechProb: noSpeech, CompressionRatio: NotReported}
}

func TestEngineAppliesSegmentGates(t *testing.T) {
	model := &fakeModel{segments: []Segment{
		seg(" Добрий день,", -0.2, 0.1),
		seg(strings.Repeat("так так ", 40), -0.1, 0.1),
		seg(" невпевнений шматок", -1.3, 0.1),
		seg(" тиша", -0.5, 0.9),
		seg(" як справи?", -0.3, 0.2),
		seg(" я тут.", -0.2, 0.9),
	}}
	engine := newTestEngine(model, nil)

	clip := &audio.Normalized{Samples: tone(audio.TargetSampleRate, 0.3), SampleRate: audio.TargetSampleRate}
	text, err := engine.Transcribe(context.Background(), clip)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "Добрий день, як справи? я тут." {
		t.Errorf("Unexpected transcript %q", text)
	}
}

func TestEngineEstimatesNoSpeechFromAudio(t *testing.T) {
	samples := make([]float32, 2*audio.TargetSampleRate)
	copy(samples[audio.TargetSampleRate:], tone(audio.TargetSampleRate, 0.3))

	model := &fakeModel{segments: []Segment{
		{Text: "Дякую за перегляд!", Start: 0, End: time.Second, AvgLogProb: -0.5, NoSpeechProb: NotReported, CompressionRatio: NotReported},
		{Text: "Слава Україні", Start: time.Second, End: 2 * time.Second, AvgLogProb: -0.1, NoSpeechProb: NotReported, CompressionRatio: NotReported},
	}}
	engine := newTestEngine(model, nil)

	text, err := engine.Transcribe(context.Background(), &audio.Normalized{Samples: samples, SampleRate: audio.TargetSampleRate})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "Слава Україні" {
		t.Errorf("Expected segment over silence dropped, got %q", text)
	}
}

func TestEngineKeepsConfidentSpeechAfterLeadInSilence(t *testing.T) {
	samples := make([]float32, 4*audio.TargetSampleRate+audio.TargetSampleRate/2)
	copy(samples[5*audio.TargetSampleRate/2:], tone(2*audio.TargetSampleRate, 0.3))

	model := &fakeModel{segments: []Segment{
		{Text: " Передзвоніть мені.", Start: 0, End: 4500 * time.Millisecond, AvgLogProb: -0.15, NoSpeechProb: NotReported, CompressionRatio: NotReported},
	}}
	engine := newTestEngine(model, nil)

	text, err := engine.Transcribe(context.Background(), &audio.Normalized{Samples: samples, SampleRate: audio.TargetSampleRate})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "Передзвоніть мені." {
		t.Errorf("Expected confident segment kept despite leading pause, got %q", text)
	}

	// the same window without a confidence score is treated as silence
	model.segments[0].AvgLogProb = NotReported
	text, err = engine.Transcribe(context.Background(), &audio.Normalized{Samples: samples, SampleRate: audio.TargetSampleRate})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "" {
		t.Errorf("Expected unscored mostly-silent segment dropped, got %q", text)
	}
}

func TestRejectedBy(t *testing.T) {
	opts := DefaultDecodeOptions()
	cases := []struct {
		seg  Segment
		want string
	}{
		{seg("текст", -0.2, 0.1), ""},
		{seg("текст", -0.2, 0.9), ""},
		{seg("текст", -0.5, 0.9), GateNoSpeech},
		{seg("текст", -0.8, 0.9), GateNoSpeech},
		{seg("текст", NotReported, 0.9), GateNoSpeech},
		{seg("текст", -0.8, 0.1), GateLogProb},
		{seg("текст", NotReported, NotReported), ""},
		{Segment{Text: "так", AvgLogProb: -0.1, NoSpeechProb: 0, CompressionRatio: 3.1}, GateCompressionRatio},
	}
	for i, tc := range cases {
		if got := rejectedBy(tc.seg, opts); got != tc.want {
			t.Errorf("Case %d (%+v): expected %q, got %q", i, tc.seg, tc.want, got)
		}
	}
}

func TestEnginePassesFixedOptions(t *testing.T) {
	model := &fakeModel{}
	engine := newTestEngine(model, nil)

	clip := &audio.Normalized{Samples: tone(1600, 0.3), SampleRate: audio.TargetSampleRate}
	if _, err := engine.Transcribe(context.Background(), clip); err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	opts := model.opts
	if opts.Language != "uk" || opts.Translate || opts.WordTimestamps {
		t.Errorf("Unexpected language/task options: %+v", opts)
	}
	if opts.Temperature != 0 || !opts.ConditionOnPreviousText {
		t.Errorf("Unexpected decoding options: %+v", opts)
	}
	if opts.CompressionRatioThreshold != 2.0 || opts.LogProbThreshold != -0.5 || opts.NoSpeechThreshold != 0.4 {
		t.Errorf("Unexpected thresholds: %+v", opts)
	}
	if !strings.Contains(opts.InitialPrompt, "українська") {
		t.Errorf("Expected Ukrainian initial prompt, got %q", opts.InitialPrompt)
	}
}

func TestEngineDegradedClipUsesModelLoader(t *testing.T) {
	model := &fakeModel{segments: []Segment{seg("текст", -0.1, 0.0)}}
	loader := &fakeAudioLoader{samples: tone(800, 0.3)}
	engine := newTestEngine(model, loader)

	in := audio.Input{Path: "/tmp/voice.ogg", Format: audio.FormatOgg}
	text, err := engine.Transcribe(context.Background(), &audio.Normalized{Input: in, Degraded: true})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "текст" {
		t.Errorf("Expected transcript from fallback samples, got %q", text)
	}
	if loader.got != in {
		t.Errorf("Loader got %+v, want %+v", loader.got, in)
	}
	if len(model.samples) != 800 {
		t.Errorf("Model should see the loader's samples, got %d", len(model.samples))
	}

	loader.err = errors.New("ffmpeg missing")
	_, err = engine.Transcribe(context.Background(), &audio.Normalized{Input: in, Degraded: true})
	if ReasonOf(err) != FailureInference {
		t.Errorf("Expected inference failure, got %v", err)
	}
}

func TestEngineFailureReasons(t *testing.T) {
	clip := &audio.Normalized{Samples: tone(1600, 0.3), SampleRate: audio.TargetSampleRate}

	loadErr := errors.New("no such file")
	broken := NewEngine(EngineConfig{
		Handle: NewModelHandle(LoaderFunc(func(context.Context) (Model, error) {
			return nil, loadErr
		}), nil, nil),
		Options: DefaultDecodeOptions(),
	})
	_, err := broken.Transcribe(context.Background(), clip)
	if ReasonOf(err) != FailureModelLoad {
		t.Errorf("Expected model load failure, got %v", err)
	}
	if !errors.Is(err, loadErr) {
		t.Errorf("Expected cause to be preserved, got %v", err)
	}

	inferErr := errors.New("whisper_full failed")
	engine := newTestEngine(&fakeModel{err: inferErr}, nil)
	_, err = engine.Transcribe(context.Background(), clip)
	if ReasonOf(err) != FailureInference || !errors.Is(err, inferErr) {
		t.Errorf("Expected inference failure wrapping cause, got %v", err)
	}
}

func TestEngineEmptyAudio(t *testing.T) {
	model := &fakeModel{}
	engine := newTestEngine(model, nil)

	text, err := engine.Transcribe(context.Background(), &audio.Normalized{SampleRate: audio.TargetSampleRate})
	if err != nil || text != "" {
		t.Errorf("Expected empty result, got %q, %v", text, err)
	}
	if model.calls != 0 {
		t.Error("Model should not run on empty audio")
	}
}

func TestCompressionRatio(t *testing.T) {
	if r := CompressionRatio(strings.Repeat("ой ", 100)); r <= 2.0 {
		t.Errorf("Repetitive text should exceed 2.0, got %.2f", r)
	}
	if r := CompressionRatio("Привіт, як справи?"); r >= 2.0 {
		t.Errorf("Ordinary sentence should stay below 2.0, got %.2f", r)
	}
	if r := CompressionRatio(""); r != 0 {
		t.Errorf("Empty text should score 0, got %.2f", r)
	}
}
