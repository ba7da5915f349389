package openai

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yourusername/voicenote-transcription/internal/transcription"
)

const verboseResponse = `{
  "task": "transcribe",
  "language": "ukrainian",
  "duration": 2.5,
  "text": "Добрий день. Як справи?",
  "segments": [
    {"id": 0, "start": 0.0, "end": 1.2, "text": " Добрий день.", "avg_logprob": -0.21, "compression_ratio": 0.9, "no_speech_prob": 0.01},
    {"id": 1, "start": 1.2, "end": 2.5, "text": " Як справи?", "avg_logprob": -0.33, "compression_ratio": 0.8, "no_speech_prob": 0.02}
  ]
}`

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func newTestModel(t *testing.T, handler http.HandlerFunc) *Model {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m, err := New(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1", Retry: fastRetry()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m
}

func TestTranscribeVerboseJSON(t *testing.T) {
	var form map[string][]string
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Unexpected Authorization header %q", got)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("ParseMultipartForm failed: %v", err)
		}
		form = r.MultipartForm.Value

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Missing file part: %v", err)
		} else {
			head, _ := io.ReadAll(io.LimitReader(file, 4))
			if string(head) != "RIFF" {
				t.Errorf("Expected WAV upload, got %q", head)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, verboseResponse)
	})

	opts := transcription.DefaultDecodeOptions()
	segs, err := m.Transcribe(context.Background(), make([]float32, 1600), opts)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if got := first(form["language"]); got != "uk" {
		t.Errorf("Expected language uk, got %q", got)
	}
	if got := first(form["response_format"]); got != "verbose_json" {
		t.Errorf("Expected verbose_json, got %q", got)
	}
	if got := first(form["prompt"]); !strings.Contains(got, "українська") {
		t.Errorf("Expected Ukrainian prompt, got %q", got)
	}

	if len(segs) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(segs))
	}
	if segs[1].Text != " Як справи?" || segs[1].Start != 1200*time.Millisecond {
		t.Errorf("Unexpected segment %+v", segs[1])
	}
	if math.Abs(segs[0].AvgLogProb+0.21) > 1e-9 || segs[0].NoSpeechProb != 0.01 {
		t.Errorf("Scores not carried over: %+v", segs[0])
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var calls int32
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{"message": "overloaded", "type": "server_error"},
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, verboseResponse)
	})

	segs, err := m.Transcribe(context.Background(), make([]float32, 1600), transcription.DefaultDecodeOptions())
	if err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if len(segs) != 2 || atomic.LoadInt32(&calls) != 2 {
		t.Errorf("Expected 2 calls and 2 segments, got %d calls, %d segments", calls, len(segs))
	}
}

func TestTranscribeDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "bad key", "type": "invalid_request_error"},
		})
	})

	if _, err := m.Transcribe(context.Background(), make([]float32, 1600), transcription.DefaultDecodeOptions()); err == nil {
		t.Fatal("Expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected a single attempt, got %d", got)
	}
}

func TestToSegmentsWithoutSegments(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text": "Привіт", "duration": 1.0}`)
	})

	segs, err := m.Transcribe(context.Background(), make([]float32, 1600), transcription.DefaultDecodeOptions())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if len(segs) != 1 || segs[0].Text != "Привіт" || !math.IsNaN(segs[0].NoSpeechProb) {
		t.Errorf("Expected one unscored segment, got %+v", segs)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("Expected error without API key")
	}
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}
