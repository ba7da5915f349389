package transcription

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/yourusername/voicenote-transcription/internal/logger"
	"github.com/yourusername/voicenote-transcription/internal/metrics"
)

// ErrHandleClosed is returned by Get after Close.
var ErrHandleClosed = errors.New("model handle is closed")

// ModelHandle owns the process-wide model. The model is loaded on first use
// and reused until Close. A failed load is not remembered, so the next call
// tries again.
type ModelHandle struct {
	loader  Loader
	metrics *metrics.Metrics
	log     *logger.ContextLogger

	mu     sync.Mutex
	model  Model
	closed bool
}

// NewModelHandle creates a handle; nothing is loaded yet.
func NewModelHandle(loader Loader, m *metrics.Metrics, log *logger.Logger) *ModelHandle {
	if log == nil {
		log = logger.Discard()
	}
	return &ModelHandle{
		loader:  loader,
		metrics: m,
		log:     log.With("model"),
	}
}

// Get returns the loaded model, loading it if needed.
func (h *ModelHandle) Get(ctx context.Context) (Model, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHandleClosed
	}
	if h.model != nil {
		return h.model, nil
	}

	h.log.Info("Loading speech model...")
	start := time.Now()
	model, err := h.loader.Load(ctx)
	elapsed := time.Since(start)
	if err == nil && model == nil {
		err = errors.New("loader returned no model")
	}
	h.metrics.RecordModelLoad(err == nil, elapsed.Seconds())
	if err != nil {
		return nil, errors.Wrap(err, "failed to load speech model")
	}

	h.log.InfoWithFields("Speech model loaded", map[string]interface{}{
		"elapsed": elapsed.Round(time.Millisecond).String(),
	})
	h.model = model
	return model, nil
}

// Loaded reports whether the model is currently in memory.
func (h *ModelHandle) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.model != nil
}

// Close releases the model. Further Get calls fail.
func (h *ModelHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	if h.model == nil {
		return nil
	}
	err := h.model.Close()
	h.model = nil
	return err
}
