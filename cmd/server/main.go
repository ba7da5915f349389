package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/yourusername/voicenote-transcription/internal/api"
	"github.com/yourusername/voicenote-transcription/internal/audio"
	"github.com/yourusername/voicenote-transcription/internal/config"
	"github.com/yourusername/voicenote-transcription/internal/logger"
	"github.com/yourusername/voicenote-transcription/internal/metrics"
	"github.com/yourusername/voicenote-transcription/internal/models"
	"github.com/yourusername/voicenote-transcription/internal/transcription"
	"github.com/yourusername/voicenote-transcription/internal/transcription/openai"
	"github.com/yourusername/voicenote-transcription/internal/transcription/whispercpp"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewWithConfig(logger.Config{
		Level:   cfg.Log.Level,
		Format:  logger.ParseOutputFormat(cfg.Log.Format),
		FileDir: cfg.LogFileDir(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.Info("Starting voice note transcription server")
	log.InfoWithFields("Config", map[string]interface{}{
		"bind_address": cfg.Server.BindAddress,
		"backend":      cfg.Engine.Backend,
		"model_size":   cfg.Engine.ModelSize,
		"language":     cfg.Engine.Language,
		"workers":      cfg.Workers.Count,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	loader, err := newLoader(cfg, m, log)
	if err != nil {
		log.Fatal("Failed to initialize %s backend: %v", cfg.Engine.Backend, err)
	}
	handle := transcription.NewModelHandle(loader, m, log)

	preConfig := audio.PreprocessorConfig{
		FFmpegPath: cfg.Audio.FFmpegPath,
		Logger:     log,
	}
	if cfg.Server.Debug {
		preConfig.DebugWAVDir = cfg.Server.DebugWAVDir
	}
	pre := audio.NewPreprocessor(preConfig)

	opts := transcription.DefaultDecodeOptions()
	opts.Language = cfg.Engine.Language
	engine := transcription.NewEngine(transcription.EngineConfig{
		Handle:      handle,
		Options:     opts,
		AudioLoader: pre,
		Metrics:     m,
		Logger:      log,
	})

	pipeline := transcription.NewPipeline(transcription.PipelineConfig{
		Workers:      cfg.Workers.Count,
		Preprocessor: pre,
		Engine:       engine,
		Metrics:      m,
		Logger:       log,
	})
	log.Info("Transcription pipeline initialized with %d workers", cfg.Workers.Count)

	apiServer := api.New(api.Config{
		BindAddress:    cfg.Server.BindAddress,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Pipeline:       pipeline,
		Gatherer:       registry,
		Metrics:        m,
		Logger:         log,
	})

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Error("Server error: %v", err)
	case sig := <-sigChan:
		log.Info("Received signal %v, shutting down...", sig)
	}

	if err := shutdown(apiServer, pipeline, handle); err != nil {
		log.Error("Shutdown finished with errors: %v", err)
	}
	log.Info("Server stopped")
	log.Close()
}

func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		// Try default config if file doesn't exist
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = config.Default()
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func newLoader(cfg *config.Config, m *metrics.Metrics, log *logger.Logger) (transcription.Loader, error) {
	switch cfg.Engine.Backend {
	case config.BackendOpenAI:
		return openai.NewLoader(openai.Config{
			APIKey:  cfg.Engine.OpenAI.APIKey,
			BaseURL: cfg.Engine.OpenAI.BaseURL,
			Model:   cfg.Engine.OpenAI.Model,
			Metrics: m,
			Logger:  log,
		}), nil
	}

	info, ok := models.Lookup(cfg.Engine.ModelSize)
	if !ok {
		return nil, fmt.Errorf("unknown model size %q", cfg.Engine.ModelSize)
	}
	manager, err := models.NewManager(cfg.Engine.ModelsDir)
	if err != nil {
		return nil, err
	}

	resolve := func(ctx context.Context) (string, error) {
		progress := make(chan models.Progress, 16)
		go logProgress(log, progress)
		defer close(progress)
		return manager.Ensure(ctx, info, cfg.Engine.AutoDownload, progress)
	}
	return whispercpp.NewLoader(resolve, whispercpp.Config{
		Threads: uint(cfg.Engine.Threads),
		Logger:  log,
	}), nil
}

func logProgress(log *logger.Logger, progress <-chan models.Progress) {
	last := -1
	for p := range progress {
		if p.Done {
			log.Info("Model %s downloaded (%d bytes)", p.Size, p.Downloaded)
			continue
		}
		if p.Total <= 0 {
			continue
		}
		pct := int(p.Downloaded * 100 / p.Total)
		if pct/10 != last/10 {
			log.Info("Downloading model %s: %d%%", p.Size, pct)
			last = pct
		}
	}
}

// shutdown stops accepting requests, lets queued ones finish and releases the
// model.
func shutdown(server *api.Server, pipeline *transcription.Pipeline, handle *transcription.ModelHandle) error {
	var result *multierror.Error

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("stop server: %w", err))
	}

	pipeline.Close()

	if err := handle.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close model: %w", err))
	}
	return result.ErrorOrNil()
}
