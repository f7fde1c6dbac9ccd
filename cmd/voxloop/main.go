// voxloop is a spoken-dialogue loop: it streams microphone audio to a
// transcription service, generates a reply, and speaks it back while
// listening for the user to barge in and interrupt playback.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voxloop/voxloop/internal/config"
	"github.com/voxloop/voxloop/internal/log"
	"github.com/voxloop/voxloop/pkg/audioio"
	"github.com/voxloop/voxloop/pkg/dialog"
	"github.com/voxloop/voxloop/pkg/generate"
	"github.com/voxloop/voxloop/pkg/synth"
	"github.com/voxloop/voxloop/pkg/transcribe"
	"github.com/voxloop/voxloop/pkg/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "voxloop: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log.Init(cfg.LogLevel)
	logger := log.L()

	captureCfg := audioio.Config{
		Backend:        audioio.Backend(cfg.Audio.Backend),
		SampleRate:     cfg.Audio.SampleRate,
		Channels:       cfg.Audio.Channels,
		BufferDuration: time.Duration(cfg.Audio.BufferMS) * time.Millisecond,
		Device:         cfg.Audio.CaptureDevice,
		FFmpegPath:     cfg.Audio.FFmpegPath,
		FFplayPath:     cfg.Audio.FFplayPath,
	}
	playbackCfg := captureCfg
	playbackCfg.Device = cfg.Audio.PlaybackDevice

	sources := func() (audioio.Source, error) {
		return audioio.NewSource(captureCfg, logger)
	}
	sinks := func() (audioio.Sink, error) {
		return audioio.NewSink(playbackCfg, logger)
	}

	transcriber, err := newTranscriber(cfg, logger)
	if err != nil {
		return err
	}
	listener := transcribe.NewListener(transcriber, sources, logger,
		transcribe.WithLanguage(cfg.Transcriber.Language),
		transcribe.WithPunctuation(cfg.Transcriber.Punctuate),
		transcribe.WithInterimResults(cfg.Transcriber.InterimResults),
	)

	chat, err := generate.NewClient(
		generate.WithBaseURL(cfg.Generator.BaseURL),
		generate.WithAPIKey(cfg.Generator.APIKey),
		generate.WithModel(cfg.Generator.Model),
		generate.WithMaxTokens(cfg.Generator.MaxTokens),
		generate.WithTemperature(cfg.Generator.Temperature),
		generate.WithTimeout(time.Duration(cfg.Generator.TimeoutMS)*time.Millisecond),
		generate.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("generator: %w", err)
	}
	defer chat.Close()

	responder := generate.NewResponder(chat, logger,
		generate.WithResponderSystemPrompt(cfg.Generator.SystemPrompt),
	)

	synthesizer, err := newSynthesizer(cfg, logger)
	if err != nil {
		return err
	}
	playback := dialog.NewPlayback(synthesizer, sinks, logger)

	metrics := dialog.NewMetricsCollector()
	coordinator := dialog.NewCoordinator(listener, responder, playback, logger,
		dialog.WithConfig(dialog.CoordinatorConfig{
			ListenTimeout: time.Duration(cfg.Transcriber.ListenSeconds) * time.Second,
			BargeTimeout:  time.Duration(cfg.Transcriber.BargeSeconds) * time.Second,
			ErrorBackoff:  time.Second,
		}),
		dialog.WithMetrics(metrics),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Web.Enabled {
		dashboard := web.NewServer(cfg.Web.Bind, coordinator, metrics, logger)
		coordinator.SetEventSink(dashboard)
		go func() {
			if err := dashboard.Start(ctx); err != nil {
				logger.Error("dashboard stopped", "error", err)
			}
		}()
	}

	logger.Info("voxloop starting",
		"audio_backend", cfg.Audio.Backend,
		"transcriber", transcriber.Name(),
		"model", cfg.Generator.Model,
		"web", cfg.Web.Enabled,
	)

	return coordinator.Run(ctx)
}

// newTranscriber wires the websocket provider when an endpoint is
// configured, falling back to the mock for hardware-free smoke runs.
func newTranscriber(cfg config.Config, logger *slog.Logger) (transcribe.Provider, error) {
	if cfg.Transcriber.URL == "" {
		logger.Warn("transcriber.url not set, using mock transcription")
		return &transcribe.MockProvider{}, nil
	}
	return transcribe.NewWSProvider(logger,
		transcribe.WithURL(cfg.Transcriber.URL),
		transcribe.WithAPIKey(cfg.Transcriber.APIKey),
	)
}

// newSynthesizer wires the REST provider when an endpoint is configured,
// falling back to the mock.
func newSynthesizer(cfg config.Config, logger *slog.Logger) (synth.Provider, error) {
	if cfg.Synthesizer.URL == "" {
		logger.Warn("synthesizer.url not set, using mock synthesis")
		return &synth.MockProvider{}, nil
	}
	return synth.NewClient(
		synth.WithURL(cfg.Synthesizer.URL),
		synth.WithAPIKey(cfg.Synthesizer.APIKey),
		synth.WithVoice(cfg.Synthesizer.Voice),
		synth.WithLanguage(cfg.Synthesizer.Language),
		synth.WithSampleRate(cfg.Audio.SampleRate),
		synth.WithTimeout(time.Duration(cfg.Synthesizer.TimeoutMS)*time.Millisecond),
		synth.WithLogger(logger),
	)
}
