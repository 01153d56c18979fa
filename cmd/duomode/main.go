// Duomode turns a spoken topic into a short two-speaker tutoring dialogue
// rendered as a single audio clip.
//
// Usage:
//
//	duomode [flags]
//	duomode --config /path/to/duomode.yaml
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dimiro1/banner"

	"github.com/nadzzz/duomode/internal/artifact"
	"github.com/nadzzz/duomode/internal/audio"
	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/dispatch"
	"github.com/nadzzz/duomode/internal/eventstore"
	"github.com/nadzzz/duomode/internal/health"
	"github.com/nadzzz/duomode/internal/logging"
	"github.com/nadzzz/duomode/internal/pipeline"
	"github.com/nadzzz/duomode/internal/telemetry"
	"github.com/nadzzz/duomode/internal/transport"
	grpctransport "github.com/nadzzz/duomode/internal/transport/grpc"
	httptransport "github.com/nadzzz/duomode/internal/transport/http"
	natstransport "github.com/nadzzz/duomode/internal/transport/nats"
	"github.com/nadzzz/duomode/internal/voice"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/duomode.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("duomode %s\n", version)
		os.Exit(0)
	}

	if err := run(*configFile); err != nil {
		slog.Error("duomode failed", "error", err)
		os.Exit(1)
	}
}

func printBanner() {
	tpl := "{{ .Title \"DUOMODE\" \"\" 0 }}\nVersion: " + version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	config.SetupLogging(cfg.Logging)
	printBanner()
	slog.Info("duomode starting", "version", version)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := telemetry.Setup(ctx, cfg.Telemetry, version, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	// Capabilities.
	transcriber, err := newTranscriber(cfg.Transcription)
	if err != nil {
		return err
	}
	defer transcriber.Close()

	resolver := voice.NewResolver(cfg.TTS.Backend, cfg.Voices)
	generator, err := newGenerator(cfg.Dialogue, resolver.Labels())
	if err != nil {
		return err
	}
	defer generator.Close()

	synthesizer, err := newSynthesizer(cfg.TTS)
	if err != nil {
		return err
	}
	defer synthesizer.Close()

	encoder, err := audio.NewEncoder(cfg.Audio.Format, cfg.Audio.FFmpegCommand)
	if err != nil {
		return err
	}

	redactor := logging.Redactor{Enabled: cfg.Logging.RedactTopic}
	orchestrator, err := pipeline.New(pipeline.Deps{
		Transcriber: transcriber,
		Generator:   generator,
		Voices:      resolver,
		Synthesizer: synthesizer,
		Stitcher:    audio.NewStitcher(encoder, cfg.Audio.SampleRate),
	}, pipeline.Options{
		Pause:       cfg.Pipeline.Pause,
		Concurrency: cfg.Pipeline.SynthesisConcurrency,
		RedactTopic: redactor.Text,
	})
	if err != nil {
		return err
	}
	slog.Info("pipeline ready",
		"speakers", resolver.Labels(),
		"pause", cfg.Pipeline.Pause,
		"format", encoder.ContentType())

	// Storage.
	history, err := eventstore.Open(ctx, cfg.EventStore, logging.Component(slog.Default(), "eventstore"))
	if err != nil {
		return err
	}
	defer history.Close()

	files, err := artifact.NewFileStore(cfg.Storage.Dir)
	if err != nil {
		return err
	}

	opts := dispatch.Options{
		SessionLogDir: cfg.Logging.SessionDir,
		Timeout:       cfg.Pipeline.Timeout,
	}
	if cfg.Storage.Drive.Enabled {
		uploader, err := artifact.NewDriveUploader(ctx, cfg.Storage.Drive)
		if err != nil {
			return err
		}
		opts.Uploader = uploader
		slog.Info("drive upload enabled", "folder", cfg.Storage.Drive.FolderID)
	}
	dispatcher := dispatch.New(orchestrator, history, files, opts)

	// Initialize enabled transports.
	var transports []transport.Transport
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(cfg.Transports.HTTP, dispatcher))
	}
	if cfg.Transports.GRPC.Enabled {
		transports = append(transports, grpctransport.New(cfg.Transports.GRPC))
	}
	if cfg.Transports.NATS.Enabled {
		transports = append(transports, natstransport.New(cfg.Transports.NATS))
	}
	if len(transports) == 0 {
		return fmt.Errorf("no transports enabled: enable at least one in config")
	}

	// Start health check server.
	healthServer := health.New(cfg.Server.HealthPort, metricsHandler)
	healthServer.AddCheck("eventstore", history.Ping)
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	// Start all transports.
	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, dispatcher.Handle); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	// Mark as ready once all transports are started.
	healthServer.SetReady(true)
	slog.Info("duomode ready",
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort)

	// Block until shutdown signal.
	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")
	healthServer.SetReady(false)

	// Close all transports gracefully.
	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("duomode stopped")
	return nil
}
