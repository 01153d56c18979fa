// Package config handles loading and validating the duomode configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the root configuration for the duomode daemon.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Transports    TransportsConfig    `mapstructure:"transports"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Dialogue      DialogueConfig      `mapstructure:"dialogue"`
	TTS           TTSConfig           `mapstructure:"tts"`
	Voices        map[string]string   `mapstructure:"voices"` // speaker label -> backend voice override
	Audio         AudioConfig         `mapstructure:"audio"`
	Storage       StorageConfig       `mapstructure:"storage"`
	EventStore    EventStoreConfig    `mapstructure:"eventstore"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
	NATS NATSConfig `mapstructure:"nats"`
}

// GRPCConfig configures the gRPC transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP/WebSocket transport.
type HTTPConfig struct {
	Enabled      bool  `mapstructure:"enabled"`
	Port         int   `mapstructure:"port"`
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// NATSConfig configures the NATS request/reply transport.
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
	Queue   string `mapstructure:"queue"`
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	Pause                time.Duration `mapstructure:"pause"`                 // silence between lines
	SynthesisConcurrency int           `mapstructure:"synthesis_concurrency"` // parallel synthesis calls per session
	Timeout              time.Duration `mapstructure:"timeout"`               // whole-session deadline, 0 disables
}

// TranscriptionConfig selects and configures the speech-to-text backend.
type TranscriptionConfig struct {
	Backend  string                 `mapstructure:"backend"` // openai, local, deepgram, exec, mock
	Language string                 `mapstructure:"language"`
	OpenAI   OpenAITranscribeConfig `mapstructure:"openai"`
	Local    LocalWhisperConfig     `mapstructure:"local"`
	Deepgram DeepgramConfig         `mapstructure:"deepgram"`
	Exec     ExecConfig             `mapstructure:"exec"`
}

// OpenAITranscribeConfig holds OpenAI transcription settings.
type OpenAITranscribeConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// LocalWhisperConfig holds self-hosted whisper settings.
type LocalWhisperConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Type      string `mapstructure:"type"` // "openai" (default) or "asr" (ahmetoner/whisper-asr-webservice)
	Model     string `mapstructure:"model"`
	VADFilter bool   `mapstructure:"vad_filter"`
}

// DeepgramConfig holds Deepgram settings shared by transcription and speech.
type DeepgramConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	SampleRate int    `mapstructure:"sample_rate"`
}

// ExecConfig configures a backend implemented by an external command.
type ExecConfig struct {
	Command    string        `mapstructure:"command"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SampleRate int           `mapstructure:"sample_rate"`
	Channels   int           `mapstructure:"channels"`
	// TempDir holds scoped input files for recognizers that read a path.
	// Empty means os.TempDir.
	TempDir    string        `mapstructure:"temp_dir"`
}

// DialogueConfig selects and configures the dialogue generator.
type DialogueConfig struct {
	Backend      string               `mapstructure:"backend"` // openai, local, exec, mock
	MaxTurns     int                  `mapstructure:"max_turns"`
	MaxLineChars int                  `mapstructure:"max_line_chars"`
	OpenAI       OpenAIDialogueConfig `mapstructure:"openai"`
	Local        LocalLLMConfig       `mapstructure:"local"`
	Exec         ExecConfig           `mapstructure:"exec"`
}

// OpenAIDialogueConfig holds OpenAI chat settings.
type OpenAIDialogueConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// LocalLLMConfig holds self-hosted LLM settings.
type LocalLLMConfig struct {
	Endpoint string `mapstructure:"endpoint"` // Ollama /api/generate or OpenAI-compatible /v1/chat/completions
	Model    string `mapstructure:"model"`
}

// TTSConfig selects and configures the text-to-speech backend.
type TTSConfig struct {
	Backend  string             `mapstructure:"backend"` // piper, openai, deepgram, exec, mock
	Piper    PiperConfig        `mapstructure:"piper"`
	OpenAI   OpenAISpeechConfig `mapstructure:"openai"`
	Deepgram DeepgramConfig     `mapstructure:"deepgram"`
	Exec     ExecConfig         `mapstructure:"exec"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
type PiperConfig struct {
	Endpoint string        `mapstructure:"endpoint"` // Wyoming TCP endpoint (host:port)
	Timeout  time.Duration `mapstructure:"timeout"`
}

// OpenAISpeechConfig holds OpenAI speech settings.
type OpenAISpeechConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	Speed          float64 `mapstructure:"speed"`
	ResponseFormat string  `mapstructure:"response_format"` // mp3, wav, pcm
}

// AudioConfig controls stitching and the output container.
type AudioConfig struct {
	Format        string `mapstructure:"format"`      // mp3 or wav
	SampleRate    int    `mapstructure:"sample_rate"` // 0: first segment's rate
	FFmpegCommand string `mapstructure:"ffmpeg_command"`
}

// StorageConfig controls where finished artifacts go.
type StorageConfig struct {
	Dir   string      `mapstructure:"dir"`
	Drive DriveConfig `mapstructure:"drive"`
}

// DriveConfig enables uploading artifacts to a Google Drive folder.
type DriveConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CredentialsFile string `mapstructure:"credentials_file"`
	FolderID        string `mapstructure:"folder_id"`
}

// EventStoreConfig controls the session history database.
type EventStoreConfig struct {
	Path          string `mapstructure:"path"`
	RetentionMode string `mapstructure:"retention_mode"` // persistent, ephemeral
	RetentionDays int    `mapstructure:"retention_days"`
	MaxSessions   int    `mapstructure:"max_sessions"`
}

// TelemetryConfig configures tracing and metrics export.
type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	Environment  string `mapstructure:"environment"`
	Traces       string `mapstructure:"traces"` // none, stdout, otlp
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`  // debug, info, warn, error
	Format      string `mapstructure:"format"` // json, text
	SessionDir  string `mapstructure:"session_dir"`
	RedactTopic bool   `mapstructure:"redact_topic"`
}

// Load reads the configuration from .env, file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./duomode.yaml, ./configs/duomode.yaml, /etc/duomode/duomode.yaml.
func Load(configFile string) (*Config, error) {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("duomode")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/duomode")
	}

	// Environment variables: DUOMODE_PIPELINE_PAUSE, DUOMODE_TTS_BACKEND, etc.
	v.SetEnvPrefix("DUOMODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${OPENAI_API_KEY}")
	cfg.Transcription.OpenAI.APIKey = resolveEnvRef(cfg.Transcription.OpenAI.APIKey)
	cfg.Transcription.Deepgram.APIKey = resolveEnvRef(cfg.Transcription.Deepgram.APIKey)
	cfg.Dialogue.OpenAI.APIKey = resolveEnvRef(cfg.Dialogue.OpenAI.APIKey)
	cfg.TTS.OpenAI.APIKey = resolveEnvRef(cfg.TTS.OpenAI.APIKey)
	cfg.TTS.Deepgram.APIKey = resolveEnvRef(cfg.TTS.Deepgram.APIKey)
	cfg.Storage.Drive.CredentialsFile = resolveEnvRef(cfg.Storage.Drive.CredentialsFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.grpc.enabled", false)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("transports.http.max_body_bytes", 25<<20)
	v.SetDefault("transports.nats.enabled", false)
	v.SetDefault("transports.nats.url", "nats://localhost:4222")
	v.SetDefault("transports.nats.subject", "duomode.generate")
	v.SetDefault("transports.nats.queue", "duomode")

	v.SetDefault("pipeline.pause", "250ms")
	v.SetDefault("pipeline.synthesis_concurrency", 4)
	v.SetDefault("pipeline.timeout", "5m")

	v.SetDefault("transcription.backend", "openai")
	v.SetDefault("transcription.language", "")
	v.SetDefault("transcription.openai.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("transcription.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("transcription.openai.model", "whisper-1")
	v.SetDefault("transcription.local.endpoint", "http://localhost:8000/v1/audio/transcriptions")
	v.SetDefault("transcription.local.type", "openai")
	v.SetDefault("transcription.local.model", "small")
	v.SetDefault("transcription.deepgram.api_key", "${DEEPGRAM_API_KEY}")
	v.SetDefault("transcription.deepgram.model", "nova-2")
	v.SetDefault("transcription.exec.timeout", "60s")
	v.SetDefault("transcription.exec.temp_dir", "")

	v.SetDefault("dialogue.backend", "openai")
	v.SetDefault("dialogue.max_turns", 8)
	v.SetDefault("dialogue.max_line_chars", 280)
	v.SetDefault("dialogue.openai.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("dialogue.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("dialogue.openai.model", "gpt-4o-mini")
	v.SetDefault("dialogue.openai.max_tokens", 600)
	v.SetDefault("dialogue.openai.temperature", 0.7)
	v.SetDefault("dialogue.local.endpoint", "http://localhost:11434/api/generate")
	v.SetDefault("dialogue.local.model", "llama3")
	v.SetDefault("dialogue.exec.timeout", "60s")

	v.SetDefault("tts.backend", "openai")
	v.SetDefault("tts.piper.endpoint", "localhost:10200")
	v.SetDefault("tts.piper.timeout", "30s")
	v.SetDefault("tts.openai.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("tts.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("tts.openai.model", "gpt-4o-mini-tts")
	v.SetDefault("tts.openai.speed", 1.0)
	v.SetDefault("tts.openai.response_format", "wav")
	v.SetDefault("tts.deepgram.api_key", "${DEEPGRAM_API_KEY}")
	v.SetDefault("tts.deepgram.sample_rate", 24000)
	v.SetDefault("tts.exec.timeout", "60s")
	v.SetDefault("tts.exec.sample_rate", 22050)
	v.SetDefault("tts.exec.channels", 1)

	v.SetDefault("audio.format", "mp3")
	v.SetDefault("audio.sample_rate", 24000)
	v.SetDefault("audio.ffmpeg_command", "")

	v.SetDefault("storage.dir", "data/artifacts")
	v.SetDefault("storage.drive.enabled", false)
	v.SetDefault("storage.drive.credentials_file", "${GOOGLE_APPLICATION_CREDENTIALS}")

	v.SetDefault("eventstore.path", "data/duomode.db")
	v.SetDefault("eventstore.retention_mode", "persistent")
	v.SetDefault("eventstore.retention_days", 14)
	v.SetDefault("eventstore.max_sessions", 1000)

	v.SetDefault("telemetry.service_name", "duomode")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.traces", "none")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.session_dir", "logs")
	v.SetDefault("logging.redact_topic", false)
}

// Validate checks backend names and numeric ranges.
func (c *Config) Validate() error {
	var errs []error
	check := func(field, val string, allowed ...string) {
		for _, a := range allowed {
			if val == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unknown value %q (want one of %s)", field, val, strings.Join(allowed, ", ")))
	}

	check("transcription.backend", c.Transcription.Backend, "openai", "local", "deepgram", "exec", "mock")
	check("dialogue.backend", c.Dialogue.Backend, "openai", "local", "exec", "mock")
	check("tts.backend", c.TTS.Backend, "piper", "openai", "deepgram", "exec", "mock")
	check("audio.format", strings.ToLower(c.Audio.Format), "mp3", "wav")
	check("eventstore.retention_mode", c.EventStore.RetentionMode, "persistent", "ephemeral")
	check("telemetry.traces", c.Telemetry.Traces, "none", "stdout", "otlp")

	if c.Pipeline.Pause < 0 {
		errs = append(errs, errors.New("pipeline.pause must not be negative"))
	}
	if c.Pipeline.SynthesisConcurrency < 1 {
		errs = append(errs, errors.New("pipeline.synthesis_concurrency must be at least 1"))
	}
	if c.Dialogue.MaxTurns < 1 {
		errs = append(errs, errors.New("dialogue.max_turns must be at least 1"))
	}
	if c.Audio.SampleRate < 0 {
		errs = append(errs, errors.New("audio.sample_rate must not be negative"))
	}
	if c.Storage.Drive.Enabled && c.Storage.Drive.CredentialsFile == "" {
		errs = append(errs, errors.New("storage.drive.credentials_file is required when drive upload is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
// Unset variables resolve to the empty string.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
