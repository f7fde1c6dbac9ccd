// Package config loads voxloop process configuration from a YAML file
// with environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type AudioConfig struct {
	Backend        string `yaml:"backend"` // auto, ffmpeg, mock
	SampleRate     int    `yaml:"sample_rate"`
	Channels       int    `yaml:"channels"`
	BufferMS       int    `yaml:"buffer_ms"`
	CaptureDevice  string `yaml:"capture_device"`
	PlaybackDevice string `yaml:"playback_device"`
	FFmpegPath     string `yaml:"ffmpeg_path"`
	FFplayPath     string `yaml:"ffplay_path"`
}

type TranscriberConfig struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	Language       string `yaml:"language"`
	Punctuate      bool   `yaml:"punctuate"`
	InterimResults bool   `yaml:"interim_results"`
	ListenSeconds  int    `yaml:"listen_seconds"`
	BargeSeconds   int    `yaml:"barge_seconds"`
}

type GeneratorConfig struct {
	BaseURL      string  `yaml:"base_url"`
	APIKey       string  `yaml:"api_key"`
	Model        string  `yaml:"model"`
	SystemPrompt string  `yaml:"system_prompt"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
	TimeoutMS    int     `yaml:"timeout_ms"`
}

type SynthesizerConfig struct {
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	Voice     string `yaml:"voice"`
	Language  string `yaml:"language"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
}

type Config struct {
	LogLevel    string            `yaml:"log_level"`
	Audio       AudioConfig       `yaml:"audio"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Synthesizer SynthesizerConfig `yaml:"synthesizer"`
	Web         WebConfig         `yaml:"web"`
}

// Default returns the baseline configuration before file and env overrides.
func Default() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Backend:    "auto",
			SampleRate: 16000,
			Channels:   1,
			BufferMS:   20,
		},
		Transcriber: TranscriberConfig{
			Language:       "en-US",
			Punctuate:      true,
			InterimResults: true,
			ListenSeconds:  15,
			BargeSeconds:   60,
		},
		Generator: GeneratorConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   256,
			Temperature: 0.7,
			TimeoutMS:   30000,
		},
		Synthesizer: SynthesizerConfig{
			Language:  "en-US",
			TimeoutMS: 30000,
		},
		Web: WebConfig{
			Enabled: false,
			Bind:    ":8090",
		},
	}
}

// Load reads the config file at path (optional) and applies env overrides.
// An empty path loads defaults plus env only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return cfg, fmt.Errorf("config file not found: %s", path)
			}
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels <= 0 {
		return fmt.Errorf("audio.channels must be positive, got %d", c.Audio.Channels)
	}
	if c.Transcriber.ListenSeconds <= 0 {
		return fmt.Errorf("transcriber.listen_seconds must be positive, got %d", c.Transcriber.ListenSeconds)
	}
	if c.Transcriber.BargeSeconds <= 0 {
		return fmt.Errorf("transcriber.barge_seconds must be positive, got %d", c.Transcriber.BargeSeconds)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, target *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	setInt := func(key string, target *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*target = n
			}
		}
	}
	setBool := func(key string, target *bool) {
		if v, ok := os.LookupEnv(key); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*target = b
			}
		}
	}
	setFloat := func(key string, target *float64) {
		if v, ok := os.LookupEnv(key); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				*target = f
			}
		}
	}

	setString("VOXLOOP_LOG_LEVEL", &cfg.LogLevel)

	setString("VOXLOOP_AUDIO_BACKEND", &cfg.Audio.Backend)
	setInt("VOXLOOP_AUDIO_SAMPLE_RATE", &cfg.Audio.SampleRate)
	setString("VOXLOOP_AUDIO_CAPTURE_DEVICE", &cfg.Audio.CaptureDevice)
	setString("VOXLOOP_AUDIO_PLAYBACK_DEVICE", &cfg.Audio.PlaybackDevice)

	setString("VOXLOOP_TRANSCRIBER_URL", &cfg.Transcriber.URL)
	setString("VOXLOOP_TRANSCRIBER_API_KEY", &cfg.Transcriber.APIKey)
	setString("VOXLOOP_TRANSCRIBER_LANGUAGE", &cfg.Transcriber.Language)
	setBool("VOXLOOP_TRANSCRIBER_INTERIM_RESULTS", &cfg.Transcriber.InterimResults)
	setInt("VOXLOOP_TRANSCRIBER_LISTEN_SECONDS", &cfg.Transcriber.ListenSeconds)
	setInt("VOXLOOP_TRANSCRIBER_BARGE_SECONDS", &cfg.Transcriber.BargeSeconds)

	setString("VOXLOOP_GENERATOR_BASE_URL", &cfg.Generator.BaseURL)
	setString("VOXLOOP_GENERATOR_API_KEY", &cfg.Generator.APIKey)
	setString("VOXLOOP_GENERATOR_MODEL", &cfg.Generator.Model)
	setString("VOXLOOP_GENERATOR_SYSTEM_PROMPT", &cfg.Generator.SystemPrompt)
	setInt("VOXLOOP_GENERATOR_MAX_TOKENS", &cfg.Generator.MaxTokens)
	setFloat("VOXLOOP_GENERATOR_TEMPERATURE", &cfg.Generator.Temperature)

	setString("VOXLOOP_SYNTHESIZER_URL", &cfg.Synthesizer.URL)
	setString("VOXLOOP_SYNTHESIZER_API_KEY", &cfg.Synthesizer.APIKey)
	setString("VOXLOOP_SYNTHESIZER_VOICE", &cfg.Synthesizer.Voice)
	setString("VOXLOOP_SYNTHESIZER_LANGUAGE", &cfg.Synthesizer.Language)

	setBool("VOXLOOP_WEB_ENABLED", &cfg.Web.Enabled)
	setString("VOXLOOP_WEB_BIND", &cfg.Web.Bind)
}
