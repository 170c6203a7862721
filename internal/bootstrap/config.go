package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eleven-am/voice-link/internal/events"
	"github.com/eleven-am/voice-link/internal/shared"
	"github.com/eleven-am/voice-link/internal/transport"
)

const (
	AudioMic     = "mic"
	AudioSpeaker = "speaker"
	AudioNone    = "none"
)

type Config struct {
	ServerAddr string `yaml:"server_addr"`

	RealtimeURL   string `yaml:"realtime_url"`
	AgentID       string `yaml:"agent_id"`
	RealtimeToken string `yaml:"realtime_token"`

	Voice              string `yaml:"voice"`
	Instructions       string `yaml:"instructions"`
	TranscriptionModel string `yaml:"transcription_model"`

	Reconnect     shared.BackoffConfig `yaml:"reconnect"`
	QueueCapacity int                  `yaml:"queue_capacity"`

	AudioInput    string `yaml:"audio_input"`
	AudioOutput   string `yaml:"audio_output"`
	PlaybackQueue int    `yaml:"playback_queue"`

	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	LogFile    string `yaml:"log_file"`
	LogMaxSize int    `yaml:"log_max_size"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	EventsChannel string `yaml:"events_channel"`
}

// LoadConfig reads the environment and, when VOICELINK_CONFIG names a file,
// overlays the keys present in that YAML file.
func LoadConfig() (*Config, error) {
	cfg := configFromEnv()
	if path := os.Getenv("VOICELINK_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFromEnv() *Config {
	def := shared.DefaultBackoff()
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		RealtimeURL:   getEnv("REALTIME_URL", "ws://localhost:8090/v1/realtime"),
		AgentID:       getEnv("AGENT_ID", ""),
		RealtimeToken: getEnv("REALTIME_TOKEN", ""),

		Voice:              getEnv("VOICE", "alloy"),
		Instructions:       getEnv("INSTRUCTIONS", ""),
		TranscriptionModel: getEnv("TRANSCRIPTION_MODEL", "whisper-1"),

		Reconnect: shared.BackoffConfig{
			Initial:     getEnvDuration("RECONNECT_INITIAL", def.Initial),
			MaxDelay:    getEnvDuration("RECONNECT_MAX", def.MaxDelay),
			MaxAttempts: getEnvInt("RECONNECT_ATTEMPTS", def.MaxAttempts),
		},
		QueueCapacity: getEnvInt("QUEUE_CAPACITY", 1000),

		AudioInput:    getEnv("AUDIO_INPUT", AudioMic),
		AudioOutput:   getEnv("AUDIO_OUTPUT", AudioSpeaker),
		PlaybackQueue: getEnvInt("PLAYBACK_QUEUE", 512),

		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "json"),
		LogFile:    getEnv("LOG_FILE", ""),
		LogMaxSize: getEnvInt("LOG_MAX_SIZE", 100),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		EventsChannel: getEnv("EVENTS_CHANNEL", events.DefaultChannelPrefix),
	}
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.RealtimeURL == "" {
		errs = append(errs, errors.New("REALTIME_URL is required"))
	} else if !strings.HasPrefix(c.RealtimeURL, "ws://") && !strings.HasPrefix(c.RealtimeURL, "wss://") {
		errs = append(errs, fmt.Errorf("REALTIME_URL must be a ws:// or wss:// url, got %q", c.RealtimeURL))
	}
	if c.AgentID == "" {
		errs = append(errs, errors.New("AGENT_ID is required"))
	}
	if c.Reconnect.Initial < 0 || c.Reconnect.MaxDelay < 0 || c.Reconnect.MaxAttempts < 0 {
		errs = append(errs, errors.New("reconnect settings must not be negative"))
	}
	if c.Reconnect.MaxDelay > 0 && c.Reconnect.Initial > c.Reconnect.MaxDelay {
		errs = append(errs, errors.New("RECONNECT_INITIAL must not exceed RECONNECT_MAX"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	if c.AudioInput == "" {
		c.AudioInput = AudioNone
	}
	if c.AudioOutput == "" {
		c.AudioOutput = AudioNone
	}
	return errors.Join(errs...)
}

// Session builds the configuration sent after every connect.
func (c *Config) Session() transport.SessionConfig {
	session := transport.DefaultSessionConfig()
	session.Voice = c.Voice
	session.Instructions = c.Instructions
	if c.TranscriptionModel == "" {
		session.InputAudioTranscription = nil
	} else {
		session.InputAudioTranscription.Model = c.TranscriptionModel
	}
	return session
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
