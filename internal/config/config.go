// Package config loads service configuration from an optional YAML file and
// environment variables. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig       `yaml:"service"`
	STT           STTConfig           `yaml:"stt"`
	RequestLimits RequestLimitsConfig `yaml:"request_limits"`
	Analysis      AnalysisConfig      `yaml:"analysis"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	NATS          NATSConfig          `yaml:"nats"`
	Store         StoreConfig         `yaml:"store"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServiceConfig identifies the service and its listeners.
type ServiceConfig struct {
	Principal   string `yaml:"principal"`
	Environment string `yaml:"environment"`
	HTTPPort    string `yaml:"http_port"`
	GRPCPort    string `yaml:"grpc_port"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// STTConfig selects and tunes the recognizer backend.
type STTConfig struct {
	Provider       string `yaml:"provider"` // mock, exec, google
	Command        string `yaml:"command"`
	ModelPath      string `yaml:"model_path"`
	LanguageCode   string `yaml:"language_code"`
	SampleRateHz   int32  `yaml:"sample_rate_hz"`
	InterimResults bool   `yaml:"interim_results"`
	AudioEncoding  string `yaml:"audio_encoding"`
	ChunkFrames    int    `yaml:"chunk_frames"`
}

// RequestLimitsConfig bounds the resources one request may use.
type RequestLimitsConfig struct {
	MaxAudioBytes int64         `yaml:"max_audio_bytes"`
	MaxDuration   time.Duration `yaml:"max_duration"`
	MaxPartials   int           `yaml:"max_partials"`
}

// AnalysisConfig holds classification thresholds.
type AnalysisConfig struct {
	RaisedVoiceHz      float64 `yaml:"raised_voice_hz"`
	GenderHz           float64 `yaml:"gender_hz"`
	WelchSegmentLength int     `yaml:"welch_segment_length"`
}

// IngestConfig bounds remote audio downloads and uploads.
type IngestConfig struct {
	MaxDownloadBytes int64         `yaml:"max_download_bytes"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	DownloadTimeout  time.Duration `yaml:"download_timeout"`
}

// KafkaConfig holds Kafka publisher settings.
type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	TopicPartial string   `yaml:"topic_partial"`
	TopicDialog  string   `yaml:"topic_dialog"`
	Principal    string   `yaml:"principal"`
}

// NATSConfig holds NATS publisher settings.
type NATSConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Servers        []string      `yaml:"servers"`
	SubjectPrefix  string        `yaml:"subject_prefix"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// StoreConfig holds analysis record store settings.
type StoreConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"` // ephemeral, session, persistent
	RetentionDays int    `yaml:"retention_days"`
	MaxRecords    int    `yaml:"max_records"`
}

// ObservabilityConfig holds logging and tracing settings.
type ObservabilityConfig struct {
	LogLevel        string  `yaml:"log_level"`
	LogFormat       string  `yaml:"log_format"`
	OTLPEndpoint    string  `yaml:"otlp_endpoint"`
	OTLPInsecure    bool    `yaml:"otlp_insecure"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"`
}

// Default returns the built-in configuration.
func Default() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Principal:   "svc-dialog-analysis",
			Environment: "development",
			HTTPPort:    "8080",
			GRPCPort:    "50051",
			MetricsAddr: ":9090",
		},
		STT: STTConfig{
			Provider:       "mock",
			LanguageCode:   "en-US",
			SampleRateHz:   8000,
			InterimResults: true,
			AudioEncoding:  "LINEAR16",
			ChunkFrames:    4000,
		},
		RequestLimits: RequestLimitsConfig{
			MaxAudioBytes: 50 * 1024 * 1024, // ~54 minutes at 8kHz 16-bit mono
			MaxDuration:   10 * time.Minute,
			MaxPartials:   5000,
		},
		Analysis: AnalysisConfig{
			RaisedVoiceHz:      300,
			GenderHz:           300,
			WelchSegmentLength: 256,
		},
		Ingest: IngestConfig{
			MaxDownloadBytes: 64 * 1024 * 1024,
			MaxUploadBytes:   64 * 1024 * 1024,
			DownloadTimeout:  30 * time.Second,
		},
		Kafka: KafkaConfig{
			TopicPartial: "interaction.transcript.partial",
			TopicDialog:  "interaction.dialog.completed",
		},
		NATS: NATSConfig{
			Servers:        []string{"nats://localhost:4222"},
			SubjectPrefix:  "dialog",
			ConnectTimeout: 2 * time.Second,
		},
		Store: StoreConfig{
			Path:          "./data/dialog-analysis.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxRecords:    10000,
		},
		Observability: ObservabilityConfig{
			LogLevel:        "info",
			LogFormat:       "json",
			OTLPInsecure:    true,
			TraceSampleRate: 1,
		},
	}
}

// Load builds the configuration from CONFIG_FILE, when set, and the
// environment. A file that cannot be read or parsed is ignored with the
// error printed to stderr; use LoadFile to handle it.
func Load() *Configuration {
	cfg, err := LoadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v; using environment only\n", err)
		cfg = Default()
		applyEnv(cfg)
	}
	return cfg
}

// LoadFile layers the YAML file at path (if non-empty) and the environment
// over the defaults.
func LoadFile(path string) (*Configuration, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Configuration) {
	cfg.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", cfg.Service.Principal)
	cfg.Service.Environment = envOrDefault("ENV", cfg.Service.Environment)
	cfg.Service.HTTPPort = envOrDefault("HTTP_PORT", cfg.Service.HTTPPort)
	cfg.Service.GRPCPort = envOrDefault("GRPC_PORT", cfg.Service.GRPCPort)
	cfg.Service.MetricsAddr = envOrDefault("METRICS_ADDR", cfg.Service.MetricsAddr)

	cfg.STT.Provider = envOrDefault("STT_PROVIDER", cfg.STT.Provider)
	cfg.STT.Command = envOrDefault("STT_COMMAND", cfg.STT.Command)
	cfg.STT.ModelPath = envOrDefault("MODEL_PATH", cfg.STT.ModelPath)
	cfg.STT.LanguageCode = envOrDefault("STT_LANGUAGE_CODE", cfg.STT.LanguageCode)
	cfg.STT.SampleRateHz = int32(envOrDefaultInt("STT_SAMPLE_RATE_HZ", int(cfg.STT.SampleRateHz)))
	cfg.STT.InterimResults = envOrDefaultBool("STT_INTERIM_RESULTS", cfg.STT.InterimResults)
	cfg.STT.AudioEncoding = envOrDefault("STT_AUDIO_ENCODING", cfg.STT.AudioEncoding)
	cfg.STT.ChunkFrames = envOrDefaultInt("STT_CHUNK_FRAMES", cfg.STT.ChunkFrames)

	cfg.RequestLimits.MaxAudioBytes = envOrDefaultInt64("REQUEST_MAX_AUDIO_BYTES", cfg.RequestLimits.MaxAudioBytes)
	cfg.RequestLimits.MaxDuration = envOrDefaultDuration("REQUEST_MAX_DURATION", cfg.RequestLimits.MaxDuration)
	cfg.RequestLimits.MaxPartials = envOrDefaultInt("REQUEST_MAX_PARTIALS", cfg.RequestLimits.MaxPartials)

	cfg.Analysis.RaisedVoiceHz = envOrDefaultFloat("ANALYSIS_RAISED_VOICE_HZ", cfg.Analysis.RaisedVoiceHz)
	cfg.Analysis.GenderHz = envOrDefaultFloat("ANALYSIS_GENDER_HZ", cfg.Analysis.GenderHz)
	cfg.Analysis.WelchSegmentLength = envOrDefaultInt("ANALYSIS_WELCH_SEGMENT_LENGTH", cfg.Analysis.WelchSegmentLength)

	cfg.Ingest.MaxDownloadBytes = envOrDefaultInt64("INGEST_MAX_DOWNLOAD_BYTES", cfg.Ingest.MaxDownloadBytes)
	cfg.Ingest.MaxUploadBytes = envOrDefaultInt64("INGEST_MAX_UPLOAD_BYTES", cfg.Ingest.MaxUploadBytes)
	cfg.Ingest.DownloadTimeout = envOrDefaultDuration("INGEST_DOWNLOAD_TIMEOUT", cfg.Ingest.DownloadTimeout)

	cfg.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", cfg.Kafka.Enabled)
	cfg.Kafka.Brokers = envOrDefaultList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.TopicPartial = envOrDefault("KAFKA_TOPIC_PARTIAL", cfg.Kafka.TopicPartial)
	cfg.Kafka.TopicDialog = envOrDefault("KAFKA_TOPIC_DIALOG", cfg.Kafka.TopicDialog)
	cfg.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", cfg.Kafka.Principal)
	if cfg.Kafka.Principal == "" {
		cfg.Kafka.Principal = cfg.Service.Principal
	}

	cfg.NATS.Enabled = envOrDefaultBool("NATS_ENABLED", cfg.NATS.Enabled)
	cfg.NATS.Servers = envOrDefaultList("NATS_SERVERS", cfg.NATS.Servers)
	cfg.NATS.SubjectPrefix = envOrDefault("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)
	cfg.NATS.ConnectTimeout = envOrDefaultDuration("NATS_CONNECT_TIMEOUT", cfg.NATS.ConnectTimeout)

	cfg.Store.Enabled = envOrDefaultBool("STORE_ENABLED", cfg.Store.Enabled)
	cfg.Store.Path = envOrDefault("STORE_PATH", cfg.Store.Path)
	cfg.Store.RetentionMode = envOrDefault("STORE_RETENTION_MODE", cfg.Store.RetentionMode)
	cfg.Store.RetentionDays = envOrDefaultInt("STORE_RETENTION_DAYS", cfg.Store.RetentionDays)
	cfg.Store.MaxRecords = envOrDefaultInt("STORE_MAX_RECORDS", cfg.Store.MaxRecords)

	cfg.Observability.LogLevel = envOrDefault("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = envOrDefault("LOG_FORMAT", cfg.Observability.LogFormat)
	cfg.Observability.OTLPEndpoint = envOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Observability.OTLPEndpoint)
	cfg.Observability.OTLPInsecure = envOrDefaultBool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Observability.OTLPInsecure)
	cfg.Observability.TraceSampleRate = envOrDefaultFloat("TRACE_SAMPLE_RATE", cfg.Observability.TraceSampleRate)
}

// Validate reports the first inconsistent setting.
func (c *Configuration) Validate() error {
	switch c.STT.Provider {
	case "mock", "google":
	case "exec":
		if strings.TrimSpace(c.STT.Command) == "" {
			return errors.New("stt.command must be set when stt.provider is exec")
		}
	default:
		return fmt.Errorf("unknown stt.provider %q", c.STT.Provider)
	}
	if c.STT.ChunkFrames <= 0 {
		return errors.New("stt.chunk_frames must be positive")
	}
	if c.Analysis.RaisedVoiceHz <= 0 || c.Analysis.GenderHz <= 0 {
		return errors.New("analysis thresholds must be positive")
	}
	if c.Analysis.WelchSegmentLength <= 0 {
		return errors.New("analysis.welch_segment_length must be positive")
	}
	switch c.Store.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return fmt.Errorf("unknown store.retention_mode %q", c.Store.RetentionMode)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers must not be empty when kafka is enabled")
	}
	if c.NATS.Enabled && len(c.NATS.Servers) == 0 {
		return errors.New("nats.servers must not be empty when nats is enabled")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
