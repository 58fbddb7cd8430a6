package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/people-extractor/constants"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	OCR       OCRConfig       `yaml:"ocr"`
	LLM       LLMConfig       `yaml:"llm"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Watch     WatchConfig     `yaml:"watch"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `yaml:"driver"` // "postgres" | "sqlite"
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	// DetachTimeout bounds extractions that outlive a disconnected caller.
	DetachTimeout time.Duration `yaml:"detach_timeout"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract     string `yaml:"tesseract"`
	Pdftoppm      string `yaml:"pdftoppm"`
	TessdataDir   string `yaml:"tessdata_dir"`
	Lang          string `yaml:"lang"`
	DPI           int    `yaml:"dpi"`
	MaxPages      int    `yaml:"max_pages"`
	DisablePDFOCR bool   `yaml:"disable_pdf_ocr"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Model           string        `yaml:"model"`
	APIKey          string        `yaml:"-"`
	BaseURL         string        `yaml:"base_url"`
	Temperature     float32       `yaml:"temperature"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	ChunkThreshold  int           `yaml:"chunk_threshold"`
	ChunkSize       int           `yaml:"chunk_size"`
	ChunkMaxRetries int           `yaml:"chunk_max_retries"`
	ChunkRetryDelay time.Duration `yaml:"chunk_retry_delay"`
	InterChunkDelay time.Duration `yaml:"inter_chunk_delay"`
}

// SchedulerConfig holds background job configuration
type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	ChunkSize    int           `yaml:"chunk_size"`
	ScratchDir   string        `yaml:"scratch_dir"`
	Durable      bool          `yaml:"durable"` // keep job state in the database
}

// WatchConfig enables the drop directory: files appearing under Dir are
// submitted as background jobs.
type WatchConfig struct {
	Dir         string        `yaml:"dir"`
	Debounce    time.Duration `yaml:"debounce"`
	MaxFileSize int64         `yaml:"max_file_size"`
}

// LoadConfig loads configuration from environment variables. When PEOPLE_CONFIG
// names a YAML file, its values are layered on top; secrets stay env-only.
func LoadConfig() (*Config, error) {
	cfg := loadFromEnv()
	if path := strings.TrimSpace(os.Getenv("PEOPLE_CONFIG")); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func loadFromEnv() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "postgres"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr:      getEnv("GRPC_ADDR", ":8080"),
			DetachTimeout: getEnvAsDuration("EXTRACT_DETACH_TIMEOUT", 30*time.Minute),
		},
		OCR: OCRConfig{
			Tesseract:     getEnv("TESSERACT_BIN", "tesseract"),
			Pdftoppm:      getEnv("PDFTOPPM_BIN", "pdftoppm"),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
			Lang:          getEnv("TESSERACT_LANG", "eng"),
			DPI:           getEnvAsInt("OCR_DPI", 300),
			MaxPages:      getEnvAsInt("OCR_MAX_PAGES", 50),
			DisablePDFOCR: getEnvAsBool("OCR_DISABLE_PDF", false),
		},
		LLM: LLMConfig{
			Model:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:          getEnv("OPENAI_API_KEY", ""),
			BaseURL:         getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature:     getEnvAsFloat32("OPENAI_TEMPERATURE", 0.1),
			Timeout:         getEnvAsDuration("OPENAI_TIMEOUT", 2*time.Minute),
			MaxRetries:      getEnvAsInt("LLM_MAX_RETRIES", 3),
			BaseDelay:       getEnvAsDuration("LLM_BASE_DELAY", 10*time.Second),
			ChunkThreshold:  getEnvAsInt("LLM_CHUNK_THRESHOLD", constants.MultiChunkThreshold),
			ChunkSize:       getEnvAsInt("LLM_CHUNK_SIZE", constants.ChunkSize),
			ChunkMaxRetries: getEnvAsInt("LLM_CHUNK_MAX_RETRIES", 2),
			ChunkRetryDelay: getEnvAsDuration("LLM_CHUNK_RETRY_DELAY", 2*time.Second),
			InterChunkDelay: getEnvAsDuration("LLM_INTER_CHUNK_DELAY", 1500*time.Millisecond),
		},
		Scheduler: SchedulerConfig{
			TickInterval: getEnvAsDuration("SCHEDULER_TICK_INTERVAL", constants.DefaultTickInterval),
			ChunkSize:    getEnvAsInt("SCHEDULER_CHUNK_SIZE", constants.ChunkSize),
			ScratchDir:   getEnv("SCHEDULER_SCRATCH_DIR", "./tmp/jobs"),
			Durable:      getEnvAsBool("SCHEDULER_DURABLE", false),
		},
		Watch: WatchConfig{
			Dir:         getEnv("WATCH_DIR", ""),
			Debounce:    getEnvAsDuration("WATCH_DEBOUNCE", 2*time.Second),
			MaxFileSize: int64(getEnvAsInt("WATCH_MAX_FILE_SIZE", 64<<20)),
		},
	}
}

// overlayFile decodes a YAML file over the current values.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewAppError(CodeConfig, fmt.Sprintf("read config %s", path), err)
	}
	apiKey := c.LLM.APIKey
	if err := yaml.Unmarshal(data, c); err != nil {
		return NewAppError(CodeConfig, fmt.Sprintf("parse config %s", path), err)
	}
	c.LLM.APIKey = apiKey
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return NewAppError(CodeConfig, "DB_URL is required", ErrInvalidInput)
		}
	case "sqlite":
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("unsupported DB_DRIVER %q", c.Database.Driver), ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError(CodeConfig, "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError(CodeConfig, "GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.LLM.ChunkSize <= 0 || c.Scheduler.ChunkSize <= 0 {
		return NewAppError(CodeConfig, "chunk sizes must be > 0", ErrInvalidInput)
	}
	if c.Scheduler.TickInterval <= 0 {
		return NewAppError(CodeConfig, "SCHEDULER_TICK_INTERVAL must be > 0", ErrInvalidInput)
	}
	return nil
}
