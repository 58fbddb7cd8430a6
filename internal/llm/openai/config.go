package openai

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/people-extractor/constants"
)

// Config for the OpenAI-compatible analysis client.
type Config struct {
	APIKey      string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL     string        // default https://api.openai.com/v1
	Model       string        // e.g., "gpt-4o-mini"
	Temperature float32       // 0..2
	Timeout     time.Duration // http client timeout

	// Single-request path: attempts = 1 + MaxRetries, waiting
	// BaseDelay * 2^retry between them. Negative MaxRetries disables retries.
	MaxRetries int
	BaseDelay  time.Duration

	// Text longer than ChunkThreshold bytes is split into ChunkSize pieces.
	ChunkThreshold int
	ChunkSize      int
	// Per chunk: attempts = 1 + ChunkMaxRetries, waiting ChunkRetryDelay * retry.
	ChunkMaxRetries int
	ChunkRetryDelay time.Duration
	// InterChunkDelay is the minimum spacing between chunk requests.
	InterChunkDelay time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	pacer  *rate.Limiter
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = 3
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 10 * time.Second
	}
	if cfg.ChunkThreshold <= 0 {
		cfg.ChunkThreshold = constants.MultiChunkThreshold
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = constants.ChunkSize
	}
	switch {
	case cfg.ChunkMaxRetries == 0:
		cfg.ChunkMaxRetries = 2
	case cfg.ChunkMaxRetries < 0:
		cfg.ChunkMaxRetries = 0
	}
	if cfg.ChunkRetryDelay <= 0 {
		cfg.ChunkRetryDelay = 2 * time.Second
	}
	if cfg.InterChunkDelay == 0 {
		cfg.InterChunkDelay = 1500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.InterChunkDelay > 0 {
		limit = rate.Every(cfg.InterChunkDelay)
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		pacer:  rate.NewLimiter(limit, 1),
		logger: logger,
	}
}
