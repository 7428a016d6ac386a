package openai

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Config for the chat-completions client. Any OpenAI-compatible endpoint
// works; the defaults point at Cerebras.
type Config struct {
	APIKey      string        // required
	BaseURL     string        // default https://api.cerebras.ai/v1
	Model       string        // default llama-3.3-70b
	Temperature float32       // 0..2
	Timeout     time.Duration // per extraction call
	RPS         float64       // outbound requests per second; <= 0 disables limiting
	Burst       int
}

// LogValue keeps the API key out of logs.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("base_url", c.BaseURL),
		slog.String("model", c.Model),
		slog.Bool("api_key_set", c.APIKey != ""),
		slog.Duration("timeout", c.Timeout),
		slog.Float64("rps", c.RPS),
		slog.Int("burst", c.Burst),
	)
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cerebras.ai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3.3-70b"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, cfg.Burst)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{},
		limiter: limiter,
		logger:  logger,
	}
}
