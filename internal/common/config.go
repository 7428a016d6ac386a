package common

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/docextract/constants"
)

// Config holds all application configuration
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Paths    PathsConfig    `yaml:"paths"`
	OCR      OCRConfig      `yaml:"ocr"`
	Raster   RasterConfig   `yaml:"raster"`
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Store    StoreConfig    `yaml:"store"`
	Server   ServerConfig   `yaml:"server"`
}

// LogConfig selects the slog handler and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// PathsConfig holds the transient workspace root and the output root.
type PathsConfig struct {
	WorkDir   string `yaml:"work_dir"`
	OutputDir string `yaml:"output_dir"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract   string        `yaml:"tesseract"`
	TessdataDir string        `yaml:"tessdata_dir"`
	Lang        string        `yaml:"lang"`
	PSM         int           `yaml:"psm"`
	OEM         int           `yaml:"oem"`
	Timeout     time.Duration `yaml:"timeout"`
	Normalize   bool          `yaml:"normalize"`
}

// RasterConfig holds PDF rasterization configuration
type RasterConfig struct {
	Backend  string `yaml:"backend"` // pdftoppm | fitz
	Pdftoppm string `yaml:"pdftoppm"`
	DPI      int    `yaml:"dpi"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	RPS         float64       `yaml:"rps"`
	Burst       int           `yaml:"burst"`
}

// LogValue keeps the API key out of structured logs.
func (c LLMConfig) LogValue() slog.Value {
	key := ""
	if c.APIKey != "" {
		key = "[REDACTED]"
	}
	return slog.GroupValue(
		slog.String("base_url", c.BaseURL),
		slog.String("model", c.Model),
		slog.String("api_key", key),
		slog.Duration("timeout", c.Timeout),
		slog.Float64("rps", c.RPS),
	)
}

// PipelineConfig bounds per-document concurrency.
type PipelineConfig struct {
	Workers int `yaml:"workers"`
}

// StoreConfig points at the run ledger database. Empty DSN disables it.
type StoreConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Log:   LogConfig{Level: "info", Format: "text"},
		Paths: PathsConfig{WorkDir: "./temp", OutputDir: "./output"},
		OCR: OCRConfig{
			Tesseract: "tesseract",
			Lang:      constants.DefaultOCRLang,
			Timeout:   60 * time.Second,
		},
		Raster: RasterConfig{Backend: "pdftoppm", Pdftoppm: "pdftoppm", DPI: constants.DefaultDPI},
		LLM: LLMConfig{
			BaseURL: "https://api.cerebras.ai/v1",
			Model:   "llama-3.3-70b",
			Timeout: 45 * time.Second,
			RPS:     2,
			Burst:   4,
		},
		Pipeline: PipelineConfig{Workers: 4},
		Store: StoreConfig{
			DSN:             "sqlite://./output/ledger.db",
			MaxConns:        4,
			MaxConnLifetime: 30 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Server: ServerConfig{GRPCAddr: ":8080", MetricsAddr: ":9090"},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file,
// a .env file in the working directory (if present) and the environment,
// later sources overriding earlier ones.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read config file", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "parse config file", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, NewAppError("CONFIG_ERROR", "load .env", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Paths.WorkDir = getEnv("WORK_DIR", c.Paths.WorkDir)
	c.Paths.OutputDir = getEnv("OUTPUT_DIR", c.Paths.OutputDir)

	c.OCR.Tesseract = getEnv("TESSERACT_CMD", c.OCR.Tesseract)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)
	c.OCR.Lang = getEnv("OCR_LANG", c.OCR.Lang)
	c.OCR.PSM = getEnvAsInt("OCR_PSM", c.OCR.PSM)
	c.OCR.OEM = getEnvAsInt("OCR_OEM", c.OCR.OEM)
	c.OCR.Timeout = getEnvAsDuration("OCR_TIMEOUT", c.OCR.Timeout)
	c.OCR.Normalize = getEnvAsBool("OCR_NORMALIZE", c.OCR.Normalize)

	c.Raster.Backend = getEnv("RASTER_BACKEND", c.Raster.Backend)
	c.Raster.Pdftoppm = getEnv("PDFTOPPM_CMD", c.Raster.Pdftoppm)
	c.Raster.DPI = getEnvAsInt("RASTER_DPI", c.Raster.DPI)

	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.APIKey = getEnv("LLM_API_KEY", c.LLM.APIKey)
	c.LLM.Temperature = getEnvAsFloat32("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnvAsDuration("LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.RPS = getEnvAsFloat64("LLM_RPS", c.LLM.RPS)
	c.LLM.Burst = getEnvAsInt("LLM_BURST", c.LLM.Burst)

	c.Pipeline.Workers = getEnvAsInt("WORKERS", c.Pipeline.Workers)

	c.Store.DSN = getEnvAllowEmpty("STORE_DSN", c.Store.DSN)

	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.MetricsAddr = getEnv("METRICS_ADDR", c.Server.MetricsAddr)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty lets an explicitly empty variable clear the default.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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

// Validate checks the settings every command needs. The API key is checked
// separately by commands that talk to the LLM.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return NewAppError("CONFIG_ERROR", "WORK_DIR is required", ErrInvalidInput)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return NewAppError("CONFIG_ERROR", "OUTPUT_DIR is required", ErrInvalidInput)
	}
	if c.Pipeline.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("WORKERS must be positive, got %d", c.Pipeline.Workers), ErrInvalidInput)
	}
	switch c.Raster.Backend {
	case "pdftoppm", "fitz":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("RASTER_BACKEND must be pdftoppm or fitz, got %q", c.Raster.Backend), ErrInvalidInput)
	}
	if c.Raster.DPI <= 0 {
		return NewAppError("CONFIG_ERROR", "RASTER_DPI must be positive", ErrInvalidInput)
	}
	return nil
}

// RequireLLM validates the settings needed to call the extraction backend.
func (c *Config) RequireLLM() error {
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "LLM_API_KEY is required", ErrInvalidInput)
	}
	if c.LLM.BaseURL == "" {
		return NewAppError("CONFIG_ERROR", "LLM_BASE_URL is required", ErrInvalidInput)
	}
	return nil
}
