package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/vjranagit/idealfit/pkg/fit"
	"github.com/vjranagit/idealfit/pkg/storage"
)

// Config holds the application configuration
type Config struct {
	Input   InputConfig   `json:"input" yaml:"input"`
	Fit     FitConfig     `json:"fit" yaml:"fit"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	Plot    PlotConfig    `json:"plot" yaml:"plot"`
	Output  OutputConfig  `json:"output" yaml:"output"`
}

// InputConfig names the three CSV sources of a run
type InputConfig struct {
	TrainingPath string `json:"training" yaml:"training"`
	IdealPath    string `json:"ideal" yaml:"ideal"`
	TestPath     string `json:"test" yaml:"test"`
}

// FitConfig holds classifier settings
type FitConfig struct {
	MaxPairs int `json:"max_pairs" yaml:"max_pairs"`
	Workers  int `json:"workers" yaml:"workers"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Path             string        `json:"path" yaml:"path"`
	CompressionLevel int           `json:"compression_level" yaml:"compression_level"`
	Codec            string        `json:"codec" yaml:"codec"`
	CacheCapacity    int           `json:"cache_capacity" yaml:"cache_capacity"`
	CacheTTL         time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	EnableJournal    bool          `json:"enable_journal" yaml:"enable_journal"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	ListenAddr string        `json:"listen_addr" yaml:"listen_addr"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// PlotConfig holds chart output configuration
type PlotConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	OutputDir string `json:"output_dir" yaml:"output_dir"`
	Width     int    `json:"width" yaml:"width"`
	Height    int    `json:"height" yaml:"height"`

	// Overview adds one chart of the whole ideal table, limited to the
	// first OverviewColumns value columns
	Overview        bool `json:"overview" yaml:"overview"`
	OverviewColumns int  `json:"overview_columns" yaml:"overview_columns"`
}

// OutputConfig holds file outputs of a run
type OutputConfig struct {
	// ResultsCSV is where the annotated test points are written; empty disables it
	ResultsCSV string `json:"results_csv" yaml:"results_csv"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Input: InputConfig{
			TrainingPath: getEnv("IDEALFIT_TRAINING", "train.csv"),
			IdealPath:    getEnv("IDEALFIT_IDEAL", "ideal.csv"),
			TestPath:     getEnv("IDEALFIT_TEST", "test.csv"),
		},
		Fit: FitConfig{
			MaxPairs: getEnvInt("MAX_PAIRS", fit.DefaultMaxPairs),
			Workers:  getEnvInt("FIT_WORKERS", 1),
		},
		Storage: StorageConfig{
			Path:             getEnv("STORAGE_PATH", "./data"),
			CompressionLevel: getEnvInt("COMPRESSION_LEVEL", 3),
			Codec:            getEnv("STORAGE_CODEC", storage.CodecZstd),
			CacheCapacity:    getEnvInt("CACHE_CAPACITY", 16),
			CacheTTL:         5 * time.Minute,
			EnableJournal:    getEnvBool("ENABLE_JOURNAL", true),
		},
		Server: ServerConfig{
			ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
			Timeout:    30 * time.Second,
		},
		Plot: PlotConfig{
			Enabled:   getEnvBool("PLOT_ENABLED", true),
			OutputDir: getEnv("PLOT_DIR", "./output"),
			Width:     800,
			Height:    400,

			Overview:        getEnvBool("PLOT_OVERVIEW", false),
			OverviewColumns: 50,
		},
		Output: OutputConfig{
			ResultsCSV: getEnv("RESULTS_CSV", "./output/test_data.csv"),
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path.
// An empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// ToStorageConfig converts to storage.Config
func (c *Config) ToStorageConfig() *storage.Config {
	return &storage.Config{
		Path:             c.Storage.Path,
		CompressionLevel: c.Storage.CompressionLevel,
		Codec:            c.Storage.Codec,
	}
}

// ToFitOptions converts to fit.Options
func (c *Config) ToFitOptions() *fit.Options {
	return &fit.Options{
		MaxPairs: c.Fit.MaxPairs,
		Workers:  c.Fit.Workers,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Input.TrainingPath == "" || c.Input.IdealPath == "" || c.Input.TestPath == "" {
		return fmt.Errorf("training, ideal and test inputs are required")
	}

	if c.Fit.MaxPairs < 0 {
		return fmt.Errorf("max pairs must not be negative")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	if c.Storage.CompressionLevel < 1 || c.Storage.CompressionLevel > 4 {
		return fmt.Errorf("compression level must be between 1 and 4")
	}

	if c.Storage.Codec != storage.CodecZstd && c.Storage.Codec != storage.CodecLZ4 {
		return fmt.Errorf("storage codec must be %q or %q", storage.CodecZstd, storage.CodecLZ4)
	}

	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address is required")
	}

	if c.Plot.Enabled && (c.Plot.Width < 1 || c.Plot.Height < 1) {
		return fmt.Errorf("plot width and height must be positive")
	}

	if c.Plot.Enabled && c.Plot.Overview && c.Plot.OverviewColumns < 1 {
		return fmt.Errorf("overview columns must be positive")
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
