package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration, loaded from environment variables
// and an optional similarity settings file.
type Config struct {
	Corpus     CorpusConfig
	Detection  DetectionConfig
	Database   DatabaseConfig
	Index      IndexConfig
	Similarity SimilarityConfig
	Web        WebConfig
}

type CorpusConfig struct {
	PhotosDir string // root directory of the image corpus
}

type DetectionConfig struct {
	URL     string        // base URL of the face detection/embedding service
	Timeout time.Duration // bounded timeout for a single detection call
	Dim     int           // embedding dimensionality (defaults to 512)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL; SQLite is used when empty
	SQLitePath   string // path to the embedded SQLite database file
	MaxOpenConns int    // maximum open connections (default 25)
	MaxIdleConns int    // maximum idle connections (default 5)
}

type IndexConfig struct {
	Path string // path to persist the HNSW index (optional, rebuilt from the store when empty)
}

// SimilarityConfig controls the group aggregation policy. The aggregation
// function is configurable because the intended policy (max vs. mean over
// marked faces) differs between deployments.
type SimilarityConfig struct {
	Aggregation string  `yaml:"aggregation"` // "max" (default) or "mean"
	Threshold   float64 `yaml:"threshold"`   // default group similarity threshold
	SearchTopK  int     `yaml:"search_top_k"`
}

type WebConfig struct {
	Host string
	Port int
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration string.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	cfg := &Config{
		Corpus: CorpusConfig{
			PhotosDir: envString("PHOTOS_DIR", "/images"),
		},
		Detection: DetectionConfig{
			URL:     envString("DETECTION_URL", "http://localhost:8001"),
			Timeout: envDuration("DETECTION_TIMEOUT", 60*time.Second),
			Dim:     envInt("EMBEDDING_DIM", 512),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			SQLitePath:   envString("SQLITE_PATH", "faces.db"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Index: IndexConfig{
			Path: os.Getenv("HNSW_INDEX_PATH"),
		},
		Similarity: SimilarityConfig{
			Aggregation: "max",
			Threshold:   0.6,
			SearchTopK:  100,
		},
		Web: WebConfig{
			Host: envString("WEB_HOST", "0.0.0.0"),
			Port: envInt("WEB_PORT", 8080),
		},
	}

	if path := os.Getenv("SIMILARITY_CONFIG"); path != "" {
		if err := cfg.Similarity.loadFile(path); err != nil {
			// A broken settings file should not take the service down;
			// the defaults above remain in effect.
			fmt.Printf("Warning: could not load similarity config %s: %v\n", path, err)
		}
	}

	return cfg
}

// loadFile overlays similarity settings from a YAML file. Zero values in the
// file keep the current defaults.
func (s *SimilarityConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading similarity config: %w", err)
	}

	var file SimilarityConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing similarity config: %w", err)
	}

	if file.Aggregation != "" {
		s.Aggregation = file.Aggregation
	}
	if file.Threshold > 0 {
		s.Threshold = file.Threshold
	}
	if file.SearchTopK > 0 {
		s.SearchTopK = file.SearchTopK
	}
	return nil
}
