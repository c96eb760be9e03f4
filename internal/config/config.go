// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for history databases and app databases
	LogLevel string
	Port     int
	DevMode  bool

	Matcher   MatcherConfig
	Risk      RiskConfig
	Consensus ConsensusConfig
	Backup    BackupConfig
}

// MatcherConfig holds the tunable pattern-matcher parameters. The composite
// weights are deliberately configuration, not constants: they are expected to
// be re-fit against backtests.
type MatcherConfig struct {
	WindowLen     int     // Length of the match window in candles
	TopK          int     // Number of analogs to select
	MinGapDays    int     // Minimum spacing between selected anchors
	MinSimilarity float64 // Candidates below this shape similarity are discarded

	WeightSimilarity float64
	WeightStability  float64
	WeightVolRegime  float64
	WeightDrawdown   float64
}

// RiskConfig holds sizing thresholds and the guardrail constitution.
type RiskConfig struct {
	MinConfidence   float64 // Below this, sizing is hard-blocked
	MaxEntropy      float64 // Above this, sizing is hard-blocked
	VolSpikeRatio   float64 // Current-vs-baseline vol ratio treated as an extreme spike
	MaxSizeByRegime map[string]float64
}

// ConsensusConfig holds the quorum rule and dead-band thresholds.
type ConsensusConfig struct {
	Quorum   int     // Horizons that must agree for a directional call
	DeadBand float64 // Median-return threshold for LONG/SHORT (fraction)
}

// BackupConfig holds optional S3-compatible snapshot backup settings.
// Backups are disabled unless both Endpoint and Bucket are set.
type BackupConfig struct {
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Enabled reports whether backups are configured.
func (b BackupConfig) Enabled() bool {
	return b.Bucket != "" && b.AccessKeyID != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnvAsInt("FRACTAL_PORT", 8002),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		DataDir:  getEnv("DATA_DIR", "./data"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Matcher: MatcherConfig{
			WindowLen:        getEnvAsInt("MATCH_WINDOW_LEN", 60),
			TopK:             getEnvAsInt("MATCH_TOP_K", 8),
			MinGapDays:       getEnvAsInt("MATCH_MIN_GAP_DAYS", 30),
			MinSimilarity:    getEnvAsFloat("MATCH_MIN_SIMILARITY", 0.2),
			WeightSimilarity: getEnvAsFloat("MATCH_WEIGHT_SIMILARITY", 0.45),
			WeightStability:  getEnvAsFloat("MATCH_WEIGHT_STABILITY", 0.20),
			WeightVolRegime:  getEnvAsFloat("MATCH_WEIGHT_VOL_REGIME", 0.20),
			WeightDrawdown:   getEnvAsFloat("MATCH_WEIGHT_DRAWDOWN", 0.15),
		},
		Risk: RiskConfig{
			MinConfidence: getEnvAsFloat("RISK_MIN_CONFIDENCE", 0.30),
			MaxEntropy:    getEnvAsFloat("RISK_MAX_ENTROPY", 0.85),
			VolSpikeRatio: getEnvAsFloat("RISK_VOL_SPIKE_RATIO", 3.0),
			MaxSizeByRegime: map[string]float64{
				"LOW":         1.0,
				"MEDIUM":      1.0,
				"EXPANSION":   0.8,
				"CONTRACTION": 0.8,
				"HIGH":        0.5,
				"CRISIS":      0.0,
			},
		},
		Consensus: ConsensusConfig{
			Quorum:   getEnvAsInt("CONSENSUS_QUORUM", 3),
			DeadBand: getEnvAsFloat("CONSENSUS_DEAD_BAND", 0.02),
		},
		Backup: BackupConfig{
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and coherent
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}

	m := c.Matcher
	if m.WindowLen < 30 || m.WindowLen > 90 {
		return fmt.Errorf("MATCH_WINDOW_LEN must be in [30,90], got %d", m.WindowLen)
	}
	if m.TopK < 1 {
		return fmt.Errorf("MATCH_TOP_K must be positive, got %d", m.TopK)
	}

	weightSum := m.WeightSimilarity + m.WeightStability + m.WeightVolRegime + m.WeightDrawdown
	if weightSum <= 0 {
		return fmt.Errorf("matcher weights must sum to a positive value")
	}

	if c.Consensus.Quorum < 1 || c.Consensus.Quorum > 4 {
		return fmt.Errorf("CONSENSUS_QUORUM must be in [1,4], got %d", c.Consensus.Quorum)
	}

	return nil
}

// Helper functions
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
