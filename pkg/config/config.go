package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds atlas runtime configuration.
type Config struct {
	DBPath                 string
	GovernanceRegistryPath string
	LevelProfilesDir       string
	DualValidityDays       int
	SweepConcurrency       int
	SweepTimeout           time.Duration
	TopologyTolerancePct   float64
	OTLPEndpoint           string
	LogLevel               string
}

// Load loads configuration from environment variables.
func Load() *Config {
	dbPath := os.Getenv("ATLAS_DB_PATH")
	if dbPath == "" {
		dbPath = "atlas.db"
	}

	registryPath := os.Getenv("ATLAS_GOVERNANCE_REGISTRY")
	if registryPath == "" {
		registryPath = "registry/governance.json"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	return &Config{
		DBPath:                 dbPath,
		GovernanceRegistryPath: registryPath,
		LevelProfilesDir:       os.Getenv("ATLAS_LEVEL_PROFILES_DIR"),
		DualValidityDays:       envInt("ATLAS_DUAL_VALIDITY_DAYS", 30),
		SweepConcurrency:       envInt("ATLAS_SWEEP_CONCURRENCY", 4),
		SweepTimeout:           envDuration("ATLAS_SWEEP_TIMEOUT", 2*time.Minute),
		TopologyTolerancePct:   envFloat("ATLAS_TOPOLOGY_TOLERANCE_PCT", 0.001),
		OTLPEndpoint:           os.Getenv("ATLAS_OTLP_ENDPOINT"),
		LogLevel:               logLevel,
	}
}

// DualValidityWindow converts the configured day count to a duration.
func (c *Config) DualValidityWindow() time.Duration {
	return time.Duration(c.DualValidityDays) * 24 * time.Hour
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}
