package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Sim      SimConfig
	DBPath   string
	HTTPPort int
	InfluxDB InfluxDBConfig
	Kafka    KafkaConfig
	Log      LogConfig
}

// SimConfig holds simulation engine configuration
type SimConfig struct {
	Seed           uint64
	SeedMode       string
	Workers        int
	ProfilesFile   string
	DefaultProfile string
}

// InfluxDBConfig holds InfluxDB-related configuration
type InfluxDBConfig struct {
	URL    string
	Org    string
	Token  string
	Bucket string
}

// KafkaConfig holds Kafka-related configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
	File  string
}

// Load reads an optional .env file, then environment variables with defaults
func Load() *Config {
	// a missing .env file is not an error
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only
func FromEnv() *Config {
	return &Config{
		Sim: SimConfig{
			Seed:           getEnvUint64("SIM_SEED", 42),
			SeedMode:       getEnv("SIM_SEED_MODE", "sequential"),
			Workers:        getEnvInt("SIM_WORKERS", 1),
			ProfilesFile:   getEnv("SIM_PROFILES_FILE", ""),
			DefaultProfile: getEnv("SIM_DEFAULT_PROFILE", "Orange"),
		},
		DBPath:   getEnv("DB_PATH", "reefer_sim.db"),
		HTTPPort: getEnvInt("HTTP_PORT", 8080),
		InfluxDB: InfluxDBConfig{
			URL:    getEnv("INFLUXDB_URL", "http://localhost:8086"),
			Org:    getEnv("INFLUXDB_ORG", "reefer"),
			Token:  getEnv("INFLUXDB_TOKEN", ""),
			Bucket: getEnv("INFLUXDB_BUCKET", "reefer-telemetry"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvStringSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_TOPIC", "reefer.readings"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
