package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
	APIKey      string `yaml:"api_key"`

	DatabaseURL string `yaml:"database_url"`

	LLMEndpoint       string `yaml:"llm_endpoint"`
	LLMAPIKey         string `yaml:"llm_api_key"`
	LLMAPIVersion     string `yaml:"llm_api_version"`
	LLMDeploymentName string `yaml:"llm_deployment_name"`

	TicketBridgeURL   string `yaml:"ticket_bridge_url"`
	HealthProviderURL string `yaml:"health_provider_url"`

	KafkaBrokers       []string `yaml:"kafka_brokers"`
	KafkaSnapshotTopic string   `yaml:"kafka_snapshot_topic"`

	BatchSize     int           `yaml:"batch_size"`
	CaseDelay     time.Duration `yaml:"case_delay"`
	RetryInitial  time.Duration `yaml:"retry_initial"`
	RetryMax      time.Duration `yaml:"retry_max"`
	RetryAttempts int           `yaml:"retry_attempts"`
}

// LoadConfig loads configuration from an optional config.yaml overlaid by
// environment variables. Environment wins.
func LoadConfig() *Config {
	cfg := &Config{
		Port:               "8080",
		Environment:        "development",
		LLMAPIVersion:      "2023-12-01-preview",
		LLMDeploymentName:  "gpt-4o-mini",
		KafkaSnapshotTopic: "ofi-snapshots",
		BatchSize:          50,
		CaseDelay:          300 * time.Millisecond,
		RetryInitial:       3 * time.Second,
		RetryMax:           60 * time.Second,
		RetryAttempts:      5,
	}

	if data, err := os.ReadFile("config.yaml"); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Printf("Warning: ignoring malformed config.yaml: %v", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.APIKey = getEnv("API_KEY", cfg.APIKey)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.LLMEndpoint = getEnv("LLM_ENDPOINT", cfg.LLMEndpoint)
	cfg.LLMAPIKey = getEnv("LLM_API_KEY", cfg.LLMAPIKey)
	cfg.LLMAPIVersion = getEnv("LLM_API_VERSION", cfg.LLMAPIVersion)
	cfg.LLMDeploymentName = getEnv("LLM_DEPLOYMENT_NAME", cfg.LLMDeploymentName)
	cfg.TicketBridgeURL = getEnv("TICKET_BRIDGE_URL", cfg.TicketBridgeURL)
	cfg.HealthProviderURL = getEnv("HEALTH_PROVIDER_URL", cfg.HealthProviderURL)
	cfg.KafkaSnapshotTopic = getEnv("KAFKA_SNAPSHOT_TOPIC", cfg.KafkaSnapshotTopic)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchSize = n
		}
	}

	return cfg
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
