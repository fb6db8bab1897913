// Package config reads application configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// LLM provider selection: "openai" or "bedrock".
	LLMProvider    string
	LLMModel       string
	LLMTimeout     time.Duration
	OpenAIAPIKey   string
	AWSRegion      string
	BedrockModelID string

	// Scheduling backend (Cliniko-style).
	ClinikoBaseURL        string
	ClinikoAPIKey         string
	ClinikoBusinessID     string
	ClinikoPractitionerID string
	BookingTimeout        time.Duration
	ProbeTimeout          time.Duration

	// Clinic presentation, woven into the system prompt.
	ClinicName     string
	ClinicTimezone string
	ClinicHours    string
	ClinicPhone    string

	// Session store.
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	SessionTTL       time.Duration
	JanitorInterval  time.Duration
	MaxHistoryLength int
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		LLMProvider:    strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "openai"))),
		LLMModel:       getEnv("LLM_MODEL", ""),
		LLMTimeout:     getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0"),

		ClinikoBaseURL:        getEnv("CLINIKO_BASE_URL", "https://api.uk2.cliniko.com/v1"),
		ClinikoAPIKey:         getEnv("CLINIKO_API_KEY", ""),
		ClinikoBusinessID:     getEnv("CLINIKO_BUSINESS_ID", ""),
		ClinikoPractitionerID: getEnv("CLINIKO_PRACTITIONER_ID", ""),
		BookingTimeout:        getEnvAsDuration("BOOKING_TIMEOUT", 10*time.Second),
		ProbeTimeout:          getEnvAsDuration("BOOKING_PROBE_TIMEOUT", 5*time.Second),

		ClinicName:     getEnv("CLINIC_NAME", ""),
		ClinicTimezone: getEnv("CLINIC_TIMEZONE", "Europe/London"),
		ClinicHours:    getEnv("CLINIC_HOURS", "Mon-Fri 9:00-17:00"),
		ClinicPhone:    getEnv("CLINIC_PHONE", ""),

		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
		SessionTTL:       getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		JanitorInterval:  getEnvAsDuration("SESSION_JANITOR_INTERVAL", time.Minute),
		MaxHistoryLength: getEnvAsInt("SESSION_MAX_HISTORY", 24),
	}
}

// IsProduction reports whether the app runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsBool(key string, fallback bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}
