package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Queues
	CrisisTeamQueueURL   string
	InterventionQueueURL string

	// Email
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	HRWellnessEmail   string
	EAPEmail          string

	// Notification delivery
	NotifyTimeout       time.Duration
	NotifyMaxAttempts   int
	NotifyRatePerSecond float64
	NotifyDedupWindow   time.Duration

	// Monitoring sweeps and scheduled deliveries
	MonitorInterval    time.Duration
	MonitorConcurrency int
	MonitorThreshold   int
	DispatchInterval   time.Duration

	RiskFactorsPath    string
	AdminJWTSecret     string
	AuditArchiveBucket string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		CrisisTeamQueueURL:   getEnv("CRISIS_TEAM_QUEUE_URL", ""),
		InterventionQueueURL: getEnv("INTERVENTION_QUEUE_URL", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Wellbeing Safety"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		HRWellnessEmail:   getEnv("HR_WELLNESS_EMAIL", ""),
		EAPEmail:          getEnv("EAP_EMAIL", ""),

		NotifyTimeout:       getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),
		NotifyMaxAttempts:   getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 3),
		NotifyRatePerSecond: getEnvAsFloat("NOTIFY_RATE_PER_SECOND", 5),
		NotifyDedupWindow:   getEnvAsDuration("NOTIFY_DEDUP_WINDOW", time.Hour),

		MonitorInterval:    getEnvAsDuration("MONITOR_INTERVAL", time.Hour),
		MonitorConcurrency: getEnvAsInt("MONITOR_CONCURRENCY", 4),
		MonitorThreshold:   getEnvAsInt("MONITOR_THRESHOLD", 6),
		DispatchInterval:   getEnvAsDuration("DISPATCH_INTERVAL", 30*time.Second),

		RiskFactorsPath:    getEnv("RISK_FACTORS_PATH", ""),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		AuditArchiveBucket: getEnv("AUDIT_ARCHIVE_BUCKET", ""),
	}
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
