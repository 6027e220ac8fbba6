package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	// S3 bucket and key prefix holding optional email template overrides.
	TemplateBucket string
	TemplatePrefix string

	// SNS topic that receives a copy of every notification event. Empty disables forwarding.
	SNSTopicARN string
	SNSRegion   string

	JWTPublicKeyPath  string
	JWTPrivateKeyPath string
	JWTExpiry         time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	// SMTPOverrideKey is the hex-encoded 32-byte key sealing per-user SMTP passwords.
	SMTPOverrideKey string

	MailWorkers   int
	MailQueueSize int

	// RecurrenceSchedule is a standard five-field cron expression in server local time.
	RecurrenceSchedule    string
	RecurrenceTaskTimeout time.Duration

	AllowedOrigins []string // CORS and websocket allowed origins
	AppBaseURL     string   // used to build deep links in notifications
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Tasks         string
	Notifications string
	Preferences   string
	AuditLogs     string
	Users         string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:  getEnv("APP_PORT", "3000"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Tasks:         getEnv("DYNAMO_TABLE_TASKS", "tasks"),
			Notifications: getEnv("DYNAMO_TABLE_NOTIFICATIONS", "notifications"),
			Preferences:   getEnv("DYNAMO_TABLE_NOTIFICATION_PREFERENCES", "notification_preferences"),
			AuditLogs:     getEnv("DYNAMO_TABLE_AUDIT_LOGS", "audit_logs"),
			Users:         getEnv("DYNAMO_TABLE_USERS", "users"),
		},

		TemplateBucket: getEnv("S3_TEMPLATE_BUCKET", ""),
		TemplatePrefix: getEnv("S3_TEMPLATE_PREFIX", "email-templates"),

		SNSTopicARN: getEnv("SNS_NOTIFICATION_TOPIC_ARN", ""),
		SNSRegion:   getEnv("SNS_REGION", "us-east-1"),

		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", ""),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_DAYS", 7)) * 24 * time.Hour,

		SMTPHost:        getEnv("SMTP_HOST", "localhost"),
		SMTPPort:        getEnv("SMTP_PORT", "1025"),
		SMTPFrom:        getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SMTPOverrideKey: getEnv("SMTP_OVERRIDE_KEY", ""),

		MailWorkers:   getEnvInt("MAIL_WORKERS", 2),
		MailQueueSize: getEnvInt("MAIL_QUEUE_SIZE", 256),

		RecurrenceSchedule:    getEnv("RECURRENCE_SCHEDULE", "0 0 * * *"),
		RecurrenceTaskTimeout: getEnvDuration("RECURRENCE_TASK_TIMEOUT", 30*time.Second),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		AppBaseURL:     strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:3000"), "/"),
	}
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
