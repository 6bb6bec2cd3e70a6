package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	JWTSecret   string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleProjectID    string
	GoogleCredentials  string
	GmailPubSubTopic   string

	FirebaseCredentials string

	AIProvider    string // "gemini" or "openai"
	GeminiAPIKey  string
	OpenAIAPIKey  string
	AICallTimeout time.Duration

	ChromaAPIKey   string
	ChromaTenant   string
	ChromaDatabase string

	RedisAddr    string
	QueueEnabled bool

	// Sync cycle policy
	CyclePeriod            time.Duration
	IntervalVeryActive     time.Duration
	IntervalActive         time.Duration
	IntervalSomewhatActive time.Duration
	ActivityThrottle       time.Duration
	SyncPageSize           int

	// Job pipeline policy
	ProcessingWorkers int
	DraftWorkers      int
	LearningWorkers   int
	JobMaxAttempts    int
	JobBackoffBase    time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=mailpilot port=5432 sslmode=disable"),
		JWTSecret:   getEnv("JWT_SECRET", "your-secret-key-change-in-production"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleProjectID:    getEnv("GOOGLE_PROJECT_ID", ""),
		GoogleCredentials:  getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GmailPubSubTopic:   getEnv("GMAIL_PUBSUB_TOPIC", "gmail-updates"),

		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),

		AIProvider:    getEnv("AI_PROVIDER", "gemini"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		AICallTimeout: getDuration("AI_CALL_TIMEOUT", 30*time.Second),

		ChromaAPIKey:   getEnv("CHROMA_API_KEY", ""),
		ChromaTenant:   getEnv("CHROMA_TENANT", ""),
		ChromaDatabase: getEnv("CHROMA_DATABASE", ""),

		RedisAddr:    getEnv("REDIS_ADDR", ""),
		QueueEnabled: getBool("QUEUE_BACKEND_ENABLED", false),

		CyclePeriod:            getDuration("SYNC_CYCLE_PERIOD", 2*time.Minute),
		IntervalVeryActive:     getDuration("SYNC_INTERVAL_VERY_ACTIVE", 2*time.Minute),
		IntervalActive:         getDuration("SYNC_INTERVAL_ACTIVE", 5*time.Minute),
		IntervalSomewhatActive: getDuration("SYNC_INTERVAL_SOMEWHAT_ACTIVE", 15*time.Minute),
		ActivityThrottle:       getDuration("ACTIVITY_THROTTLE", 30*time.Second),
		SyncPageSize:           getInt("SYNC_PAGE_SIZE", 20),

		ProcessingWorkers: getInt("PROCESSING_WORKERS", 5),
		DraftWorkers:      getInt("DRAFT_WORKERS", 3),
		LearningWorkers:   getInt("LEARNING_WORKERS", 2),
		JobMaxAttempts:    getInt("JOB_MAX_ATTEMPTS", 3),
		JobBackoffBase:    getDuration("JOB_BACKOFF_BASE", 2*time.Second),
	}
}

// Validate checks settings that would make the process unable to do useful
// work. Missing optional integrations (FCM, Chroma, Pub/Sub) are not errors.
func (c *Config) Validate() error {
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	if c.QueueEnabled && c.RedisAddr == "" {
		return fmt.Errorf("QUEUE_BACKEND_ENABLED is set but REDIS_ADDR is empty")
	}
	if c.AIProvider == "gemini" && c.GeminiAPIKey == "" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("no AI provider credentials configured (GEMINI_API_KEY or OPENAI_API_KEY)")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
