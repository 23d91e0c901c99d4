package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI string
	MongoDB  string
	Port     string

	StoreBackend   string
	LockBackend    string
	LockDir        string
	LockStaleAfter time.Duration

	Workers int

	GeminiAPIKey   string
	GeminiModel    string
	EmbeddingModel string
	EmbeddingDim   int

	FetchTimeout      time.Duration
	FetchMaxAttempts  int
	FetchInitialDelay time.Duration
	FetchRPS          float64
	ImageTimeout      time.Duration

	MaxStatusLogs int
	LogMode       string
	LogFile       string
	JobsFile      string
}

func LoadConfig() *Config {
	// Solo cargar .env en desarrollo local
	if _, err := os.Stat(".env"); err == nil {
		err := godotenv.Load()
		if err != nil {
			log.Println("⚠️ Error loading .env file:", err)
		} else {
			log.Println("✅ .env file loaded successfully")
		}
	} else {
		log.Println("🌐 Using system environment variables")
	}

	return &Config{
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:  getEnv("MONGO_DB", "enrichAdmin"),
		Port:     getEnv("PORT", "8080"),

		StoreBackend:   getEnv("STORE_BACKEND", "mongo"),
		LockBackend:    getEnv("LOCK_BACKEND", "file"),
		LockDir:        getEnv("LOCK_DIR", os.TempDir()),
		LockStaleAfter: getEnvDuration("LOCK_STALE_AFTER", 0),

		Workers: getEnvInt("WORKERS", 4),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		EmbeddingDim:   getEnvInt("EMBEDDING_DIM", 768),

		FetchTimeout:      getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		FetchMaxAttempts:  getEnvInt("FETCH_MAX_ATTEMPTS", 3),
		FetchInitialDelay: getEnvDuration("FETCH_INITIAL_DELAY", time.Second),
		FetchRPS:          getEnvFloat("FETCH_RPS", 2),
		ImageTimeout:      getEnvDuration("IMAGE_TIMEOUT", 10*time.Second),

		MaxStatusLogs: getEnvInt("MAX_STATUS_LOGS", 500),
		LogMode:       getEnv("LOG_MODE", "development"),
		LogFile:       getEnv("LOG_FILE", ""),
		JobsFile:      getEnv("JOBS_FILE", "jobs.yaml"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("⚠️ Invalid %s=%q, using %d", key, value, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("⚠️ Invalid %s=%q, using %v", key, value, fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("⚠️ Invalid %s=%q, using %s", key, value, fallback)
		return fallback
	}
	return d
}
