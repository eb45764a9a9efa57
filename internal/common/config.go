package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/checkup-extractor/constants"
)

// Config holds all application configuration
type Config struct {
	Deployment constants.DeploymentEnv
	LogLevel   string
	LogFormat  string // text | json
	Database   DatabaseConfig
	Redis      RedisConfig
	Server     ServerConfig
	Pipeline   PipelineConfig
	Queue      QueueConfig
	Raster     RasterConfig
	Providers  ProvidersConfig
	AWS        AWSConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // postgres | sqlite | redis
	DSN              string
	SQLitePath       string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// RedisConfig holds redis connection settings for the redis record store
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string
	AllowedOrigins []string
	MaxUploadMB    int
}

// PipelineConfig tunes the extraction pipeline
type PipelineConfig struct {
	ParseConcurrency int
	MaxAttempts      int
	RetryBackoff     time.Duration
	Lenient          bool

	// used when a request names no provider
	DefaultVisionProvider string
	DefaultParserProvider string
}

// QueueConfig tunes the background parse queue
type QueueConfig struct {
	Workers        int
	Size           int
	ProcessTimeout time.Duration
}

// RasterConfig controls page rendering
type RasterConfig struct {
	Pdftoppm    string
	DPI         int
	MaxPages    int
	MaxImageDim int
}

// ProvidersConfig holds per-provider endpoints, env keys and timeouts
type ProvidersConfig struct {
	Timeout       time.Duration
	VisionTimeout time.Duration

	UpstageAPIKey  string
	UpstageBaseURL string
	DoclingURL     string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	GeminiAPIKey   string
	OllamaURL      string
	TessdataDir    string
	TesseractLang  string
}

// AWSConfig is used to fetch s3:// document references
type AWSConfig struct {
	Region    string
	AccessKey string
	SecretKey string
}

// LoadConfig loads configuration from a .env file (if any) and environment variables
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Deployment: constants.DeploymentEnv(strings.ToLower(getEnv("DEPLOYMENT_ENV", string(constants.DeploymentLocal)))),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "text"),
		Database: DatabaseConfig{
			Driver:           getEnv("STORE_DRIVER", "sqlite"),
			DSN:              getEnv("DB_URL", ""),
			SQLitePath:       getEnv("SQLITE_PATH", "file:checkup.db?_pragma=busy_timeout(5000)"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
			GRPCAddr:       getEnv("GRPC_ADDR", ":9090"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			MaxUploadMB:    getEnvAsInt("MAX_UPLOAD_MB", 25),
		},
		Pipeline: PipelineConfig{
			ParseConcurrency: getEnvAsInt("PARSE_CONCURRENCY", 3),
			MaxAttempts:      getEnvAsInt("STRATEGY_MAX_ATTEMPTS", 3),
			RetryBackoff:     getEnvAsDuration("STRATEGY_RETRY_BACKOFF", time.Second),
			Lenient:          getEnvAsBool("LENIENT_SCHEMA", true),

			DefaultVisionProvider: getEnv("DEFAULT_VISION_PROVIDER", "openai"),
			DefaultParserProvider: getEnv("DEFAULT_PARSER_PROVIDER", "upstage"),
		},
		Queue: QueueConfig{
			Workers:        getEnvAsInt("QUEUE_WORKERS", 4),
			Size:           getEnvAsInt("QUEUE_SIZE", 128),
			ProcessTimeout: getEnvAsDuration("PROCESS_TIMEOUT", 15*time.Minute),
		},
		Raster: RasterConfig{
			Pdftoppm:    getEnv("PDFTOPPM_PATH", "pdftoppm"),
			DPI:         getEnvAsInt("RASTER_DPI", 200),
			MaxPages:    getEnvAsInt("MAX_PAGES", 20),
			MaxImageDim: getEnvAsInt("MAX_IMAGE_DIM", 2048),
		},
		Providers: ProvidersConfig{
			Timeout:        getEnvAsDuration("PROVIDER_TIMEOUT", 5*time.Minute),
			VisionTimeout:  getEnvAsDuration("VISION_TIMEOUT", 3*time.Minute),
			UpstageAPIKey:  getEnv("UPSTAGE_API_KEY", ""),
			UpstageBaseURL: getEnv("UPSTAGE_BASE_URL", "https://api.upstage.ai/v1"),
			DoclingURL:     getEnv("DOCLING_URL", "http://docling-serve:5001"),
			OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
			GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
			OllamaURL:      getEnv("OLLAMA_URL", "http://localhost:11434"),
			TessdataDir:    getEnv("TESSDATA_PREFIX", ""),
			TesseractLang:  getEnv("TESSERACT_LANG", "eng+kor"),
		},
		AWS: AWSConfig{
			Region:    getEnv("AWS_REGION", ""),
			AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
	}
}

// Helper functions for environment variable parsing
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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Deployment {
	case constants.DeploymentLocal, constants.DeploymentCloud:
	default:
		return ConfigError("DEPLOYMENT_ENV must be local or cloud")
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return ConfigError("DB_URL is required for the postgres store")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return ConfigError("SQLITE_PATH is required for the sqlite store")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return ConfigError("REDIS_ADDR is required for the redis store")
		}
	default:
		return ConfigError("STORE_DRIVER must be postgres, sqlite or redis")
	}
	if c.Pipeline.ParseConcurrency < 1 {
		return ConfigError("PARSE_CONCURRENCY must be >= 1")
	}
	if c.Pipeline.MaxAttempts < 1 {
		return ConfigError("STRATEGY_MAX_ATTEMPTS must be >= 1")
	}
	if c.Server.HTTPAddr == "" && c.Server.GRPCAddr == "" {
		return ConfigError("HTTP_ADDR or GRPC_ADDR is required")
	}
	return nil
}
