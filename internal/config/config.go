package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPlanConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Auth      AuthConfig
	Stripe    StripeConfig
	LLM       LLMConfig
	PDF       PDFConfig
	S3        S3Config
	RateLimit RateLimitConfig
	CMS       CMSConfig
}

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

type StripeConfig struct {
	WebhookSecret string
}

type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
	MaxRetries     int
}

type PDFConfig struct {
	Renderer  string
	ChromeBin string
	MaxTabs   int
}

type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// Enabled reports whether rendered PDFs should be archived.
func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AIRate      float64
	AIBurst     int
	PublicRate  float64
	PublicBurst int
}

type CMSConfig struct {
	BaseURL         string
	APIKey          string
	CacheTTLSeconds int
}

const (
	PDFRendererChromium = "chromium"
	PDFRendererMaroto   = "maroto"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "invoicely"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "invoicely"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Auth: AuthConfig{
			JWTSecret:   strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
			JWTIssuer:   strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
			JWTAudience: strings.TrimSpace(getenv("AUTH_JWT_AUDIENCE", "")),
		},
		Stripe: StripeConfig{
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
		},
		LLM: LLMConfig{
			BaseURL:        strings.TrimRight(getenv("LLM_BASE_URL", "https://api.openai.com/v1"), "/"),
			APIKey:         strings.TrimSpace(getenv("LLM_API_KEY", "")),
			Model:          getenv("LLM_MODEL", "gpt-4o-mini"),
			TimeoutSeconds: getenvInt("LLM_TIMEOUT_SECONDS", 60),
			MaxRetries:     getenvInt("LLM_MAX_RETRIES", 2),
		},
		PDF: PDFConfig{
			Renderer:  strings.ToLower(getenv("PDF_RENDERER", PDFRendererChromium)),
			ChromeBin: strings.TrimSpace(getenv("PDF_CHROME_BIN", "")),
			MaxTabs:   getenvInt("PDF_MAX_TABS", 3),
		},
		S3: S3Config{
			Bucket:       strings.TrimSpace(getenv("S3_BUCKET", "")),
			Region:       getenv("S3_REGION", "us-east-1"),
			Endpoint:     strings.TrimSpace(getenv("S3_ENDPOINT", "")),
			AccessKey:    strings.TrimSpace(getenv("S3_ACCESS_KEY", "")),
			SecretKey:    strings.TrimSpace(getenv("S3_SECRET_KEY", "")),
			UsePathStyle: getenvBool("S3_USE_PATH_STYLE", false),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			RedisDB:       getenvInt("REDIS_DB", 0),
			AIRate:        getenvFloat("RATE_LIMIT_AI_RATE", 0.5),
			AIBurst:       getenvInt("RATE_LIMIT_AI_BURST", 5),
			PublicRate:    getenvFloat("RATE_LIMIT_PUBLIC_RATE", 1),
			PublicBurst:   getenvInt("RATE_LIMIT_PUBLIC_BURST", 30),
		},
		CMS: CMSConfig{
			BaseURL:         strings.TrimRight(strings.TrimSpace(getenv("CMS_BASE_URL", "")), "/"),
			APIKey:          strings.TrimSpace(getenv("CMS_API_KEY", "")),
			CacheTTLSeconds: getenvInt("CMS_CACHE_TTL_SECONDS", 300),
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
