package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	CatalogCacheTTLSeconds int
	TaxRatePercent         float64
	AuthSecret             string
	AccessTokenTTLMinutes  int
	SquareAccessToken      string
	SquareEnvironment      string
	SquareLocationID       string
	SquareApplicationID    string
	SquareMockMode         bool
	POSCallbackURL         string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheTTL, err := strconv.Atoi(getEnv("CATALOG_CACHE_TTL_SECONDS", "10"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 10
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	taxRate, err := strconv.ParseFloat(getEnv("TAX_RATE_PERCENT", "0"), 64)
	if err != nil || taxRate < 0 || taxRate > 100 {
		taxRate = 0
	}

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		CatalogCacheTTLSeconds: cacheTTL,
		TaxRatePercent:         taxRate,
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  tokenTTL,
		SquareAccessToken:      strings.TrimSpace(os.Getenv("SQUARE_ACCESS_TOKEN")),
		SquareEnvironment:      getEnv("SQUARE_ENVIRONMENT", "sandbox"),
		SquareLocationID:       strings.TrimSpace(os.Getenv("SQUARE_LOCATION_ID")),
		SquareApplicationID:    strings.TrimSpace(os.Getenv("SQUARE_APPLICATION_ID")),
		SquareMockMode:         parseBool(getEnv("SQUARE_MOCK_MODE", "")),
		POSCallbackURL:         getEnv("POS_CALLBACK_URL", "http://127.0.0.1:8080/api/square/pos-callback"),
	}

	// Without credentials the real Square client cannot work, so mock mode
	// is forced on rather than failing every payment call.
	if cfg.SquareAccessToken == "" {
		cfg.SquareMockMode = true
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func parseBool(raw string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return parsed
}
