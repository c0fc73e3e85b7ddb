package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            string
	Environment     string
	SupabaseURL     string
	SupabaseDBURL   string
	SupabaseJWKSURL string // Constructed from SupabaseURL + /auth/v1/.well-known/jwks.json
	JWTSecret       string // HS256 secret; when set, tokens are verified locally instead of via JWKS
	CORSOrigins     string
	TablePrefix     string
	AutoMigrate     bool
	LogDir          string
	LogMaxFiles     int

	// Collaboration
	RoomEvictionGrace   time.Duration // How long an empty room lingers before eviction (0 = immediate)
	RequestTimeout      time.Duration // Upper bound on any acknowledged request
	WSSendQueue         int           // Per-connection outbound buffer; full buffer drops the client
	WSEventsPerSecond   float64
	WSEventBurst        int
	WSKeepAliveInterval time.Duration

	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	tablePrefix := getTablePrefix(env)
	supabaseURL := getEnv("SUPABASE_URL", "")

	// Construct JWKS URL from Supabase URL
	jwksURL := supabaseURL + "/auth/v1/.well-known/jwks.json"

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     env,
		SupabaseURL:     supabaseURL,
		SupabaseDBURL:   getEnv("SUPABASE_DB_URL", ""),
		SupabaseJWKSURL: jwksURL,
		JWTSecret:       getEnv("JWT_SECRET", ""),
		CORSOrigins:     getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix:     tablePrefix,
		AutoMigrate:     getEnv("AUTO_MIGRATE", getDefaultDebug(env)) == "true",
		LogDir:          getEnv("LOG_DIR", ""),
		LogMaxFiles:     getInt("LOG_MAX_FILES", 10),

		RoomEvictionGrace:   getDuration("ROOM_EVICTION_GRACE", 30*time.Second),
		RequestTimeout:      getDuration("REQUEST_TIMEOUT", 10*time.Second),
		WSSendQueue:         getInt("WS_SEND_QUEUE", 64),
		WSEventsPerSecond:   getFloat("WS_EVENTS_PER_SECOND", 20),
		WSEventBurst:        getInt("WS_EVENT_BURST", 40),
		WSKeepAliveInterval: getDuration("WS_KEEPALIVE_INTERVAL", 10*time.Second),

		// Debug flags - default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration accepts Go duration strings ("30s", "2m"). Invalid values fall back to the default.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getFloat(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || f <= 0 {
		return defaultValue
	}
	return f
}
