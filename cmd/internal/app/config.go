package app

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config contains all runtime configuration loaded from environment variables
// (optionally seeded from a .env file) and command-line flags.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Shared area selection: memory, redis or postgres.
	StoreDriver    string
	StoreNamespace string

	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisDB       int

	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	PostgresSchema string

	// If true, /readyz returns 503 unless a shared (non-memory) store is configured.
	ReadinessRequireSharedStore bool

	// Security policy: if true, ARC_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) so
	// token fingerprints in logs are keyed.
	RequireTokenHMAC bool

	// RestoreOnStart runs session restoration once the agent is up.
	RestoreOnStart bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("ARC_HTTP_ADDR", "127.0.0.1:7420"),
		LogLevel:  EnvString("ARC_LOG_LEVEL", "info"),
		LogFormat: EnvString("ARC_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("ARC_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("ARC_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("ARC_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("ARC_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("ARC_HTTP_MAX_HEADER_BYTES", 1<<20),

		StoreDriver:    EnvString("ARC_STORE_DRIVER", "memory"),
		StoreNamespace: EnvString("ARC_STORE_NAMESPACE", "arc"),

		RedisAddr:     EnvString("ARC_REDIS_ADDR", ""),
		RedisUsername: EnvString("ARC_REDIS_USERNAME", ""),
		RedisPassword: EnvString("ARC_REDIS_PASSWORD", ""),
		RedisDB:       EnvNonNegativeInt("ARC_REDIS_DB", 0),

		DatabaseURL:    EnvString("ARC_DATABASE_URL", ""),
		DBMaxConns:     EnvInt32("ARC_DB_MAX_CONNS", 4),
		DBMinConns:     EnvInt32("ARC_DB_MIN_CONNS", 0),
		PostgresSchema: EnvString("ARC_DB_SCHEMA", "arcclient"),

		ReadinessRequireSharedStore: EnvBool("ARC_READINESS_REQUIRE_SHARED_STORE", false),

		RequireTokenHMAC: EnvBool("ARC_REQUIRE_TOKEN_HMAC", false),

		RestoreOnStart: EnvBool("ARC_RESTORE_ON_START", true),
	}
}

// LoadConfigFromArgs parses command-line flags, loads the .env file they name
// (variables already set in the environment win), then reads the environment
// and lets explicitly passed flags override it.
//
// It returns pflag.ErrHelp when -h/--help was requested.
func LoadConfigFromArgs(args []string) (Config, error) {
	flags := pflag.NewFlagSet("arcclient", pflag.ContinueOnError)

	envFile := flags.String("env-file", ".env", "dotenv file to load before reading the environment")
	httpAddr := flags.String("http-addr", "", "local HTTP listen address (ARC_HTTP_ADDR)")
	logLevel := flags.String("log-level", "", "debug, info, warn or error (ARC_LOG_LEVEL)")
	logFormat := flags.String("log-format", "", "json or pretty (ARC_LOG_FORMAT)")
	storeDriver := flags.String("store", "", "shared store driver: memory, redis or postgres (ARC_STORE_DRIVER)")
	redisAddr := flags.String("redis-addr", "", "redis address for the redis store (ARC_REDIS_ADDR)")
	databaseURL := flags.String("database-url", "", "postgres URL for the postgres store (ARC_DATABASE_URL)")
	restore := flags.Bool("restore-on-start", true, "run session restoration at startup (ARC_RESTORE_ON_START)")

	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}
	if rest := flags.Args(); len(rest) > 0 {
		return Config{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	if err := loadEnvFile(*envFile, flags.Changed("env-file")); err != nil {
		return Config{}, err
	}

	cfg := LoadConfig()

	overrides := []struct {
		name string
		src  *string
		dst  *string
	}{
		{"http-addr", httpAddr, &cfg.HTTPAddr},
		{"log-level", logLevel, &cfg.LogLevel},
		{"log-format", logFormat, &cfg.LogFormat},
		{"store", storeDriver, &cfg.StoreDriver},
		{"redis-addr", redisAddr, &cfg.RedisAddr},
		{"database-url", databaseURL, &cfg.DatabaseURL},
	}
	for _, o := range overrides {
		if flags.Changed(o.name) {
			*o.dst = *o.src
		}
	}
	if flags.Changed("restore-on-start") {
		cfg.RestoreOnStart = *restore
	}

	return cfg, nil
}

// loadEnvFile loads path into the environment. A missing default file is not
// an error; a missing file the user asked for is.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
