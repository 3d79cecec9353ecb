package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/dreamstone/dreamstone/internal/api"
	"github.com/dreamstone/dreamstone/internal/auth"
	"github.com/dreamstone/dreamstone/internal/genai"
	"github.com/dreamstone/dreamstone/internal/lockfile"
	"github.com/dreamstone/dreamstone/internal/store"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for dreamstone state data
	DefaultStateDir = "/var/lib/dreamstone"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "dreamstone.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()

	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// File-backed state directories admit only one instance at a time.
	if store.DetectDSNType(*flags.dbDSN) != "postgres" {
		lock, err := lockfile.AcquireLock(filepath.Dir(*flags.dbDSN))
		if err != nil {
			slog.Error("Failed to lock state directory", "error", err)
			os.Exit(1)
		}
		defer lock.Release()
	}

	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	authOpts := buildAuthOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping dreamstone with configured modules")
	slog.Debug("Module options counts", "store", len(storeOpts), "genai", len(genaiOpts), "auth", len(authOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	if err := api.Run(storeOpts, genaiOpts, authOpts, apiOpts); err != nil {
		slog.Error("dreamstone failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("dreamstone exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	OpenAIModel string
	APIAddr     string
	JWTSecret   string
	TokenTTL    string
	FlowTimeout string
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	openaiKey   *string
	openaiModel *string
	apiAddr     *string
	jwtSecret   *string
	tokenTTL    *string
	flowTimeout *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("DREAMSTONE_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: os.Getenv("OPENAI_MODEL"),
		APIAddr:     os.Getenv("API_ADDR"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		TokenTTL:    os.Getenv("TOKEN_TTL"),
		FlowTimeout: os.Getenv("FLOW_TIMEOUT"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No DREAMSTONE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("DREAMSTONE_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// Without a database URL, fall back to SQLite in the state directory.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"DREAMSTONE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"API_ADDR", config.APIAddr,
		"JWT_SECRET_SET", config.JWTSecret != "",
		"TOKEN_TTL", config.TokenTTL,
		"FLOW_TIMEOUT", config.FlowTimeout)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for dreamstone data (overrides $DREAMSTONE_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for the store (overrides $DATABASE_URL)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel: flag.String("openai-model", config.OpenAIModel, "OpenAI model name (overrides $OPENAI_MODEL)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		jwtSecret:   flag.String("jwt-secret", config.JWTSecret, "secret for signing session tokens (overrides $JWT_SECRET)"),
		tokenTTL:    flag.String("token-ttl", config.TokenTTL, "session token lifetime, e.g. 24h (overrides $TOKEN_TTL)"),
		flowTimeout: flag.String("flow-timeout", config.FlowTimeout, "per-request flow execution timeout, e.g. 60s (overrides $FLOW_TIMEOUT)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"openaiModel", *flags.openaiModel,
		"apiAddr", *flags.apiAddr,
		"jwtSecretSet", *flags.jwtSecret != "",
		"tokenTTL", *flags.tokenTTL,
		"flowTimeout", *flags.flowTimeout)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "dsn_updated", true, "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
		return err
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return storeOpts
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
		storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	return genaiOpts
}

// buildAuthOptions constructs auth service configuration options
func buildAuthOptions(flags Flags) []auth.Option {
	var authOpts []auth.Option
	if *flags.jwtSecret != "" {
		authOpts = append(authOpts, auth.WithSecret(*flags.jwtSecret))
	}
	if *flags.tokenTTL != "" {
		ttl, err := time.ParseDuration(*flags.tokenTTL)
		if err != nil {
			slog.Warn("Invalid token TTL, using default", "value", *flags.tokenTTL, "error", err)
		} else {
			authOpts = append(authOpts, auth.WithTokenTTL(ttl))
		}
	}
	return authOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.flowTimeout != "" {
		d, err := time.ParseDuration(*flags.flowTimeout)
		if err != nil {
			slog.Warn("Invalid flow timeout, using default", "value", *flags.flowTimeout, "error", err)
		} else {
			apiOpts = append(apiOpts, api.WithFlowTimeout(d))
		}
	}
	return apiOpts
}
