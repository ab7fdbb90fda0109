package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/keelhq/nurture/internal/api"
	"github.com/keelhq/nurture/internal/brand"
	"github.com/keelhq/nurture/internal/channel"
	"github.com/keelhq/nurture/internal/followup"
	"github.com/keelhq/nurture/internal/genai"
	"github.com/keelhq/nurture/internal/health"
	"github.com/keelhq/nurture/internal/lockfile"
	"github.com/keelhq/nurture/internal/models"
	"github.com/keelhq/nurture/internal/notify"
	"github.com/keelhq/nurture/internal/scheduler"
	"github.com/keelhq/nurture/internal/store"
	"github.com/keelhq/nurture/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for nurture state data
	DefaultStateDir = "/var/lib/nurture"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "nurture.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("nurture failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("nurture exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	OpenAIModel string
	APIAddr     string
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	openaiKey   *string
	openaiModel *string
	apiAddr     *string
	tickSeconds *int
	claimLimit  *int
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
		StateDir:    os.Getenv("NURTURE_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: os.Getenv("OPENAI_MODEL"),
		APIAddr:     os.Getenv("API_ADDR"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No NURTURE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"NURTURE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for nurture data (overrides $NURTURE_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN: Postgres URL or SQLite file path (overrides $DATABASE_URL)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel: flag.String("openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "admin API listen address, empty disables the API (overrides $API_ADDR)"),
		tickSeconds: flag.Int("tick-seconds", int(followup.DefaultTickInterval.Seconds()), "worker polling interval in seconds"),
		claimLimit:  flag.Int("claim-limit", followup.DefaultClaimLimit, "max due jobs claimed per tick"),
	}

	flag.Parse()

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"tickSeconds", *flags.tickSeconds,
		"claimLimit", *flags.claimLimit)

	return flags
}

// openStore selects and opens the SQLite or Postgres backend based on the DSN.
func openStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildSenderRegistry wires every channel whose credentials are configured.
// Missing credentials disable a channel rather than aborting startup, so a
// deployment can run with any subset of platforms.
func buildSenderRegistry() *channel.Registry {
	reg := channel.NewRegistry()

	if ig, err := channel.NewInstagramSender(); err != nil {
		slog.Warn("Instagram sender disabled", "reason", err)
	} else {
		reg.Register(models.ChannelInstagram, ig)
	}
	if wa, err := channel.NewWhatsAppSender(); err != nil {
		slog.Warn("WhatsApp sender disabled", "reason", err)
	} else {
		reg.Register(models.ChannelWhatsApp, wa)
	}
	if em, err := channel.NewEmailSender(); err != nil {
		slog.Warn("Email sender disabled", "reason", err)
	} else {
		reg.Register(models.ChannelEmail, em)
	}

	return reg
}

func run(flags Flags) error {
	// One process per state directory: the processing status on jobs is the
	// only concurrency gate, so a second instance could double-send.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	// Ensure state directory exists for file-based storage
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(*flags.dbDSN), 0755); err != nil {
			return err
		}
	}

	st, err := openStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	generator, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return err
	}

	notifier := notify.NewNotifier(st)

	maint := scheduler.NewScheduler()
	defer maint.Stop()
	if err := maint.RegisterMaintenance(st, notifier); err != nil {
		return err
	}

	monitor := health.NewMonitor(notifier)
	worker := followup.NewWorker(
		st,
		buildSenderRegistry(),
		generator,
		&brand.StoreProvider{Store: st},
		notifier,
		monitor,
		followup.WithTickInterval(util.ParseDurationEnv("NURTURE_TICK_INTERVAL", time.Duration(*flags.tickSeconds)*time.Second)),
		followup.WithClaimLimit(*flags.claimLimit),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var adminAPI *api.Server
	if *flags.apiAddr != "" {
		adminAPI = api.NewServer(st, monitor, api.WithAddr(*flags.apiAddr))
	}

	monitor.Start(ctx)
	worker.Start(ctx)
	if adminAPI != nil {
		adminAPI.Start()
	}
	slog.Info("nurture started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutdown signal received", "signal", sig.String())

	if adminAPI != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := adminAPI.Stop(shutdownCtx); err != nil {
			slog.Error("admin API shutdown failed", "error", err)
		}
		shutdownCancel()
	}
	worker.Stop()
	monitor.Stop()
	return nil
}
