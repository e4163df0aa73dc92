package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/HealthCoach/internal/advice"
	"github.com/BTreeMap/HealthCoach/internal/api"
	"github.com/BTreeMap/HealthCoach/internal/flow"
	"github.com/BTreeMap/HealthCoach/internal/genai"
	"github.com/BTreeMap/HealthCoach/internal/lockfile"
	"github.com/BTreeMap/HealthCoach/internal/messaging"
	"github.com/BTreeMap/HealthCoach/internal/session"
	"github.com/BTreeMap/HealthCoach/internal/store"
	"github.com/BTreeMap/HealthCoach/internal/telegram"
	"github.com/BTreeMap/HealthCoach/internal/telemetry"
	"github.com/BTreeMap/HealthCoach/internal/twiliowhatsapp"
	"github.com/BTreeMap/HealthCoach/internal/util"
	"github.com/BTreeMap/HealthCoach/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for HealthCoach state data
	DefaultStateDir = "/var/lib/healthcoach"
	// DefaultAppDBFileName is the SQLite archive created in the state directory
	DefaultAppDBFileName = "healthcoach.db"
	// DefaultWhatsAppDBFileName is the whatsmeow device store created in the state directory
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultJanitorInterval is how often idle sessions are swept
	DefaultJanitorInterval = 5 * time.Minute
)

// Messaging backends selectable with MESSAGING_BACKEND.
const (
	BackendNone     = "none"
	BackendTwilio   = "twilio"
	BackendWhatsApp = "whatsapp"
	BackendTelegram = "telegram"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()

	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping HealthCoach")
	if err := run(ctx, flags); err != nil {
		slog.Error("HealthCoach failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("HealthCoach exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir           string
	DatabaseDSN        string
	WhatsAppDBDSN      string
	OpenAIKey          string
	GenAIModel         string
	GenAITimeout       time.Duration
	APIAddr            string
	Backend            string
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioFromNumber   string
	TwilioWebhookURL   string
	TelegramBotToken   string
	EnableStepFeedback bool
	SessionTTL         time.Duration
}

// Flags holds command line flag values
type Flags struct {
	qrOutput           *string
	numeric            *bool
	stateDir           *string
	dbDSN              *string
	whatsAppDSN        *string
	openaiKey          *string
	genaiModel         *string
	genaiTimeout       *time.Duration
	apiAddr            *string
	backend            *string
	enableStepFeedback *bool
	sessionTTL         *time.Duration

	// Platform credentials come from the environment only.
	twilioAccountSID string
	twilioAuthToken  string
	twilioFromNumber string
	twilioWebhookURL string
	telegramBotToken string
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
		StateDir:           util.StringEnv("HEALTHCOACH_STATE_DIR", DefaultStateDir),
		DatabaseDSN:        util.StringEnv("DATABASE_URL", ""),
		WhatsAppDBDSN:      util.StringEnv("WHATSAPP_DB_DSN", ""),
		OpenAIKey:          util.StringEnv("OPENAI_API_KEY", ""),
		GenAIModel:         util.StringEnv("GENAI_MODEL", genai.DefaultModel),
		GenAITimeout:       util.ParseDurationEnv("GENAI_TIMEOUT", genai.DefaultTimeout),
		APIAddr:            util.StringEnv("API_ADDR", api.DefaultAddr),
		Backend:            util.StringEnv("MESSAGING_BACKEND", BackendNone),
		TwilioAccountSID:   util.StringEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:    util.StringEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:   util.StringEnv("TWILIO_FROM_NUMBER", ""),
		TwilioWebhookURL:   util.StringEnv("TWILIO_WEBHOOK_URL", ""),
		TelegramBotToken:   util.StringEnv("TELEGRAM_BOT_TOKEN", ""),
		EnableStepFeedback: util.ParseBoolEnv("ENABLE_STEP_FEEDBACK", false),
		SessionTTL:         util.ParseDurationEnv("SESSION_TTL", session.DefaultTTL),
	}

	// File databases default into the state directory.
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultAppDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = defaultWhatsAppDSN(config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"HEALTHCOACH_STATE_DIR", config.StateDir,
		"DATABASE_URL_type", store.DetectDSNType(config.DatabaseDSN),
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"GENAI_MODEL", config.GenAIModel,
		"GENAI_TIMEOUT", config.GenAITimeout,
		"API_ADDR", config.APIAddr,
		"MESSAGING_BACKEND", config.Backend,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"TWILIO_AUTH_TOKEN_SET", config.TwilioAuthToken != "",
		"TELEGRAM_BOT_TOKEN_SET", config.TelegramBotToken != "",
		"ENABLE_STEP_FEEDBACK", config.EnableStepFeedback,
		"SESSION_TTL", config.SessionTTL)

	return config
}

func defaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	flags := Flags{
		qrOutput:           fs.String("qr-output", "", "path to write the WhatsApp login QR code"),
		numeric:            fs.Bool("numeric-code", false, "print the WhatsApp pairing code instead of a QR code"),
		stateDir:           fs.String("state-dir", config.StateDir, "state directory for HealthCoach data (overrides $HEALTHCOACH_STATE_DIR)"),
		dbDSN:              fs.String("db-dsn", config.DatabaseDSN, "assessment archive DSN, SQLite path or Postgres URL, empty for in-memory (overrides $DATABASE_URL)"),
		whatsAppDSN:        fs.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)"),
		openaiKey:          fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		genaiModel:         fs.String("genai-model", config.GenAIModel, "chat model used for advice (overrides $GENAI_MODEL)"),
		genaiTimeout:       fs.Duration("genai-timeout", config.GenAITimeout, "timeout for one advice call (overrides $GENAI_TIMEOUT)"),
		apiAddr:            fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		backend:            fs.String("messaging-backend", config.Backend, "none, twilio, whatsapp or telegram (overrides $MESSAGING_BACKEND)"),
		enableStepFeedback: fs.Bool("step-feedback", config.EnableStepFeedback, "send a generated remark after each answer (overrides $ENABLE_STEP_FEEDBACK)"),
		sessionTTL:         fs.Duration("session-ttl", config.SessionTTL, "evict sessions idle this long, 0 disables (overrides $SESSION_TTL)"),

		twilioAccountSID: config.TwilioAccountSID,
		twilioAuthToken:  config.TwilioAuthToken,
		twilioFromNumber: config.TwilioFromNumber,
		twilioWebhookURL: config.TwilioWebhookURL,
		telegramBotToken: config.TelegramBotToken,
	}

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	// Follow an overridden state directory unless the DSNs were set explicitly.
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultAppDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultAppDBFileName)
		}
		if *flags.whatsAppDSN == defaultWhatsAppDSN(config.StateDir) {
			*flags.whatsAppDSN = defaultWhatsAppDSN(*flags.stateDir)
		}
		slog.Debug("Updated DSNs based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"genaiModel", *flags.genaiModel,
		"apiAddr", *flags.apiAddr,
		"backend", *flags.backend,
		"stepFeedback", *flags.enableStepFeedback,
		"sessionTTL", *flags.sessionTTL)

	return flags, nil
}

// run wires every component and serves until ctx is cancelled.
func run(ctx context.Context, flags Flags) error {
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := openStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	metrics := telemetry.NewMetrics()
	advisor := advice.NewGenerator(buildGenAIClient(flags), metrics)

	sessions := session.NewStore(session.WithTTL(*flags.sessionTTL))
	sessions.StartJanitor(ctx, janitorInterval(*flags.sessionTTL))

	intake := flow.NewIntake(sessions, advisor,
		flow.WithConfig(flow.Config{EnableStepFeedback: *flags.enableStepFeedback}),
		flow.WithArchive(st),
		flow.WithMetrics(metrics))

	msgService, webhook, cleanup, err := buildMessagingService(ctx, flags)
	if err != nil {
		return err
	}
	defer cleanup()

	handlerOpts := []messaging.HandlerOption{
		messaging.WithMessageLog(st),
		messaging.WithHandlerMetrics(metrics),
	}
	if dedup, ok := st.(store.DedupRepo); ok {
		handlerOpts = append(handlerOpts, messaging.WithDedup(dedup))
	}
	handler := messaging.NewResponseHandler(msgService, intake, handlerOpts...)

	if msgService != nil {
		if err := msgService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start messaging service: %w", err)
		}
		defer msgService.Stop()
	}
	handler.Start(ctx)

	apiOpts := []api.Option{api.WithAddr(*flags.apiAddr), api.WithMetrics(metrics)}
	if webhook != nil {
		apiOpts = append(apiOpts, api.WithTwilioWebhook(webhook))
	}
	return api.NewServer(handler, st, apiOpts...).Run(ctx)
}

// openStore picks the archive backend from the DSN; empty means in-memory.
func openStore(dsn string) (store.Store, error) {
	switch {
	case dsn == "":
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	case store.DetectDSNType(dsn) == "postgres":
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
		return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	}
}

// buildGenAIClient returns nil when no key is configured so every advice call
// takes the fallback path.
func buildGenAIClient(flags Flags) genai.ClientInterface {
	client, err := genai.NewClient(
		genai.WithAPIKey(*flags.openaiKey),
		genai.WithModel(*flags.genaiModel),
		genai.WithTimeout(*flags.genaiTimeout),
	)
	if err != nil {
		slog.Warn("GenAI client unavailable, advice will use fallback text", "error", err)
		return nil
	}
	return client
}

func janitorInterval(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < DefaultJanitorInterval {
		return ttl
	}
	return DefaultJanitorInterval
}

// buildMessagingService creates the configured chat transport. webhook is non-nil
// only for Twilio.
func buildMessagingService(ctx context.Context, flags Flags) (messaging.Service, http.HandlerFunc, func(), error) {
	cleanup := func() {}
	switch *flags.backend {
	case BackendNone, "":
		slog.Info("No messaging backend configured; conversations run through POST /messages only")
		return nil, nil, cleanup, nil

	case BackendTwilio:
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(flags.twilioAccountSID),
			twiliowhatsapp.WithAuthToken(flags.twilioAuthToken),
			twiliowhatsapp.WithFromWhats(flags.twilioFromNumber),
		)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		var opts []messaging.TwilioOption
		if flags.twilioAuthToken != "" {
			opts = append(opts, messaging.WithSignatureValidator(twiliowhatsapp.NewWebhookValidator(flags.twilioAuthToken), flags.twilioWebhookURL))
		}
		tw := messaging.NewTwilioService(client, opts...)
		return tw, tw.WebhookHandler, cleanup, nil

	case BackendWhatsApp:
		var waOpts []whatsapp.Option
		if *flags.whatsAppDSN != "" {
			waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsAppDSN))
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil, client.Disconnect, nil

	case BackendTelegram:
		client, err := telegram.NewClient(telegram.WithToken(flags.telegramBotToken))
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("failed to create Telegram client: %w", err)
		}
		return messaging.NewTelegramService(client), nil, cleanup, nil
	}
	return nil, nil, cleanup, errors.New("unknown messaging backend: " + *flags.backend)
}
