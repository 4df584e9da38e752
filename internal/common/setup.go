package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"privacy-relay-settlement/internal/alerts"
	"privacy-relay-settlement/internal/batch"
	"privacy-relay-settlement/internal/conversion"
	"privacy-relay-settlement/internal/database"
	"privacy-relay-settlement/internal/deposit"
	"privacy-relay-settlement/internal/formance"
	"privacy-relay-settlement/internal/ledger"
	"privacy-relay-settlement/internal/metrics"
	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/oracle"
	"privacy-relay-settlement/internal/prime"
	"privacy-relay-settlement/internal/relay"
	"privacy-relay-settlement/internal/security"
	"privacy-relay-settlement/internal/settings"
	"privacy-relay-settlement/internal/transport"
	"privacy-relay-settlement/internal/withdrawal"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services holds every wired component of the settlement core.
type Services struct {
	DbService   *database.Service
	Ledger      *ledger.Service
	Journal     *formance.Service
	Cipher      *security.Cipher
	Converter   *conversion.Converter
	Oracle      *oracle.Client
	Relay       relay.Client
	Settings    *settings.Reader
	Alerts      *alerts.Dispatcher
	Metrics     *metrics.Recorder
	Deposits    *deposit.Executor
	Withdrawals *withdrawal.Worker
	Batches     *batch.Worker

	closers []func()
}

// BootstrapLogger installs a default production logger so failures before
// the configuration is loaded are still written to stderr.
func BootstrapLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	zap.ReplaceGlobals(logger)
	return logger
}

// InitializeLogger installs the global zap logger. With cfg.File set, a
// second JSON core writes to a rotating file.
func InitializeLogger(cfg models.LoggingConfig) (*zap.Logger, func()) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = level
	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	var rotating *lumberjack.Logger
	if cfg.File != "" {
		rotating = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zapCfg.EncoderConfig),
			zapcore.AddSync(rotating),
			level,
		)
		logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
		if rotating != nil {
			_ = rotating.Close()
		}
	}

	return logger, cleanup
}

// InitializeServices wires the full settlement core: repository, ledger,
// pricing, relay, alerts and both workers. Optional integrations (Formance
// journal, Prime destination, Kafka alerts, Redis settings) are only built
// when configured.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	s := &Services{}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	s.DbService = dbService
	s.closers = append(s.closers, dbService.Close)

	s.Cipher, err = security.NewCipher(cfg.Security.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key cipher: %w", err)
	}

	s.Metrics = metrics.NewRecorder()

	if s.Settings, err = initializeSettings(cfg.Settings, s); err != nil {
		return nil, err
	}

	if s.Alerts, err = initializeAlerts(cfg.Alerts, s); err != nil {
		return nil, err
	}

	registry, err := LoadRegistry(cfg.Deposit)
	if err != nil {
		return nil, err
	}

	httpClient, err := transport.NewHTTPClient(transport.Options{})
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	s.Oracle = oracle.NewClient(cfg.Oracle, httpClient)
	s.Oracle.OnFallback(s.Metrics.OracleFallback)
	s.Converter = conversion.NewConverter(registry, s.Oracle)

	if cfg.Relay.BaseURL == "" {
		return nil, fmt.Errorf("RELAY_BASE_URL is required")
	}
	s.Relay = relay.NewHTTPClient(cfg.Relay, httpClient)

	var mirror ledger.JournalMirror
	if cfg.Formance.StackURL != "" {
		s.Journal, err = formance.NewService(ctx, cfg.Formance, registry)
		if err != nil {
			return nil, err
		}
		mirror = s.Journal
	}
	s.Ledger = ledger.NewService(dbService, mirror)

	s.Deposits = deposit.NewExecutor(deposit.Dependencies{
		Sessions:  dbService,
		Ledger:    s.Ledger,
		Relay:     s.Relay,
		Keys:      s.Cipher,
		Converter: s.Converter,
		Settings:  s.Settings,
		Alerts:    s.Alerts,
		Metrics:   s.Metrics,
	}, cfg.Deposit, cfg.Fees)

	var destinations withdrawal.DestinationResolver
	if cfg.Prime.AccessKey != "" {
		primeService, err := prime.NewService(cfg.Prime)
		if err != nil {
			return nil, err
		}
		destinations = primeService
	}
	s.Withdrawals = withdrawal.NewWorker(withdrawal.Dependencies{
		Sessions:     dbService,
		Relay:        s.Relay,
		Keys:         s.Cipher,
		Destinations: destinations,
		Settings:     s.Settings,
		Alerts:       s.Alerts,
		Metrics:      s.Metrics,
	}, cfg.Withdrawal)

	s.Batches = batch.NewWorker(batch.Dependencies{
		Sessions:  dbService,
		Treasury:  dbService,
		Relay:     s.Relay,
		Keys:      s.Cipher,
		Converter: s.Converter,
		Settings:  s.Settings,
		Alerts:    s.Alerts,
		Metrics:   s.Metrics,
	}, cfg.Batch)

	ok = true
	return s, nil
}

func initializeSettings(cfg models.SettingsConfig, s *Services) (*settings.Reader, error) {
	switch cfg.Backend {
	case "", "static":
		return settings.NewReader(nil), nil
	case "file":
		fileStore, err := settings.NewFileStore(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to load settings file: %w", err)
		}
		return settings.NewReader(fileStore), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		redisStore := settings.NewRedisStore(client, cfg.RedisKey)
		s.closers = append(s.closers, func() {
			if err := redisStore.Close(); err != nil {
				zap.L().Warn("Failed to close settings store", zap.Error(err))
			}
		})
		return settings.NewReader(redisStore), nil
	default:
		return nil, fmt.Errorf("unknown settings backend %q", cfg.Backend)
	}
}

func initializeAlerts(cfg models.AlertsConfig, s *Services) (*alerts.Dispatcher, error) {
	sinks := []alerts.Notifier{alerts.LogNotifier{}}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier, err := alerts.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() {
			if err := kafkaNotifier.Close(); err != nil {
				zap.L().Warn("Failed to close alert writer", zap.Error(err))
			}
		})
		sinks = append(sinks, kafkaNotifier)
	}
	return alerts.NewDispatcher(s.Metrics, sinks...), nil
}

// LoadRegistry returns the configured currency registry, or the built-in
// SOL/USDC/USDT one when no currencies file is set.
func LoadRegistry(cfg models.DepositConfig) (*conversion.Registry, error) {
	if cfg.CurrenciesFile == "" {
		return conversion.DefaultRegistry(), nil
	}
	registry, err := conversion.LoadRegistry(cfg.CurrenciesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load currencies: %w", err)
	}
	return registry, nil
}

// InitializeDatabaseOnly initializes just the database service without the relay
// Useful for read-only operations like querying balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

// Close releases resources in reverse order of creation.
func (cs *Services) Close() {
	for i := len(cs.closers) - 1; i >= 0; i-- {
		cs.closers[i]()
	}
	cs.closers = nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
