package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sokofresh/mpesa-checkout/internal"
	"github.com/sokofresh/mpesa-checkout/internal/core/events"
	"github.com/sokofresh/mpesa-checkout/internal/daraja"
	"github.com/sokofresh/mpesa-checkout/internal/notion"
	"github.com/sokofresh/mpesa-checkout/internal/payment"
	"github.com/sokofresh/mpesa-checkout/internal/payment/storage"
	"github.com/sokofresh/mpesa-checkout/internal/transport"
	"github.com/sokofresh/mpesa-checkout/internal/transport/middleware"
	"github.com/sokofresh/mpesa-checkout/internal/transport/rest"
	"github.com/sokofresh/mpesa-checkout/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server that exposes the payments API`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *gorm.DB
	SqlxDB   *sqlx.DB
	Router   *chi.Mux
	EventBus *events.EventBus
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		if err := deps.EventBus.Drain(ctx); err != nil {
			deps.Logger.Warn("Event handlers still running at shutdown", "error", err)
		}
		if err := deps.SqlxDB.Close(); err != nil {
			deps.Logger.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) {
	cfg := deps.Config

	paymentRepo := storage.NewPaymentRepository(deps.DB, deps.SqlxDB)
	darajaClient := daraja.NewClient(daraja.Config{
		ConsumerKey:       cfg.MPesa.ConsumerKey,
		ConsumerSecret:    cfg.MPesa.ConsumerSecret,
		BusinessShortCode: cfg.MPesa.BusinessShortCode,
		Passkey:           cfg.MPesa.Passkey,
		CallbackURL:       cfg.MPesa.CallbackURL,
		Environment:       cfg.MPesa.Environment,
		Timeout:           cfg.MPesa.Timeout,
	}, deps.Logger)

	paymentService := payment.NewPaymentService(paymentRepo, darajaClient, deps.EventBus, deps.Logger)
	paymentHandler := payment.NewHandler(paymentService, deps.Logger)
	webhookHandler := payment.NewWebhookHandler(transport.NewBaseHandler(deps.Logger), paymentService, deps.Logger)

	// Mirror successful payments into Notion when configured.
	if cfg.Notion.IsConfigured() {
		notionClient := notion.NewClient(notion.Config{
			APIKey:     cfg.Notion.APIKey,
			DatabaseID: cfg.Notion.DatabaseID,
			Timeout:    cfg.Notion.Timeout,
		}, deps.Logger)
		recorder := notion.NewRecorder(notionClient, deps.Logger)
		recorder.RegisterEventHandlers(deps.EventBus)
	}

	tokenIssuer := middleware.NewTokenIssuer(cfg.Security.APISecret, cfg.Security.TokenDuration)

	sqlDB, err := deps.DB.DB()
	if err != nil {
		deps.Logger.Error("failed to unwrap sql.DB from gorm", "error", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, sqlDB, paymentHandler, webhookHandler, tokenIssuer, cfg.Server.AllowedOrigins, deps.Logger)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	log := logger.L()

	gormDB, sqlxDB, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Dependencies{
		Config:   config,
		Logger:   log,
		DB:       gormDB,
		SqlxDB:   sqlxDB,
		Router:   chi.NewRouter(),
		EventBus: events.NewEventBus(log),
	}, nil
}

// initDB opens the database through gorm and wraps the same underlying
// connection with sqlx for the raw query paths. Postgres and a sqlite
// file are both supported; the DSN decides which.
func initDB(cfg internal.DatabaseConfig) (*gorm.DB, *sqlx.DB, error) {
	var (
		dialector  gorm.Dialector
		driverName string
	)
	if cfg.IsPostgres() {
		dialector = gormpostgres.Open(cfg.Source)
		driverName = "pgx"
	} else {
		dialector = gormsqlite.Open(cfg.Source)
		driverName = "sqlite3"
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to unwrap sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return gormDB, sqlx.NewDb(sqlDB, driverName), nil
}
