// Package main provides the rule console versioning server entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/golang/glog"
	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ruleops/rule-console/pkg/versioning"
)

func main() {
	var (
		listenAddr   string
		configPath   string
		databaseType string
		databaseDSN  string
	)

	flag.StringVar(&listenAddr, "listen", ":8080", "Address to listen on")
	flag.StringVar(&configPath, "config", "", "Path to console config file (YAML)")
	flag.StringVar(&databaseType, "db-type", "postgres", "Database type (postgres or mysql)")
	flag.StringVar(&databaseDSN, "db-dsn", "", "Database connection string")
	flag.Parse()

	// Initialize glog for backwards compatibility
	_ = flag.Set("logtostderr", "true")

	// Set up structured logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetString("server.listen") != "" && listenAddr == ":8080" {
		listenAddr = cfg.GetString("server.listen")
	}
	if cfg.GetString("database.type") != "" && databaseType == "postgres" {
		databaseType = cfg.GetString("database.type")
	}
	if databaseDSN == "" {
		databaseDSN = cfg.GetString("database.dsn")
	}

	logger.Info("starting console server", "listen", listenAddr, "dbType", databaseType)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	gormDB, err := setupDatabase(databaseType, databaseDSN)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}

	store := versioning.NewVersionStore(gormDB)
	if secs := cfg.GetInt("storage.timeout_seconds"); secs > 0 {
		store.SetTimeout(time.Duration(secs) * time.Second)
	}
	if err := store.AutoMigrate(); err != nil {
		glog.Fatalf("Failed to migrate version tables: %v", err)
	}
	audit := versioning.NewAuditStore(gormDB)
	if err := audit.AutoMigrate(); err != nil {
		glog.Fatalf("Failed to migrate audit tables: %v", err)
	}

	machine := versioning.NewVersionStateMachine(store)
	coordinator := versioning.NewPublishCoordinator(machine, audit, newNotifier(cfg, logger), logger)
	sessions := versioning.NewSessionManager(store, coordinator)
	history := versioning.NewVersionHistoryService(store)

	if days := cfg.GetInt("audit.retention_days"); days > 0 {
		go auditRetentionLoop(ctx, audit, days, logger)
	}

	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Principal", "X-User-Role"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Mount("/api/versioning/v1alpha1", versioning.NewRouter(sessions, history, coordinator, machine, audit))

	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: router,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("console server ready", "listen", listenAddr)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("console server stopped")
}

// loadConfig reads the optional YAML config file plus CONSOLE_* env overrides.
func loadConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("CONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		return v, nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return v, nil
}

func setupDatabase(dbType, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("database DSN is required (use -db-dsn flag or DATABASE_DSN environment variable)")
		}
	}

	gormCfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	}

	switch dbType {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), gormCfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database type %q (expected postgres or mysql)", dbType)
	}
}

// newNotifier builds the rule-engine reload notifier when an endpoint is
// configured; nil otherwise.
func newNotifier(cfg *viper.Viper, logger *slog.Logger) versioning.RuntimeNotifier {
	endpoint := cfg.GetString("runtime.reload_url")
	if endpoint == "" {
		return nil
	}
	logger.Info("runtime reload notifications enabled", "endpoint", endpoint)
	return &httpNotifier{endpoint: endpoint, client: &http.Client{Timeout: 10 * time.Second}}
}

// httpNotifier POSTs activation notices to the rule engine's reload endpoint.
type httpNotifier struct {
	endpoint string
	client   *http.Client
}

func (n *httpNotifier) NotifyActivated(ctx context.Context, eventNo, versionID string) error {
	body := strings.NewReader(fmt.Sprintf(`{"eventNo":%q,"versionId":%q}`, eventNo, versionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("reload endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// auditRetentionLoop prunes audit events past the retention window once a day.
func auditRetentionLoop(ctx context.Context, audit *versioning.AuditStore, days int, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -days)
			deleted, err := audit.DeleteOlderThan(cutoff)
			if err != nil {
				logger.Error("audit retention sweep failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("pruned audit events", "deleted", deleted, "cutoff", cutoff)
			}
		}
	}
}
