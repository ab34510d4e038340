package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"knite_oms/internal/domain"
	"knite_oms/internal/engine"
	"knite_oms/internal/execution"
	"knite_oms/internal/infra"
	"knite_oms/internal/infra/flattrade"
	"knite_oms/internal/storage"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config   *infra.Config
	Journal  *storage.Journal
	Registry *prometheus.Registry
	Metrics  *infra.Metrics
	Manager  *engine.Manager
	Stream   *flattrade.Stream // nil in MOCK mode

	live   *flattrade.Client // nil in MOCK mode
	unlock func()
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, DB, dirs, engine).
func (b *Bootstrap) Initialize(ctx context.Context) error {
	slog.Info("🚀 Bootstrapping Knite OMS...")

	// 1. Load Config (Dynamic Path Resolution)
	cfg, err := b.loadConfig()
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Workspace layout: _workspace/data/{mode}/journal.db
	mode := strings.ToLower(cfg.Trading.Mode)
	workDir := infra.GetWorkspaceDir()
	dataDir := filepath.Join(workDir, "data", mode)
	logDir := filepath.Join(workDir, "logs", mode)

	if err := infra.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := infra.EnsureDir(logDir); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}

	// 3.1 Singleton Instance Lock
	// Two engines sharing a journal and a venue session corrupt both.
	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return err
	}
	b.unlock = unlock

	dbPath := filepath.Join(dataDir, "journal.db")
	journal, err := storage.NewJournal(dbPath)
	if err != nil {
		return err
	}
	b.Journal = journal
	slog.Info("✅ Order journal initialized (WAL-mode)", "path", dbPath, "mode", mode)

	// 4. Metrics registry
	b.Registry = prometheus.NewRegistry()
	b.Registry.MustRegister(collectors.NewGoCollector())
	b.Metrics = infra.NewMetrics(b.Registry)

	// 5. Gateway + engine
	gw, err := b.buildGateway(ctx, cfg)
	if err != nil {
		return err
	}
	b.Manager = engine.NewManager(cfg, gw, domain.NoopLedger{}, journal, b.Metrics)
	slog.Info("✅ Order manager wired", "mode", cfg.Trading.Mode)

	// 6. Push stream (LIVE only), fed into the manager inbox
	if b.live != nil {
		b.Stream = flattrade.NewStream(
			cfg.Flattrade.WSURL,
			cfg.Flattrade.UserID,
			b.live.Token(),
			cfg.ReconnectDelay(),
			b.Manager.Inbox(),
		)
	}

	return nil
}

// StartStream connects the push subscription in LIVE mode. The engine runs
// fine without it; the poll path covers until the stream is up.
func (b *Bootstrap) StartStream(ctx context.Context) error {
	if b.Stream == nil {
		return nil
	}
	return b.Stream.Connect(ctx)
}

// Shutdown releases everything Initialize acquired, reverse order.
func (b *Bootstrap) Shutdown() {
	if b.Stream != nil {
		b.Stream.Disconnect()
	}
	if b.Journal != nil {
		if err := b.Journal.Close(); err != nil {
			slog.Warn("journal close failed", slog.Any("error", err))
		}
	}
	if b.unlock != nil {
		b.unlock()
	}
}

func (b *Bootstrap) loadConfig() (*infra.Config, error) {
	path := infra.ResolveConfigPath()
	cfg, err := infra.LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if os.IsNotExist(err) {
		slog.Warn("no config file found, using defaults", "path", path)
		return infra.DefaultConfig(), nil
	}
	return nil, err
}

// buildGateway selects the execution backend. LIVE trades real money and
// therefore requires an explicit second confirmation beyond the config file.
func (b *Bootstrap) buildGateway(ctx context.Context, cfg *infra.Config) (execution.Gateway, error) {
	if strings.ToUpper(cfg.Trading.Mode) != "LIVE" {
		slog.Info("🧪 MOCK mode: no venue calls will be made")
		return execution.NewMockGateway(), nil
	}

	if os.Getenv("KNITE_CONFIRM_LIVE") != "YES" {
		return nil, fmt.Errorf("LIVE mode requires KNITE_CONFIRM_LIVE=YES")
	}

	client := flattrade.NewClient(cfg)
	creds := flattrade.Credentials{
		UserID:    cfg.Flattrade.UserID,
		APIKey:    cfg.Flattrade.APIKey,
		APISecret: cfg.Flattrade.APISecret,
	}
	if err := client.Authenticate(ctx, creds); err != nil {
		return nil, fmt.Errorf("flattrade login failed: %w", err)
	}
	slog.Info("🔐 Flattrade session established", "user", cfg.Flattrade.UserID)

	b.live = client
	return client, nil
}
