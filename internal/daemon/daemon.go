package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/halwind/mnemo/internal/config"
	"github.com/halwind/mnemo/internal/logger"
	"github.com/halwind/mnemo/internal/observability"
	"github.com/halwind/mnemo/internal/tracing"
	"github.com/halwind/mnemo/pkg/chunker"
	"github.com/halwind/mnemo/pkg/embedding"
	"github.com/halwind/mnemo/pkg/memory"
	"github.com/halwind/mnemo/pkg/retrieval"
	"github.com/halwind/mnemo/pkg/store"
)

// Daemon is the long-running mnemo service. It owns the store, the
// memory manager with its cleanup loop, the optional document watcher,
// and the optional metrics listener.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	store    *store.Store
	provider embedding.Provider
	engine   *retrieval.Engine
	manager  *memory.Manager
	watcher  *memory.DocumentWatcher

	metricsServer *http.Server
	metricsAddr   string

	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status describes the daemon's runtime state
type Status struct {
	Running bool
	PID     int
	Uptime  time.Duration
}

// New creates a daemon instance and wires its components in dependency order
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()
	tracingEnabled := true
	if err := tracing.InitOpenTelemetry("mnemo"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		tracingEnabled = false
	}

	d := &Daemon{
		config:         cfg,
		logger:         log,
		ctx:            ctx,
		cancel:         cancel,
		tracingEnabled: tracingEnabled,
	}

	if err := d.initialize(); err != nil {
		cancel()
		if d.tracingEnabled {
			_ = tracing.ShutdownOpenTelemetry(context.Background())
			d.tracingEnabled = false
		}
		return nil, err
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

func (d *Daemon) initialize() error {
	cfg := d.config
	zl := d.logger.GetZerolog()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	auditPath := filepath.Join(cfg.DataDir, "audit.log")
	if err := observability.InitAuditLogger(auditPath); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
	} else {
		d.logger.Info().Str("path", auditPath).Msg("Audit logger initialized")
	}

	st, err := store.Open(cfg.Database.Path, cfg.Embedding.Dimension, zl)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	d.store = st
	d.logger.Info().Str("path", cfg.Database.Path).Msg("Store opened")

	provider, err := BuildProvider(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}
	d.provider = provider
	d.logger.Info().
		Str("provider", provider.Name()).
		Str("model", cfg.Embedding.Model).
		Int("dimension", cfg.Embedding.Dimension).
		Msg("Embedding provider initialized")

	d.engine = retrieval.NewEngine(st, retrieval.Config{
		DocTopK:           cfg.Retrieval.DocTopK,
		LongTopK:          cfg.Retrieval.LongTopK,
		DocANNMultiplier:  cfg.Retrieval.DocANNMultiplier,
		LongANNMultiplier: cfg.Retrieval.LongANNMultiplier,
		DocThreshold:      cfg.Retrieval.DocSimilarityThreshold,
		LongThreshold:     cfg.Retrieval.LongSimilarityThreshold,
		SurroundingChunks: cfg.Retrieval.SurroundingChunks,
	}, zl)

	ch := chunker.New(chunker.Config{
		Strategy:     chunker.Strategy(cfg.Chunking.Strategy),
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
		SentenceLink: cfg.Chunking.SentenceLink,
		PhraseLink:   cfg.Chunking.PhraseLink,
	}, zl)

	d.manager = memory.NewManager(st, provider, d.engine, ch, memory.Config{
		ShortTermMaxMessages: cfg.Memory.ShortTermMaxMessages,
		ShortTermTTL:         cfg.Memory.ShortTermTTL(),
		ShortTermTimeout:     cfg.Memory.ShortTermTimeout(),
		SearchTimeout:        cfg.Memory.SearchTimeout(),
		CleanupInterval:      cfg.Memory.CleanupInterval(),
	}, zl)
	d.logger.Info().Msg("Memory manager initialized")

	return nil
}

// BuildProvider constructs an embedding provider from configuration
func BuildProvider(cfg config.EmbeddingConfig) (embedding.Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return embedding.NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Dimension), nil
	case "openai":
		return embedding.NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// Manager returns the memory manager
func (d *Daemon) Manager() *memory.Manager {
	return d.manager
}

// MetricsAddr returns the bound metrics listener address, or "" when the
// metrics endpoint is disabled or the daemon is not running.
func (d *Daemon) MetricsAddr() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.metricsAddr
}

// Start starts the daemon components
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.manager.StartCleanup(); err != nil {
		return fmt.Errorf("failed to start cleanup loop: %w", err)
	}
	d.logger.Info().Msg("Short-term cleanup loop started")

	if d.config.Ingest.WatchEnabled {
		if err := d.startWatcher(); err != nil {
			return err
		}
	}

	if d.config.Metrics.Enabled {
		if err := d.startMetricsServer(); err != nil {
			return err
		}
	}

	d.logger.Info().Msg("Daemon started")
	return nil
}

func (d *Daemon) startWatcher() error {
	dir := d.config.Ingest.WatchDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create watch directory: %w", err)
	}

	watcher, err := memory.NewDocumentWatcher(d.manager, d.logger.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to create document watcher: %w", err)
	}
	if err := watcher.Watch(dir); err != nil {
		_ = watcher.Stop()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	d.watcher = watcher
	d.logger.Info().Str("dir", dir).Msg("Document watcher started")

	return nil
}

func (d *Daemon) startMetricsServer() error {
	ln, err := net.Listen("tcp", d.config.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())

	srv := &http.Server{Handler: mux}

	d.mu.Lock()
	d.metricsServer = srv
	d.metricsAddr = ln.Addr().String()
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			d.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()

	d.logger.Info().Str("addr", d.metricsAddr).Msg("Metrics listener started")
	return nil
}

// Stop stops the daemon components in reverse order
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	srv := d.metricsServer
	d.metricsServer = nil
	d.metricsAddr = ""
	d.mu.Unlock()

	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to stop document watcher")
		}
		d.watcher = nil
	}

	if err := d.manager.StopCleanup(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to stop cleanup loop")
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}

	d.wg.Wait()

	if err := d.store.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to close store")
	}

	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if d.tracingEnabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			d.logger.Warn().Err(err).Msg("Tracing shutdown failed")
		}
		d.tracingEnabled = false
	}

	d.logger.Info().Msg("Daemon stopped")
	return nil
}

// Run starts the daemon and blocks until SIGINT or SIGTERM
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		d.logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case <-d.ctx.Done():
	}

	return d.Stop()
}

// GetStatus returns the daemon's runtime state
func (d *Daemon) GetStatus() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
		PID:     os.Getpid(),
	}
	if d.running {
		status.Uptime = time.Since(d.startTime)
	}
	return status
}
