package cli

import (
	"fmt"

	"github.com/halwind/mnemo/internal/config"
	"github.com/halwind/mnemo/internal/daemon"
	"github.com/halwind/mnemo/internal/logger"
	"github.com/halwind/mnemo/pkg/chunker"
	"github.com/halwind/mnemo/pkg/memory"
	"github.com/halwind/mnemo/pkg/retrieval"
	"github.com/halwind/mnemo/pkg/store"
)

// runtime holds the components a one-shot command needs. Commands talk
// to the database directly; the store runs in WAL mode so this is safe
// alongside a running daemon.
type runtime struct {
	cfg     *config.Config
	log     *logger.Logger
	store   *store.Store
	manager *memory.Manager
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newRuntime wires store, embedding provider, retrieval engine, and
// memory manager for a single command invocation. Logs go to the log
// file only, keeping stdout for command output.
func newRuntime() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	zl := log.GetZerolog()

	st, err := store.Open(cfg.Database.Path, cfg.Embedding.Dimension, zl)
	if err != nil {
		_ = log.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	provider, err := daemon.BuildProvider(cfg.Embedding)
	if err != nil {
		_ = st.Close()
		_ = log.Close()
		return nil, err
	}

	engine := retrieval.NewEngine(st, retrieval.Config{
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

	mgr := memory.NewManager(st, provider, engine, ch, memory.Config{
		ShortTermMaxMessages: cfg.Memory.ShortTermMaxMessages,
		ShortTermTTL:         cfg.Memory.ShortTermTTL(),
		ShortTermTimeout:     cfg.Memory.ShortTermTimeout(),
		SearchTimeout:        cfg.Memory.SearchTimeout(),
		CleanupInterval:      cfg.Memory.CleanupInterval(),
	}, zl)

	return &runtime{
		cfg:     cfg,
		log:     log,
		store:   st,
		manager: mgr,
	}, nil
}

func (r *runtime) Close() {
	if err := r.store.Close(); err != nil {
		r.log.Warn().Err(err).Msg("Failed to close store")
	}
	_ = r.log.Close()
}
