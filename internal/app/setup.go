package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reframe-labs/coach/db"
	"github.com/reframe-labs/coach/internal/config"
	"github.com/reframe-labs/coach/internal/engine"
	"github.com/reframe-labs/coach/internal/log"
	"github.com/reframe-labs/coach/internal/retrieval"
	"github.com/reframe-labs/coach/internal/session"
	"github.com/reframe-labs/coach/internal/voice"
)

// Setup builds the application from validated configuration. On error,
// anything already opened is closed before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		Genkit: g,
		logger: logger,
	}

	sessions := session.New(session.Config{
		TTL:        cfg.SessionTTL,
		MaxTotal:   cfg.MaxSessions,
		MaxPerKey:  cfg.MaxSessionsPerKey,
		MaxHistory: cfg.MaxHistory,
		Logger:     logger,
	})
	a.Sessions = sessions

	var retriever *retrieval.Retriever
	if cfg.RetrievalEnabled {
		pool, err := providePassageStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.DBPool = pool
		a.Embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)

		searcher, err := retrieval.NewPGSearcher(pool, a.Embedder)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("creating passage searcher: %w", err)
		}
		retriever = retrieval.NewRetriever(searcher, retrieval.Config{
			Timeout: cfg.RetrievalTimeout,
			TopK:    cfg.RetrievalTopK,
			Logger:  logger,
		})
	} else {
		logger.Info("retrieval disabled, replies will not be grounded in passages")
	}

	provider, err := engine.NewGenkitProvider(g, cfg.FullModelName(), cfg.Temperature)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating model provider: %w", err)
	}

	var fetcher engine.PassageFetcher
	if retriever != nil {
		fetcher = retriever
	}
	eng, err := engine.New(engine.Config{
		Store:         sessions,
		Retriever:     fetcher,
		Provider:      provider,
		HistoryWindow: cfg.HistoryWindow,
		TurnTimeout:   cfg.TurnTimeout,
		Logger:        logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	a.Engine = eng

	if cfg.VoiceEnabled {
		speech, err := voice.NewGeminiSpeech(ctx, voice.GeminiConfig{Logger: logger})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating speech client: %w", err)
		}
		a.Speech = speech
	}

	return a, nil
}

// provideGenkit initializes Genkit with the Google AI plugin. The API key
// comes from the GEMINI_API_KEY environment variable.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with gemini provider")
	}
	return g, nil
}

// providePassageStore runs migrations and opens the pgx pool.
func providePassageStore(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("passage store ready",
		"host", cfg.PostgresHost,
		"database", cfg.PostgresDBName,
	)
	return pool, nil
}
