// Package app wires configuration into running components: Genkit, the
// passage store, the session store, the conversation engine and voice.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reframe-labs/coach/internal/config"
	"github.com/reframe-labs/coach/internal/engine"
	"github.com/reframe-labs/coach/internal/log"
	"github.com/reframe-labs/coach/internal/session"
	"github.com/reframe-labs/coach/internal/voice"
)

// App is the assembled application container.
type App struct {
	Config   *config.Config
	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	// DBPool is nil when retrieval is disabled.
	DBPool *pgxpool.Pool

	Sessions *session.Store
	Engine   *engine.Engine

	// Speech is nil when voice is disabled.
	Speech *voice.GeminiSpeech

	logger log.Logger
}

// Close releases held resources. Safe to call once after Setup succeeds.
func (a *App) Close() error {
	a.logger.Info("shutting down application")

	if a.DBPool != nil {
		a.DBPool.Close()
		a.logger.Info("database pool closed")
	}

	return nil
}
