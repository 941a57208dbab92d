package cmd

import (
	"fmt"

	"github.com/reframe-labs/coach/db"
	"github.com/reframe-labs/coach/internal/config"
	"github.com/reframe-labs/coach/internal/log"
)

// runMigrate applies passage store migrations and exits. Useful for
// deployments that migrate as a separate step before rolling the server.
func runMigrate(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.RetrievalEnabled {
		return fmt.Errorf("retrieval is disabled, nothing to migrate")
	}

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("migrations applied",
		"host", cfg.PostgresHost,
		"database", cfg.PostgresDBName,
	)
	return nil
}
