package business

import (
	"context"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/fableink/credential-manager/internal/config"
)

// HousekeeperMain starts the house keeping jobs
func HousekeeperMain(ctx context.Context, cfg *config.Config) error {
	flowManager, _, closeFn, err := initManagers(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialise the flow manager: %w", err)
	}
	defer closeFn()

	// Start the housekeeper loop
	c := time.Tick(cfg.Housekeeper.TriggerInterval)
	for {
		if err := flowManager.CleanupExpiredFlows(ctx); err != nil {
			slogctx.Error(ctx, "Error during flow housekeeping", "error", err)
		}

		select {
		case <-c:
			continue
		case <-ctx.Done():
			return nil
		}
	}
}
