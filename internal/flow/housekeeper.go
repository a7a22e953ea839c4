package flow

import (
	"context"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"
)

// CleanupExpiredFlows deletes flow records whose expiry has passed,
// including completed flows past their confirmation-display retention.
func (m *Manager) CleanupExpiredFlows(ctx context.Context) error {
	flows, err := m.flows.ListFlows(ctx)
	if err != nil {
		return fmt.Errorf("listing flows: %w", err)
	}

	now := time.Now()
	for _, f := range flows {
		if !f.expired(now) {
			continue
		}

		if err := m.flows.DeleteFlow(ctx, f.ID); err != nil {
			slogctx.Warn(ctx, "Could not delete expired flow", "flow_id", f.ID, "error", err)
			continue
		}

		slogctx.Info(ctx, "Deleted expired flow", "flow_id", f.ID, "kind", f.Kind, "step", f.Step)
	}

	return nil
}
