// Package flowvalkey persists credential flow state in Valkey. Records are
// stored as JSON with a server-side expiry matching the flow's own, so an
// abandoned wizard disappears on its own even if the housekeeper never runs.
package flowvalkey

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/fableink/credential-manager/internal/flow"
)

const objectTypeFlow = "flow"

// expiryGrace keeps a record readable slightly past its logical expiry so
// the manager can answer with "flow expired" instead of "not found".
const expiryGrace = time.Minute

type Repository struct {
	store *store
}

var _ = flow.Repository(&Repository{})

func NewRepository(valkeyClient valkey.Client, prefix string) *Repository {
	return &Repository{
		store: newStore(valkeyClient, prefix),
	}
}

func (r *Repository) LoadFlow(ctx context.Context, flowID string) (f flow.Flow, _ error) {
	if err := r.store.Get(ctx, objectTypeFlow, flowID, &f); err != nil {
		return flow.Flow{}, fmt.Errorf("getting flow from store: %w", err)
	}

	return f, nil
}

func (r *Repository) StoreFlow(ctx context.Context, f flow.Flow) error {
	ttl := time.Until(f.Expiry) + expiryGrace
	if ttl <= 0 {
		// already past its grace window, storing it would resurrect it
		return r.DeleteFlow(ctx, f.ID)
	}

	if err := r.store.Set(ctx, objectTypeFlow, f.ID, f, ttl); err != nil {
		return fmt.Errorf("setting flow into storage: %w", err)
	}

	return nil
}

func (r *Repository) DeleteFlow(ctx context.Context, flowID string) error {
	if err := r.store.Destroy(ctx, objectTypeFlow, flowID); err != nil {
		return fmt.Errorf("deleting flow from store: %w", err)
	}

	return nil
}

func (r *Repository) ListFlows(ctx context.Context) ([]flow.Flow, error) {
	var flows []flow.Flow
	if err := getStoreObjects(ctx, r.store, objectTypeFlow, "*", &flows); err != nil {
		return nil, fmt.Errorf("getting flows from store: %w", err)
	}

	return flows, nil
}
