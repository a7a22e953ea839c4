// Package flowmock provides an in-memory flow repository for tests and for
// single-process deployments such as the interactive client.
package flowmock

import (
	"context"
	"sync"

	"github.com/fableink/credential-manager/internal/flow"
	"github.com/fableink/credential-manager/internal/serviceerr"
)

type RepositoryOption func(*Repository)

type Repository struct {
	mu    sync.Mutex
	flows map[string]flow.Flow

	loadErr, storeErr, deleteErr, listErr error
}

func WithFlow(f flow.Flow) RepositoryOption {
	return func(r *Repository) { r.flows[f.ID] = f }
}

func WithLoadError(err error) RepositoryOption {
	return func(r *Repository) { r.loadErr = err }
}

func WithStoreError(err error) RepositoryOption {
	return func(r *Repository) { r.storeErr = err }
}

func WithDeleteError(err error) RepositoryOption {
	return func(r *Repository) { r.deleteErr = err }
}

func WithListError(err error) RepositoryOption {
	return func(r *Repository) { r.listErr = err }
}

var _ = flow.Repository(&Repository{})

func NewInMemRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{
		flows: make(map[string]flow.Flow),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

func (r *Repository) LoadFlow(_ context.Context, flowID string) (flow.Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadErr != nil {
		return flow.Flow{}, r.loadErr
	}

	if f, ok := r.flows[flowID]; ok {
		return f, nil
	}

	return flow.Flow{}, serviceerr.ErrNotFound
}

func (r *Repository) StoreFlow(_ context.Context, f flow.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.storeErr != nil {
		return r.storeErr
	}

	r.flows[f.ID] = f

	return nil
}

func (r *Repository) DeleteFlow(_ context.Context, flowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleteErr != nil {
		return r.deleteErr
	}

	delete(r.flows, flowID)

	return nil
}

func (r *Repository) ListFlows(_ context.Context) ([]flow.Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listErr != nil {
		return nil, r.listErr
	}

	flows := make([]flow.Flow, 0, len(r.flows))
	for _, f := range r.flows {
		flows = append(flows, f)
	}

	return flows, nil
}
