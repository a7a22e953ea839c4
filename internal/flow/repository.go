package flow

import "context"

type Repository interface {
	LoadFlow(ctx context.Context, flowID string) (Flow, error)
	StoreFlow(ctx context.Context, flow Flow) error
	DeleteFlow(ctx context.Context, flowID string) error
	ListFlows(ctx context.Context) ([]Flow, error)
}
