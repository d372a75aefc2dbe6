package container

import (
	"context"
	"fmt"

	"github.com/nodewave/flowrunner/cmd/flow-runner/service"
	"github.com/nodewave/flowrunner/common/bootstrap"
)

// Container wires the service layer once at startup
type Container struct {
	Components *bootstrap.Components
	Runs       *service.RunService
}

// NewContainer builds the run service over the configured store: Postgres
// when a database is connected, in-memory otherwise.
func NewContainer(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	var store service.Store
	if components.DB != nil {
		pg, err := service.NewPostgresStore(ctx, components.DB)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		store = pg
	} else {
		store = service.NewMemoryStore()
	}

	runs := service.NewRunService(store, components.Redis, components.Config, components.Logger)

	return &Container{
		Components: components,
		Runs:       runs,
	}, nil
}
