package provider

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

const TypeSyncBalances = "provider:sync_balances"

// RegisterTasks mounts the provider sweep handlers on the worker mux.
func RegisterTasks(mux *asynq.ServeMux, service Service) {
	mux.HandleFunc(TypeSyncBalances, func(ctx context.Context, t *asynq.Task) error {
		return service.SyncBalances(ctx)
	})
}

type taskParams struct {
	fx.In

	Mux     *asynq.ServeMux
	Service Service
}

// TaskModule wires the handlers into the worker process.
var TaskModule = fx.Module("provider.tasks",
	fx.Invoke(func(p taskParams) {
		RegisterTasks(p.Mux, p.Service)
	}),
)
