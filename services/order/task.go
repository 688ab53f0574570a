package order

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	TypeSubmitOrder = "order:submit"
	TypeSyncOrders  = "order:sync"
)

type SubmitPayload struct {
	OrderID string `json:"order_id"`
}

// RegisterTasks mounts the order handlers on the worker mux and schedules the
// reconciliation sweep.
func RegisterTasks(mux *asynq.ServeMux, service Service) {
	mux.HandleFunc(TypeSubmitOrder, func(ctx context.Context, t *asynq.Task) error {
		var payload SubmitPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			zap.L().Error("invalid order submit payload", zap.Error(err))
			return nil
		}
		return service.Submit(ctx, payload.OrderID)
	})

	mux.HandleFunc(TypeSyncOrders, func(ctx context.Context, t *asynq.Task) error {
		return service.SyncOpenOrders(ctx)
	})
}

type taskParams struct {
	fx.In

	Mux     *asynq.ServeMux
	Service Service
}

// TaskModule wires the handlers into the worker process.
var TaskModule = fx.Module("order.tasks",
	fx.Invoke(func(p taskParams) {
		RegisterTasks(p.Mux, p.Service)
	}),
)
