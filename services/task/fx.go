package task

import (
	"fitcoach-controlplane/pkg/taskname"
	"fitcoach-controlplane/services/delivery"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

// Module provides the job service. The API uses it to enqueue, the worker to
// run jobs.
var Module = fx.Module("task.service",
	fx.Provide(NewService),
)

var Routes = fx.Module("task.routes",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

// Worker registers the delivery handlers on the asynq mux and runs the stale
// job sweep.
var Worker = fx.Module("task.worker",
	fx.Provide(
		func(o *delivery.Orchestrator) Deliverer { return o },
		NewScheduler,
	),
	fx.Invoke(RegisterHandlers, StartScheduler),
)

func RegisterHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.DeliveryPlan, s.HandleDeliveryPlan)
	mux.HandleFunc(taskname.DeliveryBatch, s.HandleDeliveryBatch)
}
