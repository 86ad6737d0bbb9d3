package workflow

import (
	"context"

	"fitcoach-controlplane/pkg/config"
	"fitcoach-controlplane/pkg/workflow/activities"
	"fitcoach-controlplane/services/delivery"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Starters lets the API start batch workflows.
var Starters = fx.Module("temporal.starter",
	fx.Provide(
		NewStarter,
		func(s *Starter) delivery.BatchStarter { return s },
	),
)

// Worker runs the batch workflow and the delivery activity.
var Worker = fx.Module("temporal.worker",
	fx.Provide(
		func(o *delivery.Orchestrator) *activities.Activities {
			return &activities.Activities{Deliverer: o}
		},
	),
	fx.Invoke(RunWorker),
)

func Register(w worker.Registry, acts *activities.Activities) {
	w.RegisterWorkflowWithOptions(BatchDelivery, workflow.RegisterOptions{Name: WorkflowBatchDelivery})
	w.RegisterActivityWithOptions(acts.DeliverPlan, activity.RegisterOptions{Name: activities.DeliverPlan})
}

func RunWorker(lc fx.Lifecycle, c client.Client, cfg *config.Config, acts *activities.Activities) {
	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		// one delivery at a time keeps the gateway under its rate limit
		MaxConcurrentActivityExecutionSize: 1,
	})
	Register(w, acts)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := w.Start(); err != nil {
				zap.L().Error("[Temporal] failed to start worker", zap.Error(err))
				return err
			}
			zap.L().Info("[Temporal] worker started", zap.String("task_queue", cfg.Temporal.TaskQueue))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			w.Stop()
			return nil
		},
	})
}
