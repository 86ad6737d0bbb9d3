package workflow

import (
	"time"

	"fitcoach-controlplane/pkg/workflow/activities"
	"fitcoach-controlplane/services/delivery"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

type BatchDeliveryInput struct {
	TenantID      string        `json:"tenant_id"`
	AssignmentIDs []string      `json:"assignment_ids"`
	Delay         time.Duration `json:"delay"`
}

type BatchDeliveryOutput struct {
	Results []delivery.Result `json:"results"`
}

// BatchDelivery delivers the assignments one at a time with a durable sleep
// between them. Results follow the input order. The activity runs once: the
// orchestrator already records and reports failures.
func BatchDelivery(ctx workflow.Context, in BatchDeliveryInput) (*BatchDeliveryOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	out := &BatchDeliveryOutput{Results: make([]delivery.Result, 0, len(in.AssignmentIDs))}
	for i, id := range in.AssignmentIDs {
		if i > 0 && in.Delay > 0 {
			if err := workflow.Sleep(ctx, in.Delay); err != nil {
				return out, err
			}
		}

		var res delivery.Result
		err := workflow.ExecuteActivity(ctx, activities.DeliverPlan, activities.DeliverPlanInput{
			TenantID:     in.TenantID,
			AssignmentID: id,
		}).Get(ctx, &res)
		if err != nil {
			logger.Error("delivery activity failed", "assignment_id", id, "error", err)
			res = delivery.Result{AssignmentID: id, Error: "delivery failed"}
		}
		out.Results = append(out.Results, res)
	}

	logger.Info("batch delivery finished", "tenant_id", in.TenantID, "size", len(in.AssignmentIDs))
	return out, nil
}
