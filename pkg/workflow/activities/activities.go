package activities

import (
	"context"

	"fitcoach-controlplane/services/delivery"

	"go.temporal.io/sdk/activity"
)

const (
	DeliverPlan = "DeliverPlan"
)

type Deliverer interface {
	DeliverPlan(ctx context.Context, req delivery.Request) (*delivery.Result, error)
}

type Activities struct {
	Deliverer Deliverer
}

type DeliverPlanInput struct {
	TenantID     string `json:"tenant_id"`
	AssignmentID string `json:"assignment_id"`
}

// DeliverPlan runs one delivery. Failed deliveries come back as a result;
// only store faults fail the activity.
func (a *Activities) DeliverPlan(ctx context.Context, in DeliverPlanInput) (*delivery.Result, error) {
	activity.GetLogger(ctx).Info("delivering plan", "tenant_id", in.TenantID, "assignment_id", in.AssignmentID)
	return a.Deliverer.DeliverPlan(ctx, delivery.Request{TenantID: in.TenantID, AssignmentID: in.AssignmentID})
}
