package workflow

import (
	"context"
	"fmt"

	"fitcoach-controlplane/pkg/config"
	"fitcoach-controlplane/services/delivery"

	"github.com/bwmarrin/snowflake"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

// Starter launches BatchDelivery executions. It backs the workflow mode of
// the batch delivery endpoint.
type Starter struct {
	client    client.Client
	node      *snowflake.Node
	taskQueue string
	cfg       *config.Config
}

func NewStarter(c client.Client, node *snowflake.Node, cfg *config.Config) *Starter {
	return &Starter{client: c, node: node, taskQueue: cfg.Temporal.TaskQueue, cfg: cfg}
}

func (s *Starter) StartBatch(ctx context.Context, req delivery.BatchRequest) (string, error) {
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("batch-delivery-%s-%s", req.TenantID, s.node.Generate().String()),
		TaskQueue: s.taskQueue,
	}

	run, err := s.client.ExecuteWorkflow(ctx, opts, WorkflowBatchDelivery, BatchDeliveryInput{
		TenantID:      req.TenantID,
		AssignmentIDs: req.AssignmentIDs,
		Delay:         s.cfg.Delivery.BatchDelay,
	})
	if err != nil {
		return "", err
	}

	zap.L().Info("batch delivery workflow started",
		zap.String("tenant_id", req.TenantID),
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
	)
	return run.GetID(), nil
}
