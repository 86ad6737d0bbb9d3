package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/pkg/logger"
	"fitcoach-controlplane/pkg/repository"
	pkgtask "fitcoach-controlplane/pkg/task"
	"fitcoach-controlplane/pkg/taskname"
	"fitcoach-controlplane/services/delivery"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Deliverer runs deliveries for the worker handlers.
type Deliverer interface {
	DeliverPlan(ctx context.Context, req delivery.Request) (*delivery.Result, error)
	RetryDelivery(ctx context.Context, req delivery.Request) (*delivery.Result, error)
	DeliverBatch(ctx context.Context, req delivery.BatchRequest) ([]*delivery.Result, error)
}

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	jobs      repository.Repository[Job]
	enqueuer  pkgtask.Enqueuer
	deliverer Deliverer
	now       func() time.Time
}

type Params struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Enqueuer  pkgtask.Enqueuer `optional:"true"`
	Deliverer Deliverer        `optional:"true"`
}

func NewService(p Params) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		jobs:      repository.ProvideStore[Job](p.DB),
		enqueuer:  p.Enqueuer,
		deliverer: p.Deliverer,
		now:       time.Now,
	}
}

// EnqueueDelivery records a pending job and hands the delivery to the
// workers. retry selects RetryDelivery instead of DeliverPlan.
func (s *Service) EnqueueDelivery(ctx context.Context, tenantID, assignmentID string, retry bool) (*Job, error) {
	if strings.TrimSpace(assignmentID) == "" {
		return nil, errutil.ValidationFailed("assignment_id required", nil,
			errutil.WithDetails(errutil.Detail{Field: "assignment_id", Message: "required"}))
	}

	jobID := s.node.Generate().String()
	payload := taskname.DeliveryPlanPayload{
		JobID:        jobID,
		TenantID:     tenantID,
		AssignmentID: assignmentID,
		Retry:        retry,
	}
	return s.enqueue(ctx, jobID, tenantID, KindDeliveryPlan, taskname.DeliveryPlan, taskname.QueueCritical, payload)
}

func (s *Service) EnqueueBatch(ctx context.Context, tenantID string, assignmentIDs []string) (*Job, error) {
	if len(assignmentIDs) == 0 || len(assignmentIDs) > delivery.MaxBatchSize {
		return nil, errutil.ValidationFailed("assignment_ids must hold 1 to 100 ids", nil,
			errutil.WithDetails(errutil.Detail{Field: "assignment_ids", Message: "between 1 and 100 ids"}))
	}

	jobID := s.node.Generate().String()
	payload := taskname.DeliveryBatchPayload{
		JobID:         jobID,
		TenantID:      tenantID,
		AssignmentIDs: assignmentIDs,
	}
	return s.enqueue(ctx, jobID, tenantID, KindDeliveryBatch, taskname.DeliveryBatch, taskname.QueueDefault, payload)
}

func (s *Service) enqueue(ctx context.Context, jobID, tenantID string, kind JobKind, taskType, queue string, payload any) (*Job, error) {
	zapLog := logger.WithContext(ctx,
		zap.String("tenant_id", tenantID),
		zap.String("job_id", jobID),
		zap.String("task_type", taskType),
	)

	if s.enqueuer == nil {
		return nil, errutil.NotImplemented("delivery jobs are not configured", nil)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errutil.Internal("failed to encode job", err)
	}

	job := &Job{
		ID:       jobID,
		TenantID: tenantID,
		Kind:     kind,
		Status:   JobPending,
		Queue:    queue,
		Payload:  datatypes.JSON(raw),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		zapLog.Error("failed to create job", zap.Error(err))
		return nil, errutil.Internal("failed to create job", err)
	}

	// the orchestrator records delivery failures itself, so asynq only
	// retries store faults
	t, err := pkgtask.NewJSONTask(taskType, payload,
		asynq.Queue(queue),
		asynq.TaskID(jobID),
		asynq.MaxRetry(3),
	)
	if err == nil {
		_, err = s.enqueuer.Enqueue(ctx, t)
	}
	if err != nil {
		zapLog.Error("failed to enqueue job", zap.Error(err))
		s.finish(ctx, job.ID, JobFailed, "failed to enqueue", nil)
		return nil, errutil.BadGateway("failed to enqueue delivery", err)
	}

	zapLog.Info("delivery job enqueued", zap.String("queue", queue))
	return job, nil
}

// GetJob returns the job when it belongs to the tenant.
func (s *Service) GetJob(ctx context.Context, tenantID, jobID string) (*Job, error) {
	job, err := s.jobs.FindOne(ctx, &Job{ID: jobID, TenantID: tenantID})
	if err != nil {
		return nil, errutil.Internal("failed to load job", err)
	}
	if job == nil || job.TenantID != tenantID {
		return nil, errutil.NotFound("job not found", nil)
	}
	return job, nil
}

// HandleDeliveryPlan is the asynq handler for taskname.DeliveryPlan.
func (s *Service) HandleDeliveryPlan(ctx context.Context, t *asynq.Task) error {
	var p taskname.DeliveryPlanPayload
	if err := pkgtask.DecodePayload(t, &p); err != nil {
		zap.L().Error("invalid delivery payload", zap.Error(err))
		return err
	}

	zapLog := logger.WithContext(ctx,
		zap.String("tenant_id", p.TenantID),
		zap.String("job_id", p.JobID),
		zap.String("assignment_id", p.AssignmentID),
	)
	if err := s.start(ctx, p.JobID); err != nil {
		zapLog.Error("failed to start job", zap.Error(err))
		return err
	}

	req := delivery.Request{TenantID: p.TenantID, AssignmentID: p.AssignmentID}
	var (
		res *delivery.Result
		err error
	)
	if p.Retry {
		res, err = s.deliverer.RetryDelivery(ctx, req)
	} else {
		res, err = s.deliverer.DeliverPlan(ctx, req)
	}
	if err != nil {
		zapLog.Error("delivery job failed", zap.Error(err))
		s.finish(ctx, p.JobID, JobFailed, "delivery failed", nil)
		return err
	}

	status := JobSuccess
	if !res.Success {
		status = JobFailed
	}
	s.finish(ctx, p.JobID, status, res.Error, res)
	zapLog.Info("delivery job finished", zap.String("status", string(status)))
	return nil
}

// HandleDeliveryBatch is the asynq handler for taskname.DeliveryBatch. The
// job succeeds once the batch ran; per item outcomes are in the result.
func (s *Service) HandleDeliveryBatch(ctx context.Context, t *asynq.Task) error {
	var p taskname.DeliveryBatchPayload
	if err := pkgtask.DecodePayload(t, &p); err != nil {
		zap.L().Error("invalid batch payload", zap.Error(err))
		return err
	}

	zapLog := logger.WithContext(ctx,
		zap.String("tenant_id", p.TenantID),
		zap.String("job_id", p.JobID),
		zap.Int("size", len(p.AssignmentIDs)),
	)
	if err := s.start(ctx, p.JobID); err != nil {
		zapLog.Error("failed to start job", zap.Error(err))
		return err
	}

	results, err := s.deliverer.DeliverBatch(ctx, delivery.BatchRequest{TenantID: p.TenantID, AssignmentIDs: p.AssignmentIDs})
	if err != nil {
		zapLog.Error("batch job failed", zap.Error(err))
		s.finish(ctx, p.JobID, JobFailed, errMessage(err), nil)
		if errutil.Is(err, errutil.StatusValidationFailed) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	s.finish(ctx, p.JobID, JobSuccess, "", map[string]any{"results": results})
	zapLog.Info("batch job finished")
	return nil
}

func errMessage(err error) string {
	var be errutil.BaseError
	if errors.As(err, &be) {
		return be.Message
	}
	return "batch failed"
}

// start marks the job running. A job that is gone will never run, so the
// task is not retried.
func (s *Service) start(ctx context.Context, jobID string) error {
	now := s.now().UTC()
	err := s.jobs.Update(ctx, jobID, map[string]any{
		"status":     JobRunning,
		"started_at": now,
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("job %s: %w", jobID, asynq.SkipRetry)
	}
	return err
}

func (s *Service) finish(ctx context.Context, jobID string, status JobStatus, msg string, result any) {
	values := map[string]any{
		"status":       status,
		"error_msg":    msg,
		"completed_at": s.now().UTC(),
	}
	if result != nil {
		if raw, err := json.Marshal(result); err == nil {
			values["result"] = datatypes.JSON(raw)
		}
	}
	if err := s.jobs.Update(ctx, jobID, values); err != nil {
		logger.WithContext(ctx, zap.String("job_id", jobID)).Error("failed to finish job", zap.Error(err))
	}
}

// FailStaleJobs fails jobs left running longer than olderThan, which happens
// when a worker dies mid task.
func (s *Service) FailStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	res := s.db.WithContext(ctx).Model(&Job{}).
		Where("status = ? AND started_at < ?", JobRunning, cutoff).
		Updates(map[string]any{
			"status":       JobFailed,
			"error_msg":    "worker lost",
			"completed_at": s.now().UTC(),
		})
	return res.RowsAffected, res.Error
}
