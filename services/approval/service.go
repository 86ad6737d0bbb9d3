package approval

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"fitcoach-controlplane/pkg/actor"
	"fitcoach-controlplane/pkg/db/pagination"
	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/pkg/logger"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "approval_transitions_total",
		Help: "Approval workflow transitions by entity type and outcome.",
	}, []string{"entity_type", "outcome"})
	conflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "approval_conflicts_total",
		Help: "Transitions refused because the workflow was no longer pending.",
	})
)

// Service is the approval state machine. It never touches the draft entity;
// callers act on the returned Activation.
type Service struct {
	repo Repository
	node *snowflake.Node
	now  func() time.Time
}

type ServiceParams struct {
	fx.In
	Repository Repository
	Node       *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		repo: p.Repository,
		node: p.Node,
		now:  time.Now,
	}
}

// WithTrx returns a Service writing through tx.
func (s *Service) WithTrx(tx *gorm.DB) *Service {
	clone := *s
	clone.repo = s.repo.WithTrx(tx)
	return &clone
}

type SubmitRequest struct {
	TenantID   string
	EntityType EntityType
	EntityID   string
	// Submitter is nil for system generated content.
	Submitter *actor.Ref
	Metadata  json.RawMessage
}

func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Workflow, error) {
	zapLog := logger.WithContext(ctx,
		zap.String("tenant_id", req.TenantID),
		zap.String("entity_type", string(req.EntityType)),
		zap.String("entity_id", req.EntityID),
	)

	if strings.TrimSpace(req.TenantID) == "" {
		return nil, invalid("tenant_id", "required")
	}
	if !req.EntityType.Valid() {
		return nil, invalid("entity_type", "must be one of exercise, nutrition, workout")
	}
	if strings.TrimSpace(req.EntityID) == "" {
		return nil, invalid("entity_id", "required")
	}

	meta, err := DecodeMetadata(req.EntityType, req.Metadata)
	if err != nil {
		return nil, err
	}
	if err := ValidateMetadata(meta); err != nil {
		return nil, err
	}

	raw := req.Metadata
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	common := meta.Common()
	w := &Workflow{
		ID:         s.node.Generate().String(),
		TenantID:   req.TenantID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Status:     StatusPending,
		Title:      strings.TrimSpace(common.Name),
		Summary:    strings.TrimSpace(common.Description),
		Metadata:   datatypes.JSON(raw),
	}
	if req.Submitter != nil && !req.Submitter.IsZero() {
		id := req.Submitter.ID
		w.SubmittedByID = &id
		w.SubmittedByName = req.Submitter.Name
		w.SubmittedByKind = req.Submitter.Kind
	}

	if err := s.repo.Create(ctx, w); err != nil {
		zapLog.Error("failed to create approval workflow", zap.Error(err))
		return nil, errutil.Internal("failed to submit for approval", err)
	}

	zapLog.Info("submitted for approval", zap.String("workflow_id", w.ID))
	return w, nil
}

// Approve moves a pending workflow to approved. Notes are optional and blank
// notes are stored as null. The Activation is nil when the stored metadata
// cannot be decoded.
func (s *Service) Approve(ctx context.Context, tenantID, id string, reviewer actor.Ref, notes *string) (*Workflow, *Activation, error) {
	if reviewer.IsZero() {
		return nil, nil, invalid("reviewer", "required")
	}

	var stored *string
	if notes != nil {
		if trimmed := strings.TrimSpace(*notes); trimmed != "" {
			stored = &trimmed
		}
	}

	w, err := s.transition(ctx, tenantID, id, StatusApproved, reviewer, stored)
	if err != nil {
		return nil, nil, err
	}

	// the approval is committed at this point, so a bad payload only costs
	// the activation
	meta, err := w.Details()
	if err != nil {
		logger.WithContext(ctx).Error("approved workflow has undecodable metadata", zap.String("workflow_id", w.ID), zap.Error(err))
		return w, nil, nil
	}

	return w, &Activation{
		TenantID:   w.TenantID,
		WorkflowID: w.ID,
		EntityType: w.EntityType,
		EntityID:   w.EntityID,
		Metadata:   meta,
	}, nil
}

// Reject moves a pending workflow to rejected. Notes are required so the
// submitter always sees why.
func (s *Service) Reject(ctx context.Context, tenantID, id string, reviewer actor.Ref, notes string) (*Workflow, error) {
	trimmed := strings.TrimSpace(notes)
	if trimmed == "" {
		return nil, invalid("notes", "rejection notes are required")
	}
	if reviewer.IsZero() {
		return nil, invalid("reviewer", "required")
	}

	return s.transition(ctx, tenantID, id, StatusRejected, reviewer, &trimmed)
}

func (s *Service) transition(ctx context.Context, tenantID, id string, target Status, reviewer actor.Ref, notes *string) (*Workflow, error) {
	zapLog := logger.WithContext(ctx,
		zap.String("tenant_id", tenantID),
		zap.String("workflow_id", id),
		zap.String("target", string(target)),
	)

	w, err := s.repo.Transition(ctx, tenantID, id, target, reviewer, notes, s.now())
	if err != nil {
		var stateErr *InvalidStateTransitionError
		switch {
		case errors.As(err, &stateErr):
			conflictsTotal.Inc()
			zapLog.Info("approval transition refused", zap.String("current", string(stateErr.Current)))
			return nil, err
		case errutil.Is(err, errutil.StatusNotFound):
			return nil, err
		default:
			zapLog.Error("failed to transition approval workflow", zap.Error(err))
			return nil, errutil.Internal("failed to update approval", err)
		}
	}

	transitionsTotal.WithLabelValues(string(w.EntityType), string(target)).Inc()
	zapLog.Info("approval reviewed", zap.String("reviewed_by", reviewer.ID))
	return w, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (*Workflow, error) {
	w, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		logger.WithContext(ctx).Error("failed to get approval workflow", zap.Error(err))
		return nil, errutil.Internal("failed to get approval", err)
	}
	if w == nil {
		return nil, ErrWorkflowNotFound
	}
	return w, nil
}

// List returns one page of workflows and where the next one starts.
func (s *Service) List(ctx context.Context, tenantID string, f Filters) ([]*Workflow, pagination.PageInfo, error) {
	if !f.Status.validFilter() {
		return nil, pagination.PageInfo{}, invalid("status", "must be one of pending, approved, rejected, reviewed")
	}
	if f.EntityType != "" && !f.EntityType.Valid() {
		return nil, pagination.PageInfo{}, invalid("entity_type", "must be one of exercise, nutrition, workout")
	}
	after, err := pagination.DecodeCursor(f.Cursor)
	if err != nil {
		return nil, pagination.PageInfo{}, invalid("cursor", "must be a next_cursor returned by a previous page")
	}

	rows, err := s.repo.List(ctx, tenantID, f, after)
	if err != nil {
		logger.WithContext(ctx).Error("failed to list approval workflows", zap.Error(err))
		return nil, pagination.PageInfo{}, errutil.Internal("failed to list approvals", err)
	}

	out, info := pagination.Page(rows, f.limit(), f.cursorOf)
	return out, info, nil
}

func (s *Service) Stats(ctx context.Context, tenantID string, r DateRange) ([]EntityTypeStats, error) {
	if !r.From.IsZero() && !r.To.IsZero() && r.From.After(r.To) {
		return nil, invalid("from", "must not be after to")
	}

	out, err := s.repo.Stats(ctx, tenantID, r)
	if err != nil {
		logger.WithContext(ctx).Error("failed to compute approval stats", zap.Error(err))
		return nil, errutil.Internal("failed to compute approval stats", err)
	}
	if out == nil {
		out = []EntityTypeStats{}
	}
	return out, nil
}

func (s *Service) Audit(ctx context.Context, tenantID string, f AuditFilters) (*AuditReport, error) {
	if f.EntityType != "" && !f.EntityType.Valid() {
		return nil, invalid("entity_type", "must be one of exercise, nutrition, workout")
	}

	report, err := s.repo.Audit(ctx, tenantID, f)
	if err != nil {
		logger.WithContext(ctx).Error("failed to build approval audit", zap.Error(err))
		return nil, errutil.Internal("failed to build approval audit", err)
	}
	return report, nil
}
