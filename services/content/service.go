package content

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"fitcoach-controlplane/pkg/actor"
	"fitcoach-controlplane/pkg/config"
	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/pkg/logger"
	"fitcoach-controlplane/services/approval"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service owns the draft entities reviewed by the approval engine.
type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	approval *approval.Service
	guard    *Guard
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Approval *approval.Service
	Config   *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		approval: p.Approval,
		guard:    NewGuard(p.Config.Content.ActivationRules),
	}
}

type DraftRequest struct {
	TenantID   string
	EntityType approval.EntityType
	Submitter  *actor.Ref
	Metadata   json.RawMessage
}

type Draft struct {
	EntityID string             `json:"entity_id"`
	Approval *approval.Workflow `json:"approval"`
}

// CreateDraft stores the draft entity and its pending approval in one
// transaction.
func (s *Service) CreateDraft(ctx context.Context, req DraftRequest) (*Draft, error) {
	if !req.EntityType.Valid() {
		return nil, &approval.ValidationError{Fields: []errutil.Detail{{Field: "entity_type", Message: "must be one of exercise, nutrition, workout"}}}
	}

	meta, err := approval.DecodeMetadata(req.EntityType, req.Metadata)
	if err != nil {
		return nil, err
	}
	if err := approval.ValidateMetadata(meta); err != nil {
		return nil, err
	}

	createdBy := ""
	if req.Submitter != nil {
		createdBy = req.Submitter.ID
	}

	entityID := s.node.Generate().String()
	entity, err := newEntity(entityID, req.TenantID, createdBy, meta)
	if err != nil {
		return nil, errutil.Internal("failed to build draft", err)
	}

	var workflow *approval.Workflow
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entity).Error; err != nil {
			return errutil.Internal("failed to create draft", err)
		}

		w, err := s.approval.WithTrx(tx).Submit(ctx, approval.SubmitRequest{
			TenantID:   req.TenantID,
			EntityType: req.EntityType,
			EntityID:   entityID,
			Submitter:  req.Submitter,
			Metadata:   req.Metadata,
		})
		if err != nil {
			return err
		}
		workflow = w
		return nil
	})
	if err != nil {
		logger.WithContext(ctx).Error("failed to create draft", zap.String("entity_type", string(req.EntityType)), zap.Error(err))
		return nil, err
	}

	return &Draft{EntityID: entityID, Approval: workflow}, nil
}

func newEntity(id, tenantID, createdBy string, meta approval.Metadata) (any, error) {
	common := meta.Common()
	switch m := meta.(type) {
	case approval.ExerciseMetadata:
		return &Exercise{
			ID:           id,
			TenantID:     tenantID,
			Name:         strings.TrimSpace(common.Name),
			Description:  common.Description,
			MuscleGroups: m.MuscleGroups,
			Equipment:    m.Equipment,
			Difficulty:   m.Difficulty,
			Source:       common.Source,
			Status:       StatusDraft,
			CreatedBy:    createdBy,
		}, nil
	case approval.NutritionMetadata:
		meals, err := json.Marshal(m.Meals)
		if err != nil {
			return nil, err
		}
		return &NutritionPlan{
			ID:             id,
			TenantID:       tenantID,
			Name:           strings.TrimSpace(common.Name),
			Description:    common.Description,
			CaloriesTarget: common.CaloriesTarget,
			Meals:          datatypes.JSON(meals),
			DurationWeeks:  m.DurationWeeks,
			Source:         common.Source,
			Status:         StatusDraft,
			CreatedBy:      createdBy,
		}, nil
	case approval.WorkoutMetadata:
		exercises, err := json.Marshal(m.Exercises)
		if err != nil {
			return nil, err
		}
		return &Workout{
			ID:              id,
			TenantID:        tenantID,
			Name:            strings.TrimSpace(common.Name),
			Description:     common.Description,
			Exercises:       datatypes.JSON(exercises),
			DurationMinutes: m.DurationMinutes,
			Source:          common.Source,
			Status:          StatusDraft,
			CreatedBy:       createdBy,
		}, nil
	default:
		return nil, errors.New("unsupported metadata type")
	}
}

func model(et approval.EntityType) (any, error) {
	switch et {
	case approval.EntityExercise:
		return &Exercise{}, nil
	case approval.EntityNutrition:
		return &NutritionPlan{}, nil
	case approval.EntityWorkout:
		return &Workout{}, nil
	default:
		return nil, &approval.ValidationError{Fields: []errutil.Detail{{Field: "entity_type", Message: "unknown entity type"}}}
	}
}

// Exists reports whether the entity exists in the tenant.
func (s *Service) Exists(ctx context.Context, tenantID string, et approval.EntityType, entityID string) (bool, error) {
	m, err := model(et)
	if err != nil {
		return false, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(m).
		Where("tenant_id = ? AND id = ?", tenantID, entityID).
		Count(&count).Error; err != nil {
		return false, errutil.Internal("failed to look up content", err)
	}
	return count > 0, nil
}

// Activate applies an approval. Exercises become approved, nutrition plans
// become approved and active, workouts are left as they are. When the
// activation rule rejects the metadata the entity is not activated: an
// exercise stays a draft and a nutrition plan is approved but inactive.
func (s *Service) Activate(ctx context.Context, a approval.Activation) (bool, error) {
	zapLog := logger.WithContext(ctx,
		zap.String("tenant_id", a.TenantID),
		zap.String("entity_type", string(a.EntityType)),
		zap.String("entity_id", a.EntityID),
	)

	allowed, rule, err := s.guard.Allow(a)
	if err != nil {
		zapLog.Error("activation rule failed", zap.Error(err))
		return false, errutil.Internal("failed to evaluate activation rule", err)
	}
	if !allowed {
		zapLog.Info("activation rule not met, entity left inactive", zap.String("rule", rule))
	}

	var updates map[string]any
	var target any
	switch a.EntityType {
	case approval.EntityExercise:
		if !allowed {
			return false, nil
		}
		target = &Exercise{}
		updates = map[string]any{"status": StatusApproved}
	case approval.EntityNutrition:
		target = &NutritionPlan{}
		updates = map[string]any{"status": StatusApproved, "is_active": allowed}
	case approval.EntityWorkout:
		if !allowed {
			return false, nil
		}
		target = &Workout{}
		updates = map[string]any{"status": StatusApproved}
	default:
		return false, &approval.ValidationError{Fields: []errutil.Detail{{Field: "entity_type", Message: "unknown entity type"}}}
	}

	if err := s.update(ctx, target, a.TenantID, a.EntityID, updates); err != nil {
		return false, err
	}

	zapLog.Info("content activated", zap.Bool("active", allowed))
	return allowed, nil
}

// MarkRejected flags the draft as rejected.
func (s *Service) MarkRejected(ctx context.Context, a approval.Activation) error {
	target, err := model(a.EntityType)
	if err != nil {
		return err
	}

	updates := map[string]any{"status": StatusRejected}
	if a.EntityType == approval.EntityNutrition {
		updates["is_active"] = false
	}
	return s.update(ctx, target, a.TenantID, a.EntityID, updates)
}

func (s *Service) update(ctx context.Context, target any, tenantID, id string, updates map[string]any) error {
	res := s.db.WithContext(ctx).Model(target).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(updates)
	if res.Error != nil {
		return errutil.Internal("failed to update content", res.Error)
	}
	if res.RowsAffected == 0 {
		return errutil.NotFound("content not found", nil)
	}
	return nil
}

// IsActive reports whether the entity is live for clients.
func (s *Service) IsActive(ctx context.Context, tenantID string, et approval.EntityType, id string) (bool, error) {
	switch et {
	case approval.EntityNutrition:
		var plan NutritionPlan
		err := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&plan).Error
		if err != nil {
			return false, notFoundOr(err)
		}
		return plan.IsActive, nil
	case approval.EntityExercise:
		var ex Exercise
		err := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&ex).Error
		if err != nil {
			return false, notFoundOr(err)
		}
		return ex.Status == StatusApproved, nil
	case approval.EntityWorkout:
		var w Workout
		err := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&w).Error
		if err != nil {
			return false, notFoundOr(err)
		}
		return w.Status == StatusApproved, nil
	default:
		return false, &approval.ValidationError{Fields: []errutil.Detail{{Field: "entity_type", Message: "unknown entity type"}}}
	}
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errutil.NotFound("content not found", nil)
	}
	return errutil.Internal("failed to read content", err)
}
