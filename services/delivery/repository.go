package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"fitcoach-controlplane/pkg/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the delivery store. Every read and write is tenant scoped.
type Repository interface {
	// LoadAssignment returns nil, nil when the assignment does not exist for
	// the tenant.
	LoadAssignment(ctx context.Context, tenantID, assignmentID string) (*PlanAssignment, error)
	SetStatus(ctx context.Context, tenantID, assignmentID string, status Status, deliveredAt *time.Time, metadata map[string]any) error
	DismissNotifications(ctx context.Context, tenantID, clientID string, at time.Time) (int64, error)
	UpsertCheckIns(ctx context.Context, rows []*CheckInSchedule) error
	StartAttempt(ctx context.Context, attempt *DeliveryAttempt) error
	FinishAttempt(ctx context.Context, attempt *DeliveryAttempt) error
	ListAttempts(ctx context.Context, tenantID, assignmentID string) ([]*DeliveryAttempt, error)
}

type gormRepository struct {
	db       *gorm.DB
	attempts repository.Repository[DeliveryAttempt]
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{
		db:       db,
		attempts: repository.ProvideStore[DeliveryAttempt](db),
	}
}

func (r *gormRepository) LoadAssignment(ctx context.Context, tenantID, assignmentID string) (*PlanAssignment, error) {
	var a PlanAssignment
	err := r.db.WithContext(ctx).
		Preload("Plan", "tenant_id = ?", tenantID).
		Preload("Version").
		Preload("Client", "tenant_id = ?", tenantID).
		Preload("Trainer", "tenant_id = ?", tenantID).
		Where("tenant_id = ? AND id = ?", tenantID, assignmentID).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SetStatus updates the delivery status and merges metadata into the stored
// object. Keys with a nil value are removed.
func (r *gormRepository) SetStatus(ctx context.Context, tenantID, assignmentID string, status Status, deliveredAt *time.Time, metadata map[string]any) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current PlanAssignment
		err := tx.Select("id", "metadata").
			Where("tenant_id = ? AND id = ?", tenantID, assignmentID).
			First(&current).Error
		if err != nil {
			return err
		}

		values := map[string]any{
			"delivery_status": status,
			"updated_at":      time.Now().UTC(),
		}
		if deliveredAt != nil {
			values["delivered_at"] = *deliveredAt
		}
		if len(metadata) > 0 {
			merged, err := mergeMetadata(current.Metadata, metadata)
			if err != nil {
				return err
			}
			values["metadata"] = merged
		}

		return tx.Model(&PlanAssignment{}).
			Where("tenant_id = ? AND id = ?", tenantID, assignmentID).
			Updates(values).Error
	})
}

func mergeMetadata(raw datatypes.JSON, patch map[string]any) (datatypes.JSON, error) {
	current := map[string]any{}
	if len(raw) > 0 {
		// a malformed document is replaced rather than blocking the status write
		if err := json.Unmarshal(raw, &current); err != nil || current == nil {
			current = map[string]any{}
		}
	}
	for k, v := range patch {
		if v == nil {
			delete(current, k)
			continue
		}
		current[k] = v
	}
	b, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func (r *gormRepository) DismissNotifications(ctx context.Context, tenantID, clientID string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&PersistentNotification{}).
		Where("tenant_id = ? AND related_entity_id = ? AND notification_type = ? AND is_dismissed = ?",
			tenantID, clientID, NotificationKYCReady, false).
		Updates(map[string]any{
			"is_dismissed": true,
			"dismissed_at": at,
		})
	return res.RowsAffected, res.Error
}

// UpsertCheckIns refreshes the due date of existing rounds and keeps their
// status.
func (r *gormRepository) UpsertCheckIns(ctx context.Context, rows []*CheckInSchedule) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "assignment_id"}, {Name: "round_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"due_date", "updated_at"}),
	}).CreateInBatches(rows, 100).Error
}

// StartAttempt numbers the attempt after the ones already recorded for the
// assignment and stores it.
func (r *gormRepository) StartAttempt(ctx context.Context, attempt *DeliveryAttempt) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := r.attempts.WithTrx(tx)
		n, err := store.Count(ctx, &DeliveryAttempt{TenantID: attempt.TenantID, AssignmentID: attempt.AssignmentID})
		if err != nil {
			return err
		}
		attempt.Attempt = int(n) + 1
		return store.Create(ctx, attempt)
	})
}

func (r *gormRepository) FinishAttempt(ctx context.Context, attempt *DeliveryAttempt) error {
	return r.attempts.Update(ctx, attempt.ID, map[string]any{
		"status":      attempt.Status,
		"failed_step": attempt.FailedStep,
		"error":       attempt.Error,
		"pdf_url":     attempt.PDFURL,
		"finished_at": attempt.FinishedAt,
	})
}

func (r *gormRepository) ListAttempts(ctx context.Context, tenantID, assignmentID string) ([]*DeliveryAttempt, error) {
	var out []*DeliveryAttempt
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND assignment_id = ?", tenantID, assignmentID).
		Order("attempt ASC").
		Find(&out).Error
	return out, err
}
