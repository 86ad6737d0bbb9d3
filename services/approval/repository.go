package approval

import (
	"context"
	"errors"
	"strings"
	"time"

	"fitcoach-controlplane/pkg/actor"
	"fitcoach-controlplane/pkg/db/option"
	"fitcoach-controlplane/pkg/db/pagination"

	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	auditLimit       = 100
)

// Repository persists approval workflows. Every call is scoped to a tenant
// and rows are never deleted.
type Repository interface {
	WithTrx(tx *gorm.DB) Repository
	Create(ctx context.Context, w *Workflow) error
	// GetByID returns nil, nil when the workflow does not exist in the tenant.
	GetByID(ctx context.Context, tenantID, id string) (*Workflow, error)
	// List returns up to limit+1 rows past after, so the caller can tell
	// whether another page follows.
	List(ctx context.Context, tenantID string, f Filters, after *pagination.Cursor) ([]*Workflow, error)
	Stats(ctx context.Context, tenantID string, r DateRange) ([]EntityTypeStats, error)
	Audit(ctx context.Context, tenantID string, f AuditFilters) (*AuditReport, error)
	// Transition moves a pending workflow to target in one conditional
	// update. It fails with InvalidStateTransitionError when the workflow is
	// no longer pending.
	Transition(ctx context.Context, tenantID, id string, target Status, reviewer actor.Ref, notes *string, at time.Time) (*Workflow, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTrx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{db: tx}
}

func (r *gormRepository) Create(ctx context.Context, w *Workflow) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *gormRepository) GetByID(ctx context.Context, tenantID, id string) (*Workflow, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var w Workflow
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *gormRepository) List(ctx context.Context, tenantID string, f Filters, after *pagination.Cursor) ([]*Workflow, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	query := r.db.WithContext(ctx).Model(&Workflow{}).
		Where("tenant_id = ?", tenantID)

	switch f.Status {
	case "":
	case StatusReviewed:
		query = query.Where("status IN ?", []Status{StatusApproved, StatusRejected})
	default:
		query = query.Where("status = ?", f.Status)
	}

	if f.EntityType != "" {
		query = query.Where("entity_type = ?", f.EntityType)
	}

	if search := strings.ToLower(strings.TrimSpace(f.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("(LOWER(title) LIKE ? OR LOWER(summary) LIKE ? OR LOWER(submitted_by_name) LIKE ?)", like, like, like)
	}

	column := f.sortColumn()
	query = query.Scopes(option.After(column, after)).
		Order(column + " DESC").Order("id DESC").
		Limit(f.limit() + 1)

	var out []*Workflow
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type statusCount struct {
	EntityType EntityType
	Status     Status
	Count      int64
}

func (r *gormRepository) reviewedCounts(query *gorm.DB) ([]statusCount, error) {
	var rows []statusCount
	err := query.
		Select("entity_type, status, COUNT(*) AS count").
		Group("entity_type").
		Group("status").
		Scan(&rows).Error
	return rows, err
}

func (r *gormRepository) Stats(ctx context.Context, tenantID string, dr DateRange) ([]EntityTypeStats, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	query := r.db.WithContext(ctx).Model(&Workflow{}).
		Where("tenant_id = ?", tenantID).
		Where("status IN ?", []Status{StatusApproved, StatusRejected}).
		Where("reviewed_at IS NOT NULL")
	if !dr.From.IsZero() {
		query = query.Where("reviewed_at >= ?", dr.From.UTC())
	}
	if !dr.To.IsZero() {
		query = query.Where("reviewed_at <= ?", dr.To.UTC())
	}

	rows, err := r.reviewedCounts(query)
	if err != nil {
		return nil, err
	}

	byType := map[EntityType]*EntityTypeStats{}
	for _, row := range rows {
		s, ok := byType[row.EntityType]
		if !ok {
			s = &EntityTypeStats{EntityType: row.EntityType}
			byType[row.EntityType] = s
		}
		switch row.Status {
		case StatusApproved:
			s.Approved += row.Count
		case StatusRejected:
			s.Rejected += row.Count
		}
		s.Total += row.Count
	}

	out := make([]EntityTypeStats, 0, len(byType))
	for _, et := range EntityTypes {
		if s, ok := byType[et]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *gormRepository) Audit(ctx context.Context, tenantID string, f AuditFilters) (*AuditReport, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("tenant_id = ?", tenantID).
			Where("status IN ?", []Status{StatusApproved, StatusRejected})
		if f.EntityType != "" {
			db = db.Where("entity_type = ?", f.EntityType)
		}
		if f.EntityID != "" {
			db = db.Where("entity_id = ?", f.EntityID)
		}
		if f.ReviewedBy != "" {
			db = db.Where("reviewed_by_id = ?", f.ReviewedBy)
		}
		if f.From != nil {
			db = db.Where("reviewed_at >= ?", f.From.UTC())
		}
		if f.To != nil {
			db = db.Where("reviewed_at <= ?", f.To.UTC())
		}
		return db
	}

	var workflows []*Workflow
	if err := r.db.WithContext(ctx).Model(&Workflow{}).
		Scopes(scope).
		Order("reviewed_at DESC").Order("id DESC").
		Limit(auditLimit).
		Find(&workflows).Error; err != nil {
		return nil, err
	}

	rows, err := r.reviewedCounts(r.db.WithContext(ctx).Model(&Workflow{}).Scopes(scope))
	if err != nil {
		return nil, err
	}

	summary := AuditSummary{ByEntityType: map[EntityType]int64{}}
	for _, row := range rows {
		summary.Total += row.Count
		summary.ByEntityType[row.EntityType] += row.Count
		switch row.Status {
		case StatusApproved:
			summary.Approved += row.Count
		case StatusRejected:
			summary.Rejected += row.Count
		}
	}

	return &AuditReport{Workflows: workflows, Summary: summary}, nil
}

func (r *gormRepository) Transition(ctx context.Context, tenantID, id string, target Status, reviewer actor.Ref, notes *string, at time.Time) (*Workflow, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	at = at.UTC()
	res := r.db.WithContext(ctx).
		Model(&Workflow{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, id, StatusPending).
		Updates(map[string]any{
			"status":           target,
			"reviewed_by_id":   reviewer.ID,
			"reviewed_by_name": reviewer.Name,
			"reviewed_at":      at,
			"notes":            notes,
			"updated_at":       at,
		})
	if res.Error != nil {
		return nil, res.Error
	}

	w, err := r.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrWorkflowNotFound
	}
	if res.RowsAffected == 0 {
		return nil, &InvalidStateTransitionError{Current: w.Status, Target: target}
	}
	return w, nil
}
