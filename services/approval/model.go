package approval

import (
	"time"

	"fitcoach-controlplane/pkg/actor"
	"fitcoach-controlplane/pkg/db/option"
	"fitcoach-controlplane/pkg/db/pagination"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"

	// StatusReviewed is a list filter matching approved or rejected rows.
	StatusReviewed Status = "reviewed"
)

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// validFilter reports whether s may be used to filter a listing.
func (s Status) validFilter() bool {
	switch s {
	case "", StatusPending, StatusApproved, StatusRejected, StatusReviewed:
		return true
	default:
		return false
	}
}

type EntityType string

const (
	EntityExercise  EntityType = "exercise"
	EntityNutrition EntityType = "nutrition"
	EntityWorkout   EntityType = "workout"
)

// EntityTypes lists every supported entity type.
var EntityTypes = []EntityType{EntityExercise, EntityNutrition, EntityWorkout}

func (e EntityType) Valid() bool {
	switch e {
	case EntityExercise, EntityNutrition, EntityWorkout:
		return true
	default:
		return false
	}
}

// Workflow is one review of one draft entity. It is created pending and
// moves once to approved or rejected.
type Workflow struct {
	ID         string     `gorm:"column:id;primaryKey" json:"id"`
	TenantID   string     `gorm:"column:tenant_id;not null;index:idx_approval_tenant_status,priority:1;index:idx_approval_tenant_entity,priority:1" json:"tenant_id"`
	EntityType EntityType `gorm:"column:entity_type;type:varchar(32);not null;index:idx_approval_tenant_entity,priority:2" json:"entity_type"`
	EntityID   string     `gorm:"column:entity_id;not null;index:idx_approval_tenant_entity,priority:3" json:"entity_id"`
	Status     Status     `gorm:"column:status;type:varchar(16);not null;index:idx_approval_tenant_status,priority:2" json:"status"`

	SubmittedByID   *string    `gorm:"column:submitted_by_id" json:"submitted_by_id,omitempty"`
	SubmittedByName string     `gorm:"column:submitted_by_name" json:"submitted_by_name,omitempty"`
	SubmittedByKind actor.Kind `gorm:"column:submitted_by_kind;type:varchar(16)" json:"submitted_by_kind,omitempty"`

	ReviewedByID   *string    `gorm:"column:reviewed_by_id" json:"reviewed_by,omitempty"`
	ReviewedByName string     `gorm:"column:reviewed_by_name" json:"reviewed_by_name,omitempty"`
	ReviewedAt     *time.Time `gorm:"column:reviewed_at;index" json:"reviewed_at,omitempty"`
	Notes          *string    `gorm:"column:notes" json:"notes,omitempty"`

	// Title and Summary copy the metadata name and description so listings
	// can search them on every dialect.
	Title    string         `gorm:"column:title" json:"title"`
	Summary  string         `gorm:"column:summary" json:"summary,omitempty"`
	Metadata datatypes.JSON `gorm:"column:metadata" json:"metadata"`

	CreatedAt time.Time `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Workflow) TableName() string {
	return "approval_workflows"
}

// Submitter returns nil for system generated content without a submitter.
func (w *Workflow) Submitter() *actor.Ref {
	if w.SubmittedByID == nil {
		return nil
	}
	return &actor.Ref{ID: *w.SubmittedByID, Name: w.SubmittedByName, Kind: w.SubmittedByKind}
}

func (w *Workflow) Reviewer() *actor.Ref {
	if w.ReviewedByID == nil {
		return nil
	}
	return &actor.Ref{ID: *w.ReviewedByID, Name: w.ReviewedByName}
}

// Details decodes the stored metadata into its entity type variant.
func (w *Workflow) Details() (Metadata, error) {
	return DecodeMetadata(w.EntityType, w.Metadata)
}

// Activation tells the caller that an approved entity may be activated.
type Activation struct {
	TenantID   string
	WorkflowID string
	EntityType EntityType
	EntityID   string
	Metadata   Metadata
}

type Filters struct {
	Status     Status
	EntityType EntityType
	Search     string
	Limit      int
	// Cursor is the next_cursor of a previous page.
	Cursor string
}

// sortColumn is the timestamp a listing is ordered by. Reviewed listings
// show the latest decisions first.
func (f Filters) sortColumn() string {
	switch f.Status {
	case StatusApproved, StatusRejected, StatusReviewed:
		return "reviewed_at"
	default:
		return "created_at"
	}
}

func (f Filters) limit() int {
	return option.ClampLimit(f.Limit, defaultListLimit)
}

func (f Filters) cursorOf(w *Workflow) pagination.Cursor {
	if f.sortColumn() == "reviewed_at" && w.ReviewedAt != nil {
		return pagination.Cursor{At: *w.ReviewedAt, ID: w.ID}
	}
	return pagination.Cursor{At: w.CreatedAt, ID: w.ID}
}

type DateRange struct {
	From time.Time
	To   time.Time
}

type EntityTypeStats struct {
	EntityType EntityType `json:"entity_type"`
	Total      int64      `json:"total"`
	Approved   int64      `json:"approved"`
	Rejected   int64      `json:"rejected"`
}

type AuditFilters struct {
	EntityType EntityType
	EntityID   string
	ReviewedBy string
	From       *time.Time
	To         *time.Time
}

type AuditSummary struct {
	Total        int64                `json:"total"`
	Approved     int64                `json:"approved"`
	Rejected     int64                `json:"rejected"`
	ByEntityType map[EntityType]int64 `json:"by_entity_type"`
}

type AuditReport struct {
	Workflows []*Workflow  `json:"workflows"`
	Summary   AuditSummary `json:"summary"`
}
