package content

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type Exercise struct {
	ID           string    `gorm:"column:id;primaryKey" json:"id"`
	TenantID     string    `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	Name         string    `gorm:"column:name;not null" json:"name"`
	Description  string    `gorm:"column:description" json:"description,omitempty"`
	MuscleGroups []string  `gorm:"column:muscle_groups;serializer:json" json:"muscle_groups"`
	Equipment    []string  `gorm:"column:equipment;serializer:json" json:"equipment,omitempty"`
	Difficulty   string    `gorm:"column:difficulty" json:"difficulty,omitempty"`
	Source       string    `gorm:"column:source" json:"source,omitempty"`
	Status       Status    `gorm:"column:status;type:varchar(16);not null" json:"status"`
	CreatedBy    string    `gorm:"column:created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Exercise) TableName() string { return "exercises" }

type NutritionPlan struct {
	ID             string         `gorm:"column:id;primaryKey" json:"id"`
	TenantID       string         `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	Name           string         `gorm:"column:name;not null" json:"name"`
	Description    string         `gorm:"column:description" json:"description,omitempty"`
	CaloriesTarget *int           `gorm:"column:calories_target" json:"calories_target,omitempty"`
	Meals          datatypes.JSON `gorm:"column:meals" json:"meals"`
	DurationWeeks  int            `gorm:"column:duration_weeks" json:"duration_weeks,omitempty"`
	Source         string         `gorm:"column:source" json:"source,omitempty"`
	Status         Status         `gorm:"column:status;type:varchar(16);not null" json:"status"`
	IsActive       bool           `gorm:"column:is_active;not null;default:false" json:"is_active"`
	CreatedBy      string         `gorm:"column:created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (NutritionPlan) TableName() string { return "nutrition_plans" }

type Workout struct {
	ID              string         `gorm:"column:id;primaryKey" json:"id"`
	TenantID        string         `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	Name            string         `gorm:"column:name;not null" json:"name"`
	Description     string         `gorm:"column:description" json:"description,omitempty"`
	Exercises       datatypes.JSON `gorm:"column:exercises" json:"exercises"`
	DurationMinutes int            `gorm:"column:duration_minutes" json:"duration_minutes,omitempty"`
	Source          string         `gorm:"column:source" json:"source,omitempty"`
	Status          Status         `gorm:"column:status;type:varchar(16);not null" json:"status"`
	CreatedBy       string         `gorm:"column:created_by" json:"created_by,omitempty"`
	CreatedAt       time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Workout) TableName() string { return "workouts" }

// Models lists the tables owned by this package.
func Models() []any {
	return []any{&Exercise{}, &NutritionPlan{}, &Workout{}}
}
