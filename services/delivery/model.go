package delivery

import (
	"strings"
	"time"

	"fitcoach-controlplane/pkg/errutil"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

const (
	ChannelMessaging = "messaging"
	// ChannelWhatsApp is accepted as an alias of ChannelMessaging.
	ChannelWhatsApp = "whatsapp"
)

func messagingChannel(channel string) bool {
	switch strings.ToLower(strings.TrimSpace(channel)) {
	case ChannelMessaging, ChannelWhatsApp:
		return true
	}
	return false
}

type PlanType string

const (
	PlanTypeTraining  PlanType = "training"
	PlanTypeNutrition PlanType = "nutrition"
)

// PlanAssignment binds a plan version to a client. The delivery status only
// moves through the orchestrator.
type PlanAssignment struct {
	ID              string         `gorm:"column:id;primaryKey" json:"id"`
	TenantID        string         `gorm:"column:tenant_id;index;not null" json:"tenant_id"`
	PlanID          string         `gorm:"column:plan_id;not null" json:"plan_id"`
	VersionID       string         `gorm:"column:version_id" json:"version_id"`
	ClientID        string         `gorm:"column:client_id;index;not null" json:"client_id"`
	AssignedBy      string         `gorm:"column:assigned_by" json:"assigned_by"`
	StartDate       *time.Time     `gorm:"column:start_date" json:"start_date,omitempty"`
	DeliveryChannel string         `gorm:"column:delivery_channel;type:varchar(32)" json:"delivery_channel"`
	DeliveryStatus  Status         `gorm:"column:delivery_status;type:varchar(20);default:'pending'" json:"delivery_status"`
	DeliveredAt     *time.Time     `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	Metadata        datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at" json:"updated_at"`

	Plan    *Plan        `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	Version *PlanVersion `gorm:"foreignKey:VersionID" json:"version,omitempty"`
	Client  *Client      `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Trainer *TeamMember  `gorm:"foreignKey:AssignedBy" json:"trainer,omitempty"`
}

func (PlanAssignment) TableName() string { return "plan_assignments" }

type Plan struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	TenantID  string    `gorm:"column:tenant_id;index;not null" json:"tenant_id"`
	Name      string    `gorm:"column:name" json:"name"`
	PlanType  PlanType  `gorm:"column:plan_type;type:varchar(20)" json:"plan_type"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Plan) TableName() string { return "plans" }

type PlanVersion struct {
	ID            string         `gorm:"column:id;primaryKey" json:"id"`
	PlanID        string         `gorm:"column:plan_id;index" json:"plan_id"`
	VersionNumber int            `gorm:"column:version_number" json:"version_number"`
	Content       datatypes.JSON `gorm:"column:content" json:"content"`
	CreatedAt     time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (PlanVersion) TableName() string { return "plan_versions" }

type Client struct {
	ID         string `gorm:"column:id;primaryKey" json:"id"`
	TenantID   string `gorm:"column:tenant_id;index;not null" json:"tenant_id"`
	ClientCode string `gorm:"column:client_code" json:"client_code"`
	FirstName  string `gorm:"column:first_name" json:"first_name"`
	LastName   string `gorm:"column:last_name" json:"last_name"`
	Phone      string `gorm:"column:phone" json:"phone,omitempty"`
	Email      string `gorm:"column:email" json:"email,omitempty"`
}

func (Client) TableName() string { return "clients" }

func (c *Client) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type TeamMember struct {
	ID        string `gorm:"column:id;primaryKey" json:"id"`
	TenantID  string `gorm:"column:tenant_id;index;not null" json:"tenant_id"`
	FirstName string `gorm:"column:first_name" json:"first_name"`
	LastName  string `gorm:"column:last_name" json:"last_name"`
}

func (TeamMember) TableName() string { return "team_members" }

func (m *TeamMember) FullName() string {
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

const NotificationKYCReady = "kyc_ready"

type PersistentNotification struct {
	ID               string     `gorm:"column:id;primaryKey" json:"id"`
	TenantID         string     `gorm:"column:tenant_id;index:idx_notifications_related,priority:1;not null" json:"tenant_id"`
	NotificationType string     `gorm:"column:notification_type;type:varchar(64)" json:"notification_type"`
	RelatedEntityID  string     `gorm:"column:related_entity_id;index:idx_notifications_related,priority:2" json:"related_entity_id"`
	IsDismissed      bool       `gorm:"column:is_dismissed;default:false" json:"is_dismissed"`
	DismissedAt      *time.Time `gorm:"column:dismissed_at" json:"dismissed_at,omitempty"`
	CreatedAt        time.Time  `gorm:"column:created_at" json:"created_at"`
}

func (PersistentNotification) TableName() string { return "persistent_notifications" }

// CheckInSchedule is one weekly check-in round. (assignment_id, round_number)
// is unique so a repeated delivery updates rows instead of adding them.
type CheckInSchedule struct {
	ID           string    `gorm:"column:id;primaryKey" json:"id"`
	TenantID     string    `gorm:"column:tenant_id;index;not null" json:"tenant_id"`
	AssignmentID string    `gorm:"column:assignment_id;uniqueIndex:idx_checkin_round,priority:1;not null" json:"assignment_id"`
	ClientID     string    `gorm:"column:client_id;index" json:"client_id"`
	RoundNumber  int       `gorm:"column:round_number;uniqueIndex:idx_checkin_round,priority:2" json:"round_number"`
	DueDate      time.Time `gorm:"column:due_date" json:"due_date"`
	Status       string    `gorm:"column:status;type:varchar(20);default:'pending'" json:"status"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (CheckInSchedule) TableName() string { return "check_in_schedules" }

type AttemptStatus string

const (
	AttemptRunning   AttemptStatus = "running"
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
)

// DeliveryAttempt is the audit row written for every run.
type DeliveryAttempt struct {
	ID           string        `gorm:"column:id;primaryKey" json:"id"`
	TenantID     string        `gorm:"column:tenant_id;index:idx_attempts_assignment,priority:1;not null" json:"tenant_id"`
	AssignmentID string        `gorm:"column:assignment_id;index:idx_attempts_assignment,priority:2;not null" json:"assignment_id"`
	Attempt      int           `gorm:"column:attempt" json:"attempt"`
	Retry        bool          `gorm:"column:retry" json:"retry"`
	Status       AttemptStatus `gorm:"column:status;type:varchar(20)" json:"status"`
	FailedStep   string        `gorm:"column:failed_step;type:varchar(32)" json:"failed_step,omitempty"`
	Error        string        `gorm:"column:error" json:"error,omitempty"`
	PDFURL       string        `gorm:"column:pdf_url" json:"pdf_url,omitempty"`
	StartedAt    time.Time     `gorm:"column:started_at" json:"started_at"`
	FinishedAt   *time.Time    `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

func (DeliveryAttempt) TableName() string { return "delivery_attempts" }

// Models lists the tables owned by the delivery subsystem.
func Models() []any {
	return []any{
		&Plan{},
		&PlanVersion{},
		&Client{},
		&TeamMember{},
		&PlanAssignment{},
		&PersistentNotification{},
		&CheckInSchedule{},
		&DeliveryAttempt{},
	}
}

// PlanContent is the json stored on a plan version.
type PlanContent struct {
	Name            string             `json:"name"`
	Description     string             `json:"description,omitempty"`
	DurationWeeks   int                `json:"duration_weeks,omitempty"`
	WorkoutsPerWeek int                `json:"workouts_per_week,omitempty"`
	Exercises       []ContentExercise  `json:"exercises,omitempty"`
	Meals           []ContentMeal      `json:"meals,omitempty"`
	Macros          *ContentMacroSplit `json:"macros,omitempty"`
	Notes           string             `json:"notes,omitempty"`
}

type ContentExercise struct {
	Name        string `json:"name"`
	Sets        int    `json:"sets"`
	Reps        string `json:"reps"`
	Tempo       string `json:"tempo,omitempty"`
	RestSeconds int    `json:"rest_seconds,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type ContentFood struct {
	Name     string  `json:"name"`
	Quantity string  `json:"quantity"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

type ContentMeal struct {
	Name          string        `json:"name"`
	Time          string        `json:"time"`
	Foods         []ContentFood `json:"foods"`
	TotalCalories float64       `json:"total_calories"`
	TotalProtein  float64       `json:"total_protein"`
	TotalCarbs    float64       `json:"total_carbs"`
	TotalFat      float64       `json:"total_fat"`
}

type ContentMacroSplit struct {
	ProteinPercent float64 `json:"protein_percent"`
	CarbsPercent   float64 `json:"carbs_percent"`
	FatPercent     float64 `json:"fat_percent"`
	TotalCalories  float64 `json:"total_calories"`
}

type Request struct {
	TenantID     string
	AssignmentID string
}

type BatchRequest struct {
	TenantID      string
	AssignmentIDs []string
}

// Result is the outcome of one delivery run. Error carries a message that is
// safe to show to the caller.
type Result struct {
	AssignmentID string `json:"assignment_id"`
	Success      bool   `json:"success"`
	PDFURL       string `json:"pdf_url,omitempty"`
	PortalLink   string `json:"portal_link,omitempty"`
	Error        string `json:"error,omitempty"`
	// Code classifies a failed run.
	Code errutil.CoreStatus `json:"code,omitempty"`
}
