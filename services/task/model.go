package task

import (
	"time"

	"gorm.io/datatypes"
)

type JobKind string

const (
	KindDeliveryPlan  JobKind = "delivery_plan"
	KindDeliveryBatch JobKind = "delivery_batch"
)

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// Job is the execution record of one enqueued delivery task.
type Job struct {
	ID          string         `gorm:"column:id;primaryKey" json:"id"`
	TenantID    string         `gorm:"column:tenant_id;index;not null" json:"tenant_id"`
	Kind        JobKind        `gorm:"column:kind;type:varchar(32);not null" json:"kind"`
	Status      JobStatus      `gorm:"column:status;type:varchar(20);default:'pending'" json:"status"`
	Queue       string         `gorm:"column:queue;type:varchar(32)" json:"queue"`
	ErrorMsg    string         `gorm:"column:error_msg;type:text" json:"error,omitempty"`
	Payload     datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	Result      datatypes.JSON `gorm:"column:result" json:"result,omitempty"`
	StartedAt   *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Job) TableName() string { return "delivery_jobs" }
