package taskname

const (
	// Delivery tasks
	DeliveryPlan  = "delivery:plan"
	DeliveryBatch = "delivery:batch"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

type DeliveryPlanPayload struct {
	JobID        string `json:"job_id"`
	TenantID     string `json:"tenant_id"`
	AssignmentID string `json:"assignment_id"`
	Retry        bool   `json:"retry"`
}

type DeliveryBatchPayload struct {
	JobID         string   `json:"job_id"`
	TenantID      string   `json:"tenant_id"`
	AssignmentIDs []string `json:"assignment_ids"`
}
