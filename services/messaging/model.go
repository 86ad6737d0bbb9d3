package messaging

import (
	"strings"
	"time"
)

// ConnectionState is the session state reported by the gateway.
type ConnectionState string

const (
	StateConnected    ConnectionState = "CONNECTED"
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateUnpaired     ConnectionState = "UNPAIRED"
	StateUnknown      ConnectionState = "UNKNOWN"
)

func (s ConnectionState) Connected() bool {
	return strings.EqualFold(string(s), string(StateConnected))
}

// AckLevel follows the gateway delivery receipts.
type AckLevel int

const (
	AckPending  AckLevel = 0
	AckSent     AckLevel = 1
	AckReceived AckLevel = 2
	AckRead     AckLevel = 3
	AckPlayed   AckLevel = 4
)

// Ack is returned for every accepted send.
type Ack struct {
	MessageID string
	Level     AckLevel
}

// FileRef points at the file to send. URL wins when both are set.
type FileRef struct {
	URL    string
	Base64 string
}

func (f FileRef) path() string {
	if f.URL != "" {
		return f.URL
	}
	return f.Base64
}

type MessageKind string

const (
	KindText MessageKind = "text"
	KindFile MessageKind = "file"
)

// MessageLog records every message handed to the gateway.
type MessageLog struct {
	ID           string      `gorm:"column:id;primaryKey"`
	TenantID     string      `gorm:"column:tenant_id;index:idx_message_logs_assignment,priority:1;not null"`
	AssignmentID string      `gorm:"column:assignment_id;index:idx_message_logs_assignment,priority:2"`
	MessageID    string      `gorm:"column:message_id;index"`
	Address      string      `gorm:"column:address"`
	Kind         MessageKind `gorm:"column:kind;type:varchar(20)"`
	AckLevel     AckLevel    `gorm:"column:ack_level;default:0"`
	CreatedAt    time.Time   `gorm:"column:created_at"`
	UpdatedAt    time.Time   `gorm:"column:updated_at"`
}

func (MessageLog) TableName() string {
	return "message_logs"
}
