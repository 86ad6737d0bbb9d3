package messaging

import (
	"context"
	"encoding/json"
	"strings"

	"fitcoach-controlplane/pkg/db/option"
	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/pkg/logger"
	"fitcoach-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SessionStarter opens a gateway session and returns the pairing QR code.
type SessionStarter interface {
	StartSession(ctx context.Context) (string, error)
}

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	repo    repository.Repository[MessageLog]
	state   *StateCache
	starter SessionStarter
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	State   *StateCache
	Starter SessionStarter `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		repo:    repository.ProvideStore[MessageLog](p.DB),
		state:   p.State,
		starter: p.Starter,
	}
}

// Record stores a message accepted by the gateway.
func (s *Service) Record(ctx context.Context, tenantID, assignmentID, address string, kind MessageKind, ack *Ack) error {
	log := &MessageLog{
		ID:           s.node.Generate().String(),
		TenantID:     tenantID,
		AssignmentID: assignmentID,
		Address:      address,
		Kind:         kind,
		AckLevel:     AckPending,
	}
	if ack != nil {
		log.MessageID = ack.MessageID
		log.AckLevel = ack.Level
	}
	return s.repo.Create(ctx, log)
}

// Acknowledged reports whether a message of kind already reached the gateway
// for the assignment.
func (s *Service) Acknowledged(ctx context.Context, tenantID, assignmentID string, kind MessageKind) (bool, error) {
	logs, err := s.repo.Find(ctx, &MessageLog{
		TenantID:     tenantID,
		AssignmentID: assignmentID,
		Kind:         kind,
	},
		option.ApplyOperator(option.Condition{Field: "ack_level", Operator: option.GTE, Value: AckSent}),
		option.WithLimit(1),
	)
	if err != nil {
		return false, err
	}
	return len(logs) > 0, nil
}

func (s *Service) ConnectionState(ctx context.Context) (ConnectionState, error) {
	state, err := s.state.Current(ctx)
	if err != nil {
		return StateUnknown, errutil.BadGateway("messaging gateway unavailable", err)
	}
	return state, nil
}

func (s *Service) StartSession(ctx context.Context) (string, error) {
	if s.starter == nil {
		return "", errutil.NotImplemented("messaging gateway does not support sessions", nil)
	}
	qr, err := s.starter.StartSession(ctx)
	if err != nil {
		return "", errutil.BadGateway("failed to start messaging session", err)
	}
	return qr, nil
}

const (
	EventMessage     = "onmessage"
	EventAck         = "onack"
	EventStateChange = "onstatechange"
)

// WebhookEvent accepts both the nested {event, data} shape and the flat shape
// where the event fields sit next to "event".
type WebhookEvent struct {
	Event   string          `json:"event"`
	Session string          `json:"session"`
	Data    json.RawMessage `json:"data"`
}

type ackPayload struct {
	ID  json.RawMessage `json:"id"`
	Ack AckLevel        `json:"ack"`
}

type statePayload struct {
	State string `json:"state"`
}

type messagePayload struct {
	From       string `json:"from"`
	Type       string `json:"type"`
	IsGroupMsg bool   `json:"isGroupMsg"`
}

func (s *Service) HandleWebhook(ctx context.Context, body []byte) error {
	zapLog := logger.WithContext(ctx)

	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return errutil.BadRequest("invalid webhook payload", err)
	}

	data := []byte(evt.Data)
	if len(data) == 0 || string(data) == "null" {
		data = body
	}

	switch evt.Event {
	case EventAck:
		var p ackPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return errutil.BadRequest("invalid ack payload", err)
		}
		id := messageID(p.ID)
		if id == "" {
			return errutil.BadRequest("ack without message id", nil)
		}
		return s.UpdateAck(ctx, id, p.Ack)

	case EventStateChange:
		var p statePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return errutil.BadRequest("invalid state payload", err)
		}
		state := ConnectionState(strings.ToUpper(strings.TrimSpace(p.State)))
		if state == "" {
			return errutil.BadRequest("state change without state", nil)
		}
		zapLog.Info("messaging connection state changed", zap.String("state", string(state)))
		return s.state.Update(ctx, state)

	case EventMessage:
		var p messagePayload
		_ = json.Unmarshal(data, &p)
		if p.IsGroupMsg {
			return nil
		}
		zapLog.Info("incoming message", zap.String("from", p.From), zap.String("type", p.Type))
		return nil

	default:
		zapLog.Debug("unhandled webhook event", zap.String("event", evt.Event))
		return nil
	}
}

// UpdateAck raises the ack level of a logged message. Levels never go down.
func (s *Service) UpdateAck(ctx context.Context, messageID string, level AckLevel) error {
	res := s.db.WithContext(ctx).
		Model(&MessageLog{}).
		Where("message_id = ? AND ack_level < ?", messageID, level).
		Update("ack_level", level)
	if res.Error != nil {
		return errutil.Internal("failed to update message ack", res.Error)
	}
	if res.RowsAffected == 0 {
		logger.WithContext(ctx).Debug("ack for unknown or newer message", zap.String("message_id", messageID))
	}
	return nil
}

// messageID accepts a plain id or the serialized form {"_serialized": "..."}.
func messageID(raw json.RawMessage) string {
	var id string
	if json.Unmarshal(raw, &id) == nil {
		return id
	}
	var obj struct {
		Serialized string `json:"_serialized"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Serialized
	}
	return ""
}
