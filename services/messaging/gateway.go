package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

//go:generate mockgen -destination=mock_messaging/mock_gateway.go -package=mock_messaging . Gateway

// Gateway delivers messages to an end user's messaging account.
type Gateway interface {
	SendText(ctx context.Context, address, message string) (*Ack, error)
	SendFile(ctx context.Context, address string, file FileRef, filename, caption string) (*Ack, error)
	Status(ctx context.Context) (ConnectionState, error)
}

type WPPConnectConfig struct {
	ApiURL      string
	SecretKey   string
	SessionName string
	WebhookURL  string
	Timeout     time.Duration
}

// WPPConnect is a Gateway backed by a self hosted WPPConnect server.
type WPPConnect struct {
	client  *resty.Client
	session string
	webhook string
}

func NewWPPConnect(cfg WPPConnectConfig) *WPPConnect {
	client := resty.New().
		SetBaseURL(cfg.ApiURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.SecretKey).
		SetHeader("Content-Type", "application/json")

	return &WPPConnect{
		client:  client,
		session: cfg.SessionName,
		webhook: cfg.WebhookURL,
	}
}

type sendMessageRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	IsGroup bool   `json:"isGroup"`
}

type sendFileRequest struct {
	Phone    string `json:"phone"`
	Path     string `json:"path,omitempty"`
	Base64   string `json:"base64,omitempty"`
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
}

type sendResponse struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type sentMessage struct {
	ID  string `json:"id"`
	Ack int    `json:"ack"`
}

// ack reads the message id from either a single message or a list of them.
func (r sendResponse) ack() *Ack {
	msg := sentMessage{}
	trimmed := bytes.TrimSpace(r.Response)
	switch {
	case len(trimmed) > 0 && trimmed[0] == '[':
		var list []sentMessage
		if json.Unmarshal(trimmed, &list) == nil && len(list) > 0 {
			msg = list[0]
		}
	case len(trimmed) > 0 && trimmed[0] == '{':
		_ = json.Unmarshal(trimmed, &msg)
	}

	level := AckLevel(msg.Ack)
	if level < AckSent {
		level = AckSent
	}
	return &Ack{MessageID: msg.ID, Level: level}
}

func (w *WPPConnect) path(action string) string {
	return fmt.Sprintf("/api/%s/%s", w.session, action)
}

func (w *WPPConnect) SendText(ctx context.Context, address, message string) (*Ack, error) {
	phone, err := FormatPhone(address)
	if err != nil {
		return nil, err
	}

	var out sendResponse
	if err := w.post(ctx, "send_text", w.path("send-message"), sendMessageRequest{
		Phone:   phone,
		Message: message,
		IsGroup: false,
	}, &out); err != nil {
		return nil, err
	}
	return out.ack(), nil
}

func (w *WPPConnect) SendFile(ctx context.Context, address string, file FileRef, filename, caption string) (*Ack, error) {
	phone, err := FormatPhone(address)
	if err != nil {
		return nil, err
	}

	req := sendFileRequest{
		Phone:    phone,
		Filename: filename,
		Caption:  caption,
	}
	if file.URL != "" {
		req.Path = file.path()
	} else {
		req.Base64 = file.path()
	}

	var out sendResponse
	if err := w.post(ctx, "send_file", w.path("send-file-base64"), req, &out); err != nil {
		return nil, err
	}
	return out.ack(), nil
}

type connectionResponse struct {
	Status  json.RawMessage `json:"status"`
	Message string          `json:"message"`
}

// Status asks the gateway whether the session is connected. The server
// answers with either status "CONNECTED" or status true.
func (w *WPPConnect) Status(ctx context.Context) (ConnectionState, error) {
	var out connectionResponse
	resp, err := w.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(w.path("check-connection-session"))
	if err := classify("status", resp, err); err != nil {
		return StateUnknown, err
	}

	var flag bool
	if json.Unmarshal(out.Status, &flag) == nil {
		if flag {
			return StateConnected, nil
		}
		return StateDisconnected, nil
	}

	var state string
	if json.Unmarshal(out.Status, &state) == nil && state != "" {
		return ConnectionState(state), nil
	}
	return StateUnknown, nil
}

type startSessionRequest struct {
	Webhook    string `json:"webhook"`
	WaitQrCode bool   `json:"waitQrCode"`
}

type startSessionResponse struct {
	Status string `json:"status"`
	QRCode string `json:"qrcode"`
}

// StartSession opens the session and returns the QR code to pair it. The
// code is empty when the session is already paired.
func (w *WPPConnect) StartSession(ctx context.Context) (string, error) {
	var out startSessionResponse
	if err := w.post(ctx, "start_session", w.path("start-session"), startSessionRequest{
		Webhook:    w.webhook,
		WaitQrCode: true,
	}, &out); err != nil {
		return "", err
	}
	return out.QRCode, nil
}

func (w *WPPConnect) post(ctx context.Context, op, path string, body, result any) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		Post(path)
	return classify(op, resp, err)
}

func classify(op string, resp *resty.Response, err error) error {
	if err != nil {
		transient := !errors.Is(err, context.Canceled)
		return &GatewayError{Op: op, Transient: transient, Err: err}
	}
	if resp.IsError() {
		return &GatewayError{
			Op:         op,
			StatusCode: resp.StatusCode(),
			Transient:  classifyStatus(resp.StatusCode()),
			Err:        fmt.Errorf("%s", truncate(resp.Body(), 256)),
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
