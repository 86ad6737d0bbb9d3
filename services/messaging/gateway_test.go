package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *WPPConnect {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewWPPConnect(WPPConnectConfig{
		ApiURL:      srv.URL,
		SecretKey:   "s3cret",
		SessionName: "coach",
		Timeout:     2 * time.Second,
	})
}

func TestSendText(t *testing.T) {
	var got sendMessageRequest
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/coach/send-message", r.URL.Path)
		require.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"success","response":[{"id":"true_5511999999999@c.us_ABC","ack":1}]}`))
	})

	ack, err := gw.SendText(context.Background(), "+55 11 99999-9999", "hello")
	require.NoError(t, err)
	require.Equal(t, "true_5511999999999@c.us_ABC", ack.MessageID)
	require.Equal(t, AckSent, ack.Level)
	require.Equal(t, "5511999999999@c.us", got.Phone)
	require.Equal(t, "hello", got.Message)
	require.False(t, got.IsGroup)
}

func TestSendFileUsesPath(t *testing.T) {
	var got sendFileRequest
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/coach/send-file-base64", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"success","response":{"id":"msg-2"}}`))
	})

	ack, err := gw.SendFile(context.Background(), "5511999999999", FileRef{URL: "https://cdn/plan.pdf"}, "Jane_Plan.pdf", PlanCaption)
	require.NoError(t, err)
	require.Equal(t, "msg-2", ack.MessageID)
	require.Equal(t, "https://cdn/plan.pdf", got.Path)
	require.Empty(t, got.Base64)
	require.Equal(t, PlanCaption, got.Caption)
}

func TestSendClassifiesErrors(t *testing.T) {
	status := http.StatusTooManyRequests
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"status":"error"}`))
	})

	_, err := gw.SendText(context.Background(), "5511999999999", "hi")
	require.Error(t, err)
	require.True(t, IsTransient(err))

	status = http.StatusBadGateway
	_, err = gw.SendText(context.Background(), "5511999999999", "hi")
	require.True(t, IsTransient(err))

	status = http.StatusBadRequest
	_, err = gw.SendText(context.Background(), "5511999999999", "hi")
	require.Error(t, err)
	require.False(t, IsTransient(err))
}

func TestSendRejectsBadAddressWithoutCalling(t *testing.T) {
	called := false
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := gw.SendText(context.Background(), "n/a", "hi")
	require.Error(t, err)
	require.False(t, IsTransient(err))
	require.False(t, called)
}

func TestNetworkErrorsAreTransient(t *testing.T) {
	gw := NewWPPConnect(WPPConnectConfig{ApiURL: "http://127.0.0.1:1", SessionName: "coach", Timeout: time.Second})
	_, err := gw.SendText(context.Background(), "5511999999999", "hi")
	require.Error(t, err)
	require.True(t, IsTransient(err))
}

func TestStatus(t *testing.T) {
	body := `{"status":true,"message":"Connected"}`
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/coach/check-connection-session", r.URL.Path)
		_, _ = w.Write([]byte(body))
	})

	state, err := gw.Status(context.Background())
	require.NoError(t, err)
	require.True(t, state.Connected())

	body = `{"status":"CONNECTED"}`
	state, err = gw.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateConnected, state)

	body = `{"status":false,"message":"Disconnected"}`
	state, err = gw.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateDisconnected, state)
}

func TestStartSession(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/coach/start-session", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"QRCODE","qrcode":"data:image/png;base64,AAA"}`))
	})

	qr, err := gw.StartSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "data:image/png;base64,AAA", qr)
}
