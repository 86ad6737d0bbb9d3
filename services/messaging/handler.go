package messaging

import (
	"crypto/subtle"
	"io"
	"net/http"

	"fitcoach-controlplane/pkg/config"
	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/pkg/httpapi"
	"fitcoach-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const WebhookSecretHeader = "X-Webhook-Secret"

type Handler struct {
	svc    *Service
	secret string
}

func NewHandler(svc *Service, cfg *config.Config) *Handler {
	return &Handler{svc: svc, secret: cfg.Messaging.WebhookSecret}
}

// RegisterRoutes mounts the status routes on the tenant API. The webhook is
// called by the gateway, which cannot send tenant headers, so it is mounted
// on the engine with its own shared secret.
func RegisterRoutes(engine *gin.Engine, api *httpapi.API, h *Handler) {
	api.GET("/messaging/status", h.Status)
	api.POST("/messaging/session", h.StartSession)

	engine.POST("/v1/messaging/webhook", middleware.Error(), h.Webhook)
}

func (h *Handler) Status(c *gin.Context) {
	state, err := h.svc.ConnectionState(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":     state,
		"connected": state.Connected(),
	})
}

func (h *Handler) StartSession(c *gin.Context) {
	qr, err := h.svc.StartSession(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"qrcode": qr})
}

func (h *Handler) Webhook(c *gin.Context) {
	if h.secret == "" {
		zap.L().Warn("messaging webhook secret not configured, accepting unauthenticated webhook")
	} else if subtle.ConstantTimeCompare([]byte(c.GetHeader(WebhookSecretHeader)), []byte(h.secret)) != 1 {
		_ = c.Error(errutil.Unauthorized("invalid webhook secret", nil))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		_ = c.Error(errutil.BadRequest("failed to read webhook body", err))
		return
	}

	if err := h.svc.HandleWebhook(c.Request.Context(), body); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
