package content

import (
	"encoding/json"
	"net/http"

	"fitcoach-controlplane/pkg/actor"
	"fitcoach-controlplane/pkg/authz"
	"fitcoach-controlplane/pkg/httpapi"
	"fitcoach-controlplane/pkg/middleware"
	"fitcoach-controlplane/services/approval"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc   *Service
	authz *authz.Authorizer
}

func NewHandler(svc *Service, a *authz.Authorizer) *Handler {
	return &Handler{svc: svc, authz: a}
}

func RegisterRoutes(api *httpapi.API, h *Handler) {
	api.POST("/content/drafts", h.authz.Require(authz.ObjContent, authz.ActSubmit), h.CreateDraft)
	api.GET("/content/:entity_type/:id/status", h.authz.Require(authz.ObjApprovals, authz.ActRead), h.Status)
}

type draftRequest struct {
	EntityType string          `json:"entity_type" binding:"required,oneof=exercise nutrition workout"`
	Metadata   json.RawMessage `json:"metadata" binding:"required"`
}

func (h *Handler) CreateDraft(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	var submitter *actor.Ref
	if ref, ok := middleware.CurrentActor(c); ok {
		submitter = &ref
	}

	draft, err := h.svc.CreateDraft(c.Request.Context(), DraftRequest{
		TenantID:   middleware.TenantID(c),
		EntityType: approval.EntityType(req.EntityType),
		Submitter:  submitter,
		Metadata:   req.Metadata,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, draft)
}

func (h *Handler) Status(c *gin.Context) {
	active, err := h.svc.IsActive(c.Request.Context(), middleware.TenantID(c), approval.EntityType(c.Param("entity_type")), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": active})
}
