package delivery

import (
	"context"
	"net/http"

	"fitcoach-controlplane/pkg/authz"
	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/pkg/httpapi"
	"fitcoach-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

// BatchStarter runs a batch outside the request, as a durable workflow.
type BatchStarter interface {
	StartBatch(ctx context.Context, req BatchRequest) (workflowID string, err error)
}

type Handler struct {
	orchestrator *Orchestrator
	starter      BatchStarter
	authz        *authz.Authorizer
}

type HandlerParams struct {
	fx.In
	Orchestrator *Orchestrator
	Starter      BatchStarter `optional:"true"`
	Authorizer   *authz.Authorizer
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		orchestrator: p.Orchestrator,
		starter:      p.Starter,
		authz:        p.Authorizer,
	}
}

func RegisterRoutes(api *httpapi.API, h *Handler) {
	deliver := h.authz.Require(authz.ObjDeliveries, authz.ActDeliver)
	api.POST("/deliveries/batch", deliver, h.DeliverBatch)
	api.POST("/deliveries/:assignment_id", deliver, h.DeliverPlan)
	api.POST("/deliveries/:assignment_id/retry", deliver, h.RetryDelivery)
	api.GET("/deliveries/:assignment_id/attempts", h.authz.Require(authz.ObjDeliveries, authz.ActRead), h.Attempts)
}

// respond writes a single delivery result. Failed runs keep the result body
// and use the status of their failure class.
func respond(c *gin.Context, res *Result) {
	if res.Success {
		c.JSON(http.StatusOK, res)
		return
	}
	if res.Code == errutil.StatusNotFound {
		_ = c.Error(errutil.NotFound(res.Error, nil))
		return
	}
	code := res.Code
	if code == "" {
		code = errutil.StatusInternal
	}
	c.JSON(code.HTTPStatus(), res)
}

func (h *Handler) DeliverPlan(c *gin.Context) {
	res, err := h.orchestrator.DeliverPlan(c.Request.Context(), Request{
		TenantID:     middleware.TenantID(c),
		AssignmentID: c.Param("assignment_id"),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, res)
}

func (h *Handler) RetryDelivery(c *gin.Context) {
	res, err := h.orchestrator.RetryDelivery(c.Request.Context(), Request{
		TenantID:     middleware.TenantID(c),
		AssignmentID: c.Param("assignment_id"),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, res)
}

type batchRequest struct {
	AssignmentIDs []string `json:"assignment_ids" binding:"required,min=1,max=100,dive,required"`
}

type batchQuery struct {
	Mode string `form:"mode" binding:"omitempty,oneof=sync workflow"`
}

func (h *Handler) DeliverBatch(c *gin.Context) {
	var q batchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(err)
		return
	}
	var body batchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(err)
		return
	}

	req := BatchRequest{TenantID: middleware.TenantID(c), AssignmentIDs: body.AssignmentIDs}

	if q.Mode == "workflow" {
		if h.starter == nil {
			_ = c.Error(errutil.NotImplemented("workflow mode is not configured", nil))
			return
		}
		id, err := h.starter.StartBatch(c.Request.Context(), req)
		if err != nil {
			_ = c.Error(errutil.BadGateway("failed to start batch workflow", err))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"workflow_id": id})
		return
	}

	results, err := h.orchestrator.DeliverBatch(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *Handler) Attempts(c *gin.Context) {
	out, err := h.orchestrator.Attempts(c.Request.Context(), Request{
		TenantID:     middleware.TenantID(c),
		AssignmentID: c.Param("assignment_id"),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": out})
}
