package task

import (
	"net/http"

	"fitcoach-controlplane/pkg/authz"
	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/pkg/httpapi"
	"fitcoach-controlplane/pkg/middleware"

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
	api.POST("/delivery-jobs", h.authz.Require(authz.ObjDeliveries, authz.ActDeliver), h.Enqueue)
	api.GET("/delivery-jobs/:id", h.authz.Require(authz.ObjDeliveries, authz.ActRead), h.Get)
}

type enqueueRequest struct {
	AssignmentID  string   `json:"assignment_id" binding:"required_without=AssignmentIDs"`
	AssignmentIDs []string `json:"assignment_ids" binding:"omitempty,max=100,dive,required"`
	Retry         bool     `json:"retry"`
}

func (h *Handler) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}
	if req.AssignmentID != "" && len(req.AssignmentIDs) > 0 {
		_ = c.Error(errutil.ValidationFailed("send assignment_id or assignment_ids, not both", nil))
		return
	}

	ctx := c.Request.Context()
	tenantID := middleware.TenantID(c)

	var (
		job *Job
		err error
	)
	if len(req.AssignmentIDs) > 0 {
		job, err = h.svc.EnqueueBatch(ctx, tenantID, req.AssignmentIDs)
	} else {
		job, err = h.svc.EnqueueDelivery(ctx, tenantID, req.AssignmentID, req.Retry)
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (h *Handler) Get(c *gin.Context) {
	job, err := h.svc.GetJob(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, job)
}
