package approval

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"fitcoach-controlplane/pkg/actor"
	"fitcoach-controlplane/pkg/authz"
	"fitcoach-controlplane/pkg/db/pagination"
	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/pkg/httpapi"
	"fitcoach-controlplane/pkg/logger"
	"fitcoach-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ContentLookup checks that a draft entity exists before it is submitted.
type ContentLookup interface {
	Exists(ctx context.Context, tenantID string, entityType EntityType, entityID string) (bool, error)
}

// Activator applies review outcomes to the draft entity.
type Activator interface {
	// Activate reports false when the entity stays inactive after approval.
	Activate(ctx context.Context, a Activation) (bool, error)
	MarkRejected(ctx context.Context, a Activation) error
}

type Handler struct {
	svc       *Service
	lookup    ContentLookup
	activator Activator
	authz     *authz.Authorizer
}

type HandlerParams struct {
	fx.In
	Service    *Service
	Lookup     ContentLookup
	Activator  Activator
	Authorizer *authz.Authorizer
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		svc:       p.Service,
		lookup:    p.Lookup,
		activator: p.Activator,
		authz:     p.Authorizer,
	}
}

func RegisterRoutes(api *httpapi.API, h *Handler) {
	read := h.authz.Require(authz.ObjApprovals, authz.ActRead)
	review := h.authz.Require(authz.ObjApprovals, authz.ActReview)

	api.GET("/approvals", read, h.List)
	api.GET("/approvals/stats", read, h.Stats)
	api.GET("/approvals/audit", read, h.Audit)
	api.GET("/approvals/:id", read, h.Get)
	api.POST("/approvals", h.authz.Require(authz.ObjApprovals, authz.ActSubmit), h.Submit)
	api.POST("/approvals/:id/approve", review, h.Approve)
	api.POST("/approvals/:id/reject", review, h.Reject)
}

type listQuery struct {
	pagination.Pagination
	Status     string `form:"status" binding:"omitempty,oneof=pending approved rejected reviewed"`
	EntityType string `form:"entity_type" binding:"omitempty,oneof=exercise nutrition workout"`
	Search     string `form:"search" binding:"omitempty,max=200"`
}

func (h *Handler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(err)
		return
	}

	out, page, err := h.svc.List(c.Request.Context(), middleware.TenantID(c), Filters{
		Status:     Status(q.Status),
		EntityType: EntityType(q.EntityType),
		Search:     q.Search,
		Limit:      q.Limit,
		Cursor:     q.Cursor,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"approvals": out, "page_info": page})
}

type rangeQuery struct {
	From time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To   time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

const defaultStatsWindow = 30 * 24 * time.Hour

func (h *Handler) Stats(c *gin.Context) {
	var q rangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(errutil.BadRequest("from and to must be RFC3339 timestamps", err))
		return
	}
	if q.To.IsZero() {
		q.To = time.Now().UTC()
	}
	if q.From.IsZero() {
		q.From = q.To.Add(-defaultStatsWindow)
	}

	out, err := h.svc.Stats(c.Request.Context(), middleware.TenantID(c), DateRange{From: q.From, To: q.To})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": out, "from": q.From, "to": q.To})
}

type auditQuery struct {
	rangeQuery
	EntityType string `form:"entity_type" binding:"omitempty,oneof=exercise nutrition workout"`
	EntityID   string `form:"entity_id"`
	ReviewedBy string `form:"reviewed_by"`
}

func (h *Handler) Audit(c *gin.Context) {
	var q auditQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(err)
		return
	}

	f := AuditFilters{
		EntityType: EntityType(q.EntityType),
		EntityID:   q.EntityID,
		ReviewedBy: q.ReviewedBy,
	}
	if !q.From.IsZero() {
		f.From = &q.From
	}
	if !q.To.IsZero() {
		f.To = &q.To
	}

	report, err := h.svc.Audit(c.Request.Context(), middleware.TenantID(c), f)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) Get(c *gin.Context) {
	w, err := h.svc.Get(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, w)
}

type submitRequest struct {
	EntityType string          `json:"entity_type" binding:"required"`
	EntityID   string          `json:"entity_id" binding:"required"`
	Metadata   json.RawMessage `json:"metadata"`
}

func (h *Handler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	ctx := c.Request.Context()
	tenantID := middleware.TenantID(c)
	entityType := EntityType(req.EntityType)
	if !entityType.Valid() {
		_ = c.Error(invalid("entity_type", "must be one of exercise, nutrition, workout"))
		return
	}

	ok, err := h.lookup.Exists(ctx, tenantID, entityType, req.EntityID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !ok {
		_ = c.Error(errutil.NotFound(string(entityType)+" not found", nil))
		return
	}

	var submitter *actor.Ref
	if ref, ok := middleware.CurrentActor(c); ok {
		submitter = &ref
	}
	w, err := h.svc.Submit(ctx, SubmitRequest{
		TenantID:   tenantID,
		EntityType: entityType,
		EntityID:   req.EntityID,
		Submitter:  submitter,
		Metadata:   req.Metadata,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

type reviewRequest struct {
	Notes *string `json:"notes"`
}

func bindReview(c *gin.Context) (reviewRequest, error) {
	var req reviewRequest
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return req, nil
	}
	err := c.ShouldBindJSON(&req)
	return req, err
}

func (h *Handler) Approve(c *gin.Context) {
	req, err := bindReview(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	ctx := c.Request.Context()
	reviewer, _ := middleware.CurrentActor(c)
	w, activation, err := h.svc.Approve(ctx, middleware.TenantID(c), c.Param("id"), reviewer, req.Notes)
	if err != nil {
		_ = c.Error(err)
		return
	}

	// The approval is committed; activation problems are reported, not
	// turned into a failed request.
	if activation == nil {
		c.JSON(http.StatusOK, gin.H{
			"approval":         w,
			"activated":        false,
			"activation_error": "approved content could not be read, activate it from the content screen",
		})
		return
	}

	activated, err := h.activator.Activate(ctx, *activation)
	resp := gin.H{"approval": w, "activated": activated}
	if err != nil {
		logger.WithContext(ctx).Error("failed to activate approved entity",
			zap.String("workflow_id", w.ID),
			zap.String("entity_id", w.EntityID),
			zap.Error(err),
		)
		resp["activation_error"] = "activation failed, retry from the content screen"
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Reject(c *gin.Context) {
	req, err := bindReview(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	notes := ""
	if req.Notes != nil {
		notes = *req.Notes
	}

	ctx := c.Request.Context()
	reviewer, _ := middleware.CurrentActor(c)
	w, err := h.svc.Reject(ctx, middleware.TenantID(c), c.Param("id"), reviewer, notes)
	if err != nil {
		_ = c.Error(err)
		return
	}

	meta, err := w.Details()
	if err != nil {
		// MarkRejected only needs the entity reference
		logger.WithContext(ctx).Warn("rejected workflow has undecodable metadata", zap.String("workflow_id", w.ID), zap.Error(err))
	}
	if err := h.activator.MarkRejected(ctx, Activation{
		TenantID:   w.TenantID,
		WorkflowID: w.ID,
		EntityType: w.EntityType,
		EntityID:   w.EntityID,
		Metadata:   meta,
	}); err != nil {
		logger.WithContext(ctx).Error("failed to mark entity rejected", zap.String("entity_id", w.EntityID), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"approval": w})
}
