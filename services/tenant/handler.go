package tenant

import (
	"net/http"

	"fitcoach-controlplane/pkg/httpapi"
	"fitcoach-controlplane/pkg/middleware"
	"fitcoach-controlplane/services/renderer"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func RegisterRoutes(api *httpapi.API, h *Handler) {
	api.GET("/tenant", h.Get)
	api.GET("/tenant/branding", h.GetBranding)
	api.PUT("/tenant/branding", h.UpdateBranding)
}

func (h *Handler) Get(c *gin.Context) {
	t, err := h.svc.Get(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) GetBranding(c *gin.Context) {
	b, err := h.svc.Branding(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type brandingRequest struct {
	LogoURL      string `json:"logo" binding:"omitempty,url"`
	PrimaryColor string `json:"primaryColor" binding:"omitempty,hexcolor"`
	CompanyName  string `json:"companyName" binding:"omitempty,max=120"`
}

func (h *Handler) UpdateBranding(c *gin.Context) {
	var req brandingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	t, err := h.svc.UpdateBranding(c.Request.Context(), middleware.TenantID(c), renderer.Branding{
		LogoURL:      req.LogoURL,
		PrimaryColor: req.PrimaryColor,
		CompanyName:  req.CompanyName,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, t.Branding())
}
