package httpapi

import (
	"fitcoach-controlplane/pkg/config"
	"fitcoach-controlplane/pkg/health"
	"fitcoach-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewEngine, NewAPI),
)

// API is the tenant scoped route group every domain handler registers on.
type API struct {
	*gin.RouterGroup
}

func NewEngine(cfg *config.Config, h health.HealthService) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), otelgin.Middleware(cfg.AppName))

	engine.GET("/health/liveness", h.Liveness)
	engine.GET("/health/readiness", h.Readiness)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return engine
}

func NewAPI(engine *gin.Engine) *API {
	group := engine.Group("/v1", middleware.Error(), middleware.Tenant(), middleware.Actor())
	return &API{RouterGroup: group}
}
