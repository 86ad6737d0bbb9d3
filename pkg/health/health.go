package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
	Check(ctx context.Context) *Health
}

// Pinger is a named readiness probe.
type Pinger struct {
	Name string
	Ping func(ctx context.Context) error
}

type health struct {
	probes []Pinger
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	var probes []Pinger

	if p.DB != nil {
		db := p.DB
		probes = append(probes, Pinger{Name: "database", Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}})
	}

	if p.Redis != nil {
		rdb := p.Redis
		probes = append(probes, Pinger{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	return New(probes...)
}

func New(probes ...Pinger) HealthService {
	return &health{probes: probes}
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  StatusHealthy,
		Message: "OK",
	})
}

// Check runs every probe concurrently with a shared deadline.
func (h *health) Check(ctx context.Context) *Health {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	deps := make([]Dependency, len(h.probes))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, probe := range h.probes {
		g.Go(func() error {
			dep := Dependency{Name: probe.Name, Status: StatusHealthy, Message: "OK"}
			if err := probe.Ping(gctx); err != nil {
				dep.Status = StatusUnhealthy
				dep.Message = err.Error()
			}
			mu.Lock()
			deps[i] = dep
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := &Health{Status: StatusHealthy, Message: "OK", Deps: deps}
	for _, d := range deps {
		if d.Status != StatusHealthy {
			out.Status = StatusUnhealthy
			out.Message = d.Name + " is not ready"
			break
		}
	}
	return out
}

func (h *health) Readiness(c *gin.Context) {
	out := h.Check(c.Request.Context())

	code := http.StatusOK
	if out.Status != StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, out)
}
