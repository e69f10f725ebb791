package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("health",
	fx.Provide(ProvideHealth),
	fx.Invoke(registerRoutes),
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type Health struct {
	Status string       `json:"status"`
	Deps   []Dependency `json:"deps,omitempty"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

type health struct {
	db    *gorm.DB
	redis *redis.Client
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	return &health{
		db:    p.DB,
		redis: p.Redis,
	}
}

func registerRoutes(router *gin.Engine, h HealthService) {
	router.GET("/healthz", h.Liveness)
	router.GET("/readyz", h.Readiness)
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{Status: "ok"})
}

func (h *health) Readiness(c *gin.Context) {
	this := &Health{Status: "ok"}
	code := http.StatusOK

	if h.db != nil {
		dep := Dependency{Name: "database", Status: "ok"}
		if sqlDB, err := h.db.DB(); err != nil {
			dep.Status = "down"
			dep.Message = err.Error()
		} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			dep.Status = "down"
			dep.Message = err.Error()
		}
		if dep.Status != "ok" {
			this.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		this.Deps = append(this.Deps, dep)
	}

	if h.redis != nil {
		dep := Dependency{Name: "redis", Status: "ok"}
		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			dep.Status = "down"
			dep.Message = err.Error()
			this.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		this.Deps = append(this.Deps, dep)
	}

	c.JSON(code, this)
}
