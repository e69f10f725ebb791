package webhook

import (
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

var TaskModule = fx.Module("webhook.tasks",
	fx.Invoke(registerTasks),
)

func registerRoutes(router *gin.Engine, handler *Handler) {
	handler.Register(router)
}

func registerTasks(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(TypeOrderCancelled, svc.HandleOrderCancelledTask)
}
