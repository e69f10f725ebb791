package webhook

import (
	"net/http"

	"meeple-backoffice/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(router *gin.Engine) {
	v1 := router.Group("/v1/webhooks")
	v1.POST("/:provider/order-cancelled", h.orderCancelled)
}

func (h *Handler) orderCancelled(c *gin.Context) {
	provider, err := ParseProvider(c.Param("provider"))
	if err != nil {
		c.Error(err)
		return
	}

	var payload OrderCancelledPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	log, created, err := h.svc.ReceiveOrderCancelled(c.Request.Context(), provider, payload)
	if err != nil {
		c.Error(err)
		return
	}

	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, log)
}
