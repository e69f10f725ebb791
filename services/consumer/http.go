package consumer

import (
	"net/http"
	"strconv"

	"meeple-backoffice/pkg/db/pagination"
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
	v1 := router.Group("/v1/consumers")
	v1.POST("", h.create)
	v1.GET("", h.list)
	v1.GET("/:id", h.get)
	v1.PATCH("/:id", h.update)
	v1.DELETE("/:id", h.remove)
}

type createRequest struct {
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone"`
}

func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	cons, err := h.svc.Create(c.Request.Context(), CreateParams{
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, cons)
}

func (h *Handler) list(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.BadRequest("invalid pagination", errutil.WithErr(err)))
		return
	}

	consumers, pageInfo, err := h.svc.List(c.Request.Context(), page)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": consumers, "page_info": pageInfo})
}

func (h *Handler) get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errutil.BadRequest("invalid consumer id"))
		return
	}

	cons, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, cons)
}

type updateRequest struct {
	DisplayName *string `json:"display_name"`
	Phone       *string `json:"phone"`
}

func (h *Handler) update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errutil.BadRequest("invalid consumer id"))
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	cons, err := h.svc.Update(c.Request.Context(), id, UpdateParams{
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, cons)
}

func (h *Handler) remove(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errutil.BadRequest("invalid consumer id"))
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
