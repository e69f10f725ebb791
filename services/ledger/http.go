package ledger

import (
	"net/http"
	"strconv"
	"time"

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
	v1 := router.Group("/v1/points")
	v1.POST("/grant", h.grant)
	v1.POST("/consume", h.consume)
	v1.POST("/refund", h.refund)
	v1.GET("/balance", h.getBalance)
	v1.PATCH("/balances/:id", h.update)
	v1.DELETE("/balances/:id", h.remove)
	v1.GET("/history", h.queryHistory)
}

type grantRequest struct {
	UserID     *int64 `json:"user_id"`
	ConsumerID *int64 `json:"consumer_id"`
	Amount     int64  `json:"amount"`
	ActorID    *int64 `json:"actor_id"`
}

func (h *Handler) grant(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	b, err := BeneficiaryFrom(req.UserID, req.ConsumerID)
	if err != nil {
		c.Error(err)
		return
	}

	bal, err := h.svc.Grant(c.Request.Context(), b, req.Amount, req.ActorID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, bal)
}

type consumeRequest struct {
	UserID       *int64 `json:"user_id"`
	ConsumerID   *int64 `json:"consumer_id"`
	Amount       int64  `json:"amount"`
	OrderID      *int64 `json:"order_id"`
	CollectionID *int64 `json:"collection_id"`
	TableID      *int64 `json:"table_id"`
	ActorID      *int64 `json:"actor_id"`
}

func (r consumeRequest) refs() ContextRefs {
	return ContextRefs{
		OrderID:      r.OrderID,
		CollectionID: r.CollectionID,
		TableID:      r.TableID,
	}
}

func (h *Handler) consume(c *gin.Context) {
	var req consumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	b, err := BeneficiaryFrom(req.UserID, req.ConsumerID)
	if err != nil {
		c.Error(err)
		return
	}

	bal, err := h.svc.Consume(c.Request.Context(), b, req.Amount, req.refs(), req.ActorID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, bal)
}

func (h *Handler) refund(c *gin.Context) {
	var req consumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	b, err := BeneficiaryFrom(req.UserID, req.ConsumerID)
	if err != nil {
		c.Error(err)
		return
	}

	bal, err := h.svc.Refund(c.Request.Context(), b, req.Amount, req.refs(), req.ActorID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, bal)
}

func (h *Handler) getBalance(c *gin.Context) {
	userID, err := queryInt64(c, "user_id")
	if err != nil {
		c.Error(err)
		return
	}
	consumerID, err := queryInt64(c, "consumer_id")
	if err != nil {
		c.Error(err)
		return
	}

	b, err := BeneficiaryFrom(userID, consumerID)
	if err != nil {
		c.Error(err)
		return
	}

	bal, err := h.svc.GetBalance(c.Request.Context(), b)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, bal)
}

type updateRequest struct {
	Amount  *int64 `json:"amount"`
	ActorID *int64 `json:"actor_id"`
}

func (h *Handler) update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errutil.BadRequest("invalid balance id"))
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	bal, err := h.svc.Update(c.Request.Context(), id, UpdateParams{Amount: req.Amount}, req.ActorID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, bal)
}

func (h *Handler) remove(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errutil.BadRequest("invalid balance id"))
		return
	}

	actorID, err := queryInt64(c, "actor_id")
	if err != nil {
		c.Error(err)
		return
	}

	bal, err := h.svc.Remove(c.Request.Context(), id, actorID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, bal)
}

func (h *Handler) queryHistory(c *gin.Context) {
	q := HistoryQuery{
		Search:  c.Query("search"),
		SortBy:  c.Query("sort_by"),
		OrderBy: c.Query("order_by"),
	}

	userID, err := queryInt64(c, "user_id")
	if err != nil {
		c.Error(err)
		return
	}
	consumerID, err := queryInt64(c, "consumer_id")
	if err != nil {
		c.Error(err)
		return
	}
	if userID != nil || consumerID != nil {
		b, err := BeneficiaryFrom(userID, consumerID)
		if err != nil {
			c.Error(err)
			return
		}
		q.Beneficiary = &b
	}

	statuses, err := ParseStatuses(c.Query("status"))
	if err != nil {
		c.Error(err)
		return
	}
	q.Statuses = statuses

	if q.After, err = queryTime(c, "after"); err != nil {
		c.Error(err)
		return
	}
	if q.Before, err = queryTime(c, "before"); err != nil {
		c.Error(err)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.BadRequest("invalid pagination", errutil.WithErr(err)))
		return
	}
	q.Page = page

	entries, pageInfo, err := h.svc.QueryHistory(c.Request.Context(), q)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":         entries,
		"page":         pageInfo.Page,
		"limit":        pageInfo.Limit,
		"total_number": pageInfo.TotalNumber,
		"total_pages":  pageInfo.TotalPages,
	})
}

func queryInt64(c *gin.Context, key string) (*int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errutil.BadRequest("invalid " + key)
	}
	return &v, nil
}

func queryTime(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errutil.BadRequest("invalid "+key+" timestamp, expected RFC3339")
	}
	return &t, nil
}
