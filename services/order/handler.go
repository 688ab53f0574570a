package order

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"smmpanel/pkg/errutil"
	"smmpanel/pkg/httpapi"
	"smmpanel/pkg/middleware"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *gin.Engine, authn gin.HandlerFunc, authorize gin.HandlerFunc) {
	mine := r.Group("/api/orders", authn, authorize)
	{
		mine.POST("", h.place)
		mine.GET("", h.myOrders)
		mine.GET("/:id", h.get)
		mine.POST("/:id/refill", h.refill)
		mine.POST("/:id/cancel", h.cancel)
	}

	admin := r.Group("/api/admin/orders", authn, authorize)
	{
		admin.GET("", h.adminList)
		admin.POST("/:id/status", h.setStatus)
		admin.POST("/:id/sync", h.sync)
	}
}

func (h *Handler) place(c *gin.Context) {
	var in PlaceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	o, err := h.service.Place(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.Created(c, o)
}

func (h *Handler) myOrders(c *gin.Context) {
	limit, offset := pagination(c)
	orders, err := h.service.List(c.Request.Context(), ListFilter{
		UserID: middleware.UserID(c),
		Status: Status(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, orders)
}

func (h *Handler) get(c *gin.Context) {
	o, err := h.service.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, o)
}

func (h *Handler) refill(c *gin.Context) {
	o, err := h.service.RequestRefill(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, o, "Refill requested")
}

func (h *Handler) cancel(c *gin.Context) {
	o, err := h.service.RequestCancel(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, o, "Cancellation requested")
}

func (h *Handler) adminList(c *gin.Context) {
	limit, offset := pagination(c)
	orders, err := h.service.List(c.Request.Context(), ListFilter{
		UserID: c.Query("user_id"),
		Status: Status(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, orders)
}

func (h *Handler) setStatus(c *gin.Context) {
	var in struct {
		Status Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	o, err := h.service.SetStatus(c.Request.Context(), c.Param("id"), in.Status)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, o)
}

func (h *Handler) sync(c *gin.Context) {
	o, err := h.service.SyncOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, o)
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return limit, offset
}
