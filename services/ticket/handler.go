package ticket

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
	mine := r.Group("/api/user/tickets", authn, authorize)
	{
		mine.POST("", h.create)
		mine.GET("", h.list)
		mine.GET("/:id", h.get)
		mine.POST("/:id/reply", h.reply)
		mine.POST("/:id/close", h.close)
	}

	admin := r.Group("/api/admin/tickets", authn, authorize)
	{
		admin.GET("", h.adminList)
		admin.GET("/:id", h.adminGet)
		admin.POST("/:id/reply", h.adminReply)
		admin.POST("/:id/close", h.adminClose)
	}
}

func (h *Handler) create(c *gin.Context) {
	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	view, err := h.service.Create(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.Created(c, view)
}

func (h *Handler) list(c *gin.Context) {
	limit, offset := ticketPagination(c)
	tickets, err := h.service.List(c.Request.Context(), middleware.UserID(c), limit, offset)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, tickets)
}

func (h *Handler) get(c *gin.Context) {
	view, err := h.service.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, view)
}

func (h *Handler) reply(c *gin.Context) {
	var in ReplyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	view, err := h.service.Reply(c.Request.Context(), middleware.UserID(c), c.Param("id"), false, in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, view)
}

func (h *Handler) close(c *gin.Context) {
	t, err := h.service.Close(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, t, "Ticket closed")
}

func (h *Handler) adminList(c *gin.Context) {
	limit, offset := ticketPagination(c)
	tickets, err := h.service.List(c.Request.Context(), c.Query("user_id"), limit, offset)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, tickets)
}

func (h *Handler) adminGet(c *gin.Context) {
	view, err := h.service.Get(c.Request.Context(), "", c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, view)
}

func (h *Handler) adminReply(c *gin.Context) {
	var in ReplyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	view, err := h.service.Reply(c.Request.Context(), middleware.UserID(c), c.Param("id"), true, in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, view)
}

func (h *Handler) adminClose(c *gin.Context) {
	t, err := h.service.Close(c.Request.Context(), "", c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, t, "Ticket closed")
}

func ticketPagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return limit, offset
}
