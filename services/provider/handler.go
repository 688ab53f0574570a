package provider

import (
	"github.com/gin-gonic/gin"

	"smmpanel/pkg/errutil"
	"smmpanel/pkg/httpapi"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *gin.Engine, authn gin.HandlerFunc, authorize gin.HandlerFunc) {
	admin := r.Group("/api/admin/providers", authn, authorize)
	{
		admin.GET("", h.list)
		admin.POST("", h.create)
		admin.POST("/test", h.testAll)
		admin.GET("/:id", h.get)
		admin.PATCH("/:id", h.update)
		admin.DELETE("/:id", h.trash)
		admin.POST("/:id/restore", h.restore)
		admin.POST("/:id/test", h.testConnection)
		admin.GET("/:id/balance", h.balance)
		admin.GET("/:id/services", h.services)
	}
}

func (h *Handler) list(c *gin.Context) {
	providers, err := h.service.List(c.Request.Context(), c.Query("include_trash") == "true")
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, providers)
}

func (h *Handler) create(c *gin.Context) {
	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	p, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.Created(c, p)
}

func (h *Handler) get(c *gin.Context) {
	p, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, p)
}

func (h *Handler) update(c *gin.Context) {
	var in UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	p, err := h.service.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, p)
}

func (h *Handler) trash(c *gin.Context) {
	if err := h.service.Trash(c.Request.Context(), c.Param("id")); err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, nil, "Provider moved to trash")
}

func (h *Handler) restore(c *gin.Context) {
	if err := h.service.Restore(c.Request.Context(), c.Param("id")); err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, nil, "Provider restored")
}

func (h *Handler) testConnection(c *gin.Context) {
	info, err := h.service.TestConnection(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, info)
}

func (h *Handler) testAll(c *gin.Context) {
	results, err := h.service.TestAll(c.Request.Context())
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, results)
}

func (h *Handler) balance(c *gin.Context) {
	info, err := h.service.Balance(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, info)
}

func (h *Handler) services(c *gin.Context) {
	services, err := h.service.FetchServices(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, services)
}
