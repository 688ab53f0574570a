package catalog

import (
	"github.com/gin-gonic/gin"

	"smmpanel/pkg/errutil"
	"smmpanel/pkg/httpapi"
)

type Handler struct {
	catalog Catalog
}

func NewHandler(catalog Catalog) *Handler {
	return &Handler{catalog: catalog}
}

func (h *Handler) Register(r *gin.Engine, authn gin.HandlerFunc, authorize gin.HandlerFunc) {
	// Public storefront listing.
	r.GET("/api/services", h.publicCatalog)

	admin := r.Group("/api/admin", authn, authorize)
	{
		admin.GET("/categories", h.listCategories)
		admin.POST("/categories", h.createCategory)
		admin.PATCH("/categories/:id", h.updateCategory)
		admin.DELETE("/categories/:id", h.deleteCategory)

		admin.GET("/services", h.listServices)
		admin.POST("/services", h.createService)
		admin.PATCH("/services/:id", h.updateService)
		admin.DELETE("/services/:id", h.deleteService)
		admin.POST("/services/import", h.importServices)
	}
}

func (h *Handler) publicCatalog(c *gin.Context) {
	views, err := h.catalog.PublicCatalog(c.Request.Context())
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, views)
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, categories)
}

func (h *Handler) createCategory(c *gin.Context) {
	var in CategoryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	cat, err := h.catalog.CreateCategory(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.Created(c, cat)
}

func (h *Handler) updateCategory(c *gin.Context) {
	var in CategoryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	cat, err := h.catalog.UpdateCategory(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, cat)
}

func (h *Handler) deleteCategory(c *gin.Context) {
	if err := h.catalog.DeleteCategory(c.Request.Context(), c.Param("id")); err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, nil, "Category deleted")
}

func (h *Handler) listServices(c *gin.Context) {
	services, err := h.catalog.ListServices(c.Request.Context())
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, services)
}

func (h *Handler) createService(c *gin.Context) {
	var in ServiceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	svc, err := h.catalog.CreateService(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.Created(c, svc)
}

func (h *Handler) updateService(c *gin.Context) {
	var in ServiceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	svc, err := h.catalog.UpdateService(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, svc)
}

func (h *Handler) deleteService(c *gin.Context) {
	if err := h.catalog.DeleteService(c.Request.Context(), c.Param("id")); err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, nil, "Service deleted")
}

func (h *Handler) importServices(c *gin.Context) {
	var in ImportInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	result, err := h.catalog.ImportFromProvider(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, result)
}
