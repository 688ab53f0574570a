package order

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smmpanel/services/catalog"
	"smmpanel/services/user"
)

// APIHandler implements the flat key+action endpoint most SMM tooling speaks.
// Responses intentionally skip the JSON envelope; clients of this surface
// expect bare objects like {"order": "..."} and {"error": "..."}.
type APIHandler struct {
	users   user.Service
	orders  Service
	catalog catalog.Catalog
}

func NewAPIHandler(users user.Service, orders Service, cat catalog.Catalog) *APIHandler {
	return &APIHandler{users: users, orders: orders, catalog: cat}
}

func (h *APIHandler) Register(r *gin.Engine) {
	r.POST("/api/v2", h.dispatch)
}

type apiRequest struct {
	Key      string `form:"key" json:"key"`
	Action   string `form:"action" json:"action"`
	Service  string `form:"service" json:"service"`
	Link     string `form:"link" json:"link"`
	Quantity int    `form:"quantity" json:"quantity"`
	Runs     int    `form:"runs" json:"runs"`
	Interval int    `form:"interval" json:"interval"`
	Order    string `form:"order" json:"order"`
	Orders   string `form:"orders" json:"orders"`
}

func (h *APIHandler) dispatch(c *gin.Context) {
	var req apiRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{"error": "Invalid request"})
		return
	}

	u, err := h.users.GetByAPIKey(c.Request.Context(), req.Key)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": "Invalid API key"})
		return
	}

	switch strings.ToLower(req.Action) {
	case "services":
		h.services(c)
	case "add":
		h.add(c, u, req)
	case "status":
		h.status(c, u, req)
	case "balance":
		c.JSON(http.StatusOK, gin.H{
			"balance":  u.Balance,
			"currency": u.CurrencyCode,
		})
	case "refill":
		h.refill(c, u, req)
	case "cancel":
		h.cancel(c, u, req)
	default:
		c.JSON(http.StatusOK, gin.H{"error": "Incorrect action"})
	}
}

func (h *APIHandler) services(c *gin.Context) {
	views, err := h.catalog.PublicCatalog(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": "Failed to load services"})
		return
	}

	out := make([]gin.H, 0, 64)
	for _, view := range views {
		for _, svc := range view.Services {
			out = append(out, gin.H{
				"service":  svc.ID,
				"name":     svc.Name,
				"type":     svc.Type,
				"category": view.Name,
				"rate":     svc.Rate,
				"min":      svc.Min,
				"max":      svc.Max,
				"dripfeed": svc.Dripfeed,
				"refill":   svc.Refill,
				"cancel":   svc.Cancel,
			})
		}
	}
	c.JSON(http.StatusOK, out)
}

func (h *APIHandler) add(c *gin.Context, u *user.User, req apiRequest) {
	o, err := h.orders.Place(c.Request.Context(), u.ID, PlaceInput{
		ServiceID: req.Service,
		Link:      req.Link,
		Quantity:  req.Quantity,
		Runs:      req.Runs,
		Interval:  req.Interval,
	})
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": apiError(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o.ID})
}

func (h *APIHandler) status(c *gin.Context, u *user.User, req apiRequest) {
	if req.Orders != "" {
		out := gin.H{}
		for _, id := range strings.Split(req.Orders, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			o, err := h.orders.Get(c.Request.Context(), u.ID, id)
			if err != nil {
				out[id] = gin.H{"error": "Incorrect order ID"}
				continue
			}
			out[id] = statusBody(o)
		}
		c.JSON(http.StatusOK, out)
		return
	}

	o, err := h.orders.Get(c.Request.Context(), u.ID, req.Order)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": "Incorrect order ID"})
		return
	}
	c.JSON(http.StatusOK, statusBody(o))
}

func statusBody(o *Order) gin.H {
	return gin.H{
		"status":      string(o.Status),
		"charge":      o.Charge,
		"currency":    o.CurrencyCode,
		"start_count": o.StartCount,
		"remains":     o.Remains,
	}
}

func (h *APIHandler) refill(c *gin.Context, u *user.User, req apiRequest) {
	o, err := h.orders.RequestRefill(c.Request.Context(), u.ID, req.Order)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": apiError(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"refill": o.RefillID})
}

func (h *APIHandler) cancel(c *gin.Context, u *user.User, req apiRequest) {
	ids := req.Orders
	if ids == "" {
		ids = req.Order
	}

	out := make([]gin.H, 0, 4)
	for _, id := range strings.Split(ids, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := h.orders.RequestCancel(c.Request.Context(), u.ID, id); err != nil {
			out = append(out, gin.H{"order": id, "cancel": gin.H{"error": apiError(err)}})
			continue
		}
		out = append(out, gin.H{"order": id, "cancel": 1})
	}
	c.JSON(http.StatusOK, out)
}

func apiError(err error) string {
	return err.Error()
}
