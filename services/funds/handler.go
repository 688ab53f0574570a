package funds

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
	r.GET("/api/currencies", h.listCurrencies)
	r.POST("/api/payment/callback/:gateway", h.callback)

	me := r.Group("/api/user", authn, authorize)
	{
		me.POST("/add-funds", h.createAddFund)
		me.GET("/add-funds", h.myAddFunds)
		me.GET("/transactions", h.myTransactions)
	}

	admin := r.Group("/api/admin", authn, authorize)
	{
		admin.GET("/currencies", h.adminCurrencies)
		admin.POST("/currencies", h.upsertCurrency)
		admin.GET("/add-funds", h.adminAddFunds)
		admin.POST("/add-funds/:id/approve", h.approveAddFund)
		admin.POST("/add-funds/:id/cancel", h.cancelAddFund)
	}
}

func (h *Handler) listCurrencies(c *gin.Context) {
	currencies, err := h.service.ListCurrencies(c.Request.Context(), true)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, currencies)
}

func (h *Handler) adminCurrencies(c *gin.Context) {
	currencies, err := h.service.ListCurrencies(c.Request.Context(), false)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, currencies)
}

func (h *Handler) upsertCurrency(c *gin.Context) {
	var in CurrencyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	currency, err := h.service.UpsertCurrency(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, currency)
}

func (h *Handler) createAddFund(c *gin.Context) {
	var in AddFundInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	fund, err := h.service.CreateAddFund(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.Created(c, fund)
}

func (h *Handler) myAddFunds(c *gin.Context) {
	limit, offset := pagination(c)
	funds, err := h.service.ListAddFunds(c.Request.Context(), middleware.UserID(c), limit, offset)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, funds)
}

func (h *Handler) myTransactions(c *gin.Context) {
	limit, offset := pagination(c)
	transactions, err := h.service.Transactions(c.Request.Context(), middleware.UserID(c), limit, offset)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, transactions)
}

func (h *Handler) adminAddFunds(c *gin.Context) {
	limit, offset := pagination(c)
	funds, err := h.service.ListAddFunds(c.Request.Context(), c.Query("user_id"), limit, offset)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, funds)
}

func (h *Handler) approveAddFund(c *gin.Context) {
	fund, err := h.service.ApproveAddFund(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, fund, "Deposit approved")
}

func (h *Handler) cancelAddFund(c *gin.Context) {
	fund, err := h.service.CancelAddFund(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, fund, "Deposit cancelled")
}

func (h *Handler) callback(c *gin.Context) {
	var in CallbackInput
	if err := c.ShouldBind(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	fund, err := h.service.HandleCallback(c.Request.Context(), c.Param("gateway"), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, fund)
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return limit, offset
}
