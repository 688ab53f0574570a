package affiliate

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"smmpanel/pkg/config"
	"smmpanel/pkg/errutil"
	"smmpanel/pkg/httpapi"
	"smmpanel/pkg/middleware"
	"smmpanel/services/user"
)

type Handler struct {
	cfg     *config.Config
	service Service
}

func NewHandler(cfg *config.Config, service Service) *Handler {
	return &Handler{cfg: cfg, service: service}
}

func (h *Handler) Register(r *gin.Engine, authn gin.HandlerFunc, authorize gin.HandlerFunc) {
	r.GET("/ref/:code", h.referral)

	me := r.Group("/api/user/affiliate", authn, authorize)
	{
		me.GET("", h.dashboard)
		me.GET("/commissions", h.commissions)
		me.GET("/payouts", h.payouts)
		me.POST("/payouts", h.requestPayout)
	}

	admin := r.Group("/api/admin/payouts", authn, authorize)
	{
		admin.POST("/:id/pay", h.payPayout)
		admin.POST("/:id/reject", h.rejectPayout)
	}
}

// referral drops the attribution cookies and sends the visitor to the
// storefront. Unknown codes still redirect, just without cookies.
func (h *Handler) referral(c *gin.Context) {
	if _, err := h.service.TrackVisit(c.Request.Context(), c.Param("code")); err == nil {
		ttl := int(h.cfg.Affiliate.CookieTTL.Seconds())
		meta := fmt.Sprintf(`{"ts":%d,"path":%q}`, time.Now().Unix(), c.Request.URL.Path)
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(user.ReferralCookie, c.Param("code"), ttl, "/", "", h.cfg.TLS.Enable, true)
		c.SetCookie(user.ReferralMetaCookie, url.QueryEscape(meta), ttl, "/", "", h.cfg.TLS.Enable, true)
	}
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) dashboard(c *gin.Context) {
	a, err := h.service.GetOrCreate(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, a)
}

func (h *Handler) commissions(c *gin.Context) {
	a, err := h.service.GetOrCreate(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	commissions, err := h.service.Commissions(c.Request.Context(), a.ID, 50, 0)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, commissions)
}

func (h *Handler) payouts(c *gin.Context) {
	a, err := h.service.GetOrCreate(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	payouts, err := h.service.ListPayouts(c.Request.Context(), a.ID, 50, 0)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, payouts)
}

func (h *Handler) requestPayout(c *gin.Context) {
	var in PayoutInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	payout, err := h.service.RequestPayout(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.Created(c, payout)
}

func (h *Handler) payPayout(c *gin.Context) {
	payout, err := h.service.MarkPayoutPaid(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, payout, "Payout marked as paid")
}

func (h *Handler) rejectPayout(c *gin.Context) {
	payout, err := h.service.RejectPayout(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, payout, "Payout rejected")
}
