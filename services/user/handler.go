package user

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smmpanel/pkg/config"
	"smmpanel/pkg/db/option"
	"smmpanel/pkg/errutil"
	"smmpanel/pkg/httpapi"
	"smmpanel/pkg/middleware"
)

// ReferralCookie carries the affiliate code captured by the /ref/:code
// redirect until the visitor registers. ReferralMetaCookie records when the
// attribution was made.
const (
	ReferralCookie     = "affiliate_referral"
	ReferralMetaCookie = "affiliate_referral_meta"
)

type Handler struct {
	cfg     *config.Config
	service Service
}

func NewHandler(cfg *config.Config, service Service) *Handler {
	return &Handler{cfg: cfg, service: service}
}

func (h *Handler) Register(r *gin.Engine, authn gin.HandlerFunc, authorize gin.HandlerFunc) {
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", h.register)
		auth.POST("/login", h.login)
		auth.POST("/logout", h.logout)
	}

	me := r.Group("/api/user", authn, authorize)
	{
		me.GET("/me", h.me)
		me.PATCH("/me", h.updateMe)
		me.POST("/api-key", h.rotateAPIKey)
	}

	admin := r.Group("/api/admin/users", authn, authorize)
	{
		admin.GET("", h.list)
		admin.GET("/:id", h.get)
		admin.PATCH("/:id", h.update)
	}
}

func (h *Handler) register(c *gin.Context) {
	var in RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	if ref, err := c.Cookie(ReferralCookie); err == nil {
		in.RefCode = ref
	}

	u, err := h.service.Register(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.Created(c, u)
}

func (h *Handler) login(c *gin.Context) {
	var in LoginInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}

	token, u, err := h.service.Login(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, token, int(h.cfg.Session.TokenTTL.Seconds()), "/", "", h.cfg.TLS.Enable, true)
	httpapi.OK(c, gin.H{"token": token, "user": u})
}

func (h *Handler) logout(c *gin.Context) {
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.cfg.TLS.Enable, true)
	httpapi.OKMessage(c, nil, "Logged out")
}

func (h *Handler) me(c *gin.Context) {
	u, err := h.service.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, u)
}

func (h *Handler) updateMe(c *gin.Context) {
	var in UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	// Role and status changes are admin operations.
	in.Role = nil
	in.Status = nil

	u, err := h.service.Update(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, u)
}

func (h *Handler) rotateAPIKey(c *gin.Context) {
	key, err := h.service.RotateAPIKey(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, gin.H{"api_key": key})
}

func (h *Handler) list(c *gin.Context) {
	users, err := h.service.List(c.Request.Context(),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  c.DefaultQuery("sort_by", "created_at"),
			OrderBy: c.DefaultQuery("order_by", "desc"),
			Allow:   map[string]bool{"created_at": true, "email": true, "balance": true},
		}),
	)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, users)
}

func (h *Handler) get(c *gin.Context) {
	u, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, u)
}

func (h *Handler) update(c *gin.Context) {
	var in UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed(err.Error()))
		return
	}
	u, err := h.service.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, u)
}
