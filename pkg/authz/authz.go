package authz

import (
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"smmpanel/pkg/config"
	"smmpanel/pkg/errutil"
	"smmpanel/pkg/middleware"
)

var Module = fx.Module("authz",
	fx.Provide(ProvideEnforcer),
)

// rbacModel is the RBAC model used when no ACCESS_CONTROL.MODEL file is
// configured. Paths match with keyMatch2 so policies can use :param segments.
const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
`

func ProvideEnforcer(cfg *config.Config) (*casbin.Enforcer, error) {
	if cfg.AccessControl.Model != "" && cfg.AccessControl.Policy != "" {
		return casbin.NewEnforcer(cfg.AccessControl.Model, cfg.AccessControl.Policy)
	}

	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}

	var enforcer *casbin.Enforcer
	if cfg.AccessControl.Policy != "" {
		enforcer, err = casbin.NewEnforcer(m, fileadapter.NewAdapter(cfg.AccessControl.Policy))
	} else {
		enforcer, err = casbin.NewEnforcer(m)
	}
	if err != nil {
		return nil, err
	}

	if cfg.AccessControl.Policy == "" {
		seedDefaultPolicies(enforcer)
	}

	return enforcer, nil
}

// seedDefaultPolicies installs the built-in role hierarchy and route policies.
// moderator inherits user; admin inherits moderator.
func seedDefaultPolicies(e *casbin.Enforcer) {
	_, _ = e.AddGroupingPolicy("moderator", "user")
	_, _ = e.AddGroupingPolicy("admin", "moderator")

	policies := [][]string{
		{"user", "/api/user/*", "GET|POST|PATCH"},
		{"user", "/api/orders", "GET|POST"},
		{"user", "/api/orders/:id", "GET"},
		{"user", "/api/orders/:id/refill", "POST"},
		{"user", "/api/orders/:id/cancel", "POST"},
		{"moderator", "/api/admin/orders", "GET"},
		{"moderator", "/api/admin/orders/realtime", "GET"},
		{"moderator", "/api/admin/orders/:id/status", "POST"},
		{"moderator", "/api/admin/orders/:id/sync", "POST"},
		{"moderator", "/api/admin/tickets", "GET"},
		{"moderator", "/api/admin/tickets/:id", "GET"},
		{"moderator", "/api/admin/tickets/:id/reply", "POST"},
		{"moderator", "/api/admin/tickets/:id/close", "POST"},
		{"admin", "/api/admin/*", "GET|POST|PATCH|PUT|DELETE"},
	}
	for _, p := range policies {
		_, _ = e.AddPolicy(p[0], p[1], p[2])
	}
}

// Middleware evaluates (role, path, method) against the enforcer. It replaces
// per-route role conditionals with one policy decision point.
func Middleware(enforcer *casbin.Enforcer) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := middleware.UserRole(c)
		if role == "" {
			role = "anonymous"
		}

		obj := c.FullPath()
		if obj == "" {
			obj = c.Request.URL.Path
		}

		allowed, err := enforcer.Enforce(role, obj, c.Request.Method)
		if err != nil {
			zap.L().Error("authz enforce failed", zap.Error(err))
			_ = c.Error(errutil.Internal("authorization check failed"))
			c.Abort()
			return
		}

		if !allowed {
			msg := "Access denied"
			if strings.HasPrefix(c.Request.URL.Path, "/api/admin") {
				msg = "Admin access required"
			}
			_ = c.Error(errutil.Forbidden(msg))
			c.Abort()
			return
		}

		c.Next()
	}
}
