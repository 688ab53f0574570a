package order

import (
	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"smmpanel/pkg/authz"
	"smmpanel/pkg/config"
	"smmpanel/pkg/middleware"
	"smmpanel/pkg/repository"
	"smmpanel/services/affiliate"
	"smmpanel/services/provider"
)

var Module = fx.Module("order",
	fx.Provide(
		repository.ProvideStore[Order],
		func(a *provider.Adapter) Upstream { return a },
		func(s affiliate.Service) CommissionLedger { return s },
		NewService,
	),
)

var HTTPModule = fx.Module("order.http",
	fx.Provide(
		NewHandler,
		NewAPIHandler,
	),
	fx.Invoke(registerRoutes),
)

type routeParams struct {
	fx.In

	Router     *gin.Engine
	Config     *config.Config
	Enforcer   *casbin.Enforcer
	Handler    *Handler
	APIHandler *APIHandler
}

func registerRoutes(p routeParams) {
	p.Handler.Register(p.Router, middleware.Auth(p.Config), authz.Middleware(p.Enforcer))
	p.APIHandler.Register(p.Router)
}
