package provider

import (
	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"smmpanel/pkg/authz"
	"smmpanel/pkg/config"
	"smmpanel/pkg/middleware"
	"smmpanel/pkg/repository"
)

var Module = fx.Module("provider",
	fx.Provide(
		repository.ProvideStore[Provider],
		NewMetrics,
		NewAdapter,
		NewService,
	),
)

var HTTPModule = fx.Module("provider.http",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

type routeParams struct {
	fx.In

	Router   *gin.Engine
	Config   *config.Config
	Enforcer *casbin.Enforcer
	Handler  *Handler
}

func registerRoutes(p routeParams) {
	p.Handler.Register(p.Router, middleware.Auth(p.Config), authz.Middleware(p.Enforcer))
}
