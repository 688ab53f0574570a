package funds

import (
	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"smmpanel/pkg/authz"
	"smmpanel/pkg/config"
	"smmpanel/pkg/middleware"
	"smmpanel/pkg/repository"
	"smmpanel/services/user"
)

var Module = fx.Module("funds",
	fx.Provide(
		repository.ProvideStore[Currency],
		repository.ProvideStore[AddFund],
		repository.ProvideStore[Transaction],
		NewConverter,
		NewWallet,
		NewService,
		func(c Converter) user.CurrencyConverter { return c },
	),
)

var HTTPModule = fx.Module("funds.http",
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
