package affiliate

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

var Module = fx.Module("affiliate",
	fx.Provide(
		repository.ProvideStore[Affiliate],
		repository.ProvideStore[Referral],
		repository.ProvideStore[Commission],
		repository.ProvideStore[Payout],
		NewService,
		func(s Service) user.ReferralRecorder { return s },
	),
)

var HTTPModule = fx.Module("affiliate.http",
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
