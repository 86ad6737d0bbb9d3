package tenant

import (
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.module",
	fx.Provide(
		NewRedisBrandingCache,
		NewService,
	),
)

var Routes = fx.Module("tenant.routes",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
