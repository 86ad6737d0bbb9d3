package approval

import "go.uber.org/fx"

var Module = fx.Module("approval",
	fx.Provide(
		NewRepository,
		NewService,
	),
)

var Routes = fx.Module("approval.routes",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
