package content

import (
	"fitcoach-controlplane/services/approval"

	"go.uber.org/fx"
)

var Module = fx.Module("content",
	fx.Provide(
		NewService,
		func(s *Service) approval.ContentLookup { return s },
		func(s *Service) approval.Activator { return s },
	),
)

var Routes = fx.Module("content.routes",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
