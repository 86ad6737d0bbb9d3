package delivery

import (
	"fitcoach-controlplane/pkg/featureflags"
	"fitcoach-controlplane/services/messaging"
	"fitcoach-controlplane/services/tenant"

	"go.uber.org/fx"
)

// Module provides the orchestrator. It is shared by the API, the job worker
// and the workflow worker.
var Module = fx.Module("delivery",
	fx.Provide(
		NewRepository,
		NewOrchestrator,
		func(s *messaging.Service) MessageLedger { return s },
		func(s *tenant.Service) BrandingSource { return s },
		func(f featureflags.FeatureFlag) Flags { return f },
	),
)

var Routes = fx.Module("delivery.routes",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
