package main

import (
	"log"

	"fitcoach-controlplane/pkg/config"
	"fitcoach-controlplane/pkg/db"
	"fitcoach-controlplane/pkg/featureflags"
	"fitcoach-controlplane/pkg/gen"
	"fitcoach-controlplane/pkg/hashistack/secretmanager"
	"fitcoach-controlplane/pkg/logger"
	"fitcoach-controlplane/pkg/minio"
	"fitcoach-controlplane/pkg/otelcol"
	"fitcoach-controlplane/pkg/redis"
	"fitcoach-controlplane/pkg/sequence"
	"fitcoach-controlplane/pkg/workflow"
	"fitcoach-controlplane/services/delivery"
	"fitcoach-controlplane/services/messaging"
	"fitcoach-controlplane/services/renderer"
	"fitcoach-controlplane/services/tenant"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// The workflow worker executes batch delivery workflows started by the API.
func main() {
	opts := []fx.Option{
		configModule(),
		logger.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		minio.Client,
		gen.Module,
		sequence.Module,
		featureflags.Module,

		renderer.Module,
		messaging.Module,
		tenant.Module,
		delivery.Module,
		workflow.ProvideClient,
		workflow.Worker,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

func configModule() fx.Option {
	if secretmanager.Enabled() {
		return fx.Options(secretmanager.Module, config.RemoteModule)
	}
	return config.Module
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
