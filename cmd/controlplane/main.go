package main

import (
	"log"

	"fitcoach-controlplane/pkg/authz"
	"fitcoach-controlplane/pkg/config"
	"fitcoach-controlplane/pkg/db"
	"fitcoach-controlplane/pkg/featureflags"
	"fitcoach-controlplane/pkg/gen"
	"fitcoach-controlplane/pkg/hashistack/secretmanager"
	"fitcoach-controlplane/pkg/hashistack/servicediscover"
	"fitcoach-controlplane/pkg/health"
	"fitcoach-controlplane/pkg/httpapi"
	"fitcoach-controlplane/pkg/logger"
	"fitcoach-controlplane/pkg/minio"
	"fitcoach-controlplane/pkg/otelcol"
	"fitcoach-controlplane/pkg/profiling"
	"fitcoach-controlplane/pkg/redis"
	"fitcoach-controlplane/pkg/sequence"
	"fitcoach-controlplane/pkg/server"
	pkgtask "fitcoach-controlplane/pkg/task"
	"fitcoach-controlplane/pkg/workflow"
	"fitcoach-controlplane/services/approval"
	"fitcoach-controlplane/services/bootstrap"
	"fitcoach-controlplane/services/content"
	"fitcoach-controlplane/services/delivery"
	"fitcoach-controlplane/services/messaging"
	"fitcoach-controlplane/services/renderer"
	"fitcoach-controlplane/services/task"
	"fitcoach-controlplane/services/tenant"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	opts := []fx.Option{
		configModule(),
		logger.Module,
		otelcol.Module,
		profiling.Module,
		servicediscover.Module,
		db.Module,
		redis.Module,
		minio.Client,
		gen.Module,
		sequence.Module,
		authz.Module,
		featureflags.Module,
		health.Module,

		renderer.Module,
		messaging.Module,
		tenant.Module,
		approval.Module,
		content.Module,
		delivery.Module,
		task.Module,
		pkgtask.Client,
		workflow.ProvideClient,
		workflow.Starters,

		httpapi.Module,
		tenant.Routes,
		messaging.Routes,
		approval.Routes,
		content.Routes,
		delivery.Routes,
		task.Routes,

		bootstrap.Module,
		server.ProvideHTTPServer,
		server.ProvideGRPCServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

// configModule reads secrets from vault when VAULT_ADDR is set and falls back
// to the local config file otherwise.
func configModule() fx.Option {
	if secretmanager.Enabled() {
		return fx.Options(secretmanager.Module, config.RemoteModule)
	}
	return config.Module
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})
