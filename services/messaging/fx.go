package messaging

import (
	"fitcoach-controlplane/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// Module provides the gateway client, the state cache and the service. It is
// shared by the API and the workers.
var Module = fx.Module("messaging",
	fx.Provide(
		provideWPPConnect,
		provideGateway,
		provideSessionStarter,
		provideStateCache,
		NewService,
	),
)

// Routes mounts the HTTP handlers.
var Routes = fx.Module("messaging.routes",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

func provideWPPConnect(cfg *config.Config) *WPPConnect {
	return NewWPPConnect(WPPConnectConfig{
		ApiURL:      cfg.Messaging.ApiURL,
		SecretKey:   cfg.Messaging.SecretKey,
		SessionName: cfg.Messaging.SessionName,
		WebhookURL:  cfg.Messaging.WebhookURL,
		Timeout:     cfg.Delivery.StepTimeout,
	})
}

func provideGateway(w *WPPConnect) Gateway {
	return w
}

func provideSessionStarter(w *WPPConnect) SessionStarter {
	return w
}

func provideStateCache(cfg *config.Config, rdb *redis.Client, gw Gateway) *StateCache {
	return NewStateCache(NewRedisStateStore(rdb), gw, cfg.Messaging.SessionName, cfg.Messaging.StateTTL)
}
