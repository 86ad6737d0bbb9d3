package servicediscover

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"fitcoach-controlplane/pkg/config"

	"github.com/hashicorp/consul/api"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module registers the HTTP server in consul for the lifetime of the app.
// Nothing happens when CONSUL.ADDR is empty.
var Module = fx.Module("servicediscover", fx.Invoke(registerConsul))

func registerConsul(lc fx.Lifecycle, cfg *config.Config) error {
	if cfg.Consul.Addr == "" {
		zap.L().Info("[Consul] address not set, skipping service registration")
		return nil
	}

	registry, err := NewConsulRegistry(cfg)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := registry.Register(ctx); err != nil {
				zap.L().Warn("[Consul] service registration failed", zap.String("service_id", registry.serviceID), zap.Error(err))
				return nil
			}
			zap.L().Info("[Consul] service registered", zap.String("service_id", registry.serviceID))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return registry.Deregister(ctx)
		},
	})

	return nil
}

type ServiceRegistry interface {
	Register(ctx context.Context) error
	Deregister(ctx context.Context) error
}

type ConsulRegistry struct {
	client    *api.Client
	serviceID string
	service   *api.AgentServiceRegistration
}

var _ ServiceRegistry = (*ConsulRegistry)(nil)

func NewConfig(cfg *config.Config) *api.Config {
	config := api.DefaultConfig()
	config.Address = cfg.Consul.Addr

	return config
}

// NewRegistration describes the HTTP server with a readiness check.
func NewRegistration(cfg *config.Config) (*api.AgentServiceRegistration, error) {
	host := cfg.Consul.ServiceHost
	if host == "" {
		host = "127.0.0.1"
	}

	_, portStr, err := net.SplitHostPort(fmt.Sprintf(":%s", cfg.Server.Addr))
	if err != nil {
		return nil, fmt.Errorf("invalid http server addr %q: %w", cfg.Server.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid http server port %q: %w", portStr, err)
	}

	return &api.AgentServiceRegistration{
		ID:      fmt.Sprintf("%s-%s-%d", cfg.AppName, host, port),
		Name:    cfg.AppName,
		Tags:    []string{cfg.AppEnv, cfg.AppVersion},
		Address: host,
		Port:    port,
		Check: &api.AgentServiceCheck{
			HTTP:     fmt.Sprintf("http://%s:%d/health/readiness", host, port),
			Interval: "10s",
			Timeout:  "5s",
		},
	}, nil
}

func NewConsulRegistry(cfg *config.Config) (*ConsulRegistry, error) {
	client, err := api.NewClient(NewConfig(cfg))
	if err != nil {
		return nil, err
	}

	service, err := NewRegistration(cfg)
	if err != nil {
		return nil, err
	}

	return &ConsulRegistry{
		client:    client,
		serviceID: service.ID,
		service:   service,
	}, nil
}

func (r *ConsulRegistry) Register(ctx context.Context) error {
	return r.client.Agent().ServiceRegister(r.service)
}

func (r *ConsulRegistry) Deregister(ctx context.Context) error {
	return r.client.Agent().ServiceDeregister(r.serviceID)
}
