package config

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	config       = viper.New()
	configHolder atomic.Value
	backend      = "consul"
	backendAddr  = "127.0.0.1:8500"
	backendPath  = "development" // e.g., fitcoach/<env>/<service_name>
	configType   = "yaml"
)

type Config struct {
	Platform struct {
		ID          string `mapstructure:"TENANT_ID"`
		Name        string `mapstructure:"TENANT_NAME"`
		CountryCode string `mapstructure:"COUNTRY_CODE"`
		Timezone    string `mapstructure:"TIMEZONE"`
	} `mapstructure:"PLATFORM"`
	AppEnv       string `mapstructure:"APP_ENV"`
	AppName      string `mapstructure:"APP_NAME"`
	AppVersion   string `mapstructure:"APP_VERSION"`
	AppNamespace string `mapstructure:"APP_NAMESPACE"`
	Snowflake    struct {
		Node int64 `mapstructure:"NODE"`
	} `mapstructure:"SNOWFLAKE"`
	TLS struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"` // grpc|http
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
		// "subject,role,tenant" triples granted at start up
		Grants []string `mapstructure:"GRANTS"`
	} `mapstructure:"ACCESS_CONTROL"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`
	Consul struct {
		Addr        string `mapstructure:"ADDR"`
		ServiceHost string `mapstructure:"SERVICE_HOST"`
	} `mapstructure:"CONSUL"`
	Temporal struct {
		Addr      string `mapstructure:"ADDR"`
		Namespace string `mapstructure:"NAMESPACE"`
		TaskQueue string `mapstructure:"TASK_QUEUE"`
	} `mapstructure:"TEMPORAL"`
	Portal struct {
		BaseURL string `mapstructure:"BASE_URL"`
	} `mapstructure:"PORTAL"`
	Delivery struct {
		BatchDelay           time.Duration `mapstructure:"BATCH_DELAY"`
		StepTimeout          time.Duration `mapstructure:"STEP_TIMEOUT"`
		DefaultDurationWeeks int           `mapstructure:"DEFAULT_DURATION_WEEKS"`
		SendMaxAttempts      int           `mapstructure:"SEND_MAX_ATTEMPTS"`
		SendBackoff          time.Duration `mapstructure:"SEND_BACKOFF"`
	} `mapstructure:"DELIVERY"`
	Messaging struct {
		ApiURL        string        `mapstructure:"API_URL"`
		SecretKey     string        `mapstructure:"SECRET_KEY"`
		SessionName   string        `mapstructure:"SESSION_NAME"`
		WebhookSecret string        `mapstructure:"WEBHOOK_SECRET"`
		WebhookURL    string        `mapstructure:"WEBHOOK_URL"`
		StateTTL      time.Duration `mapstructure:"STATE_TTL"`
	} `mapstructure:"MESSAGING"`
	Renderer struct {
		ConverterURL  string        `mapstructure:"CONVERTER_URL"`
		PublicBaseURL string        `mapstructure:"PUBLIC_BASE_URL"`
		URLTTL        time.Duration `mapstructure:"URL_TTL"`
	} `mapstructure:"RENDERER"`
	Content struct {
		// keyed by entity type, e.g. nutrition: "confidence_score >= 0.5"
		ActivationRules map[string]string `mapstructure:"ACTIVATION_RULES"`
	} `mapstructure:"CONTENT"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

// ApplyDefaults fills the values the delivery pipeline relies on when they are
// left out of the config file.
func ApplyDefaults(cfg *Config) {
	if cfg.AppName == "" {
		cfg.AppName = "fitcoach-controlplane"
	}
	if cfg.Snowflake.Node == 0 {
		cfg.Snowflake.Node = 1
	}
	if cfg.Portal.BaseURL == "" {
		cfg.Portal.BaseURL = "http://localhost:3000"
	}
	if cfg.Delivery.BatchDelay == 0 {
		cfg.Delivery.BatchDelay = 2 * time.Second
	}
	if cfg.Delivery.StepTimeout == 0 {
		cfg.Delivery.StepTimeout = 30 * time.Second
	}
	if cfg.Delivery.DefaultDurationWeeks == 0 {
		cfg.Delivery.DefaultDurationWeeks = 12
	}
	if cfg.Delivery.SendMaxAttempts == 0 {
		cfg.Delivery.SendMaxAttempts = 3
	}
	if cfg.Delivery.SendBackoff == 0 {
		cfg.Delivery.SendBackoff = 500 * time.Millisecond
	}
	if cfg.Messaging.ApiURL == "" {
		cfg.Messaging.ApiURL = "http://localhost:21465"
	}
	if cfg.Messaging.SessionName == "" {
		cfg.Messaging.SessionName = "default"
	}
	if cfg.Messaging.StateTTL == 0 {
		cfg.Messaging.StateTTL = 10 * time.Minute
	}
	if cfg.Renderer.URLTTL == 0 {
		cfg.Renderer.URLTTL = 7 * 24 * time.Hour
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = "DELIVERY_TASK_QUEUE"
	}
}

func LoadConfig(p Params) *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config file", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		if err := readSecrets(context.Background(), p.Vault, &cfg); err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
	}

	ApplyDefaults(&cfg)
	return &cfg
}

func LoadRemote(p Params) *Config {
	if p.Vault == nil {
		zap.L().Error("vault can't provide")
		os.Exit(1)
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		backend = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		backendAddr = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		backendPath = v
	}

	config.SetConfigType(configType)
	if err := config.AddRemoteProvider(backend, backendAddr, backendPath); err != nil {
		os.Exit(1)
	}

	if err := config.ReadRemoteConfig(); err != nil {
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}
	ApplyDefaults(&cfg)
	configHolder.Store(&cfg)

	go func() {
		for {
			time.Sleep(time.Second * 5)

			if err := config.WatchRemoteConfig(); err != nil {
				zap.L().Error("unable to read remote config", zap.Error(err))
				continue
			}

			var newcfg Config
			if err := config.Unmarshal(&newcfg); err != nil {
				zap.L().Error("unable to unmarshal remote config", zap.Error(err))
				continue
			}
			ApplyDefaults(&newcfg)
			configHolder.Store(&newcfg)
		}
	}()

	if err := readSecrets(context.Background(), p.Vault, &cfg); err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		os.Exit(1)
	}

	return &cfg
}

// Current returns the latest remote config snapshot, or nil when the remote
// provider is not in use.
func Current() *Config {
	cfg, _ := configHolder.Load().(*Config)
	return cfg
}

func readSecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		return err
	}
	zap.L().Info("Success Get Secret")

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("postgres_user", cfg.Database.User)
	cfg.Database.Password = get("postgres_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.Flagsmith.ApiKey = get("flagsmith_api_key", cfg.Flagsmith.ApiKey)
	cfg.Minio.AccessKey = get("minio_access_key", cfg.Minio.AccessKey)
	cfg.Minio.SecretKey = get("minio_secret_key", cfg.Minio.SecretKey)
	cfg.Messaging.SecretKey = get("wppconnect_secret_key", cfg.Messaging.SecretKey)
	cfg.Messaging.WebhookSecret = get("wppconnect_webhook_secret", cfg.Messaging.WebhookSecret)

	return nil
}
