package bootstrap

import (
	"context"
	"fmt"

	"fitcoach-controlplane/pkg/config"
	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/services/approval"
	"fitcoach-controlplane/services/content"
	"fitcoach-controlplane/services/delivery"
	"fitcoach-controlplane/services/messaging"
	"fitcoach-controlplane/services/task"
	"fitcoach-controlplane/services/tenant"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	tenant *tenant.Service
	config *config.Config
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Tenant *tenant.Service
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		tenant: p.Tenant,
		config: p.Config,
	}
}

// Models lists every table owned by the control plane.
func Models() []any {
	models := []any{
		&tenant.Tenant{},
		&approval.Workflow{},
		&messaging.MessageLog{},
		&task.Job{},
	}
	models = append(models, content.Models()...)
	models = append(models, delivery.Models()...)
	return models
}

func (s *Service) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		zap.L().Error("[bootstrap] failed to migrate schema", zap.Error(err))
		return fmt.Errorf("migrate schema: %w", err)
	}
	zap.L().Info("[bootstrap] schema migrated")
	return nil
}

// EnsurePlatformTenant creates the platform tenant from the PLATFORM config
// when it does not exist yet. It reports whether a tenant was created.
func (s *Service) EnsurePlatformTenant(ctx context.Context) (bool, error) {
	platform := s.config.Platform
	if platform.ID == "" || platform.Name == "" {
		zap.L().Warn("[bootstrap] Platform configuration is incomplete. Skipping default tenant creation.")
		return false, nil
	}

	_, err := s.tenant.Get(ctx, platform.ID)
	if err == nil {
		zap.L().Info("[bootstrap] Default tenant already exists", zap.String("tenant_name", platform.Name))
		return false, nil
	}
	if !errutil.Is(err, errutil.StatusNotFound) {
		return false, err
	}

	if _, err := s.tenant.Create(ctx, tenant.CreateRequest{
		ID:          platform.ID,
		Name:        platform.Name,
		CountryCode: platform.CountryCode,
		Timezone:    platform.Timezone,
	}); err != nil {
		zap.L().Error("[bootstrap] failed to create default tenant", zap.Error(err))
		return false, err
	}

	zap.L().Info("[bootstrap] Default tenant created", zap.String("tenant_name", platform.Name))
	return true, nil
}
