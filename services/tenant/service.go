package tenant

import (
	"context"
	"encoding/json"
	"strings"

	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/pkg/logger"
	"fitcoach-controlplane/pkg/repository"
	"fitcoach-controlplane/pkg/sequence"
	"fitcoach-controlplane/services/renderer"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	seq   sequence.Generator
	cache BrandingCache
	repo  repository.Repository[Tenant]
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Node  *snowflake.Node
	Seq   sequence.Generator
	Cache BrandingCache `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		seq:   p.Seq,
		cache: p.Cache,
		repo:  repository.ProvideStore[Tenant](p.DB),
	}
}

type CreateRequest struct {
	// ID is generated when empty.
	ID          string
	Name        string
	Slug        string
	CountryCode string
	Timezone    string
	Branding    renderer.Branding
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Tenant, error) {
	zapLog := logger.WithContext(ctx)

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errutil.ValidationFailed("tenant name is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "name", Message: "required"}))
	}

	slugName := req.Slug
	if slugName == "" {
		slugName = slug.Make(name)
	}

	exist, err := s.repo.FindOne(ctx, &Tenant{Slug: slugName})
	if err != nil {
		zapLog.Error("failed query get tenant by slug", zap.Error(err))
		return nil, errutil.Internal("failed to check existing tenant", err)
	}
	if exist != nil {
		zapLog.Warn("tenant already exists", zap.String("slug", slugName))
		return nil, errutil.Conflict("tenant already exists", nil)
	}

	tenantID := req.ID
	if tenantID == "" {
		tenantID = s.node.Generate().String()
	}

	code, err := s.seq.NextTenantCode(ctx)
	if err != nil {
		zapLog.Error("failed to generate tenant code", zap.Error(err))
		return nil, errutil.Internal("failed to create tenant", err)
	}

	settings, err := json.Marshal(Settings{Branding: req.Branding})
	if err != nil {
		return nil, errutil.Internal("failed to encode tenant settings", err)
	}

	tenant := &Tenant{
		ID:          tenantID,
		Name:        name,
		Slug:        slugName,
		Code:        code,
		CountryCode: req.CountryCode,
		Timezone:    req.Timezone,
		Status:      Active,
		Settings:    datatypes.JSON(settings),
	}
	if err := s.repo.Create(ctx, tenant); err != nil {
		zapLog.Error("failed to create tenant", zap.Error(err))
		return nil, errutil.Internal("failed to create tenant", err)
	}

	zapLog.Info("tenant created", zap.String("tenant_id", tenantID), zap.String("slug", slugName))
	return tenant, nil
}

func (s *Service) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	tenant, err := s.repo.FindOne(ctx, &Tenant{ID: tenantID})
	if err != nil {
		logger.WithContext(ctx).Error("failed query get tenant by id", zap.Error(err))
		return nil, errutil.Internal("failed to get tenant", err)
	}
	if tenant == nil {
		return nil, errutil.NotFound("tenant not found", nil)
	}
	return tenant, nil
}

// Branding resolves the tenant branding through the cache. An unknown tenant
// gets the default branding, so a delivery never fails on branding alone.
func (s *Service) Branding(ctx context.Context, tenantID string) (renderer.Branding, error) {
	zapLog := logger.WithContext(ctx, zap.String("tenant_id", tenantID))

	if s.cache != nil {
		b, ok, err := s.cache.Get(ctx, tenantID)
		if err != nil {
			zapLog.Warn("tenant branding cache unavailable", zap.Error(err))
		}
		if ok {
			return b, nil
		}
	}

	tenant, err := s.repo.FindOne(ctx, &Tenant{ID: tenantID})
	if err != nil {
		return renderer.Branding{}, errutil.Internal("failed to load tenant branding", err)
	}
	if tenant == nil {
		zapLog.Warn("tenant not found, using default branding")
		return renderer.Branding{}.WithDefaults(), nil
	}

	b := tenant.Branding()
	if s.cache != nil {
		if err := s.cache.Set(ctx, tenantID, b); err != nil {
			zapLog.Warn("failed to cache tenant branding", zap.Error(err))
		}
	}
	return b, nil
}

// UpdateBranding replaces the branding settings and drops the cached copy.
func (s *Service) UpdateBranding(ctx context.Context, tenantID string, b renderer.Branding) (*Tenant, error) {
	if _, err := s.Get(ctx, tenantID); err != nil {
		return nil, err
	}

	settings, err := json.Marshal(Settings{Branding: b})
	if err != nil {
		return nil, errutil.Internal("failed to encode tenant settings", err)
	}
	if err := s.repo.Update(ctx, tenantID, map[string]any{"settings": datatypes.JSON(settings)}); err != nil {
		return nil, errutil.Internal("failed to update tenant branding", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, tenantID); err != nil {
			logger.WithContext(ctx).Warn("failed to drop cached tenant branding", zap.Error(err))
		}
	}
	return s.Get(ctx, tenantID)
}
