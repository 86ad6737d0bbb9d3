package tenant

import (
	"context"
	"errors"
	"testing"

	"fitcoach-controlplane/pkg/db/option"
	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/pkg/repository"
	"fitcoach-controlplane/services/renderer"
	"fitcoach-controlplane/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockTenantRepository struct {
	findOneFn func(ctx context.Context, query *Tenant, opts ...option.QueryOption) (*Tenant, error)
	calls     int
}

func (m *mockTenantRepository) WithTrx(tx *gorm.DB) repository.Repository[Tenant] {
	return m
}

func (m *mockTenantRepository) Find(context.Context, *Tenant, ...option.QueryOption) ([]*Tenant, error) {
	return nil, nil
}

func (m *mockTenantRepository) FindOne(ctx context.Context, query *Tenant, opts ...option.QueryOption) (*Tenant, error) {
	m.calls++
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *mockTenantRepository) Create(context.Context, *Tenant) error         { return nil }
func (m *mockTenantRepository) Update(context.Context, string, any) error     { return nil }
func (m *mockTenantRepository) BatchCreate(context.Context, []*Tenant) error  { return nil }
func (m *mockTenantRepository) BatchUpdate(context.Context, []*Tenant) error  { return nil }
func (m *mockTenantRepository) Count(context.Context, *Tenant) (int64, error) { return 0, nil }

type fakeSequence struct{ n int }

func (f *fakeSequence) NextTenantCode(context.Context) (string, error) {
	f.n++
	return "T00" + string(rune('0'+f.n)), nil
}
func (f *fakeSequence) NextClientCode(context.Context, string) (string, error)   { return "CL-1", nil }
func (f *fakeSequence) NextArtifactCode(context.Context, string) (string, error) { return "PDF-1", nil }

type memBrandingCache struct {
	items map[string]renderer.Branding
	err   error
}

func newMemBrandingCache() *memBrandingCache {
	return &memBrandingCache{items: map[string]renderer.Branding{}}
}

func (m *memBrandingCache) Get(_ context.Context, id string) (renderer.Branding, bool, error) {
	if m.err != nil {
		return renderer.Branding{}, false, m.err
	}
	b, ok := m.items[id]
	return b, ok, nil
}

func (m *memBrandingCache) Set(_ context.Context, id string, b renderer.Branding) error {
	m.items[id] = b
	return nil
}

func (m *memBrandingCache) Delete(_ context.Context, id string) error {
	delete(m.items, id)
	return nil
}

func newTestService(t *testing.T, cache BrandingCache) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, &Tenant{})
	return NewService(ServiceParams{DB: db, Node: testutil.NewNode(t), Seq: &fakeSequence{}, Cache: cache})
}

func TestCreateTenantSuccess(t *testing.T) {
	svc := newTestService(t, nil)

	tenant, err := svc.Create(context.Background(), CreateRequest{
		Name:        "Iron Temple Gym",
		CountryCode: "BR",
		Timezone:    "America/Sao_Paulo",
		Branding:    renderer.Branding{PrimaryColor: "#112233"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, tenant.ID)
	require.Equal(t, "iron-temple-gym", tenant.Slug)
	require.Equal(t, "T001", tenant.Code)
	require.Equal(t, Active, tenant.Status)

	b := tenant.Branding()
	require.Equal(t, "#112233", b.PrimaryColor)
	require.Equal(t, "Iron Temple Gym", b.CompanyName)
}

func TestCreateTenantSlugExists(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Create(context.Background(), CreateRequest{Name: "Tenant"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateRequest{Name: "Other", Slug: "tenant"})
	require.True(t, errutil.Is(err, errutil.StatusConflict))
}

func TestCreateTenantRequiresName(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.Create(context.Background(), CreateRequest{Name: "   "})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))
}

func TestGetTenantNotFound(t *testing.T) {
	svc := &Service{repo: &mockTenantRepository{}}
	_, err := svc.Get(context.Background(), "unknown")
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestGetTenantRepositoryError(t *testing.T) {
	repo := &mockTenantRepository{findOneFn: func(context.Context, *Tenant, ...option.QueryOption) (*Tenant, error) {
		return nil, errors.New("boom")
	}}
	svc := &Service{repo: repo}
	_, err := svc.Get(context.Background(), "t1")
	require.True(t, errutil.Is(err, errutil.StatusInternal))
}

func TestBrandingReadsThroughCache(t *testing.T) {
	repo := &mockTenantRepository{findOneFn: func(context.Context, *Tenant, ...option.QueryOption) (*Tenant, error) {
		return &Tenant{ID: "t1", Name: "Coach Co", Settings: []byte(`{"branding":{"logo":"https://cdn/logo.png"}}`)}, nil
	}}
	cache := newMemBrandingCache()
	svc := &Service{repo: repo, cache: cache}

	b, err := svc.Branding(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "https://cdn/logo.png", b.LogoURL)
	require.Equal(t, "Coach Co", b.CompanyName)
	require.Equal(t, renderer.DefaultPrimaryColor, b.PrimaryColor)

	_, err = svc.Branding(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls)
}

func TestBrandingCacheFailureFallsBackToStore(t *testing.T) {
	repo := &mockTenantRepository{findOneFn: func(context.Context, *Tenant, ...option.QueryOption) (*Tenant, error) {
		return &Tenant{ID: "t1", Name: "Coach Co"}, nil
	}}
	cache := newMemBrandingCache()
	cache.err = errors.New("redis down")
	svc := &Service{repo: repo, cache: cache}

	b, err := svc.Branding(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "Coach Co", b.CompanyName)
}

func TestBrandingUnknownTenantUsesDefaults(t *testing.T) {
	svc := &Service{repo: &mockTenantRepository{}}

	b, err := svc.Branding(context.Background(), "ghost")
	require.NoError(t, err)
	require.Equal(t, renderer.DefaultCompanyName, b.CompanyName)
	require.Equal(t, renderer.DefaultPrimaryColor, b.PrimaryColor)
}

func TestUpdateBrandingDropsCache(t *testing.T) {
	cache := newMemBrandingCache()
	svc := newTestService(t, cache)
	ctx := context.Background()

	tenant, err := svc.Create(ctx, CreateRequest{Name: "Coach Co"})
	require.NoError(t, err)

	_, err = svc.Branding(ctx, tenant.ID)
	require.NoError(t, err)
	require.Contains(t, cache.items, tenant.ID)

	updated, err := svc.UpdateBranding(ctx, tenant.ID, renderer.Branding{PrimaryColor: "#abcdef", CompanyName: "New Name"})
	require.NoError(t, err)
	require.Equal(t, "New Name", updated.Branding().CompanyName)
	require.NotContains(t, cache.items, tenant.ID)

	b, err := svc.Branding(ctx, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, "#abcdef", b.PrimaryColor)
}
