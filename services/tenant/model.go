package tenant

import (
	"encoding/json"
	"time"

	"fitcoach-controlplane/services/renderer"

	"gorm.io/datatypes"
)

type TenantStatus string

var (
	Pending   TenantStatus = "pending"
	Active    TenantStatus = "active"
	Suspended TenantStatus = "suspended"
	Archived  TenantStatus = "archived"
)

func (t TenantStatus) String() string {
	switch t {
	case Pending, Active, Suspended, Archived:
		return string(t)
	default:
		return ""
	}
}

type Tenant struct {
	ID          string         `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at" json:"updated_at"`
	Name        string         `gorm:"column:name" json:"name"`
	Slug        string         `gorm:"column:slug;uniqueIndex" json:"slug"`
	Code        string         `gorm:"column:code" json:"code"`
	CountryCode string         `gorm:"column:country_code" json:"country_code,omitempty"`
	Timezone    string         `gorm:"column:timezone" json:"timezone,omitempty"`
	Status      TenantStatus   `gorm:"column:status" json:"status"`
	Settings    datatypes.JSON `gorm:"column:settings" json:"settings,omitempty"`
}

// Settings is the shape of the settings column.
type Settings struct {
	Branding renderer.Branding `json:"branding"`
}

// Branding returns the tenant branding with defaults applied. Missing or
// malformed settings yield the default branding.
func (t *Tenant) Branding() renderer.Branding {
	var s Settings
	if len(t.Settings) > 0 {
		_ = json.Unmarshal(t.Settings, &s)
	}
	if s.Branding.CompanyName == "" {
		s.Branding.CompanyName = t.Name
	}
	return s.Branding.WithDefaults()
}
