package content

import (
	"fmt"

	"fitcoach-controlplane/pkg/celengine"
	"fitcoach-controlplane/services/approval"
)

// guardDefaults keeps optional metadata fields declared so rules can use
// them even when a draft leaves them out.
var guardDefaults = map[string]any{
	"description":      "",
	"source":           "",
	"confidence_score": float64(0),
	"calories_target":  float64(0),
}

// Guard holds CEL activation rules keyed by entity type, or by
// "<tenant_id>:<entity_type>" for a tenant override.
type Guard struct {
	rules map[string]string
}

func NewGuard(rules map[string]string) *Guard {
	return &Guard{rules: rules}
}

func (g *Guard) rule(tenantID string, et approval.EntityType) string {
	if g == nil {
		return ""
	}
	if r, ok := g.rules[tenantID+":"+string(et)]; ok {
		return r
	}
	return g.rules[string(et)]
}

// Allow evaluates the rule for the activation. No rule means allowed.
func (g *Guard) Allow(a approval.Activation) (bool, string, error) {
	expr := g.rule(a.TenantID, a.EntityType)
	if expr == "" {
		return true, "", nil
	}

	attrs := celengine.StructToMap(a.Metadata)
	for k, v := range guardDefaults {
		if _, ok := attrs[k]; !ok {
			attrs[k] = v
		}
	}

	env, err := celengine.GetOrBuildEnv(attrs)
	if err != nil {
		return false, expr, fmt.Errorf("build activation rule env: %w", err)
	}
	ok, err := celengine.Evaluate(env, expr, attrs)
	if err != nil {
		return false, expr, fmt.Errorf("evaluate activation rule %q: %w", expr, err)
	}
	return ok, expr, nil
}
