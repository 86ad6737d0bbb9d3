package authz

import (
	"fmt"
	"strings"

	"fitcoach-controlplane/pkg/actor"
	"fitcoach-controlplane/pkg/config"
	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/pkg/middleware"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("authz", fx.Provide(NewEnforcer, NewAuthorizer))

const (
	ObjApprovals  = "approvals"
	ObjContent    = "content"
	ObjDeliveries = "deliveries"

	ActRead    = "read"
	ActSubmit  = "submit"
	ActReview  = "review"
	ActDeliver = "deliver"
)

// DefaultModel is RBAC with tenant domains. A "*" domain in a policy applies to
// every tenant.
const DefaultModel = `
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[role_definition]
g = _, _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = (g(r.sub, p.sub, r.dom) || r.sub == p.sub) && (p.dom == "*" || r.dom == p.dom) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

// DefaultPolicies grant the built in roles. Actor kinds are matched through
// the "kind:<kind>" subject.
var DefaultPolicies = [][]string{
	{"owner", "*", "*", "*"},
	{"trainer", "*", ObjApprovals, ActRead},
	{"trainer", "*", ObjApprovals, ActSubmit},
	{"trainer", "*", ObjContent, ActSubmit},
	{"trainer", "*", ObjDeliveries, ActDeliver},
	{"trainer", "*", ObjDeliveries, ActRead},
	{"reviewer", "*", ObjApprovals, ActRead},
	{"reviewer", "*", ObjApprovals, ActReview},
	{"kind:ai", "*", ObjApprovals, ActSubmit},
	{"kind:ai", "*", ObjContent, ActSubmit},
	{"kind:system", "*", "*", "*"},
}

func NewEnforcer(cfg *config.Config) (*casbin.Enforcer, error) {
	if cfg.AccessControl.Model != "" && cfg.AccessControl.Policy != "" {
		zap.L().Info("loading access control policy", zap.String("model", cfg.AccessControl.Model), zap.String("policy", cfg.AccessControl.Policy))
		return casbin.NewEnforcer(cfg.AccessControl.Model, cfg.AccessControl.Policy)
	}

	return NewDefaultEnforcer()
}

// NewDefaultEnforcer builds an in-memory enforcer loaded with DefaultPolicies.
func NewDefaultEnforcer() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(DefaultModel)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	if _, err := e.AddPolicies(DefaultPolicies); err != nil {
		return nil, err
	}

	return e, nil
}

type Authorizer struct {
	enforcer *casbin.Enforcer
}

func NewAuthorizer(e *casbin.Enforcer, cfg *config.Config) (*Authorizer, error) {
	a := &Authorizer{enforcer: e}
	for _, g := range cfg.AccessControl.Grants {
		parts := strings.Split(g, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid access control grant %q, want subject,role,tenant", g)
		}
		if err := a.Grant(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2])); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Grant assigns role to subject inside a tenant.
func (a *Authorizer) Grant(subject, role, tenantID string) error {
	_, err := a.enforcer.AddGroupingPolicy(subject, role, tenantID)
	return err
}

// Allowed checks the actor id first and falls back to its kind.
func (a *Authorizer) Allowed(ref actor.Ref, tenantID, obj, act string) (bool, error) {
	ok, err := a.enforcer.Enforce(ref.ID, tenantID, obj, act)
	if err != nil || ok {
		return ok, err
	}
	return a.enforcer.Enforce("kind:"+string(ref.Kind), tenantID, obj, act)
}

// Require is a gin middleware. It must run after middleware.Tenant and
// middleware.Actor.
func (a *Authorizer) Require(obj, act string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref, ok := middleware.CurrentActor(c)
		if !ok {
			_ = c.Error(errutil.Unauthorized("missing "+middleware.ActorIDHeader+" header", nil))
			c.Abort()
			return
		}

		allowed, err := a.Allowed(ref, middleware.TenantID(c), obj, act)
		if err != nil {
			_ = c.Error(errutil.Internal("failed to evaluate access policy", err))
			c.Abort()
			return
		}
		if !allowed {
			_ = c.Error(errutil.Forbidden("actor is not allowed to "+act+" "+obj, nil))
			c.Abort()
			return
		}

		c.Next()
	}
}
