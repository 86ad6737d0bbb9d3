package actor

import (
	"context"
	"strings"
)

// Kind tells human reviewers apart from automated submitters.
type Kind string

const (
	Human  Kind = "human"
	AI     Kind = "ai"
	System Kind = "system"
)

func (k Kind) Valid() bool {
	switch k {
	case Human, AI, System:
		return true
	default:
		return false
	}
}

// Ref identifies whoever performed an action.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Kind Kind   `json:"kind"`
}

func (r Ref) IsZero() bool {
	return strings.TrimSpace(r.ID) == ""
}

// KindFromID guesses the actor kind from the id prefix used by automated callers.
func KindFromID(id string) Kind {
	switch {
	case strings.HasPrefix(id, "ai_"):
		return AI
	case strings.HasPrefix(id, "sys_"), strings.HasPrefix(id, "system"):
		return System
	default:
		return Human
	}
}

// New builds a Ref, deriving the kind from the id when kind is empty or unknown.
func New(id, name string, kind Kind) Ref {
	id = strings.TrimSpace(id)
	if !kind.Valid() {
		kind = KindFromID(id)
	}
	return Ref{ID: id, Name: strings.TrimSpace(name), Kind: kind}
}

type actorKey struct{}
type tenantKey struct{}

func WithActor(ctx context.Context, ref Ref) context.Context {
	return context.WithValue(ctx, actorKey{}, ref)
}

func FromContext(ctx context.Context) (Ref, bool) {
	ref, ok := ctx.Value(actorKey{}).(Ref)
	return ref, ok && !ref.IsZero()
}

func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

func TenantFromContext(ctx context.Context) string {
	id, _ := ctx.Value(tenantKey{}).(string)
	return id
}
