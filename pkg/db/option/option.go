package option

import (
	"fmt"
	"strings"

	"fitcoach-controlplane/pkg/db/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a query before it is executed by a repository.
type QueryOption func(db *gorm.DB) *gorm.DB

const (
	DefaultLimit = 10
	MaxLimit     = 250
)

// LockingUpdate is a gorm scope adding SELECT ... FOR UPDATE.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	// Allow restricts SortBy to known columns when set.
	Allow map[string]bool
}

func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		column := s.SortBy
		if column == "" {
			column = "created_at"
		}
		if s.Allow != nil && !s.Allow[column] {
			return db
		}

		return db.Order(clause.OrderByColumn{
			Column: clause.Column{Name: column},
			Desc:   strings.EqualFold(s.OrderBy, "desc"),
		})
	}
}

func WithLimit(limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Limit(ClampLimit(limit, DefaultLimit))
	}
}

func WithPreload(associations ...string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		for _, a := range associations {
			db = db.Preload(a)
		}
		return db
	}
}

// After continues a (column DESC, id DESC) ordering past c. column must be
// a trusted column name. A nil cursor leaves the query alone.
func After(column string, c *pagination.Cursor) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if c == nil {
			return db
		}
		return db.Where(fmt.Sprintf("(%[1]s < ? OR (%[1]s = ? AND id < ?))", column), c.At, c.At, c.ID)
	}
}

// ClampLimit bounds limit to [1, MaxLimit], using fallback when it is unset.
func ClampLimit(limit, fallback int) int {
	if limit <= 0 {
		limit = fallback
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit
}

type Operator string

const (
	EQ   Operator = "="
	NEQ  Operator = "<>"
	GT   Operator = ">"
	GTE  Operator = ">="
	LT   Operator = "<"
	LTE  Operator = "<="
	IN   Operator = "IN"
	LIKE Operator = "LIKE"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func (c Condition) expression() clause.Expression {
	column := clause.Column{Name: c.Field}
	switch c.Operator {
	case NEQ:
		return clause.Neq{Column: column, Value: c.Value}
	case GT:
		return clause.Gt{Column: column, Value: c.Value}
	case GTE:
		return clause.Gte{Column: column, Value: c.Value}
	case LT:
		return clause.Lt{Column: column, Value: c.Value}
	case LTE:
		return clause.Lte{Column: column, Value: c.Value}
	case IN:
		values, _ := c.Value.([]any)
		return clause.IN{Column: column, Values: values}
	case LIKE:
		return clause.Like{Column: column, Value: c.Value}
	default:
		return clause.Eq{Column: column, Value: c.Value}
	}
}

func ApplyOperator(conditions ...Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		for _, c := range conditions {
			if c.Field == "" {
				continue
			}
			db = db.Where(c.expression())
		}
		return db
	}
}
