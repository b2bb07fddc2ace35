// Package repository defines the read-only query surface over the catalog
// system of record.
package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/utafrali/searchsync/internal/domain"
)

// ErrInvalidFilter is returned for a condition the query layer cannot express.
var ErrInvalidFilter = errors.New("invalid filter")

// ErrUnsupportedKind is returned by RelationResolver for kinds that do not
// name an intermediate entity.
var ErrUnsupportedKind = errors.New("unsupported event kind")

// Field identifies an eligibility column. Implementations map fields to
// columns through a whitelist.
type Field string

const (
	FieldID        Field = "id"
	FieldStatus    Field = "status"
	FieldDeletedAt Field = "deleted_at"
)

// Op is a comparison operator.
type Op string

const (
	OpEq      Op = "eq"
	OpNotEq   Op = "neq"
	OpIn      Op = "in"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
)

// Condition compares one field. Value is a string for OpEq and OpNotEq, a
// []string for OpIn and unused otherwise.
type Condition struct {
	Field Field
	Op    Op
	Value any
}

// Filter is a conjunction of conditions. The zero Filter matches every row.
type Filter struct {
	Conditions []Condition
}

// Where builds a filter from conds.
func Where(conds ...Condition) Filter {
	return Filter{Conditions: conds}
}

func Eq(f Field, v string) Condition { return Condition{Field: f, Op: OpEq, Value: v} }
func NotEq(f Field, v string) Condition { return Condition{Field: f, Op: OpNotEq, Value: v} }
func In(f Field, values []string) Condition { return Condition{Field: f, Op: OpIn, Value: values} }
func IsNull(f Field) Condition { return Condition{Field: f, Op: OpIsNull} }
func NotNull(f Field) Condition { return Condition{Field: f, Op: OpNotNull} }

// Validate checks that every condition carries a value of the right shape.
func (f Filter) Validate() error {
	for _, c := range f.Conditions {
		switch c.Field {
		case FieldID, FieldStatus, FieldDeletedAt:
		default:
			return fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, c.Field)
		}
		switch c.Op {
		case OpEq, OpNotEq:
			if _, ok := c.Value.(string); !ok {
				return fmt.Errorf("%w: %s %s needs a string", ErrInvalidFilter, c.Field, c.Op)
			}
		case OpIn:
			if _, ok := c.Value.([]string); !ok {
				return fmt.Errorf("%w: %s %s needs a []string", ErrInvalidFilter, c.Field, c.Op)
			}
		case OpIsNull, OpNotNull:
		default:
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, c.Op)
		}
	}
	return nil
}

// Matches evaluates f against one row in memory.
func (f Filter) Matches(e domain.Eligibility) bool {
	for _, c := range f.Conditions {
		if !c.matches(e) {
			return false
		}
	}
	return true
}

func (c Condition) matches(e domain.Eligibility) bool {
	if c.Field == FieldDeletedAt {
		switch c.Op {
		case OpIsNull:
			return e.DeletedAt == nil
		case OpNotNull:
			return e.DeletedAt != nil
		default:
			return false
		}
	}

	var v string
	switch c.Field {
	case FieldID:
		v = e.ID
	case FieldStatus:
		v = e.Status
	}

	switch c.Op {
	case OpEq:
		return v == c.Value
	case OpNotEq:
		return v != c.Value
	case OpIn:
		values, _ := c.Value.([]string)
		return slices.Contains(values, v)
	case OpIsNull:
		return v == ""
	case OpNotNull:
		return v != ""
	default:
		return false
	}
}

// EligibilitySource returns the minimal rows used to classify IDs.
type EligibilitySource interface {
	// ScanEligibility returns every row of t matching filter, soft-deleted
	// rows included, ordered by ID.
	ScanEligibility(ctx context.Context, t domain.IndexType, filter Filter) ([]domain.Eligibility, error)
	// LookupEligibility returns the rows for ids. IDs with no row are
	// omitted.
	LookupEligibility(ctx context.Context, t domain.IndexType, ids []string) ([]domain.Eligibility, error)
}

// RecordSource loads full records for document building. Missing IDs are
// omitted from the result.
type RecordSource interface {
	LoadProducts(ctx context.Context, ids []string) ([]domain.ProductRecord, error)
	LoadReviews(ctx context.Context, ids []string) ([]domain.ReviewRecord, error)
}

// RelationResolver maps intermediate entity IDs to the products whose
// documents embed them.
type RelationResolver interface {
	ProductIDsFor(ctx context.Context, kind domain.EventKind, ids []string) ([]string, error)
}

// Store is the complete system-of-record surface.
type Store interface {
	EligibilitySource
	RecordSource
	RelationResolver
}
