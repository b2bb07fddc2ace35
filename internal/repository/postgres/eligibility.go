// Package postgres implements the repository interfaces over the catalog
// PostgreSQL database. All access is read-only.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/repository"
	"github.com/utafrali/searchsync/pkg/database"
)

// Store implements repository.Store.
type Store struct {
	db database.DBTX
}

var _ repository.Store = (*Store)(nil)

// NewStore creates a store over db (a pool, a transaction or a mock).
func NewStore(db database.DBTX) *Store {
	return &Store{db: db}
}

// eligibilityTable whitelists the columns a filter may reference.
type eligibilityTable struct {
	name    string
	columns map[repository.Field]string
	// statusExpr is selected as the status column.
	statusExpr string
}

var eligibilityTables = map[domain.IndexType]eligibilityTable{
	domain.IndexProducts: {
		name: "products",
		columns: map[repository.Field]string{
			repository.FieldID:        "id",
			repository.FieldStatus:    "status",
			repository.FieldDeletedAt: "deleted_at",
		},
		statusExpr: "status",
	},
	domain.IndexReviews: {
		name: "reviews",
		columns: map[repository.Field]string{
			repository.FieldID:        "id",
			repository.FieldDeletedAt: "deleted_at",
		},
		statusExpr: "''",
	},
}

// buildWhere renders filter as a WHERE clause with positional arguments.
func buildWhere(table eligibilityTable, filter repository.Filter) (string, []any, error) {
	if err := filter.Validate(); err != nil {
		return "", nil, err
	}

	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	for _, c := range filter.Conditions {
		col, ok := table.columns[c.Field]
		if !ok {
			return "", nil, fmt.Errorf("%w: %s has no %s column", repository.ErrInvalidFilter, table.name, c.Field)
		}
		switch c.Op {
		case repository.OpEq:
			conditions = append(conditions, fmt.Sprintf("%s = $%d", col, argIndex))
			args = append(args, c.Value)
			argIndex++
		case repository.OpNotEq:
			conditions = append(conditions, fmt.Sprintf("%s IS DISTINCT FROM $%d", col, argIndex))
			args = append(args, c.Value)
			argIndex++
		case repository.OpIn:
			conditions = append(conditions, fmt.Sprintf("%s = ANY($%d)", col, argIndex))
			args = append(args, c.Value)
			argIndex++
		case repository.OpIsNull:
			conditions = append(conditions, col+" IS NULL")
		case repository.OpNotNull:
			conditions = append(conditions, col+" IS NOT NULL")
		}
	}

	if len(conditions) == 0 {
		return "", nil, nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args, nil
}

// ScanEligibility returns the rows of t matching filter, ordered by ID.
func (s *Store) ScanEligibility(ctx context.Context, t domain.IndexType, filter repository.Filter) ([]domain.Eligibility, error) {
	table, ok := eligibilityTables[t]
	if !ok {
		return nil, fmt.Errorf("scan eligibility: %w: %q", domain.ErrUnknownIndexType, t)
	}

	where, args, err := buildWhere(table, filter)
	if err != nil {
		return nil, fmt.Errorf("scan eligibility: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, %s AS status, deleted_at
		FROM %s
		%s
		ORDER BY id`, table.statusExpr, table.name, where)

	ctx, end := database.TraceQuery(ctx, "scan_eligibility", query)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		end(err)
		return nil, fmt.Errorf("scan %s eligibility: %w", table.name, err)
	}
	defer rows.Close()

	var out []domain.Eligibility
	for rows.Next() {
		var (
			e         domain.Eligibility
			deletedAt *time.Time
		)
		if err := rows.Scan(&e.ID, &e.Status, &deletedAt); err != nil {
			end(err)
			return nil, fmt.Errorf("scan %s eligibility row: %w", table.name, err)
		}
		e.DeletedAt = deletedAt
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		end(err)
		return nil, fmt.Errorf("iterate %s eligibility rows: %w", table.name, err)
	}

	end(nil)
	return out, nil
}

// LookupEligibility returns the rows for ids.
func (s *Store) LookupEligibility(ctx context.Context, t domain.IndexType, ids []string) ([]domain.Eligibility, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.ScanEligibility(ctx, t, repository.Where(repository.In(repository.FieldID, ids)))
}
