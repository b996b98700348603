package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Filter is an equality predicate on one column.
type Filter struct {
	Column string
	Value  any
}

// Order sorts a selection by one column.
type Order struct {
	Column    string
	Ascending bool
}

// Query addresses rows of one table.
type Query struct {
	Table   string
	Filters []Filter
	Order   *Order
	// Limit caps the number of rows selected; zero means no limit.
	Limit int
}

// Validate checks identifiers and bounds.
func (q Query) Validate() error {
	if err := ValidateIdentifier(q.Table); err != nil {
		return err
	}
	for _, f := range q.Filters {
		if err := ValidateIdentifier(f.Column); err != nil {
			return err
		}
	}
	if q.Order != nil {
		if err := ValidateIdentifier(q.Order.Column); err != nil {
			return err
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	return nil
}

// ValidateIdentifier rejects names that are not plain lower-case identifiers.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: bad identifier %q", ErrInvalidQuery, name)
	}
	return nil
}

// QueryBuilder composes a Query against an Executor.
type QueryBuilder struct {
	exec  Executor
	query Query
}

// From starts a query on table.
func From(exec Executor, table string) *QueryBuilder {
	return &QueryBuilder{exec: exec, query: Query{Table: table}}
}

// Eq adds an equality filter.
func (b *QueryBuilder) Eq(column string, value any) *QueryBuilder {
	b.query.Filters = append(b.query.Filters, Filter{Column: column, Value: value})
	return b
}

// Order sorts the selection.
func (b *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	b.query.Order = &Order{Column: column, Ascending: ascending}
	return b
}

// Limit caps the selection.
func (b *QueryBuilder) Limit(n int) *QueryBuilder {
	b.query.Limit = n
	return b
}

// Query returns the composed query.
func (b *QueryBuilder) Query() Query {
	return b.query
}

// Select runs the query.
func (b *QueryBuilder) Select(ctx context.Context) ([]Row, error) {
	return b.exec.Select(ctx, b.query)
}

// Single runs the query and requires exactly one match.
func (b *QueryBuilder) Single(ctx context.Context) (Row, error) {
	rows, err := b.exec.Select(ctx, b.query)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, ErrNoRows
	case 1:
		return rows[0], nil
	default:
		return nil, ErrMultipleRows
	}
}

// Insert writes rows into the table and returns them as stored.
func (b *QueryBuilder) Insert(ctx context.Context, rows ...Row) ([]Row, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: nothing to insert", ErrInvalidQuery)
	}
	return b.exec.Insert(ctx, b.query.Table, rows)
}

// Update sets values on every row matching the filters and returns the updated rows.
func (b *QueryBuilder) Update(ctx context.Context, values Row) ([]Row, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidQuery)
	}
	return b.exec.Update(ctx, b.query, values)
}

// Decode copies a row into dst using its json tags.
func Decode(row Row, dst any) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// DecodeAll decodes every row into a slice of T.
func DecodeAll[T any](rows []Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var item T
		if err := Decode(row, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
