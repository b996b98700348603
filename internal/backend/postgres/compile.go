package postgres

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
)

// compileSelect renders q as a parameterised SELECT.
func compileSelect(q backend.Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(ident(q.Table))

	args := make([]any, 0, len(q.Filters)+1)
	args = writeWhere(&sb, q.Filters, args)

	if q.Order != nil {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(ident(q.Order.Column))
		if q.Order.Ascending {
			sb.WriteString(" ASC")
		} else {
			sb.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(" LIMIT $")
		sb.WriteString(strconv.Itoa(len(args)))
	}
	return sb.String(), args, nil
}

// compileInsert renders a single-row INSERT ... RETURNING *. Columns are emitted in sorted
// order so statements are stable.
func compileInsert(table string, row backend.Row) (string, []any, error) {
	if err := backend.ValidateIdentifier(table); err != nil {
		return "", nil, err
	}
	if len(row) == 0 {
		return "", nil, fmt.Errorf("%w: empty row", backend.ErrInvalidQuery)
	}
	cols, err := sortedColumns(row)
	if err != nil {
		return "", nil, err
	}

	names := make([]string, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for i, col := range cols {
		names = append(names, ident(col))
		placeholders = append(placeholders, "$"+strconv.Itoa(i+1))
		args = append(args, row[col])
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		ident(table), strings.Join(names, ", "), strings.Join(placeholders, ", "))
	return stmt, args, nil
}

// compileUpdate renders UPDATE ... SET ... WHERE ... RETURNING *.
func compileUpdate(q backend.Query, values backend.Row) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if len(values) == 0 {
		return "", nil, fmt.Errorf("%w: nothing to update", backend.ErrInvalidQuery)
	}
	cols, err := sortedColumns(values)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(ident(q.Table))
	sb.WriteString(" SET ")

	args := make([]any, 0, len(cols)+len(q.Filters))
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		args = append(args, values[col])
		sb.WriteString(ident(col))
		sb.WriteString(" = $")
		sb.WriteString(strconv.Itoa(len(args)))
	}
	args = writeWhere(&sb, q.Filters, args)
	sb.WriteString(" RETURNING *")
	return sb.String(), args, nil
}

func writeWhere(sb *strings.Builder, filters []backend.Filter, args []any) []any {
	for i, f := range filters {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteString(ident(f.Column))
		if f.Value == nil {
			sb.WriteString(" IS NULL")
			continue
		}
		args = append(args, f.Value)
		sb.WriteString(" = $")
		sb.WriteString(strconv.Itoa(len(args)))
	}
	return args
}

func sortedColumns(row backend.Row) ([]string, error) {
	cols := make([]string, 0, len(row))
	for col := range row {
		if err := backend.ValidateIdentifier(col); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols, nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
