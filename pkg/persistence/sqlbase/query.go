package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// Where accumulates AND-ed conditions with positional placeholders.
type Where struct {
	clauses []string
	args    []any
}

// Add appends a condition. Each "?" in clause becomes the next $n.
func (w *Where) Add(clause string, args ...any) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}

	w.clauses = append(w.clauses, clause)
}

// SQL renders " WHERE a AND b", or "" without conditions.
func (w *Where) SQL() string {
	if len(w.clauses) == 0 {
		return ""
	}

	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// Args returns the bound values in placeholder order.
func (w *Where) Args() []any {
	return w.args
}

// Next returns the placeholder for one more argument appended after the
// conditions, e.g. LIMIT and OFFSET.
func (w *Where) Next(arg any) string {
	w.args = append(w.args, arg)

	return fmt.Sprintf("$%d", len(w.args))
}

// CloseRows closes rows and logs a failure.
func CloseRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
