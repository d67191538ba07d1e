package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/frootlab/rian-sub004/internal/expr"
	"github.com/frootlab/rian-sub004/internal/operator"
	"github.com/frootlab/rian-sub004/internal/record"
	"github.com/frootlab/rian-sub004/internal/table"
	"github.com/frootlab/rian-sub004/internal/workspace"
)

// GetErrorHint returns a helpful hint for common query errors.
// Returns empty string if no hint is available.
func GetErrorHint(err string) string {
	errLower := strings.ToLower(err)

	switch {
	case strings.Contains(errLower, "table not found"):
		return "Check table name spelling or GET /api/tables to see available tables."
	case strings.Contains(errLower, "column name"), strings.Contains(errLower, "unknown column"):
		return "Check column name or GET /api/tables/{name} to see columns."
	case strings.Contains(errLower, "parse error"):
		return "Check expression syntax near the indicated column."
	case strings.Contains(errLower, "undefined variable"):
		return "Expressions can only refer to columns of the table or to given values."
	case strings.Contains(errLower, "not supported by"):
		return "Choose a static cursor mode for grouping, sorting or scrolling."
	case strings.Contains(errLower, "unknown cursor mode"):
		return "Valid modes are static, indexed, dynamic, forward, scrollable and random."
	case strings.Contains(errLower, "must not be null"):
		return "This column requires a value."
	case strings.Contains(errLower, "unknown vocabulary"):
		return "Valid vocabularies are " + strings.Join(expr.Groups(), ", ") + "."
	case strings.Contains(errLower, "timeout") || strings.Contains(errLower, "deadline exceeded"):
		return "Consider a where filter or a smaller size to reduce result size."
	default:
		return ""
	}
}

// statusOf maps an error to the HTTP status of its response.
func statusOf(err error) int {
	var (
		parseErr  *expr.ParseError
		colErr    *table.ColumnLookupError
		rowErr    *table.RowLookupError
		modeErr   *table.ModeError
		proxyErr  *table.ProxyError
		validErr  *ValidationError
		sentinels = []error{
			table.ErrCursor, table.ErrNoSchema, table.ErrPosition,
			record.ErrType, record.ErrColumn, record.ErrArity,
			operator.ErrField, operator.ErrVariable,
			expr.ErrUndefined, expr.ErrOperand, expr.ErrArguments,
			expr.ErrZeroDivision, expr.ErrNotCallable, expr.ErrUnknownVocabulary,
		}
	)
	switch {
	case errors.Is(err, workspace.ErrNotFound), errors.As(err, &rowErr):
		return http.StatusNotFound
	case errors.Is(err, table.ErrReadOnly):
		return http.StatusForbidden
	case errors.As(err, &proxyErr):
		return http.StatusBadGateway
	case errors.As(err, &validErr), errors.As(err, &parseErr),
		errors.As(err, &colErr), errors.As(err, &modeErr):
		return http.StatusBadRequest
	}
	for _, target := range sentinels {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}
