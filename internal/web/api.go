// Package web provides the HTTP server for a workspace of tables.
//
// This file contains the JSON API endpoints for programmatic access.

package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/frootlab/rian-sub004/internal/expr"
	"github.com/frootlab/rian-sub004/internal/operator"
	"github.com/frootlab/rian-sub004/internal/table"
	"github.com/frootlab/rian-sub004/internal/workspace"
)

// ============================================================================
// API Response Types
// ============================================================================

// APIResponse wraps all API responses with success/error info.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// TableListResponse contains the list of tables.
type TableListResponse struct {
	Tables []workspace.Info `json:"tables"`
}

// ColumnInfo describes a single column in a table.
type ColumnInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	NotNull bool   `json:"not_null"`
	Default any    `json:"default,omitempty"`
}

// TableSchemaResponse describes a table's structure.
type TableSchemaResponse struct {
	Name     string         `json:"name"`
	Columns  []ColumnInfo   `json:"columns"`
	RowCount int            `json:"row_count"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Source   string         `json:"source,omitempty"`
	Mode     string         `json:"mode,omitempty"`
}

// SelectRequest is the body of a select. Fields are expressions over the
// columns; Where and Having are filter expressions.
type SelectRequest struct {
	Fields     []string `json:"fields"`
	Where      string   `json:"where"`
	GroupBy    []string `json:"groupby"`
	Having     string   `json:"having"`
	OrderBy    []string `json:"orderby"`
	Reverse    bool     `json:"reverse"`
	Mode       string   `json:"mode"`
	DType      string   `json:"dtype"`
	Vocabulary string   `json:"vocabulary"`
	Size       int      `json:"size"`
}

// QueryResponse contains query results.
type QueryResponse struct {
	*table.Result
	RowCount int `json:"row_count"`
}

// EvalRequest is the body of an expression evaluation.
type EvalRequest struct {
	Expression string         `json:"expression"`
	Vocabulary string         `json:"vocabulary"`
	Values     map[string]any `json:"values"`
}

// EvalResponse contains the value of an expression.
type EvalResponse struct {
	Expression string   `json:"expression"`
	Variables  []string `json:"variables"`
	Result     any      `json:"result"`
}

// ============================================================================
// Helper Functions
// ============================================================================

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful API response.
func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error API response.
func writeError(w http.ResponseWriter, status int, message, hint string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   message,
		Hint:    hint,
	})
}

// writeFailure writes the error response that fits err.
func writeFailure(w http.ResponseWriter, err error) {
	writeError(w, statusOf(err), err.Error(), GetErrorHint(err.Error()))
}

// decodeBody reads a JSON request body. Numbers become int64 when they
// are integral and float64 otherwise, the types expressions compute with.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = normalize(x[k])
		}
	}
	return v
}

// options converts a select request into cursor options.
func (req *SelectRequest) options() ([]table.SelectOption, error) {
	var opts []table.SelectOption
	if req.Vocabulary != "" {
		v, err := expr.Lookup(req.Vocabulary)
		if err != nil {
			return nil, err
		}
		opts = append(opts, table.WithVocabulary(v))
	}
	if len(req.Fields) > 0 {
		defs := make([]operator.VarDef, len(req.Fields))
		for i, f := range req.Fields {
			defs[i] = operator.Var(f)
		}
		opts = append(opts, table.Fields(defs...))
	}
	if req.Where != "" {
		opts = append(opts, table.Where(req.Where))
	}
	if len(req.GroupBy) > 0 {
		opts = append(opts, table.GroupBy(req.GroupBy...))
	}
	if req.Having != "" {
		opts = append(opts, table.Having(req.Having))
	}
	if len(req.OrderBy) > 0 {
		opts = append(opts, table.OrderBy(req.OrderBy...))
	}
	if req.Reverse {
		opts = append(opts, table.Reverse())
	}
	if req.Mode != "" {
		opts = append(opts, table.WithMode(req.Mode))
	}
	if req.DType != "" {
		dtype, err := table.ParseRowType(req.DType)
		if err != nil {
			return nil, err
		}
		opts = append(opts, table.DType(dtype))
	}
	return opts, nil
}

// fetchSize maps the requested size to a Fetch size, where zero means
// all rows.
func (req *SelectRequest) fetchSize() int {
	if req.Size <= 0 {
		return -1
	}
	return req.Size
}

// ============================================================================
// API Handlers
// ============================================================================

// handleAPITables returns a list of all tables.
// GET /api/tables
func (s *Server) handleAPITables(w http.ResponseWriter, r *http.Request) {
	ws := GetWorkspace(r)
	tables := make([]workspace.Info, 0)
	for _, name := range ws.Names() {
		info, err := ws.Info(name)
		if errors.Is(err, workspace.ErrNotFound) {
			continue // removed meanwhile
		}
		if err != nil {
			writeFailure(w, err)
			return
		}
		tables = append(tables, info)
	}
	writeSuccess(w, TableListResponse{Tables: tables})
}

// handleAPITableSchema returns the schema for a specific table.
// GET /api/tables/{name}
func (s *Server) handleAPITableSchema(w http.ResponseWriter, r *http.Request) {
	ws := GetWorkspace(r)
	tableName := chi.URLParam(r, "name")
	if err := validateTableName(tableName); err != nil {
		writeFailure(w, err)
		return
	}

	info, err := ws.Info(tableName)
	if err != nil {
		writeFailure(w, err)
		return
	}

	columns := make([]ColumnInfo, len(info.Columns))
	for i, col := range info.Columns {
		columns[i] = ColumnInfo{
			Name:    col.Name,
			Type:    col.Type.String(),
			NotNull: col.NotNull,
			Default: col.Default,
		}
	}
	writeSuccess(w, TableSchemaResponse{
		Name:     tableName,
		Columns:  columns,
		RowCount: info.Rows,
		Metadata: info.Metadata,
		Source:   info.Source,
		Mode:     info.Mode,
	})
}

// handleAPISelect runs a cursor over a table.
// POST /api/tables/{name}/select
func (s *Server) handleAPISelect(w http.ResponseWriter, r *http.Request) {
	ws := GetWorkspace(r)
	tableName := chi.URLParam(r, "name")

	if err := validateTableName(tableName); err != nil {
		writeFailure(w, err)
		return
	}

	var req SelectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if err := req.validate(); err != nil {
		writeFailure(w, err)
		return
	}
	opts, err := req.options()
	if err != nil {
		writeFailure(w, err)
		return
	}

	var res *table.Result
	err = ws.Do(tableName, func(t *table.Table) error {
		cur, err := t.Select(opts...)
		if err != nil {
			return err
		}
		res, err = table.FetchResult(cur, req.fetchSize())
		return err
	})
	if err != nil {
		s.log.Debugf("select on %s failed: %v", tableName, err)
		writeFailure(w, err)
		return
	}
	writeSuccess(w, QueryResponse{Result: res, RowCount: len(res.Rows)})
}

// handleAPICommit commits the pending changes of a table.
// POST /api/tables/{name}/commit
func (s *Server) handleAPICommit(w http.ResponseWriter, r *http.Request) {
	tableName := chi.URLParam(r, "name")
	if err := GetWorkspace(r).Commit(r.Context(), tableName); err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, QueryResponse{Result: &table.Result{Message: "committed " + tableName}})
}

// handleAPIRollback discards the pending changes of a table.
// POST /api/tables/{name}/rollback
func (s *Server) handleAPIRollback(w http.ResponseWriter, r *http.Request) {
	tableName := chi.URLParam(r, "name")
	if err := GetWorkspace(r).Rollback(tableName); err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, QueryResponse{Result: &table.Result{Message: "rolled back " + tableName}})
}

// handleAPIEval evaluates an expression.
// POST /api/eval
func (s *Server) handleAPIEval(w http.ResponseWriter, r *http.Request) {
	var req EvalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if req.Expression == "" {
		writeError(w, http.StatusBadRequest, "expression field is required", "")
		return
	}
	vocab := expr.Calculator()
	if req.Vocabulary != "" {
		v, err := expr.Lookup(req.Vocabulary)
		if err != nil {
			writeFailure(w, err)
			return
		}
		vocab = v
	}

	e, err := expr.Parse(req.Expression, expr.WithVocabulary(vocab))
	if err != nil {
		writeFailure(w, err)
		return
	}
	values := make(map[string]any, len(req.Values))
	for k, v := range req.Values {
		values[k] = normalize(v)
	}
	v, err := e.EvalMap(values)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, EvalResponse{
		Expression: e.String(),
		Variables:  e.Variables(),
		Result:     v,
	})
}

// decodeJSON decodes a websocket message like a request body.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON message: %w", err)
	}
	return nil
}
