package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/frootlab/rian-sub004/internal/expr"
	"github.com/frootlab/rian-sub004/internal/operator"
	"github.com/frootlab/rian-sub004/internal/record"
	"github.com/frootlab/rian-sub004/internal/table"
	"github.com/frootlab/rian-sub004/internal/workspace"
)

// ErrNotConstant is returned for INSERT, UPDATE and DEFAULT values that
// refer to variables.
var ErrNotConstant = errors.New("value is not constant")

// Executor runs statements against the tables of a workspace.
//
// EDUCATIONAL NOTES:
// ------------------
// There is no planner: a SELECT maps one to one onto the options of a
// table cursor, and INSERT, UPDATE and DELETE onto the table methods of
// the same name. Changes stay pending until the table is committed.
//
// Values of INSERT and UPDATE are constant expressions. They are
// evaluated once, before any row is touched, so that a failing value
// leaves the table unchanged.
type Executor struct {
	ws    *workspace.Workspace
	vocab *expr.Vocabulary
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithVocabulary sets the vocabulary of all expressions. The default is
// the SQL vocabulary.
func WithVocabulary(v *expr.Vocabulary) ExecutorOption {
	return func(e *Executor) { e.vocab = v }
}

// NewExecutor creates an executor for the workspace.
func NewExecutor(ws *workspace.Workspace, opts ...ExecutorOption) *Executor {
	e := &Executor{ws: ws, vocab: expr.SQL()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run parses and executes a statement.
func (e *Executor) Run(ctx context.Context, input string) (*table.Result, error) {
	stmt, err := Parse(input)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, stmt)
}

// Execute executes a parsed statement.
func (e *Executor) Execute(ctx context.Context, stmt Statement) (*table.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.ws.Logger().Debugf("query: %s", stmt)

	switch s := stmt.(type) {
	case *SelectStatement:
		return e.executeSelect(s)
	case *InsertStatement:
		return e.executeInsert(s)
	case *UpdateStatement:
		return e.executeUpdate(s)
	case *DeleteStatement:
		return e.executeDelete(s)
	case *CreateTableStatement:
		return e.executeCreateTable(s)
	case *DropTableStatement:
		if err := e.ws.Remove(s.Table); err != nil {
			return nil, err
		}
		return &table.Result{Message: fmt.Sprintf("Table '%s' dropped", s.Table)}, nil
	default:
		return nil, fmt.Errorf("unsupported statement type: %T", stmt)
	}
}

// options converts a select statement into cursor options.
func (e *Executor) options(s *SelectStatement) []table.SelectOption {
	opts := []table.SelectOption{table.WithVocabulary(e.vocab), table.DType(table.RowTuple)}
	if len(s.Fields) > 0 {
		defs := make([]operator.VarDef, len(s.Fields))
		for i, f := range s.Fields {
			defs[i] = operator.Var(f)
		}
		opts = append(opts, table.Fields(defs...))
	}
	if s.Where != "" {
		opts = append(opts, table.Where(s.Where))
	}
	if len(s.GroupBy) > 0 {
		opts = append(opts, table.GroupBy(s.GroupBy...))
	}
	if s.Having != "" {
		opts = append(opts, table.Having(s.Having))
	}
	if len(s.OrderBy) > 0 {
		opts = append(opts, table.OrderBy(s.OrderBy...))
	}
	if s.Descending {
		opts = append(opts, table.Reverse())
	}
	return opts
}

func (e *Executor) executeSelect(s *SelectStatement) (*table.Result, error) {
	size := -1
	if s.Limit >= 0 {
		size = s.Limit + s.Offset
	}
	var res *table.Result
	err := e.ws.Do(s.From, func(t *table.Table) error {
		cur, err := t.Select(e.options(s)...)
		if err != nil {
			return err
		}
		var rows []any
		if size != 0 {
			if rows, err = cur.Fetch(size); err != nil {
				return err
			}
		}
		rows = rows[min(s.Offset, len(rows)):]
		res = table.NewResult(cur.Names(), rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Executor) executeInsert(s *InsertStatement) (*table.Result, error) {
	rows := make([][]any, len(s.Rows))
	for i, row := range s.Rows {
		values, err := e.values(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows[i] = values
	}

	err := e.ws.Do(s.Table, func(t *table.Table) error {
		columns, err := targetColumns(t, s.Columns)
		if err != nil {
			return err
		}
		batch := make([]any, len(rows))
		for i, row := range rows {
			if len(row) > len(columns) {
				return fmt.Errorf("row %d: %w: %d values for %d columns", i, record.ErrArity, len(row), len(columns))
			}
			for j := range row {
				row[j] = coerce(columns[j], row[j])
			}
			batch[i] = row
		}
		if len(s.Columns) == 0 {
			return t.InsertMany(batch)
		}
		return t.InsertMany(batch, s.Columns...)
	})
	if err != nil {
		return nil, err
	}
	return &table.Result{Message: fmt.Sprintf("Inserted %d %s", len(rows), plural(len(rows), "row"))}, nil
}

// targetColumns returns the columns named by an INSERT, or all columns.
func targetColumns(t *table.Table, names []string) ([]record.Column, error) {
	all := t.Columns()
	if len(names) == 0 {
		return all, nil
	}
	out := make([]record.Column, len(names))
	for i, name := range names {
		found := false
		for _, c := range all {
			if c.Name == name {
				out[i], found = c, true
				break
			}
		}
		if !found {
			return nil, &table.ColumnLookupError{Name: name}
		}
	}
	return out, nil
}

func (e *Executor) executeUpdate(s *UpdateStatement) (*table.Result, error) {
	changes := make(map[string]any, len(s.Set))
	for _, a := range s.Set {
		v, err := e.value(a.Value)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", a.Column, err)
		}
		changes[a.Column] = v
	}
	where, err := e.predicate(s.Where)
	if err != nil {
		return nil, err
	}

	var n int
	err = e.ws.Do(s.Table, func(t *table.Table) error {
		for _, c := range t.Columns() {
			if v, ok := changes[c.Name]; ok {
				changes[c.Name] = coerce(c, v)
			}
		}
		var err error
		n, err = t.Update(where, changes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &table.Result{Message: fmt.Sprintf("Updated %d %s", n, plural(n, "row"))}, nil
}

func (e *Executor) executeDelete(s *DeleteStatement) (*table.Result, error) {
	where, err := e.predicate(s.Where)
	if err != nil {
		return nil, err
	}
	var n int
	err = e.ws.Do(s.Table, func(t *table.Table) error {
		var err error
		n, err = t.Delete(where)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &table.Result{Message: fmt.Sprintf("Deleted %d %s", n, plural(n, "row"))}, nil
}

func (e *Executor) executeCreateTable(s *CreateTableStatement) (*table.Result, error) {
	columns := make([]record.Column, len(s.Columns))
	for i, def := range s.Columns {
		typ, err := record.ParseType(def.Type)
		if err != nil {
			return nil, err
		}
		col := record.Column{Name: def.Name, Type: typ, NotNull: def.NotNull}
		if def.Default != "" {
			v, err := e.value(def.Default)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", def.Name, err)
			}
			col.Default = coerce(col, v)
		}
		columns[i] = col
	}
	if _, err := e.ws.Create(s.Table, columns, nil); err != nil {
		return nil, err
	}
	return &table.Result{Message: fmt.Sprintf("Table '%s' created", s.Table)}, nil
}

// predicate compiles a WHERE clause of UPDATE or DELETE. The table
// compiles filters with its own default vocabulary, so the clause is
// compiled here.
func (e *Executor) predicate(where string) (table.Predicate, error) {
	if where == "" {
		return nil, nil
	}
	op, err := operator.Lambda(where, operator.Domain{Kind: operator.Struct}, operator.WithVocabulary(e.vocab))
	if err != nil {
		return nil, err
	}
	return func(row any) (bool, error) {
		v, err := op.Call(row)
		if err != nil {
			return false, err
		}
		return expr.Truth(v), nil
	}, nil
}

func (e *Executor) values(sources []string) ([]any, error) {
	out := make([]any, len(sources))
	for i, src := range sources {
		v, err := e.value(src)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// value evaluates a constant expression.
func (e *Executor) value(src string) (any, error) {
	x, err := expr.Parse(src, expr.WithVocabulary(e.vocab))
	if err != nil {
		return nil, err
	}
	if vars := x.Variables(); len(vars) > 0 {
		return nil, fmt.Errorf("%w: %q refers to %s", ErrNotConstant, src, strings.Join(vars, ", "))
	}
	return x.EvalMap(nil)
}

// coerce converts literal values to the type of their column where the
// expression language has no literal of that type.
func coerce(c record.Column, v any) any {
	switch c.Type {
	case record.Float:
		if i, ok := v.(int64); ok {
			return float64(i)
		}
	case record.Bytes:
		if s, ok := v.(string); ok {
			return []byte(s)
		}
	case record.Time:
		if s, ok := v.(string); ok {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t
			}
		}
	}
	return v
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
