package query

import (
	"context"
	"errors"
	"testing"

	"github.com/frootlab/rian-sub004/internal/record"
	"github.com/frootlab/rian-sub004/internal/table"
	"github.com/frootlab/rian-sub004/internal/workspace"
	"gotest.tools/assert"
)

func newExecutor(t *testing.T) (*Executor, *workspace.Workspace) {
	t.Helper()
	ws := workspace.New(nil)
	e := NewExecutor(ws)
	run(t, e, "CREATE TABLE nums (v INT NOT NULL, gid INT, x FLOAT DEFAULT 0)")
	run(t, e, "INSERT INTO nums (v, gid) VALUES (0, 1), (1, 2), (2, 0), (3, 1), (4, 2), (5, 0)")
	return e, ws
}

func run(t *testing.T, e *Executor, input string) *table.Result {
	t.Helper()
	res, err := e.Run(context.Background(), input)
	assert.NilError(t, err, input)
	return res
}

func TestSelect(t *testing.T) {
	e, _ := newExecutor(t)

	tests := []struct {
		input   string
		columns []string
		rows    [][]any
	}{
		{
			"SELECT * FROM nums LIMIT 2",
			[]string{"v", "gid", "x"},
			[][]any{{int64(0), int64(1), 0.0}, {int64(1), int64(2), 0.0}},
		},
		{
			"SELECT v, v * 10 FROM nums WHERE v > 1 AND gid <> 0",
			[]string{"v", "v * 10"},
			[][]any{{int64(3), int64(30)}, {int64(4), int64(40)}},
		},
		{
			"SELECT v FROM nums ORDER BY v DESC LIMIT 2 OFFSET 1",
			[]string{"v"},
			[][]any{{int64(4)}, {int64(3)}},
		},
		{
			"SELECT gid, SUM(v) FROM nums GROUP BY gid HAVING SUM(v) > 3 ORDER BY gid",
			[]string{"gid", "SUM(v)"},
			[][]any{{int64(0), int64(7)}, {int64(2), int64(5)}},
		},
		{
			"SELECT v FROM nums LIMIT 0",
			[]string{"v"},
			[][]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res := run(t, e, tt.input)
			assert.DeepEqual(t, res.Columns, tt.columns)
			assert.DeepEqual(t, res.Rows, tt.rows)
		})
	}
}

func TestInsertUpdateDelete(t *testing.T) {
	e, ws := newExecutor(t)

	res := run(t, e, "INSERT INTO nums VALUES (6, NULL, 1)")
	assert.Equal(t, res.Message, "Inserted 1 row")

	res = run(t, e, "UPDATE nums SET x = 2.5, gid = 9 WHERE v >= 5")
	assert.Equal(t, res.Message, "Updated 2 rows")

	res = run(t, e, "SELECT v, gid, x FROM nums WHERE gid = 9")
	assert.DeepEqual(t, res.Rows, [][]any{{int64(5), int64(9), 2.5}, {int64(6), int64(9), 2.5}})

	res = run(t, e, "DELETE FROM nums WHERE gid = 9 OR v = 0")
	assert.Equal(t, res.Message, "Deleted 3 rows")
	assert.NilError(t, ws.Commit(context.Background(), "nums"))

	info, err := ws.Info("nums")
	assert.NilError(t, err)
	assert.Equal(t, info.Rows, 4)

	res = run(t, e, "DELETE FROM nums")
	assert.Equal(t, res.Message, "Deleted 4 rows")
	assert.NilError(t, ws.Rollback("nums"))
	info, err = ws.Info("nums")
	assert.NilError(t, err)
	assert.Equal(t, info.Rows, 4)
}

func TestCreateAndDrop(t *testing.T) {
	e, ws := newExecutor(t)

	res := run(t, e, "CREATE TABLE users (name TEXT NOT NULL, seen TIMESTAMP DEFAULT '2020-01-02T03:04:05Z')")
	assert.Equal(t, res.Message, "Table 'users' created")
	info, err := ws.Info("users")
	assert.NilError(t, err)
	assert.Equal(t, len(info.Columns), 2)
	assert.Equal(t, info.Columns[1].Type, record.Time)
	assert.Assert(t, info.Columns[1].Default != nil)

	res = run(t, e, "DROP TABLE users")
	assert.Equal(t, res.Message, "Table 'users' dropped")
	assert.DeepEqual(t, ws.Names(), []string{"nums"})
}

func TestExecuteErrors(t *testing.T) {
	e, _ := newExecutor(t)
	ctx := context.Background()

	tests := []struct {
		input string
		check func(error) bool
	}{
		{"SELECT v FROM missing", func(err error) bool { return errors.Is(err, workspace.ErrNotFound) }},
		{"SELECT nope FROM nums", func(err error) bool {
			var colErr *table.ColumnLookupError
			return errors.As(err, &colErr)
		}},
		{"INSERT INTO nums VALUES (v)", func(err error) bool { return errors.Is(err, ErrNotConstant) }},
		{"UPDATE nums SET v = v + 1", func(err error) bool { return errors.Is(err, ErrNotConstant) }},
		{"INSERT INTO nums VALUES (NULL)", func(err error) bool { return errors.Is(err, record.ErrType) }},
		{"INSERT INTO nums VALUES (1, 2, 3, 4)", func(err error) bool { return errors.Is(err, record.ErrArity) }},
		{"CREATE TABLE nums (a INT)", func(err error) bool { return errors.Is(err, workspace.ErrExists) }},
		{"SELEKT 1", func(err error) bool { return errors.Is(err, ErrSyntax) }},
	}
	for _, tt := range tests {
		_, err := e.Run(ctx, tt.input)
		assert.Assert(t, err != nil, tt.input)
		assert.Assert(t, tt.check(err), "%s: %v", tt.input, err)
	}

	// failed statements leave the table unchanged
	res := run(t, e, "SELECT v FROM nums")
	assert.Equal(t, len(res.Rows), 6)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := e.Run(cancelled, "SELECT v FROM nums")
	assert.Assert(t, errors.Is(err, context.Canceled))
}
