package table

import (
	"strings"
	"testing"

	"github.com/frootlab/rian-sub004/internal/record"
	"gotest.tools/assert"
)

func TestResultString(t *testing.T) {
	res := NewResult([]string{"name", "age"}, []any{
		[]any{"alice", int64(30)},
		map[string]any{"name": "bob", "age": nil},
	})
	expected := strings.Join([]string{
		"+-------+------+",
		"| name  | age  |",
		"+-------+------+",
		"| alice | 30   |",
		"| bob   | None |",
		"+-------+------+",
		"(2 rows)",
		"",
	}, "\n")
	assert.Equal(t, res.String(), expected)
}

func TestResultEmptyAndMessage(t *testing.T) {
	assert.Equal(t, NewResult([]string{"a"}, nil).String(), "(no rows)")
	assert.Equal(t, (&Result{Message: "3 rows committed"}).String(), "3 rows committed")
}

func TestFetchResultFromRecords(t *testing.T) {
	tbl, err := New("t", []record.Column{{Name: "a"}, {Name: "b"}}, nil)
	assert.NilError(t, err)
	assert.NilError(t, tbl.Insert([]any{int64(1), "x"}))

	cur, err := tbl.Select()
	assert.NilError(t, err)
	res, err := FetchResult(cur, -1)
	assert.NilError(t, err)
	assert.DeepEqual(t, res.Columns, []string{"a", "b"})
	assert.DeepEqual(t, res.Rows, [][]any{{int64(1), "x"}})
}
