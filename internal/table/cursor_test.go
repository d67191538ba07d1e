package table

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/frootlab/rian-sub004/internal/operator"
	"github.com/frootlab/rian-sub004/internal/record"
	"gotest.tools/assert"
)

// groupTable has rows with values v = 0..8 and gid = (v+1) % 3.
func groupTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := New("groups", []record.Column{
		{Name: "gid", Type: record.Int},
		{Name: "v", Type: record.Int},
	}, nil)
	assert.NilError(t, err)
	for v := range 9 {
		assert.NilError(t, tbl.Insert([]any{int64((v + 1) % 3), int64(v)}))
	}
	tbl.Commit()
	return tbl
}

func count(args ...any) (any, error) {
	col, _ := operator.Tuple(args[0])
	return int64(len(col)), nil
}

func TestFetchExhaustion(t *testing.T) {
	tbl := groupTable(t)
	cur, err := tbl.Select()
	assert.NilError(t, err)

	rows, err := cur.Fetch(-1)
	assert.NilError(t, err)
	assert.Equal(t, len(rows), 9)

	rows, err = cur.Fetch(0)
	assert.NilError(t, err)
	assert.Equal(t, len(rows), 0)
	_, err = cur.Next()
	assert.Assert(t, errors.Is(err, ErrExhausted))

	cur.Reset()
	rows, err = cur.Fetch(-1)
	assert.NilError(t, err)
	assert.Equal(t, len(rows), 9)
}

func TestFetchBatches(t *testing.T) {
	tbl := groupTable(t)
	cur, err := tbl.Select(Columns("v"), BatchSize(4))
	assert.NilError(t, err)

	var sizes []int
	for {
		rows, err := cur.Fetch(0)
		assert.NilError(t, err)
		if len(rows) == 0 {
			break
		}
		sizes = append(sizes, len(rows))
	}
	assert.DeepEqual(t, sizes, []int{4, 4, 1})

	cur.Reset()
	rows, err := cur.Fetch(2)
	assert.NilError(t, err)
	assert.DeepEqual(t, rows, []any{[]any{int64(0)}, []any{int64(1)}})
}

func TestStaticCursorIsASnapshot(t *testing.T) {
	tbl := groupTable(t)
	static, err := tbl.Select(Columns("v"), WithMode("static"))
	assert.NilError(t, err)
	indexed, err := tbl.Select(Columns("v"), WithMode("indexed"))
	assert.NilError(t, err)

	_, err = tbl.Update("v == 0", map[string]any{"v": int64(100)})
	assert.NilError(t, err)

	row, err := static.Next()
	assert.NilError(t, err)
	assert.DeepEqual(t, row, []any{int64(0)})
	row, err = indexed.Next()
	assert.NilError(t, err)
	assert.DeepEqual(t, row, []any{int64(100)})
}

func TestModeRestrictions(t *testing.T) {
	tbl := groupTable(t)

	_, err := tbl.Select(Columns("v"), OrderBy("v"), WithMode("random"))
	var modeErr *ModeError
	assert.Assert(t, errors.As(err, &modeErr))
	assert.Equal(t, modeErr.Proc, "sorting")
	assert.ErrorContains(t, err, "sorting is not supported by random dynamic cursors")

	_, err = tbl.Select(Columns("v"), OrderBy("v"), WithMode("indexed"))
	assert.Assert(t, errors.As(err, &modeErr))

	_, err = tbl.Select(Fields(operator.Var("gid")), GroupBy("gid"), WithMode("random static"))
	assert.Assert(t, errors.As(err, &modeErr))
	assert.Equal(t, modeErr.Proc, "grouping")

	cur, err := tbl.Select(Columns("v"), OrderBy("v"), Reverse(), WithMode("static"))
	assert.NilError(t, err)
	rows, err := cur.Fetch(-1)
	assert.NilError(t, err)
	assert.Equal(t, len(rows), 9)
	for i := 1; i < len(rows); i++ {
		prev := rows[i-1].([]any)[0].(int64)
		cur := rows[i].([]any)[0].(int64)
		assert.Assert(t, prev >= cur, "rows not sorted: %v", rows)
	}
}

func TestDefaultMode(t *testing.T) {
	tbl := groupTable(t)
	cur, err := tbl.Select()
	assert.NilError(t, err)
	assert.Equal(t, cur.Mode(), Indexed)

	cur, err = tbl.Select(OrderBy("v"))
	assert.NilError(t, err)
	assert.Equal(t, cur.Mode(), Static)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		name     string
		expected Mode
		str      string
	}{
		{"", 0, "dynamic"},
		{"static", Static, "static"},
		{"indexed", Indexed, "indexed"},
		{"scrollable static", Scrollable | Static, "scrollable static"},
		{"random indexed", Random | Indexed, "random indexed"},
		{"random scrollable", Random, "random dynamic"},
		{"FORWARD Dynamic", 0, "dynamic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseMode(tt.name)
			assert.NilError(t, err)
			assert.Equal(t, m, tt.expected)
			assert.Equal(t, m.String(), tt.str)
		})
	}

	_, err := ParseMode("static sideways")
	var modeErr *ModeError
	assert.Assert(t, errors.As(err, &modeErr))
	assert.ErrorContains(t, err, "unknown cursor mode")
}

func TestGrouping(t *testing.T) {
	tbl := groupTable(t)
	cur, err := tbl.Select(
		Fields(operator.Var("gid"), operator.VarFunc("count", count, "v"), operator.Var("max(v)")),
		GroupBy("gid"),
	)
	assert.NilError(t, err)
	rows, err := cur.Fetch(-1)
	assert.NilError(t, err)
	assert.DeepEqual(t, rows, []any{
		[]any{int64(0), int64(3), int64(8)},
		[]any{int64(1), int64(3), int64(6)},
		[]any{int64(2), int64(3), int64(7)},
	})

	n, err := cur.RowCount()
	assert.NilError(t, err)
	assert.Equal(t, n, 3)
}

func TestGroupingHavingAndOrder(t *testing.T) {
	tbl := groupTable(t)
	cur, err := tbl.Select(
		Fields(operator.Var("gid"), operator.Var("max(v)")),
		Where("v > 0"),
		GroupBy("gid"),
		Having("gid > 0"),
		OrderBy("max(v)"),
		Reverse(),
		DType(RowDict),
	)
	assert.NilError(t, err)
	rows, err := cur.Fetch(-1)
	assert.NilError(t, err)
	assert.DeepEqual(t, rows, []any{
		map[string]any{"gid": int64(2), "max(v)": int64(7)},
		map[string]any{"gid": int64(1), "max(v)": int64(6)},
	})
}

func TestGroupingRequiresFields(t *testing.T) {
	tbl := groupTable(t)
	_, err := tbl.Select(GroupBy("gid"))
	assert.Assert(t, errors.Is(err, ErrCursor))
}

func TestComputedFields(t *testing.T) {
	tbl := groupTable(t)
	cur, err := tbl.Select(
		Fields(operator.Var("v"), operator.VarExpr("double", "v * 2")),
		Where("gid == 1"),
		DType(RowDict),
	)
	assert.NilError(t, err)
	rows, err := cur.Fetch(-1)
	assert.NilError(t, err)
	assert.DeepEqual(t, rows, []any{
		map[string]any{"v": int64(0), "double": int64(0)},
		map[string]any{"v": int64(3), "double": int64(6)},
		map[string]any{"v": int64(6), "double": int64(12)},
	})
	assert.DeepEqual(t, cur.Names(), []string{"v", "double"})
}

func TestWherePredicate(t *testing.T) {
	tbl := groupTable(t)
	cur, err := tbl.Select(Columns("v"), Where(Predicate(func(row any) (bool, error) {
		return row.(*record.Record).Get("v").(int64) >= 7, nil
	})))
	assert.NilError(t, err)
	rows, err := cur.Fetch(-1)
	assert.NilError(t, err)
	assert.DeepEqual(t, rows, []any{[]any{int64(7)}, []any{int64(8)}})

	_, err = tbl.Select(Where(42))
	assert.Assert(t, errors.Is(err, ErrCursor))

	_, err = tbl.Select(Where("v >"))
	assert.Assert(t, errors.Is(err, ErrCursor))
}

func TestRowCount(t *testing.T) {
	tbl := groupTable(t)
	var modeErr *ModeError

	cur, err := tbl.Select()
	assert.NilError(t, err)
	n, err := cur.RowCount()
	assert.NilError(t, err)
	assert.Equal(t, n, 9)

	cur, err = tbl.Select(Where("gid == 0"))
	assert.NilError(t, err)
	_, err = cur.RowCount()
	assert.Assert(t, errors.As(err, &modeErr))
	assert.Equal(t, modeErr.Proc, "counting filtered rows")

	cur, err = tbl.Select(Where("gid == 0"), WithMode("static"))
	assert.NilError(t, err)
	n, err = cur.RowCount()
	assert.NilError(t, err)
	assert.Equal(t, n, 3)

	cur, err = tbl.Select(WithMode("random indexed"))
	assert.NilError(t, err)
	_, err = cur.RowCount()
	assert.Assert(t, errors.As(err, &modeErr))
	assert.Equal(t, modeErr.Proc, "counting rows")
}

func TestRandomCursor(t *testing.T) {
	tbl := groupTable(t)
	rng := rand.New(rand.NewPCG(1, 2))

	cur, err := tbl.Select(Columns("v"), WithMode("random"), WithRand(rng))
	assert.NilError(t, err)
	rows, err := cur.Fetch(20)
	assert.NilError(t, err)
	assert.Equal(t, len(rows), 20)
	for _, row := range rows {
		v := row.([]any)[0].(int64)
		assert.Assert(t, v >= 0 && v < 9)
	}

	_, err = cur.Fetch(-1)
	var modeErr *ModeError
	assert.Assert(t, errors.As(err, &modeErr))
	assert.Equal(t, modeErr.Proc, "fetching all rows")

	cur, err = tbl.Select(Columns("v"), WithMode("random static"), WithRand(rng))
	assert.NilError(t, err)
	rows, err = cur.Fetch(5)
	assert.NilError(t, err)
	assert.Equal(t, len(rows), 5)

	cur, err = tbl.Select(Where("v > 100"), WithMode("random"), WithRand(rng))
	assert.NilError(t, err)
	_, err = cur.Next()
	assert.Assert(t, errors.Is(err, ErrExhausted))
}

func TestScroll(t *testing.T) {
	tbl := groupTable(t)
	cur, err := tbl.Select(Columns("v"), WithMode("scrollable static"))
	assert.NilError(t, err)

	assert.NilError(t, cur.Scroll(5, false))
	row, err := cur.Next()
	assert.NilError(t, err)
	assert.DeepEqual(t, row, []any{int64(5)})

	assert.NilError(t, cur.Scroll(-3, true))
	row, err = cur.Next()
	assert.NilError(t, err)
	assert.DeepEqual(t, row, []any{int64(3)})

	assert.Assert(t, errors.Is(cur.Scroll(10, false), ErrPosition))

	cur, err = tbl.Select()
	assert.NilError(t, err)
	var modeErr *ModeError
	assert.Assert(t, errors.As(cur.Scroll(1, false), &modeErr))
}

func TestRowTypes(t *testing.T) {
	tbl := groupTable(t)

	cur, err := tbl.Select(DType(RowTuple), BatchSize(1))
	assert.NilError(t, err)
	rows, err := cur.Fetch(0)
	assert.NilError(t, err)
	assert.DeepEqual(t, rows, []any{[]any{int64(1), int64(0)}})

	_, err = tbl.Select(Columns("v"), DType(RowRecord))
	assert.Assert(t, errors.Is(err, ErrCursor))

	for _, name := range []string{"tuple", "dict", "record"} {
		rt, err := ParseRowType(name)
		assert.NilError(t, err)
		assert.Equal(t, rt.String(), name)
	}
	_, err = ParseRowType("list")
	assert.Assert(t, errors.Is(err, ErrCursor))
}

func TestCursorDoesNotMutateTable(t *testing.T) {
	tbl := groupTable(t)
	cur, err := tbl.Select(OrderBy("v"), Reverse())
	assert.NilError(t, err)
	_, err = cur.Fetch(-1)
	assert.NilError(t, err)
	assert.DeepEqual(t, tbl.IDs(), []int{0, 1, 2, 3, 4, 5, 6, 7, 8})
}
