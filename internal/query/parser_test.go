package query

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseSelect(t *testing.T) {
	tests := []struct {
		input      string
		expectCols []string
		expectFrom string
	}{
		{"SELECT * FROM users", nil, "users"},
		{"SELECT name FROM users", []string{"name"}, "users"},
		{"SELECT name, age FROM users;", []string{"name", "age"}, "users"},
		{"select id, age * 2, max(a, b) from people", []string{"id", "age * 2", "max(a, b)"}, "people"},
		{"SELECT [1, 2] IN x FROM t", []string{"[1, 2] IN x"}, "t"},
	}

	for _, tt := range tests {
		stmt, err := Parse(tt.input)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.input, err)
			continue
		}

		sel, ok := stmt.(*SelectStatement)
		if !ok {
			t.Errorf("Parse(%q) expected SelectStatement, got %T", tt.input, stmt)
			continue
		}

		if !reflect.DeepEqual(sel.Fields, tt.expectCols) {
			t.Errorf("Parse(%q) expected fields %q, got %q", tt.input, tt.expectCols, sel.Fields)
		}
		if sel.From != tt.expectFrom {
			t.Errorf("Parse(%q) expected FROM %q, got %q", tt.input, tt.expectFrom, sel.From)
		}
		if sel.Limit != -1 {
			t.Errorf("Parse(%q) expected no limit, got %d", tt.input, sel.Limit)
		}
	}
}

func TestParseSelectClauses(t *testing.T) {
	input := "SELECT gid, SUM(v) FROM nums WHERE v > 1 AND NOT v = 5 " +
		"GROUP BY gid HAVING SUM(v) > 3 ORDER BY gid DESC LIMIT 10 OFFSET 2"

	stmt, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	sel := stmt.(*SelectStatement)

	expected := &SelectStatement{
		Fields:     []string{"gid", "SUM(v)"},
		From:       "nums",
		Where:      "v > 1 AND NOT v = 5",
		GroupBy:    []string{"gid"},
		Having:     "SUM(v) > 3",
		OrderBy:    []string{"gid"},
		Descending: true,
		Limit:      10,
		Offset:     2,
	}
	if !reflect.DeepEqual(sel, expected) {
		t.Errorf("expected %+v, got %+v", expected, sel)
	}
	if sel.String() != input {
		t.Errorf("expected String() %q, got %q", input, sel.String())
	}
}

func TestParseOrderBy(t *testing.T) {
	tests := []struct {
		input      string
		keys       []string
		descending bool
	}{
		{"SELECT * FROM t ORDER BY a", []string{"a"}, false},
		{"SELECT * FROM t ORDER BY a ASC, b", []string{"a", "b"}, false},
		{"SELECT * FROM t ORDER BY a DESC, b DESC", []string{"a", "b"}, true},
	}
	for _, tt := range tests {
		stmt, err := Parse(tt.input)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.input, err)
			continue
		}
		sel := stmt.(*SelectStatement)
		if !reflect.DeepEqual(sel.OrderBy, tt.keys) || sel.Descending != tt.descending {
			t.Errorf("Parse(%q): got keys %q descending %v", tt.input, sel.OrderBy, sel.Descending)
		}
	}
}

func TestParseInsert(t *testing.T) {
	stmt, err := Parse("INSERT INTO users (name, age) VALUES ('Alice', 30), ('Bob', 20 + 5)")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	ins, ok := stmt.(*InsertStatement)
	if !ok {
		t.Fatalf("expected InsertStatement, got %T", stmt)
	}
	if ins.Table != "users" {
		t.Errorf("expected table users, got %q", ins.Table)
	}
	if !reflect.DeepEqual(ins.Columns, []string{"name", "age"}) {
		t.Errorf("unexpected columns %q", ins.Columns)
	}
	expected := [][]string{{"'Alice'", "30"}, {"'Bob'", "20 + 5"}}
	if !reflect.DeepEqual(ins.Rows, expected) {
		t.Errorf("expected rows %q, got %q", expected, ins.Rows)
	}
}

func TestParseUpdate(t *testing.T) {
	stmt, err := Parse("UPDATE users SET age = 31, name = 'A, B' WHERE name = 'Alice'")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	upd := stmt.(*UpdateStatement)
	expected := []Assignment{{"age", "31"}, {"name", "'A, B'"}}
	if !reflect.DeepEqual(upd.Set, expected) {
		t.Errorf("expected %v, got %v", expected, upd.Set)
	}
	if upd.Where != "name = 'Alice'" {
		t.Errorf("unexpected where %q", upd.Where)
	}
}

func TestParseDelete(t *testing.T) {
	stmt, err := Parse("DELETE FROM users")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	del := stmt.(*DeleteStatement)
	if del.Table != "users" || del.Where != "" {
		t.Errorf("unexpected statement %+v", del)
	}
}

func TestParseCreateTable(t *testing.T) {
	stmt, err := Parse("CREATE TABLE users (id INTEGER NOT NULL, name VARCHAR(64) DEFAULT 'x' NOT NULL, score REAL NULL, seen timestamp)")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	create := stmt.(*CreateTableStatement)
	expected := []ColumnDefinition{
		{Name: "id", Type: "int", NotNull: true},
		{Name: "name", Type: "string", NotNull: true, Default: "'x'"},
		{Name: "score", Type: "float"},
		{Name: "seen", Type: "time"},
	}
	if !reflect.DeepEqual(create.Columns, expected) {
		t.Errorf("expected %+v, got %+v", expected, create.Columns)
	}
}

func TestParseDropTable(t *testing.T) {
	stmt, err := Parse("DROP TABLE users")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if drop := stmt.(*DropTableStatement); drop.Table != "users" {
		t.Errorf("expected users, got %q", drop.Table)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input   string
		message string
	}{
		{"", "end of input"},
		{"EXPLAIN SELECT", "at start of statement"},
		{"SELECT FROM users", "expected expression"},
		{"SELECT a users", "expected FROM"},
		{"SELECT a FROM", "expected IDENT"},
		{"SELECT a FROM t WHERE", "expected expression"},
		{"SELECT max(a FROM t", "unclosed bracket"},
		{"SELECT a FROM t ORDER BY a ASC, b DESC", "mixed sort directions"},
		{"SELECT a FROM t LIMIT x", "expected NUMBER"},
		{"SELECT a FROM t extra", "after statement"},
		{"SELECT 'a FROM t", "unterminated string"},
		{"INSERT INTO t (a, b) VALUES (1)", "1 values for 2 columns"},
		{"UPDATE t SET a 1", `expected "="`},
		{"CREATE TABLE t (a WIDGET)", "unknown column type"},
		{"DROP users", "expected TABLE"},
	}

	for _, tt := range tests {
		_, err := Parse(tt.input)
		if err == nil {
			t.Errorf("Parse(%q) expected error", tt.input)
			continue
		}
		if !errors.Is(err, ErrSyntax) {
			t.Errorf("Parse(%q) expected ErrSyntax, got %v", tt.input, err)
		}
		if !strings.Contains(err.Error(), tt.message) {
			t.Errorf("Parse(%q) expected error containing %q, got %v", tt.input, tt.message, err)
		}
	}
}
