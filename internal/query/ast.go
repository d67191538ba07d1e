package query

import (
	"fmt"
	"strings"
)

// Statement is a parsed statement. Expressions are kept as source text.
type Statement interface {
	statement()
	String() string
}

// ============================================================================
// Statements
// ============================================================================

// SelectStatement represents a SELECT query.
//
// Example: SELECT name, age FROM users WHERE age > 18 ORDER BY name LIMIT 10
type SelectStatement struct {
	Fields     []string // Field expressions, empty for *
	From       string
	Where      string
	GroupBy    []string
	Having     string
	OrderBy    []string
	Descending bool
	Limit      int // -1 for no limit
	Offset     int
}

func (s *SelectStatement) statement() {}
func (s *SelectStatement) String() string {
	fields := "*"
	if len(s.Fields) > 0 {
		fields = strings.Join(s.Fields, ", ")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", fields, s.From)
	if s.Where != "" {
		fmt.Fprintf(&sb, " WHERE %s", s.Where)
	}
	if len(s.GroupBy) > 0 {
		fmt.Fprintf(&sb, " GROUP BY %s", strings.Join(s.GroupBy, ", "))
	}
	if s.Having != "" {
		fmt.Fprintf(&sb, " HAVING %s", s.Having)
	}
	if len(s.OrderBy) > 0 {
		fmt.Fprintf(&sb, " ORDER BY %s", strings.Join(s.OrderBy, ", "))
		if s.Descending {
			sb.WriteString(" DESC")
		}
	}
	if s.Limit >= 0 {
		fmt.Fprintf(&sb, " LIMIT %d", s.Limit)
	}
	if s.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", s.Offset)
	}
	return sb.String()
}

// InsertStatement represents an INSERT query. Each row holds one value
// expression per column.
//
// Example: INSERT INTO users (name, age) VALUES ('Alice', 30), ('Bob', 25)
type InsertStatement struct {
	Table   string
	Columns []string
	Rows    [][]string
}

func (s *InsertStatement) statement() {}
func (s *InsertStatement) String() string {
	return fmt.Sprintf("INSERT INTO %s (%d rows)", s.Table, len(s.Rows))
}

// Assignment is one column = value pair of an UPDATE.
type Assignment struct {
	Column string
	Value  string
}

// UpdateStatement represents an UPDATE query.
//
// Example: UPDATE users SET age = 31 WHERE name = 'Alice'
type UpdateStatement struct {
	Table string
	Set   []Assignment
	Where string
}

func (s *UpdateStatement) statement() {}
func (s *UpdateStatement) String() string {
	return fmt.Sprintf("UPDATE %s SET %d columns", s.Table, len(s.Set))
}

// DeleteStatement represents a DELETE query.
//
// Example: DELETE FROM users WHERE age < 18
type DeleteStatement struct {
	Table string
	Where string
}

func (s *DeleteStatement) statement() {}
func (s *DeleteStatement) String() string {
	return fmt.Sprintf("DELETE FROM %s", s.Table)
}

// ColumnDefinition is one column of a CREATE TABLE.
type ColumnDefinition struct {
	Name    string
	Type    string // a record type name
	NotNull bool
	Default string // value expression, empty for none
}

// CreateTableStatement represents a CREATE TABLE statement.
//
// Example: CREATE TABLE users (id INT NOT NULL, name TEXT DEFAULT 'anonymous')
type CreateTableStatement struct {
	Table   string
	Columns []ColumnDefinition
}

func (s *CreateTableStatement) statement() {}
func (s *CreateTableStatement) String() string {
	return fmt.Sprintf("CREATE TABLE %s (%d columns)", s.Table, len(s.Columns))
}

// DropTableStatement represents a DROP TABLE statement.
type DropTableStatement struct {
	Table string
}

func (s *DropTableStatement) statement() {}
func (s *DropTableStatement) String() string {
	return "DROP TABLE " + s.Table
}
