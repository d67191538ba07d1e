package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/frootlab/rian-sub004/internal/workspace"
	"gotest.tools/assert"
)

// script runs the REPL over input and returns its output.
func script(t *testing.T, ws *workspace.Workspace, input string) string {
	t.Helper()
	var out bytes.Buffer
	newREPL(ws, strings.NewReader(input), &out, false).run(context.Background())
	return out.String()
}

func TestExpressions(t *testing.T) {
	out := script(t, workspace.New(nil), "1 + 2\n7 / 2\n\nx + 1\n.vocab sql\n1 = 1\n")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, len(lines), 4, out)
	assert.Equal(t, lines[0], "3")
	assert.Equal(t, lines[1], "3.5")
	assert.Assert(t, strings.HasPrefix(lines[2], "Error: "), lines[2])
	assert.Equal(t, lines[3], "True")
}

func TestStatements(t *testing.T) {
	ws := workspace.New(nil)
	out := script(t, ws, strings.Join([]string{
		"CREATE TABLE t (a INT NOT NULL, b TEXT DEFAULT 'z');",
		"INSERT INTO t VALUES (1, 'x'),",
		"  (2, 'y');",
		"select a, b FROM t",
		"  WHERE a > 1;",
		"SELECT a FROM missing;",
	}, "\n"))

	assert.Assert(t, strings.Contains(out, "Table 't' created\n"), out)
	assert.Assert(t, strings.Contains(out, "Inserted 2 rows\n"), out)
	assert.Assert(t, strings.Contains(out, "| 2 | y |\n"), out)
	assert.Assert(t, !strings.Contains(out, "| 1 | x |"), out)
	assert.Assert(t, strings.Contains(out, "(1 rows)\n"), out)
	assert.Assert(t, strings.Contains(out, "Error: table not found: missing\n"), out)
}

func TestUnterminatedStatementAtEOF(t *testing.T) {
	ws := workspace.New(nil)
	out := script(t, ws, "CREATE TABLE t (a INT)")
	assert.Equal(t, out, "Table 't' created\n")
	assert.DeepEqual(t, ws.Names(), []string{"t"})
}

func TestDotCommands(t *testing.T) {
	ws := workspace.New(nil)
	out := script(t, ws, strings.Join([]string{
		".tables",
		"CREATE TABLE t (a INT NOT NULL, b TEXT DEFAULT 'z');",
		"INSERT INTO t (a) VALUES (1), (2), (3);",
		".tables",
		".schema t",
		".select t a >= 2",
		".rollback t",
		".select t",
		".pack",
		".vocab",
		".vocab nope",
		".frobnicate",
		".quit",
		"1 + 1",
	}, "\n"))

	assert.Assert(t, strings.Contains(out, "No tables found.\n"), out)
	assert.Assert(t, strings.Contains(out, "Tables:\n  t (3 rows)\n"), out)
	assert.Assert(t, strings.Contains(out, "CREATE TABLE t (\n  a INT NOT NULL,\n  b STRING DEFAULT \"z\"\n);\n"), out)
	assert.Assert(t, strings.Contains(out, "| 2 | z |\n| 3 | z |\n"), out)
	assert.Assert(t, strings.Contains(out, "(no rows)\n"), out)
	assert.Assert(t, strings.Contains(out, "Usage: .pack TABLE\n"), out)
	assert.Assert(t, strings.Contains(out, "* calculator\n"), out)
	assert.Assert(t, strings.Contains(out, "Unknown command: .frobnicate\n"), out)
	assert.Assert(t, strings.HasSuffix(out, "Type '.help' for available commands.\n"), out)
}

func TestLoadAndCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fruits.csv")
	assert.NilError(t, os.WriteFile(path, []byte("name,qty\napple,3\npear,5\n"), 0o644))

	ws := workspace.New(nil)
	defer ws.Close()
	out := script(t, ws, strings.Join([]string{
		".load " + path,
		"UPDATE fruits SET qty = 0 WHERE name = 'pear';",
		".commit fruits",
		".load " + path,
		".load",
	}, "\n"))

	assert.Assert(t, strings.Contains(out, "Loaded table 'fruits' (2 rows)\n"), out)
	assert.Assert(t, strings.Contains(out, "Updated 1 row\n"), out)
	assert.Assert(t, strings.Contains(out, "table already exists"), out)
	assert.Assert(t, strings.Contains(out, "Usage: .load PATH [MODE]\n"), out)

	data, err := os.ReadFile(path)
	assert.NilError(t, err)
	assert.Equal(t, string(data), "name,qty\napple,3\npear,0\n")
}

func TestHelp(t *testing.T) {
	out := script(t, workspace.New(nil), ".help\n")
	for name := range dotCommands {
		assert.Assert(t, strings.Contains(out, name), name)
	}
	assert.Assert(t, strings.Contains(out, "SELECT fields FROM table"), out)
}
