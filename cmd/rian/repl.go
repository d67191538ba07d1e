package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/frootlab/rian-sub004/internal/expr"
	"github.com/frootlab/rian-sub004/internal/query"
	"github.com/frootlab/rian-sub004/internal/table"
	"github.com/frootlab/rian-sub004/internal/workspace"
)

// dotCommands are special commands starting with '.'
var dotCommands = map[string]string{
	".help":     "Show this help message",
	".quit":     "Exit the program",
	".exit":     "Exit the program (alias for .quit)",
	".tables":   "List all tables",
	".schema":   "Show schema for all tables or a specific table",
	".load":     "Load a table from a file: .load PATH [MODE]",
	".select":   "Show the rows of a table: .select TABLE [FILTER]",
	".commit":   "Commit pending changes of a table or of all tables",
	".rollback": "Discard pending changes of a table or of all tables",
	".pack":     "Renumber the rows of a table: .pack TABLE",
	".vocab":    "List vocabularies or switch to one: .vocab [NAME]",
	".clear":    "Clear the screen",
}

// statementKeywords start lines that are read up to a semicolon and run
// as statements. All other lines are expressions.
var statementKeywords = map[string]bool{
	"SELECT": true,
	"INSERT": true,
	"UPDATE": true,
	"DELETE": true,
	"CREATE": true,
	"DROP":   true,
}

// repl implements the Read-Eval-Print Loop.
type repl struct {
	ws          *workspace.Workspace
	exec        *query.Executor
	vocab       *expr.Vocabulary
	mode        table.ProxyMode
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

func newREPL(ws *workspace.Workspace, in io.Reader, out io.Writer, interactive bool) *repl {
	return &repl{
		ws:          ws,
		exec:        query.NewExecutor(ws),
		vocab:       expr.Calculator(),
		mode:        table.ProxyCache,
		in:          bufio.NewReader(in),
		out:         out,
		interactive: interactive,
	}
}

func (r *repl) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// run reads lines until the input ends or the user quits.
//
// EDUCATIONAL NOTE:
// -----------------
// Statements may span lines and end with a semicolon, like in any SQL
// shell. Expressions and dot commands are always a single line, so the
// REPL doubles as a calculator.
func (r *repl) run(ctx context.Context) {
	var inputBuffer strings.Builder

	for {
		if r.interactive {
			if inputBuffer.Len() == 0 {
				r.printf("rian> ")
			} else {
				r.printf(" ...> ")
			}
		}

		line, err := r.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			r.printf("Error reading input: %v\n", err)
			return
		}
		eof := err != nil
		line = strings.TrimSpace(line)

		switch {
		case line == "":
		case inputBuffer.Len() == 0 && strings.HasPrefix(line, "."):
			if r.handleDotCommand(ctx, line) {
				return
			}
		case inputBuffer.Len() > 0 || isStatement(line):
			inputBuffer.WriteString(line)
			input := inputBuffer.String()
			if strings.HasSuffix(input, ";") {
				inputBuffer.Reset()
				r.execute(ctx, input)
			} else {
				inputBuffer.WriteString(" ")
			}
		default:
			r.evaluate(line)
		}

		if eof {
			if inputBuffer.Len() > 0 {
				// run an unterminated last statement anyway
				r.execute(ctx, inputBuffer.String())
			}
			if r.interactive {
				r.printf("\nGoodbye!\n")
			}
			return
		}
	}
}

func isStatement(line string) bool {
	word, _, _ := strings.Cut(line, " ")
	return statementKeywords[strings.ToUpper(word)]
}

// printResult writes a result, followed by a newline if it has none.
func (r *repl) printResult(res *table.Result) {
	s := res.String()
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	io.WriteString(r.out, s)
}

func (r *repl) printError(err error) {
	r.printf("Error: %v\n", err)
}

// execute runs a statement.
func (r *repl) execute(ctx context.Context, input string) {
	res, err := r.exec.Run(ctx, input)
	if err != nil {
		r.printError(err)
		return
	}
	r.printResult(res)
}

// evaluate prints the value of an expression in the current vocabulary.
func (r *repl) evaluate(line string) {
	e, err := expr.Parse(line, expr.WithVocabulary(r.vocab))
	if err != nil {
		r.printError(err)
		return
	}
	v, err := e.EvalMap(nil)
	if err != nil {
		r.printError(err)
		return
	}
	r.printf("%s\n", expr.Str(v))
}

// handleDotCommand processes special dot commands. It reports whether
// the REPL should exit.
func (r *repl) handleDotCommand(ctx context.Context, cmd string) bool {
	parts := strings.Fields(cmd)
	args := parts[1:]

	switch parts[0] {
	case ".help":
		r.printHelp()

	case ".quit", ".exit":
		if r.interactive {
			r.printf("Goodbye!\n")
		}
		return true

	case ".tables":
		names := r.ws.Names()
		if len(names) == 0 {
			r.printf("No tables found.\n")
			break
		}
		r.printf("Tables:\n")
		for _, name := range names {
			info, err := r.ws.Info(name)
			if err != nil {
				continue
			}
			r.printf("  %s (%d %s)", name, info.Rows, plural(info.Rows, "row"))
			if info.Source != "" {
				r.printf(" from %s [%s]", info.Source, info.Mode)
			}
			r.printf("\n")
		}

	case ".schema":
		names := args
		if len(names) == 0 {
			names = r.ws.Names()
		}
		for _, name := range names {
			r.showTableSchema(name)
		}

	case ".load":
		if len(args) == 0 || len(args) > 2 {
			r.printf("Usage: .load PATH [MODE]\n")
			break
		}
		mode := r.mode
		if len(args) == 2 {
			m, err := table.ParseProxyMode(args[1])
			if err != nil {
				r.printError(err)
				break
			}
			mode = m
		}
		p, err := r.ws.Load(ctx, args[0], mode)
		if err != nil {
			r.printError(err)
			break
		}
		r.printf("Loaded table '%s' (%d %s)\n", p.Name(), p.Len(), plural(p.Len(), "row"))

	case ".select":
		if len(args) == 0 {
			r.printf("Usage: .select TABLE [FILTER]\n")
			break
		}
		filter := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cmd[len(".select"):]), args[0]))
		r.selectRows(args[0], filter)

	case ".commit", ".rollback":
		names := args
		if len(names) == 0 {
			names = r.ws.Names()
		}
		for _, name := range names {
			var err error
			if parts[0] == ".commit" {
				err = r.ws.Commit(ctx, name)
			} else {
				err = r.ws.Rollback(name)
			}
			if err != nil {
				r.printError(err)
			}
		}

	case ".pack":
		if len(args) != 1 {
			r.printf("Usage: .pack TABLE\n")
			break
		}
		err := r.ws.Do(args[0], func(t *table.Table) error {
			t.Pack()
			return nil
		})
		if err != nil {
			r.printError(err)
		}

	case ".vocab":
		if len(args) == 0 {
			for _, name := range expr.Groups() {
				marker := " "
				if name == r.vocab.Name() {
					marker = "*"
				}
				r.printf("%s %s\n", marker, name)
			}
			break
		}
		v, err := expr.Lookup(args[0])
		if err != nil {
			r.printError(err)
			break
		}
		r.vocab = v

	case ".clear":
		// ANSI escape code to clear screen
		r.printf("\033[H\033[2J")

	default:
		r.printf("Unknown command: %s\n", parts[0])
		r.printf("Type '.help' for available commands.\n")
	}
	return false
}

func (r *repl) printHelp() {
	names := make([]string, 0, len(dotCommands))
	for name := range dotCommands {
		names = append(names, name)
	}
	sort.Strings(names)

	r.printf("\nAvailable commands:\n")
	for _, name := range names {
		r.printf("  %-12s %s\n", name, dotCommands[name])
	}
	r.printf("\nStatements (end with ';'):\n")
	r.printf("  CREATE TABLE name (column type [NOT NULL] [DEFAULT value], ...)\n")
	r.printf("  DROP TABLE name\n")
	r.printf("  INSERT INTO table [(columns)] VALUES (values), ...\n")
	r.printf("  SELECT fields FROM table [WHERE e] [GROUP BY keys] [HAVING e] [ORDER BY keys [DESC]] [LIMIT n] [OFFSET n]\n")
	r.printf("  UPDATE table SET column = value, ... [WHERE e]\n")
	r.printf("  DELETE FROM table [WHERE e]\n")
	r.printf("\nAny other line is evaluated as an expression.\n\n")
}

// selectRows prints all rows of a table that pass filter, an expression
// in the current vocabulary.
func (r *repl) selectRows(name, filter string) {
	var res *table.Result
	err := r.ws.Do(name, func(t *table.Table) error {
		cur, err := t.Select(table.DType(table.RowTuple), table.WithVocabulary(r.vocab), table.Where(filter))
		if err != nil {
			return err
		}
		res, err = table.FetchResult(cur, -1)
		return err
	})
	if err != nil {
		r.printError(err)
		return
	}
	r.printResult(res)
}

// showTableSchema displays the schema of a table as a statement that
// recreates it.
func (r *repl) showTableSchema(name string) {
	info, err := r.ws.Info(name)
	if err != nil {
		r.printf("Table '%s' not found.\n", name)
		return
	}

	r.printf("CREATE TABLE %s (\n", name)
	for i, col := range info.Columns {
		suffix := ""
		if col.NotNull {
			suffix = " NOT NULL"
		}
		if col.Default != nil {
			suffix += " DEFAULT " + literal(col.Default)
		}
		comma := ","
		if i == len(info.Columns)-1 {
			comma = ""
		}
		r.printf("  %s %s%s%s\n", col.Name, strings.ToUpper(col.Type.String()), suffix, comma)
	}
	r.printf(");\n")
}

// literal formats a default value the way statements accept it.
func literal(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case []byte:
		return strconv.Quote(string(x))
	case time.Time:
		return strconv.Quote(x.Format(time.RFC3339))
	case bool:
		return strings.ToUpper(strconv.FormatBool(x))
	}
	return expr.Str(v)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
