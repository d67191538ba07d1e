// Package csvfile connects tables to files of delimiter-separated values.
//
// EDUCATIONAL NOTES:
// ------------------
// A CSV file carries less structure than a table, so some of it has to be
// guessed when the file is opened:
//
//	# owner = alice          <- comment lines: table metadata
//	# version = 2
//
//	id,name,score            <- header: column names
//	1,apple,0.5              <- rows: column types are estimated from
//	2,pear,1.25                 the first two rows
//
// The delimiter is detected from the header and the first row. When the
// header has one field less than the rows, the first column holds row
// names, as written by R. That column gets the name "_name".
//
// The table name is the base name of the file up to the first dot.

package csvfile

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/frootlab/rian-sub004/internal/logger"
	"github.com/frootlab/rian-sub004/internal/record"
	"github.com/frootlab/rian-sub004/internal/table"
)

// Errors returned by the CSV source.
var (
	ErrFormat       = errors.New("invalid csv file")
	ErrNoDefinition = errors.New("csv file does not exist and no columns were given")
)

var delimiters = []rune{',', '\t', ';', ' ', ':', '|'}

// File is a table.Source backed by a CSV file.
type File struct {
	path      string
	delimiter rune
	columns   []record.Column
	metadata  map[string]any
	log       *logger.Logger
}

// Option configures a File.
type Option func(*File)

// WithDelimiter fixes the delimiter instead of detecting it.
func WithDelimiter(r rune) Option {
	return func(f *File) { f.delimiter = r }
}

// WithColumns sets the columns of a file that does not exist yet.
func WithColumns(columns []record.Column, metadata map[string]any) Option {
	return func(f *File) {
		f.columns = columns
		f.metadata = metadata
	}
}

// WithLogger sets the logger of the source.
func WithLogger(l *logger.Logger) Option {
	return func(f *File) { f.log = l }
}

// New returns a source for the CSV file at path.
func New(path string, opts ...Option) *File {
	f := &File{path: path}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = logger.Discard()
	}
	return f
}

// Open connects a proxy to the CSV file at path.
func Open(ctx context.Context, path string, mode table.ProxyMode, opts ...Option) (*table.Proxy, error) {
	f := New(path, opts...)
	return table.NewProxy(ctx, f, mode, table.WithLogger(f.log))
}

// TableName derives a table name from a file path.
func TableName(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return identifier(base, "table")
}

// layout is what Connect learns about an existing file.
type layout struct {
	comment   []string
	header    []string
	rows      [][]string
	delimiter rune
	rowNames  bool
}

// Connect defines the table from the file header, or from the given
// columns when the file does not exist.
func (f *File) Connect(_ context.Context, t *table.Table) error {
	l, err := f.scan(3)
	if errors.Is(err, os.ErrNotExist) {
		if f.columns == nil {
			return ErrNoDefinition
		}
		if f.delimiter == 0 {
			f.delimiter = ','
		}
		return t.Create(TableName(f.path), f.columns, f.metadata)
	}
	if err != nil {
		return err
	}
	f.delimiter = l.delimiter
	names := columnNames(l.header, l.rowNames)
	cols := make([]record.Column, len(names))
	for i, name := range names {
		cols[i] = record.Column{Name: name, Type: estimateColumn(l.rows, i)}
	}
	f.log.Debugf("csv %s: %d columns, delimiter %q", f.path, len(cols), l.delimiter)
	return t.Create(TableName(f.path), cols, decodeMetadata(l.comment))
}

// Close is a no-op; the file is only open during Pull and Push.
func (f *File) Close() error { return nil }

// Pull inserts all rows of the file and merges the comment metadata.
func (f *File) Pull(ctx context.Context, t *table.Table) error {
	fh, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer fh.Close()

	comment, body, err := splitComment(fh)
	if err != nil {
		return err
	}
	t.SetMetadata(decodeMetadata(comment))
	t.SetName(TableName(f.path))

	r := f.reader(body)
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrFormat, f.path, err)
	}
	cols := t.Columns()
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrFormat, f.path, err)
		}
		if len(fields) != len(cols) {
			return fmt.Errorf("%w: %s: row %d has %d fields, want %d", ErrFormat, f.path, line, len(fields), len(cols))
		}
		row := make([]any, len(fields))
		for i, s := range fields {
			if row[i], err = decodeField(s, cols[i].Type); err != nil {
				return fmt.Errorf("%w: %s: row %d: column %q: %v", ErrFormat, f.path, line, cols[i].Name, err)
			}
		}
		if err := t.Insert(row); err != nil {
			return fmt.Errorf("%s: row %d: %w", f.path, line, err)
		}
	}
}

// Push rewrites the file from the visible rows of the table.
func (f *File) Push(ctx context.Context, t *table.Table) error {
	names := make([]string, 0, len(t.Columns()))
	for _, c := range t.Columns() {
		names = append(names, c.Name)
	}
	cur, err := t.Select(table.Columns(names...))
	if err != nil {
		return err
	}
	rows, err := cur.Fetch(-1)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	for _, line := range encodeMetadata(t.Metadata()) {
		fmt.Fprintf(bw, "# %s\n", line)
	}
	if len(t.Metadata()) > 0 {
		bw.WriteString("\n")
	}
	w := csv.NewWriter(bw)
	w.Comma = f.delimiter
	if err := w.Write(names); err != nil {
		tmp.Close()
		return err
	}
	for _, v := range rows {
		if err := ctx.Err(); err != nil {
			tmp.Close()
			return err
		}
		values := v.([]any)
		fields := make([]string, len(values))
		for i, x := range values {
			fields[i] = encodeField(x)
		}
		if err := w.Write(fields); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	f.log.Debugf("csv %s: wrote %d rows", f.path, len(rows))
	return os.Rename(tmp.Name(), f.path)
}

func (f *File) reader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = f.delimiter
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = f.delimiter != ' '
	return cr
}

// scan reads the comment, the header and up to n-1 rows.
func (f *File) scan(n int) (*layout, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	comment, body, err := splitComment(fh)
	if err != nil {
		return nil, err
	}
	var lines []string
	sc := bufio.NewScanner(body)
	for len(lines) < n && sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: %s has no header", ErrFormat, f.path)
	}

	l := &layout{comment: comment, delimiter: f.delimiter}
	if l.delimiter == 0 {
		l.delimiter = sniff(lines)
	}
	f.delimiter = l.delimiter
	records, err := f.reader(strings.NewReader(strings.Join(lines, "\n"))).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, f.path, err)
	}
	l.header, l.rows = records[0], records[1:]
	if len(l.rows) > 0 {
		switch len(l.rows[0]) - len(l.header) {
		case 0:
		case 1:
			l.rowNames = true
		default:
			return nil, fmt.Errorf("%w: %s: header has %d fields, first row %d", ErrFormat, f.path, len(l.header), len(l.rows[0]))
		}
	}
	return l, nil
}

// splitComment reads the leading comment and blank lines of r. The
// returned reader continues with the first content line.
func splitComment(r io.Reader) ([]string, io.Reader, error) {
	br := bufio.NewReader(r)
	var comment []string
	for {
		peek, err := br.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return comment, br, nil
			}
			return nil, nil, err
		}
		if peek[0] != '#' && peek[0] != '\n' && peek[0] != '\r' {
			return comment, br, nil
		}
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, nil, err
		}
		if s := strings.TrimSpace(line); strings.HasPrefix(s, "#") {
			comment = append(comment, strings.TrimSpace(strings.TrimPrefix(s, "#")))
		}
		if err != nil {
			return comment, br, nil
		}
	}
}

// sniff picks the first candidate delimiter that splits the header and
// the first row into a consistent number of fields.
func sniff(lines []string) rune {
	if len(lines) < 2 {
		for _, d := range delimiters {
			if strings.ContainsRune(lines[0], d) {
				return d
			}
		}
		return ','
	}
	for _, d := range delimiters {
		h := strings.Count(lines[0], string(d))
		r := strings.Count(lines[1], string(d))
		if r > 0 && (h == r || h == r-1) {
			return d
		}
	}
	return ','
}

// columnNames turns header fields into unique identifiers.
func columnNames(header []string, rowNames bool) []string {
	raw := make([]string, 0, len(header)+1)
	if rowNames {
		raw = append(raw, "_name")
	}
	raw = append(raw, header...)

	names := make([]string, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, s := range raw {
		name := identifier(strings.Trim(s, "\"' \t"), fmt.Sprintf("col%d", i))
		for j, base := 1, name; seen[name]; j++ {
			name = fmt.Sprintf("%s_%d", base, j)
		}
		seen[name] = true
		names[i] = name
	}
	return names
}

// identifier replaces characters that are not allowed in column names.
func identifier(s, fallback string) string {
	if s == "" {
		return fallback
	}
	b := []byte(s)
	for i, c := range b {
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			b[i] = '_'
		}
	}
	if b[0] >= '0' && b[0] <= '9' {
		b = append([]byte{'_'}, b...)
	}
	return string(b)
}

// estimateColumn returns the type of column i if the sampled rows agree
// on it, and String otherwise.
func estimateColumn(rows [][]string, i int) record.Type {
	typ := record.Any
	for _, row := range rows {
		if i >= len(row) {
			return record.String
		}
		t := estimate(row[i])
		if typ != record.Any && t != typ {
			return record.String
		}
		typ = t
	}
	if typ == record.Any {
		return record.String
	}
	return typ
}

func estimate(s string) record.Type {
	s = strings.TrimSpace(s)
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return record.Int
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return record.Float
	}
	return record.String
}

func decodeField(s string, typ record.Type) (any, error) {
	if typ == record.String || typ == record.Any {
		return s, nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	switch typ {
	case record.Int:
		return strconv.ParseInt(s, 10, 64)
	case record.Float:
		return strconv.ParseFloat(s, 64)
	case record.Bool:
		return strconv.ParseBool(s)
	}
	return s, nil
}

func encodeField(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}
