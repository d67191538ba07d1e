package table

import (
	"errors"
	"fmt"
	"iter"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/frootlab/rian-sub004/internal/expr"
	"github.com/frootlab/rian-sub004/internal/operator"
	"github.com/frootlab/rian-sub004/internal/record"
)

// Mode is the traversal and materialization bitmask of a cursor.
type Mode int

const (
	// Buffered cursors materialize their rows once at construction.
	Buffered Mode = 1 << iota
	// Indexed cursors walk a private copy of the table index.
	Indexed
	// Scrollable cursors can change their position.
	Scrollable
	// Random cursors sample rows uniformly.
	Random
)

// Static is the mode of fully materialized cursors.
const Static = Buffered | Indexed

// ParseMode resolves space separated mode names: static, indexed,
// dynamic, forward, scrollable and random.
func ParseMode(s string) (Mode, error) {
	var m Mode
	for _, name := range strings.Fields(strings.ToLower(s)) {
		switch name {
		case "static":
			m |= Static
		case "indexed":
			m |= Indexed
		case "dynamic", "forward":
		case "scrollable":
			m |= Scrollable
		case "random":
			m |= Random
		default:
			return 0, &ModeError{Mode: s}
		}
	}
	if m&Random != 0 {
		m &^= Scrollable
	}
	return m, nil
}

func (m Mode) String() string {
	var parts []string
	switch {
	case m&Random != 0:
		parts = append(parts, "random")
	case m&Scrollable != 0:
		parts = append(parts, "scrollable")
	}
	switch {
	case m&Buffered != 0:
		parts = append(parts, "static")
	case m&Indexed != 0:
		parts = append(parts, "indexed")
	default:
		parts = append(parts, "dynamic")
	}
	return strings.Join(parts, " ")
}

// RowType selects the shape of the rows a cursor returns.
type RowType int

const (
	RowTuple RowType = iota
	RowDict
	RowRecord
)

var rowTypeNames = [...]string{"tuple", "dict", "record"}

func (r RowType) String() string {
	if r >= 0 && int(r) < len(rowTypeNames) {
		return rowTypeNames[r]
	}
	return fmt.Sprintf("RowType(%d)", int(r))
}

// ParseRowType resolves a row type name.
func ParseRowType(name string) (RowType, error) {
	if i := slices.Index(rowTypeNames[:], strings.ToLower(name)); i >= 0 {
		return RowType(i), nil
	}
	return 0, fmt.Errorf("%w: unknown row type %q", ErrCursor, name)
}

func (r RowType) target() operator.Domain {
	if r == RowDict {
		return operator.Domain{Kind: operator.Mapping}
	}
	return operator.Domain{Kind: operator.Sequence}
}

// Predicate filters rows.
type Predicate func(row any) (bool, error)

type selectConfig struct {
	fields    []operator.VarDef
	where     any
	groupby   []string
	having    any
	orderby   []string
	reverse   bool
	dtype     RowType
	dtypeSet  bool
	batchsize int
	mode      string
	vocab     *expr.Vocabulary
	rng       *rand.Rand
}

// SelectOption configures a cursor.
type SelectOption func(*selectConfig)

func newSelectConfig(opts []SelectOption) *selectConfig {
	cfg := &selectConfig{batchsize: 1, vocab: expr.Calculator()}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Fields selects computed or plain fields.
func Fields(defs ...operator.VarDef) SelectOption {
	return func(c *selectConfig) { c.fields = append(c.fields, defs...) }
}

// Columns selects plain columns by name.
func Columns(names ...string) SelectOption {
	return func(c *selectConfig) {
		for _, name := range names {
			c.fields = append(c.fields, operator.Var(name))
		}
	}
}

// Where filters rows by an expression string or a Predicate.
func Where(w any) SelectOption {
	return func(c *selectConfig) { c.where = w }
}

// GroupBy aggregates rows with equal key columns.
func GroupBy(keys ...string) SelectOption {
	return func(c *selectConfig) { c.groupby = append(c.groupby, keys...) }
}

// Having filters aggregated rows. Expressions refer to field names.
func Having(h any) SelectOption {
	return func(c *selectConfig) { c.having = h }
}

// OrderBy sorts rows by key columns, or by field names when grouped.
func OrderBy(keys ...string) SelectOption {
	return func(c *selectConfig) { c.orderby = append(c.orderby, keys...) }
}

// Reverse reverses the sort order.
func Reverse() SelectOption {
	return func(c *selectConfig) { c.reverse = true }
}

// DType sets the row type.
func DType(t RowType) SelectOption {
	return func(c *selectConfig) {
		c.dtype = t
		c.dtypeSet = true
	}
}

// BatchSize sets the default size of Fetch.
func BatchSize(n int) SelectOption {
	return func(c *selectConfig) { c.batchsize = n }
}

// WithMode sets the cursor mode by name, see ParseMode.
func WithMode(mode string) SelectOption {
	return func(c *selectConfig) { c.mode = mode }
}

// WithVocabulary sets the vocabulary of filter and field expressions.
func WithVocabulary(v *expr.Vocabulary) SelectOption {
	return func(c *selectConfig) {
		if v != nil {
			c.vocab = v
		}
	}
}

// WithRand sets the source of random cursors.
func WithRand(r *rand.Rand) SelectOption {
	return func(c *selectConfig) { c.rng = r }
}

// Cursor iterates the rows of a table. It reads rows through a getter
// and never changes the table.
type Cursor struct {
	mode      Mode
	getter    func(id int) (*record.Record, error)
	index     []int
	where     Predicate
	groupby   func(seq []any) iter.Seq2[any, error]
	having    Predicate
	sorter    operator.SeqFunc
	mapper    *operator.Operator
	names     []string
	buffer    []any
	pos       int
	batchsize int
	intn      func(n int) int
}

func predicate(v any, domain operator.Domain, vocab *expr.Vocabulary) (Predicate, error) {
	switch w := v.(type) {
	case nil:
		return nil, nil
	case Predicate:
		return w, nil
	case func(any) (bool, error):
		return w, nil
	case string:
		if strings.TrimSpace(w) == "" {
			return nil, nil
		}
		op, err := operator.Lambda(w, domain, operator.WithVocabulary(vocab))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCursor, err)
		}
		return func(row any) (bool, error) {
			v, err := op.Call(row)
			if err != nil {
				return false, err
			}
			return expr.Truth(v), nil
		}, nil
	}
	return nil, fmt.Errorf("%w: filter of type %T", ErrCursor, v)
}

func keys(names []string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}

// newCursor builds the cursor in a fixed order: mode, filter, aggregator,
// sorter, mapper, index copy, buffer.
func newCursor(getter func(int) (*record.Record, error), index []int, cfg *selectConfig) (*Cursor, error) {
	c := &Cursor{getter: getter, batchsize: max(cfg.batchsize, 1), intn: rand.IntN}
	if cfg.rng != nil {
		c.intn = cfg.rng.IntN
	}
	grouped := len(cfg.groupby) > 0
	sorted := len(cfg.orderby) > 0 || cfg.reverse
	vocab := operator.WithVocabulary(cfg.vocab)
	structs := operator.Domain{Kind: operator.Struct}

	switch {
	case cfg.mode != "":
		m, err := ParseMode(cfg.mode)
		if err != nil {
			return nil, err
		}
		c.mode = m
	case grouped || sorted:
		c.mode = Static
	default:
		c.mode = Indexed
	}

	var err error
	if c.where, err = predicate(cfg.where, structs, cfg.vocab); err != nil {
		return nil, err
	}

	names := make([]any, len(cfg.fields))
	for i, def := range cfg.fields {
		v, err := operator.Resolve(def, vocab)
		if err != nil {
			return nil, err
		}
		names[i] = v.Name
		c.names = append(c.names, operator.KeyString(v.Name))
	}
	tuples := operator.NewDomain(operator.Sequence, names...)

	if grouped {
		if err := c.require("grouping"); err != nil {
			return nil, err
		}
		if len(cfg.fields) == 0 {
			return nil, fmt.Errorf("%w: grouping requires fields", ErrCursor)
		}
		c.groupby, err = operator.GroupAggregator(cfg.fields, keys(cfg.groupby), structs, operator.Domain{Kind: operator.Sequence}, false, vocab)
		if err != nil {
			return nil, err
		}
		if c.having, err = predicate(cfg.having, tuples, cfg.vocab); err != nil {
			return nil, err
		}
	}

	if sorted {
		if err := c.require("sorting"); err != nil {
			return nil, err
		}
		domain := structs
		if grouped {
			domain = tuples
		}
		if c.sorter, err = operator.Sorter(keys(cfg.orderby), domain, cfg.reverse); err != nil {
			return nil, err
		}
	}

	switch {
	case grouped:
		if cfg.dtype == RowRecord {
			return nil, fmt.Errorf("%w: grouped rows are not records", ErrCursor)
		}
		c.mapper, err = operator.Getter(names, tuples, cfg.dtype.target())
	case len(cfg.fields) > 0:
		if cfg.dtype == RowRecord {
			return nil, fmt.Errorf("%w: record rows cannot have fields", ErrCursor)
		}
		c.mapper, err = operator.Vector(cfg.fields, structs, cfg.dtype.target(), vocab)
	case cfg.dtypeSet && cfg.dtype != RowRecord:
		return nil, fmt.Errorf("%w: %s rows require fields", ErrCursor, cfg.dtype)
	}
	if err != nil {
		return nil, err
	}

	c.index = slices.Clone(index)
	if c.mode&Buffered != 0 {
		if err := c.materialize(); err != nil {
			return nil, err
		}
	}
	c.Reset()
	return c, nil
}

func (c *Cursor) require(proc string) error {
	if c.mode&Random != 0 || c.mode&Buffered == 0 {
		return &ModeError{Mode: c.mode.String(), Proc: proc}
	}
	return nil
}

func (c *Cursor) materialize() error {
	seq := make([]any, 0, len(c.index))
	for _, id := range c.index {
		row, ok, err := c.visit(id)
		if err != nil {
			return err
		}
		if ok {
			seq = append(seq, row)
		}
	}
	if c.groupby != nil {
		var groups []any
		for row, err := range c.groupby(seq) {
			if err != nil {
				return err
			}
			if c.having != nil {
				ok, err := c.having(row)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
			}
			groups = append(groups, row)
		}
		seq = groups
	}
	if c.sorter != nil {
		var err error
		if seq, err = c.sorter(seq); err != nil {
			return err
		}
	}
	c.buffer = seq
	return nil
}

// visit reads a row and applies the filter.
func (c *Cursor) visit(id int) (any, bool, error) {
	r, err := c.getter(id)
	if err != nil || r == nil {
		return nil, false, err
	}
	if c.where != nil {
		ok, err := c.where(r)
		if err != nil || !ok {
			return nil, false, err
		}
	}
	return r, true, nil
}

// Mode returns the cursor mode.
func (c *Cursor) Mode() Mode { return c.mode }

// Names returns the names of the selected fields, or nil for a cursor
// returning records.
func (c *Cursor) Names() []string { return slices.Clone(c.names) }

// Reset positions the cursor before the first row. A buffer is not
// recomputed.
func (c *Cursor) Reset() {
	c.pos = 0
}

// Next returns the next row, or ErrExhausted.
func (c *Cursor) Next() (any, error) {
	row, err := c.next()
	if err != nil {
		return nil, err
	}
	if c.mapper == nil {
		return row, nil
	}
	return c.mapper.Call(row)
}

func (c *Cursor) next() (any, error) {
	if c.mode&Buffered != 0 {
		n := len(c.buffer)
		switch {
		case n == 0 || (c.mode&Random == 0 && c.pos >= n):
			return nil, ErrExhausted
		case c.mode&Random != 0:
			return c.buffer[c.intn(n)], nil
		}
		c.pos++
		return c.buffer[c.pos-1], nil
	}
	if c.mode&Random != 0 {
		return c.sample()
	}
	for c.pos < len(c.index) {
		c.pos++
		row, ok, err := c.visit(c.index[c.pos-1])
		if err != nil {
			return nil, err
		}
		if ok {
			return row, nil
		}
	}
	return nil, ErrExhausted
}

// sample draws random index entries until one passes the filter. It
// gives up after as many draws as the index has entries.
func (c *Cursor) sample() (any, error) {
	for range len(c.index) {
		row, ok, err := c.visit(c.index[c.intn(len(c.index))])
		if err != nil {
			return nil, err
		}
		if ok {
			return row, nil
		}
	}
	return nil, ErrExhausted
}

// Fetch returns up to size rows. Zero fetches the batch size and a
// negative size fetches all remaining rows.
func (c *Cursor) Fetch(size int) ([]any, error) {
	if size == 0 {
		size = c.batchsize
	}
	if size < 0 && c.mode&Random != 0 {
		return nil, &ModeError{Mode: c.mode.String(), Proc: "fetching all rows"}
	}
	rows := []any{}
	for size < 0 || len(rows) < size {
		row, err := c.Next()
		if errors.Is(err, ErrExhausted) {
			break
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RowCount returns the number of rows of the cursor, if it is known
// without scanning.
func (c *Cursor) RowCount() (int, error) {
	switch {
	case c.mode&Random != 0:
		return 0, &ModeError{Mode: c.mode.String(), Proc: "counting rows"}
	case c.mode&Buffered != 0:
		return len(c.buffer), nil
	case c.where != nil:
		return 0, &ModeError{Mode: c.mode.String(), Proc: "counting filtered rows"}
	}
	return len(c.index), nil
}

// Scroll moves the position of a scrollable cursor, either to n or by n.
func (c *Cursor) Scroll(n int, relative bool) error {
	if c.mode&Scrollable == 0 {
		return &ModeError{Mode: c.mode.String(), Proc: "scrolling"}
	}
	pos := n
	if relative {
		pos = c.pos + n
	}
	size := len(c.index)
	if c.mode&Buffered != 0 {
		size = len(c.buffer)
	}
	if pos < 0 || pos > size {
		return fmt.Errorf("%w: %d of %d", ErrPosition, pos, size)
	}
	c.pos = pos
	return nil
}
