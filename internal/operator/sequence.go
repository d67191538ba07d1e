package operator

import (
	"iter"
	"sort"

	"github.com/frootlab/rian-sub004/internal/expr"
)

// SeqFunc transforms a sequence of domain values.
type SeqFunc func(seq []any) ([]any, error)

// AggFunc reduces a sequence of domain values to one value.
type AggFunc func(seq []any) (any, error)

func keyGetter(keys []any, domain Domain) (*Operator, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return Getter(keys, domain, Domain{})
}

type keyed struct {
	key any
	row any
}

func keyRows(seq []any, getter *Operator) ([]keyed, error) {
	out := make([]keyed, len(seq))
	for i, row := range seq {
		k := row
		if getter != nil {
			var err error
			if k, err = getter.fn(row); err != nil {
				return nil, err
			}
		}
		out[i] = keyed{key: k, row: row}
	}
	return out, nil
}

func sortKeyed(ks []keyed, reverse bool) {
	sort.SliceStable(ks, func(i, j int) bool {
		c := expr.Compare(ks[i].key, ks[j].key)
		if reverse {
			return c > 0
		}
		return c < 0
	})
}

// Sorter returns a stable sort of sequences by the given keys, compared
// with expr.Compare. Without keys the values themselves are compared.
func Sorter(keys []any, domain Domain, reverse bool) (SeqFunc, error) {
	getter, err := keyGetter(keys, domain)
	if err != nil {
		return nil, err
	}
	return func(seq []any) ([]any, error) {
		ks, err := keyRows(seq, getter)
		if err != nil {
			return nil, err
		}
		sortKeyed(ks, reverse)
		out := make([]any, len(ks))
		for i, k := range ks {
			out[i] = k.row
		}
		return out, nil
	}, nil
}

// Grouper returns a partition of sequences into maximal runs of equal
// keys. The sequence is sorted by the keys first unless presorted is
// set. Without keys the whole sequence is one group. An empty sequence
// has no groups.
func Grouper(keys []any, domain Domain, presorted bool) (func(seq []any) ([][]any, error), error) {
	if len(keys) == 0 {
		return func(seq []any) ([][]any, error) {
			if len(seq) == 0 {
				return nil, nil
			}
			return [][]any{seq}, nil
		}, nil
	}
	getter, err := keyGetter(keys, domain)
	if err != nil {
		return nil, err
	}
	return func(seq []any) ([][]any, error) {
		ks, err := keyRows(seq, getter)
		if err != nil {
			return nil, err
		}
		if !presorted {
			sortKeyed(ks, false)
		}
		var groups [][]any
		for i, k := range ks {
			if i == 0 || !expr.Equal(ks[i-1].key, k.key) {
				groups = append(groups, nil)
			}
			groups[len(groups)-1] = append(groups[len(groups)-1], k.row)
		}
		return groups, nil
	}, nil
}

// First returns the first element of a column, or nil for an empty one.
// It is the default aggregate of variables declared without a function.
var First = &Operator{name: "First", fields: []any{0}, fn: func(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, arityError(1, len(args))
	}
	col, ok := Tuple(args[0])
	if !ok || len(col) == 0 {
		return nil, nil
	}
	return col[0], nil
}}

// Aggregator returns a function that transposes a sequence of domain
// values into columns, one per field, and applies the vector of
// variables to the columns. Variables without a function take the first
// element of their column.
func Aggregator(defs []VarDef, domain, target Domain, opts ...Option) (AggFunc, error) {
	if len(defs) == 0 {
		zero, err := Zero(target)
		if err != nil {
			return nil, err
		}
		return func([]any) (any, error) { return zero.fn() }, nil
	}
	o := newOptions(append([]Option{WithDefault(First)}, opts...))
	vars, union, err := resolveAll(defs, o)
	if err != nil {
		return nil, err
	}
	matrix, err := Getter(union, domain, Domain{Kind: Sequence})
	if err != nil {
		return nil, err
	}
	if target.Kind == Args {
		target = Domain{Kind: Sequence}
	}
	vec, err := vector(vars, union, NewDomain(Args, union...), target)
	if err != nil {
		return nil, err
	}
	return func(seq []any) (any, error) {
		cols := make([]any, len(union))
		for j := range cols {
			cols[j] = make([]any, len(seq))
		}
		for i, row := range seq {
			v, err := matrix.fn(row)
			if err != nil {
				return nil, err
			}
			values, _ := Tuple(v)
			for j := range cols {
				cols[j].([]any)[i] = values[j]
			}
		}
		return vec.fn(cols...)
	}, nil
}

// GroupAggregator groups a sequence by key and aggregates every group.
// The result is lazy: groups are aggregated while the iterator is
// consumed, and an error ends the iteration.
func GroupAggregator(defs []VarDef, key []any, domain, target Domain, presorted bool, opts ...Option) (func(seq []any) iter.Seq2[any, error], error) {
	group, err := Grouper(key, domain, presorted)
	if err != nil {
		return nil, err
	}
	agg, err := Aggregator(defs, domain, target, opts...)
	if err != nil {
		return nil, err
	}
	return func(seq []any) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			groups, err := group(seq)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, g := range groups {
				row, err := agg(g)
				if !yield(row, err) || err != nil {
					return
				}
			}
		}
	}, nil
}
