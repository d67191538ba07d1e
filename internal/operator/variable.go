package operator

import (
	"fmt"

	"github.com/frootlab/rian-sub004/internal/expr"
)

// VarDef declares a variable: a named function of zero or more fields.
// Use the constructors Var, VarOf, VarFunc and VarExpr.
type VarDef struct {
	Name   any
	Func   Func
	Expr   string
	Fields []any
}

// Var declares a variable by name. An identifier (or any non string id)
// names a field read with the default operator; any other string is an
// expression over the fields it mentions.
func Var(name any) VarDef {
	return VarDef{Name: name}
}

// VarOf declares a variable that applies the default operator to fields.
func VarOf(name any, fields ...any) VarDef {
	return VarDef{Name: name, Fields: fields}
}

// VarFunc declares a variable computed by f from fields. Without fields
// f reads the field called name.
func VarFunc(name any, f Func, fields ...any) VarDef {
	return VarDef{Name: name, Func: f, Fields: fields}
}

// VarExpr declares a variable computed by an expression. Without fields
// the expression's own variables are used, in order of occurrence.
// Fields whose names the expression does not use are bound to its
// variables by position.
func VarExpr(name any, expression string, fields ...any) VarDef {
	return VarDef{Name: name, Expr: expression, Fields: fields}
}

// Variable is a resolved VarDef: the operator receives the values of
// Fields as positional arguments.
type Variable struct {
	Name   any
	Op     *Operator
	Fields []any
}

// Resolve turns a definition into a variable. Definitions without a
// function use the WithDefault operator, or identity.
func Resolve(def VarDef, opts ...Option) (Variable, error) {
	o := newOptions(opts)
	return resolve(def, o)
}

func resolve(def VarDef, o options) (Variable, error) {
	deflt := o.deflt
	if deflt == nil {
		deflt = Identity(Domain{})
	}
	switch {
	case def.Expr != "":
		return exprVariable(def.Name, def.Expr, def.Fields, o)
	case def.Func != nil:
		fields := def.Fields
		if len(fields) == 0 {
			fields = []any{def.Name}
		}
		domain := NewDomain(Args, fields...)
		return Variable{Name: def.Name, Op: New(def.Func, domain, Domain{}), Fields: fields}, nil
	}
	if name, ok := def.Name.(string); ok && !expr.IsIdentifier(name) && len(def.Fields) == 0 {
		return exprVariable(name, name, nil, o)
	}
	if def.Name == nil {
		return Variable{}, fmt.Errorf("%w: missing name", ErrVariable)
	}
	fields := def.Fields
	if len(fields) == 0 {
		fields = []any{def.Name}
	}
	return Variable{Name: def.Name, Op: deflt, Fields: fields}, nil
}

func exprVariable(name any, expression string, fields []any, o options) (Variable, error) {
	popts := []expr.Option{expr.WithVocabulary(o.vocab)}
	if len(fields) > 0 {
		popts = append(popts, expr.WithVariables(fields...))
	}
	e, err := expr.Parse(expression, popts...)
	if err != nil {
		return Variable{}, fmt.Errorf("%w: %q: %w", ErrVariable, expression, err)
	}
	origin := e.Origin()
	if len(fields) == 0 {
		fields = origin
	}
	// Expression variables bind to fields by name, or by position when
	// the expression uses names of its own.
	domain := NewDomain(Args, fields...)
	if !subset(origin, fields) {
		if len(origin) != len(fields) {
			return Variable{}, fmt.Errorf("%w: %q has %d variables for %d fields", ErrVariable, expression, len(origin), len(fields))
		}
		domain = Domain{}
	}
	op, err := Lambda(expression, domain, WithVocabulary(o.vocab))
	if err != nil {
		return Variable{}, fmt.Errorf("%w: %w", ErrVariable, err)
	}
	return Variable{Name: name, Op: op, Fields: fields}, nil
}

func subset(ids, of []any) bool {
	for _, id := range ids {
		found := false
		for _, f := range of {
			if f == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func resolveAll(defs []VarDef, o options) ([]Variable, []any, error) {
	vars := make([]Variable, len(defs))
	var union []any
	seen := make(map[any]bool)
	for i, def := range defs {
		v, err := resolve(def, o)
		if err != nil {
			return nil, nil, err
		}
		vars[i] = v
		for _, f := range v.Fields {
			if !seen[f] {
				seen[f] = true
				union = append(union, f)
			}
		}
	}
	return vars, union, nil
}

// Vector returns an operator whose i-th output is the i-th variable
// applied to the fields it declares. A vector of plain field variables
// collapses into a single Getter. A Mapping target without a frame is
// keyed by the variable names.
func Vector(defs []VarDef, domain, target Domain, opts ...Option) (*Operator, error) {
	o := newOptions(opts)
	if len(defs) == 0 {
		return Zero(target)
	}
	vars, union, err := resolveAll(defs, o)
	if err != nil {
		return nil, err
	}
	return vector(vars, union, domain, target)
}

func vector(vars []Variable, union []any, domain, target Domain) (*Operator, error) {
	names := make([]any, len(vars))
	plain := true
	for i, v := range vars {
		names[i] = v.Name
		if !v.Op.IsIdentity() || len(v.Fields) != 1 || v.Fields[0] != v.Name {
			plain = false
		}
	}
	if target.Kind == Mapping && len(target.Frame) == 0 {
		target = NewDomain(Mapping, names...)
	}
	if plain {
		g, err := Getter(names, domain, target)
		if err != nil {
			return nil, err
		}
		return &Operator{fn: g.fn, name: "Vector", domain: domain, target: target, fields: union, vars: vars, identity: g.identity}, nil
	}

	fetch, err := Getter(union, domain, Domain{Kind: Sequence})
	if err != nil {
		return nil, err
	}
	format, err := formatter(names, target)
	if err != nil {
		return nil, err
	}
	at := make(map[any]int, len(union))
	for i, f := range union {
		at[f] = i
	}
	pos := make([][]int, len(vars))
	for i, v := range vars {
		pos[i] = make([]int, len(v.Fields))
		for j, f := range v.Fields {
			pos[i][j] = at[f]
		}
	}
	op := &Operator{name: "Vector", domain: domain, target: target, fields: union, vars: vars}
	op.fn = func(args ...any) (any, error) {
		row, err := fetch.fn(args...)
		if err != nil {
			return nil, err
		}
		values, _ := Tuple(row)
		out := make([]any, len(vars))
		for i, v := range vars {
			in := make([]any, len(pos[i]))
			for j, p := range pos[i] {
				in[j] = values[p]
			}
			if out[i], err = v.Op.fn(in...); err != nil {
				return nil, fmt.Errorf("variable %v: %w", v.Name, err)
			}
		}
		return format(out), nil
	}
	return op, nil
}
