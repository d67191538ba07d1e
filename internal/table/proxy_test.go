package table

import (
	"context"
	"errors"
	"testing"

	"github.com/frootlab/rian-sub004/internal/record"
	"gotest.tools/assert"
)

// memorySource keeps rows in a slice and records every call.
type memorySource struct {
	rows    [][]any
	calls   []string
	pushed  [][]any
	created int
	failOn  string
}

func (m *memorySource) call(name string) error {
	m.calls = append(m.calls, name)
	if m.failOn == name {
		return errors.New(name + " failed")
	}
	return nil
}

func (m *memorySource) Connect(_ context.Context, t *Table) error {
	if err := m.call("connect"); err != nil {
		return err
	}
	return t.Create("mem", []record.Column{{Name: "x", Type: record.Int}}, map[string]any{"source": "memory"})
}

func (m *memorySource) Pull(_ context.Context, t *Table) error {
	if err := m.call("pull"); err != nil {
		return err
	}
	for _, row := range m.rows {
		if err := t.Insert(row); err != nil {
			return err
		}
	}
	return nil
}

func (m *memorySource) Push(_ context.Context, t *Table) error {
	if err := m.call("push"); err != nil {
		return err
	}
	created, _, _ := t.Changes()
	m.created = len(created)
	cur, err := t.Select(Columns("x"))
	if err != nil {
		return err
	}
	rows, err := cur.Fetch(-1)
	if err != nil {
		return err
	}
	m.pushed = nil
	for _, r := range rows {
		m.pushed = append(m.pushed, r.([]any))
	}
	return nil
}

func (m *memorySource) Close() error {
	return m.call("close")
}

func TestProxyCache(t *testing.T) {
	src := &memorySource{rows: [][]any{{int64(1)}, {int64(2)}}}
	p, err := NewProxy(context.Background(), src, ProxyCache)
	assert.NilError(t, err)
	assert.Assert(t, p.Connected())
	assert.Equal(t, p.Name(), "mem")
	assert.Equal(t, p.Len(), 2)
	assert.DeepEqual(t, src.calls, []string{"connect", "pull"})

	r, err := p.Row(0)
	assert.NilError(t, err)
	assert.Equal(t, r.State(), record.State(0))

	lazy, err := NewProxy(context.Background(), &memorySource{rows: src.rows}, 0)
	assert.NilError(t, err)
	assert.Equal(t, lazy.Len(), 0)
}

func TestProxyCommitOrder(t *testing.T) {
	ctx := context.Background()

	src := &memorySource{}
	p, err := NewProxy(ctx, src, 0)
	assert.NilError(t, err)
	assert.NilError(t, p.Insert([]any{int64(7)}))
	assert.NilError(t, p.Commit(ctx))
	assert.Equal(t, src.created, 0)
	assert.DeepEqual(t, src.pushed, [][]any{{int64(7)}})

	src = &memorySource{}
	p, err = NewProxy(ctx, src, ProxyIncremental)
	assert.NilError(t, err)
	assert.NilError(t, p.Insert([]any{int64(7)}))
	assert.NilError(t, p.Commit(ctx))
	assert.Equal(t, src.created, 1)
	r, err := p.Row(0)
	assert.NilError(t, err)
	assert.Equal(t, r.State(), record.State(0))
}

func TestProxyReadOnly(t *testing.T) {
	ctx := context.Background()
	p, err := NewProxy(ctx, &memorySource{rows: [][]any{{int64(1)}}}, ProxyCache|ProxyReadOnly)
	assert.NilError(t, err)
	assert.Assert(t, errors.Is(p.Commit(ctx), ErrReadOnly))
	assert.Equal(t, p.Mode().String(), "cache|readonly")
}

func TestProxyConnection(t *testing.T) {
	ctx := context.Background()
	src := &memorySource{}
	p, err := NewProxy(ctx, src, 0)
	assert.NilError(t, err)

	assert.Assert(t, errors.Is(p.Connect(ctx), ErrConnected))
	assert.NilError(t, p.Disconnect())
	assert.Assert(t, errors.Is(p.Disconnect(), ErrNotConnected))
	assert.Assert(t, errors.Is(p.Pull(ctx), ErrNotConnected))
	assert.Assert(t, errors.Is(p.Push(ctx), ErrNotConnected))
	assert.DeepEqual(t, src.calls, []string{"connect", "close"})
}

func TestProxyErrors(t *testing.T) {
	ctx := context.Background()

	src := &memorySource{failOn: "pull", rows: [][]any{{int64(1)}}}
	_, err := NewProxy(ctx, src, ProxyCache)
	var proxyErr *ProxyError
	assert.Assert(t, errors.As(err, &proxyErr))
	assert.Equal(t, proxyErr.Op, "pull")
	assert.DeepEqual(t, src.calls, []string{"connect", "pull", "close"})

	src = &memorySource{failOn: "push"}
	p, err := NewProxy(ctx, src, ProxyIncremental)
	assert.NilError(t, err)
	assert.NilError(t, p.Insert([]any{int64(1)}))
	err = p.Commit(ctx)
	assert.Assert(t, errors.As(err, &proxyErr))
	assert.ErrorContains(t, err, "proxy push: push failed")

	r, _ := p.Row(0)
	assert.Assert(t, r.State().Has(record.Create))
}

func TestParseProxyMode(t *testing.T) {
	tests := []struct {
		in   string
		want ProxyMode
	}{
		{"cache", ProxyCache},
		{"Cache|Incremental", ProxyCache | ProxyIncremental},
		{"cache, readonly", ProxyCache | ProxyReadOnly},
		{"none", 0},
		{"", 0},
	}
	for _, tt := range tests {
		got, err := ParseProxyMode(tt.in)
		assert.NilError(t, err, tt.in)
		assert.Equal(t, got, tt.want, tt.in)
	}
	for _, m := range []ProxyMode{ProxyCache, ProxyCache | ProxyIncremental | ProxyReadOnly} {
		got, err := ParseProxyMode(m.String())
		assert.NilError(t, err)
		assert.Equal(t, got, m)
	}
	_, err := ParseProxyMode("lazy")
	assert.ErrorContains(t, err, `unknown proxy mode "lazy"`)
}
