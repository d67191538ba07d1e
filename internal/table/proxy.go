package table

import (
	"context"
	"fmt"
	"strings"
)

// ProxyMode flags control when a proxy synchronizes with its source.
type ProxyMode int

const (
	// ProxyCache pulls all rows when the proxy is created.
	ProxyCache ProxyMode = 1 << iota
	// ProxyIncremental pushes pending changes before they are committed,
	// so the source only sees the delta.
	ProxyIncremental
	// ProxyReadOnly rejects commits.
	ProxyReadOnly
)

func (m ProxyMode) String() string {
	var parts []string
	for _, f := range []struct {
		flag ProxyMode
		name string
	}{{ProxyCache, "cache"}, {ProxyIncremental, "incremental"}, {ProxyReadOnly, "readonly"}} {
		if m&f.flag != 0 {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseProxyMode resolves mode names as printed by String, joined by
// '|' or ','.
func ParseProxyMode(s string) (ProxyMode, error) {
	var m ProxyMode
	for _, part := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return r == '|' || r == ',' }) {
		switch strings.TrimSpace(part) {
		case "cache":
			m |= ProxyCache
		case "incremental":
			m |= ProxyIncremental
		case "readonly":
			m |= ProxyReadOnly
		case "none":
		default:
			return 0, fmt.Errorf("unknown proxy mode %q", part)
		}
	}
	return m, nil
}

// Source is the backing store of a proxy.
//
// Connect defines the table (name, columns, metadata) from the source.
// Pull inserts the rows of the source into the table. Push writes the
// table back; an incremental push runs before the commit and can read
// the pending changes through Table.Changes.
type Source interface {
	Connect(ctx context.Context, t *Table) error
	Pull(ctx context.Context, t *Table) error
	Push(ctx context.Context, t *Table) error
	Close() error
}

// Proxy is a table synchronized with a Source.
type Proxy struct {
	*Table
	src       Source
	mode      ProxyMode
	connected bool
}

// NewProxy connects a table to src, and pulls its rows in cache mode.
func NewProxy(ctx context.Context, src Source, mode ProxyMode, opts ...Option) (*Proxy, error) {
	t, err := New("", nil, nil, opts...)
	if err != nil {
		return nil, err
	}
	p := &Proxy{Table: t, src: src, mode: mode}
	if err := p.Connect(ctx); err != nil {
		return nil, err
	}
	if mode&ProxyCache != 0 {
		if err := p.Pull(ctx); err != nil {
			_ = p.Disconnect()
			return nil, err
		}
	}
	return p, nil
}

// Mode returns the proxy mode.
func (p *Proxy) Mode() ProxyMode { return p.mode }

// Connected reports whether the source is connected.
func (p *Proxy) Connected() bool { return p.connected }

// Connect connects the source and defines the table from it.
func (p *Proxy) Connect(ctx context.Context) error {
	if p.connected {
		return ErrConnected
	}
	if err := p.src.Connect(ctx, p.Table); err != nil {
		return &ProxyError{Op: "connect", Err: err}
	}
	p.connected = true
	p.log.Infof("proxy %s: connected", p.Name())
	return nil
}

// Disconnect closes the source.
func (p *Proxy) Disconnect() error {
	if !p.connected {
		return ErrNotConnected
	}
	p.connected = false
	if err := p.src.Close(); err != nil {
		return &ProxyError{Op: "disconnect", Err: err}
	}
	p.log.Infof("proxy %s: disconnected", p.Name())
	return nil
}

// Pull inserts the rows of the source and commits them.
func (p *Proxy) Pull(ctx context.Context) error {
	if !p.connected {
		return ErrNotConnected
	}
	if err := p.src.Pull(ctx, p.Table); err != nil {
		p.Table.Rollback()
		return &ProxyError{Op: "pull", Err: err}
	}
	p.Table.Commit()
	p.log.Debugf("proxy %s: pulled %d rows", p.Name(), p.Len())
	return nil
}

// Push writes the table to the source.
func (p *Proxy) Push(ctx context.Context) error {
	if !p.connected {
		return ErrNotConnected
	}
	if err := p.src.Push(ctx, p.Table); err != nil {
		return &ProxyError{Op: "push", Err: err}
	}
	p.log.Debugf("proxy %s: pushed", p.Name())
	return nil
}

// Commit commits the table and synchronizes the source. Incremental
// proxies push before committing, others after.
func (p *Proxy) Commit(ctx context.Context) error {
	if p.mode&ProxyReadOnly != 0 {
		return ErrReadOnly
	}
	if p.mode&ProxyIncremental != 0 {
		if err := p.Push(ctx); err != nil {
			return err
		}
		p.Table.Commit()
		return nil
	}
	p.Table.Commit()
	return p.Push(ctx)
}
