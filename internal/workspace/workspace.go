// Package workspace keeps the named tables of a session.
//
// EDUCATIONAL NOTES:
// ------------------
// Tables are not safe for concurrent use. A cursor reads the table while
// it is built, and a commit rewrites the row index. The workspace owns a
// single lock, and every access to a table goes through Do, which holds
// that lock for the duration of the callback. The REPL has one caller;
// the web server has one goroutine per request.
//
// Tables loaded from files are proxies. The workspace remembers the
// proxy, so that Commit pushes to the file and Close disconnects it.

package workspace

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/frootlab/rian-sub004/internal/csvfile"
	"github.com/frootlab/rian-sub004/internal/logger"
	"github.com/frootlab/rian-sub004/internal/record"
	"github.com/frootlab/rian-sub004/internal/storage"
	"github.com/frootlab/rian-sub004/internal/table"
)

// Errors returned by the workspace.
var (
	ErrNotFound = errors.New("table not found")
	ErrExists   = errors.New("table already exists")
)

type entry struct {
	table *table.Table
	proxy *table.Proxy
	path  string
}

// Workspace is a registry of tables by name.
type Workspace struct {
	mu     sync.Mutex
	tables map[string]*entry
	log    *logger.Logger
}

// New creates an empty workspace. A nil logger discards all output.
func New(log *logger.Logger) *Workspace {
	if log == nil {
		log = logger.Discard()
	}
	return &Workspace{tables: make(map[string]*entry), log: log}
}

// Logger returns the logger shared with the tables of the workspace.
func (w *Workspace) Logger() *logger.Logger { return w.log }

// Create adds a new in-memory table.
func (w *Workspace) Create(name string, columns []record.Column, metadata map[string]any) (*table.Table, error) {
	t, err := table.New(name, columns, metadata, table.WithLogger(w.log))
	if err != nil {
		return nil, err
	}
	if err := w.Add(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Add registers a table under its name.
func (w *Workspace) Add(t *table.Table) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addLocked(&entry{table: t})
}

// Attach registers a proxy under its table name.
func (w *Workspace) Attach(p *table.Proxy) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addLocked(&entry{table: p.Table, proxy: p})
}

func (w *Workspace) addLocked(e *entry) error {
	name := e.table.Name()
	if _, ok := w.tables[name]; ok {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}
	w.tables[name] = e
	w.log.Debugf("workspace: added table %s", name)
	return nil
}

// Load opens a file as a proxy and registers it. Files ending in .csv,
// .tsv or .txt are read as delimiter-separated values, all others as
// page files.
func (w *Workspace) Load(ctx context.Context, path string, mode table.ProxyMode) (*table.Proxy, error) {
	var (
		p   *table.Proxy
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		p, err = csvfile.Open(ctx, path, mode, csvfile.WithLogger(w.log))
	default:
		p, err = storage.Open(ctx, path, mode, storage.WithLogger(w.log))
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.addLocked(&entry{table: p.Table, proxy: p, path: path}); err != nil {
		_ = p.Disconnect()
		return nil, err
	}
	w.log.Infof("loaded %s from %s (%d rows)", p.Name(), path, p.Len())
	return p, nil
}

// Names returns the table names in sorted order.
func (w *Workspace) Names() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.tables))
	for name := range w.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info describes a registered table.
type Info struct {
	Name     string          `json:"name"`
	Rows     int             `json:"rows"`
	Columns  []record.Column `json:"-"`
	Metadata map[string]any  `json:"-"`
	Source   string          `json:"source,omitempty"`
	Mode     string          `json:"mode,omitempty"`
}

// Info returns a description of the named table.
func (w *Workspace) Info(name string) (Info, error) {
	var info Info
	err := w.do(name, func(e *entry) error {
		info = Info{
			Name:     name,
			Rows:     e.table.Len(),
			Columns:  e.table.Columns(),
			Metadata: e.table.Metadata(),
			Source:   e.path,
		}
		if e.proxy != nil {
			info.Mode = e.proxy.Mode().String()
		}
		return nil
	})
	return info, err
}

// Do calls fn with the named table while holding the workspace lock.
func (w *Workspace) Do(name string, fn func(*table.Table) error) error {
	return w.do(name, func(e *entry) error { return fn(e.table) })
}

func (w *Workspace) do(name string, fn func(*entry) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.tables[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return fn(e)
}

// Commit commits the pending changes of a table. Proxies push to their
// source as their mode demands.
func (w *Workspace) Commit(ctx context.Context, name string) error {
	return w.do(name, func(e *entry) error {
		if e.proxy != nil {
			return e.proxy.Commit(ctx)
		}
		e.table.Commit()
		return nil
	})
}

// Rollback discards the pending changes of a table.
func (w *Workspace) Rollback(name string) error {
	return w.Do(name, func(t *table.Table) error {
		t.Rollback()
		return nil
	})
}

// Remove unregisters a table and disconnects its proxy.
func (w *Workspace) Remove(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.tables[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(w.tables, name)
	if e.proxy != nil && e.proxy.Connected() {
		return e.proxy.Disconnect()
	}
	return nil
}

// Close disconnects all proxies. Pending changes are not committed.
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for name, e := range w.tables {
		if e.proxy != nil && e.proxy.Connected() {
			if err := e.proxy.Disconnect(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	w.tables = make(map[string]*entry)
	return errors.Join(errs...)
}
