package storage

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/frootlab/rian-sub004/internal/logger"
	"github.com/frootlab/rian-sub004/internal/record"
	"github.com/frootlab/rian-sub004/internal/table"
	sorted "github.com/tobshub/go-sortedmap"
)

// ErrNoDefinition is returned when connecting to an empty page file
// without a table definition.
var ErrNoDefinition = errors.New("page file is empty and no table definition was given")

// storedRow is the unit encoded into a data page block.
type storedRow struct {
	ID     int
	Values []any
}

func byID(a, b storedRow) bool { return a.ID < b.ID }

// FileSource is a table.Source backed by a page file.
type FileSource struct {
	path  string
	def   *Catalog
	pager *Pager
	log   *logger.Logger
}

// SourceOption configures a FileSource.
type SourceOption func(*FileSource)

// WithDefinition sets the table created when the page file is empty.
func WithDefinition(name string, columns []record.Column, metadata map[string]any) SourceOption {
	return func(s *FileSource) { s.def = NewCatalog(name, columns, metadata) }
}

// WithLogger sets the logger of the source.
func WithLogger(l *logger.Logger) SourceOption {
	return func(s *FileSource) { s.log = l }
}

// NewFileSource returns a source for the page file at path. The file is
// opened on Connect.
func NewFileSource(path string, opts ...SourceOption) *FileSource {
	s := &FileSource{path: path}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	return s
}

// Open connects a proxy to the page file at path.
func Open(ctx context.Context, path string, mode table.ProxyMode, opts ...SourceOption) (*table.Proxy, error) {
	src := NewFileSource(path, opts...)
	return table.NewProxy(ctx, src, mode, table.WithLogger(src.log))
}

// Connect opens the page file and defines the table from its catalog,
// or from the definition for an empty file.
func (s *FileSource) Connect(_ context.Context, t *table.Table) error {
	pager, err := NewPager(s.path)
	if err != nil {
		return err
	}
	cat := s.def
	if pager.PageCount() > 0 {
		if cat, err = readCatalog(pager); err != nil {
			pager.Close()
			return err
		}
	}
	if cat == nil {
		pager.Close()
		return ErrNoDefinition
	}
	cols, err := cat.RecordColumns()
	if err == nil {
		err = t.Create(cat.Name, cols, cat.Metadata)
	}
	if err != nil {
		pager.Close()
		return err
	}
	s.pager = pager
	s.log.Debugf("page file %s: opened with %d pages", s.path, pager.PageCount())
	return nil
}

// Close closes the page file.
func (s *FileSource) Close() error {
	if s.pager == nil {
		return nil
	}
	err := s.pager.Close()
	s.pager = nil
	return err
}

// Pull inserts the stored rows in id order.
func (s *FileSource) Pull(ctx context.Context, t *table.Table) error {
	rows, err := s.load(ctx)
	if err != nil {
		return err
	}
	if rows.Len() == 0 {
		return nil
	}
	it, err := rows.IterCh()
	if err != nil {
		return err
	}
	var insertErr error
	for rec := range it.Records() {
		if insertErr == nil {
			insertErr = t.Insert(rec.Val.Values)
		}
	}
	return insertErr
}

// Push replaces the file contents with the visible rows of the table.
// Pending changes are included, so pushing before or after a commit
// stores the same rows.
func (s *FileSource) Push(ctx context.Context, t *table.Table) error {
	if s.pager == nil {
		return table.ErrNotConnected
	}
	cur, err := t.Select()
	if err != nil {
		return err
	}
	all, err := cur.Fetch(-1)
	if err != nil {
		return err
	}
	rows := sorted.New[int, storedRow](0, byID)
	for _, v := range all {
		r := v.(*record.Record)
		rows.Insert(r.ID(), storedRow{ID: r.ID(), Values: r.Values()})
	}
	if created, updated, deleted := t.Changes(); len(created)+len(updated)+len(deleted) > 0 {
		s.log.Debugf("page file %s: pushing %d created, %d updated, %d deleted rows", s.path, len(created), len(updated), len(deleted))
	}
	return s.write(ctx, NewCatalog(t.Name(), t.Columns(), t.Metadata()), rows)
}

// load reads all stored rows, keyed by row id.
func (s *FileSource) load(ctx context.Context) (*sorted.SortedMap[int, storedRow], error) {
	if s.pager == nil {
		return nil, table.ErrNotConnected
	}
	rows := sorted.New[int, storedRow](0, byID)
	if s.pager.PageCount() == 0 {
		return rows, nil
	}
	cat, err := readCatalog(s.pager)
	if err != nil {
		return nil, err
	}
	seen := make(map[uint32]bool)
	for id := cat.FirstPage; id != NoPage; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: page chain loops at page %d", ErrCorrupt, id)
		}
		seen[id] = true
		page, err := s.pager.GetPage(id)
		if err != nil {
			return nil, err
		}
		blocks, err := page.Blocks()
		if err != nil {
			return nil, err
		}
		for _, b := range blocks {
			var row storedRow
			if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&row); err != nil {
				return nil, fmt.Errorf("page %d: %w", id, err)
			}
			if !rows.Insert(row.ID, row) {
				rows.Replace(row.ID, row)
			}
		}
		id = page.Next()
	}
	if rows.Len() != cat.RowCount {
		return nil, fmt.Errorf("%w: catalog counts %d rows, pages hold %d", ErrCorrupt, cat.RowCount, rows.Len())
	}
	return rows, nil
}

// write replaces the file contents with the catalog and rows.
func (s *FileSource) write(ctx context.Context, cat *Catalog, rows *sorted.SortedMap[int, storedRow]) error {
	if err := s.pager.Truncate(); err != nil {
		return err
	}
	if _, err := s.pager.AllocatePage(PageTypeCatalog); err != nil {
		return err
	}
	cat.RowCount = rows.Len()
	if rows.Len() > 0 {
		page, err := s.pager.AllocatePage(PageTypeData)
		if err != nil {
			return err
		}
		cat.FirstPage = page.ID()
		it, err := rows.IterCh()
		if err != nil {
			return err
		}
		var writeErr error
		for rec := range it.Records() {
			if writeErr == nil {
				page, writeErr = s.appendRow(ctx, page, rec.Val)
			}
		}
		if writeErr != nil {
			return writeErr
		}
	}
	if err := writeCatalog(s.pager, cat); err != nil {
		return err
	}
	if err := s.pager.FlushAll(); err != nil {
		return err
	}
	s.log.Debugf("page file %s: wrote %d rows on %d pages", s.path, cat.RowCount, s.pager.PageCount())
	return nil
}

// appendRow adds a row to page, continuing on a new page when it is full.
// It returns the page that takes the next row.
func (s *FileSource) appendRow(ctx context.Context, page *Page, row storedRow) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(row); err != nil {
		return nil, fmt.Errorf("row %d: %w", row.ID, err)
	}
	err := page.Append(buf.Bytes())
	if !errors.Is(err, ErrPageOverflow) {
		return page, err
	}
	next, err := s.pager.AllocatePage(PageTypeData)
	if err != nil {
		return nil, err
	}
	page.SetNext(next.ID())
	return next, next.Append(buf.Bytes())
}
