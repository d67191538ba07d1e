package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/frootlab/rian-sub004/internal/record"
)

const (
	// CatalogPageID is the page that holds the catalog.
	CatalogPageID = 0

	// CatalogMagic identifies a valid catalog.
	CatalogMagic uint16 = 0x52A1
)

func init() {
	// Row values travel as interface values; basic types are known to
	// gob already.
	gob.Register(time.Time{})
}

// Catalog describes the table stored in a page file.
type Catalog struct {
	Name      string
	Columns   []ColumnInfo
	Metadata  map[string]any
	FirstPage uint32
	RowCount  int
}

// ColumnInfo stores column metadata.
type ColumnInfo struct {
	Name    string
	Type    string
	NotNull bool
	Default any
}

// NewCatalog describes a table definition.
func NewCatalog(name string, columns []record.Column, metadata map[string]any) *Catalog {
	c := &Catalog{Name: name, Metadata: metadata}
	for _, col := range columns {
		c.Columns = append(c.Columns, ColumnInfo{
			Name:    col.Name,
			Type:    col.Type.String(),
			NotNull: col.NotNull,
			Default: col.Default,
		})
	}
	return c
}

// RecordColumns converts the stored columns back to column definitions.
func (c *Catalog) RecordColumns() ([]record.Column, error) {
	cols := make([]record.Column, len(c.Columns))
	for i, info := range c.Columns {
		typ, err := record.ParseType(info.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", info.Name, err)
		}
		cols[i] = record.Column{Name: info.Name, Type: typ, NotNull: info.NotNull, Default: info.Default}
	}
	return cols, nil
}

// writeCatalog stores the catalog on page 0, which has to exist.
func writeCatalog(p *Pager, c *Catalog) error {
	page, err := p.GetPage(CatalogPageID)
	if err != nil {
		return fmt.Errorf("failed to get catalog page: %w", err)
	}
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, CatalogMagic)
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	page.Reset(PageTypeCatalog)
	if err := page.Append(buf.Bytes()); err != nil {
		return fmt.Errorf("catalog too large: %w", err)
	}
	return nil
}

// readCatalog loads the catalog from page 0.
func readCatalog(p *Pager) (*Catalog, error) {
	page, err := p.GetPage(CatalogPageID)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog page: %w", err)
	}
	if page.Type() != PageTypeCatalog {
		return nil, fmt.Errorf("%w: page 0 is not a catalog", ErrCorrupt)
	}
	blocks, err := page.Blocks()
	if err != nil {
		return nil, err
	}
	if len(blocks) != 1 || len(blocks[0]) < 2 {
		return nil, fmt.Errorf("%w: catalog page has %d blocks", ErrCorrupt, len(blocks))
	}
	if magic := binary.LittleEndian.Uint16(blocks[0]); magic != CatalogMagic {
		return nil, fmt.Errorf("%w: bad catalog magic %#x", ErrCorrupt, magic)
	}
	c := &Catalog{}
	if err := gob.NewDecoder(bytes.NewReader(blocks[0][2:])).Decode(c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return c, nil
}
