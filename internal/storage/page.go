// Package storage keeps a table snapshot in a file of fixed-size pages.
//
// EDUCATIONAL NOTES:
// ------------------
// Databases store data in fixed-size blocks called "pages". Fixed sizes
// make every page addressable by its number: page n starts at byte
// n * PageSize of the file.
//
// The file layout used here is small:
//
//	page 0      catalog: table name, columns, metadata, first data page
//	page 1..n   data pages, linked through the next field of the header
//
// Each data page holds a sequence of length-prefixed blocks, one encoded
// row per block. A row that does not fit into the free space of the
// current page goes to a freshly allocated page, which is linked from the
// previous one.

package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// PageSize is the size of each page in bytes.
	PageSize = 4096

	// PageHeaderSize is the size of the page header in bytes.
	PageHeaderSize = 16

	// MaxDataSize is the maximum amount of data a page can hold.
	MaxDataSize = PageSize - PageHeaderSize

	// NoPage terminates a page chain. Page 0 is the catalog and never
	// part of a chain.
	NoPage uint32 = 0

	blockHeaderSize = 2
)

// Errors of the page layer.
var (
	ErrPageOverflow = errors.New("not enough space in page")
	ErrBlockSize    = errors.New("block exceeds page data size")
	ErrCorrupt      = errors.New("corrupt page")
)

// PageType indicates what kind of data a page holds.
type PageType uint8

const (
	// PageTypeFree indicates an unused page.
	PageTypeFree PageType = iota
	// PageTypeCatalog indicates the catalog page.
	PageTypeCatalog
	// PageTypeData indicates a page containing rows.
	PageTypeData
)

// Page represents a fixed-size block of storage.
//
// Page Layout (4096 bytes total):
// +------------------+
// | Header (16 bytes)|
// |   - PageID (4)   |
// |   - Type (1)     |
// |   - NumSlots (2) |
// |   - FreeSpace (2)|
// |   - Next (4)     |
// |   - Reserved (3) |
// +------------------+
// | Data Area        |
// | (4080 bytes)     |
// +------------------+
type Page struct {
	id              uint32
	pageType        PageType
	numSlots        uint16
	freeSpaceOffset uint16
	next            uint32
	data            [MaxDataSize]byte
	dirty           bool
}

// NewPage creates a new empty page with the given ID and type.
func NewPage(id uint32, pageType PageType) *Page {
	return &Page{id: id, pageType: pageType, dirty: true}
}

// ID returns the page's unique identifier.
func (p *Page) ID() uint32 { return p.id }

// Type returns the page type.
func (p *Page) Type() PageType { return p.pageType }

// NumSlots returns the number of blocks in this page.
func (p *Page) NumSlots() uint16 { return p.numSlots }

// FreeSpace returns the amount of free space available in the page.
func (p *Page) FreeSpace() uint16 { return MaxDataSize - p.freeSpaceOffset }

// Next returns the id of the following page of the chain, or NoPage.
func (p *Page) Next() uint32 { return p.next }

// SetNext links the page to the following page of its chain.
func (p *Page) SetNext(id uint32) {
	p.next = id
	p.dirty = true
}

// IsDirty returns true if the page has been modified.
func (p *Page) IsDirty() bool { return p.dirty }

// MarkClean marks the page as not dirty (after flushing to disk).
func (p *Page) MarkClean() { p.dirty = false }

// Append writes a length-prefixed block at the current free space offset.
func (p *Page) Append(block []byte) error {
	if len(block) > MaxDataSize-blockHeaderSize || len(block) > math.MaxUint16 {
		return fmt.Errorf("%w: %d bytes", ErrBlockSize, len(block))
	}
	if len(block)+blockHeaderSize > int(p.FreeSpace()) {
		return ErrPageOverflow
	}
	off := p.freeSpaceOffset
	binary.LittleEndian.PutUint16(p.data[off:], uint16(len(block)))
	copy(p.data[off+blockHeaderSize:], block)
	p.freeSpaceOffset += uint16(len(block) + blockHeaderSize)
	p.numSlots++
	p.dirty = true
	return nil
}

// Blocks returns copies of the blocks of the page in write order.
func (p *Page) Blocks() ([][]byte, error) {
	blocks := make([][]byte, 0, p.numSlots)
	off := 0
	for range p.numSlots {
		if off+blockHeaderSize > int(p.freeSpaceOffset) {
			return nil, fmt.Errorf("%w: page %d: block header past free space", ErrCorrupt, p.id)
		}
		size := int(binary.LittleEndian.Uint16(p.data[off:]))
		off += blockHeaderSize
		if off+size > int(p.freeSpaceOffset) {
			return nil, fmt.Errorf("%w: page %d: block past free space", ErrCorrupt, p.id)
		}
		blocks = append(blocks, append([]byte(nil), p.data[off:off+size]...))
		off += size
	}
	return blocks, nil
}

// Reset empties the page and changes its type.
func (p *Page) Reset(pageType PageType) {
	p.pageType = pageType
	p.numSlots = 0
	p.freeSpaceOffset = 0
	p.next = NoPage
	clear(p.data[:])
	p.dirty = true
}

// Serialize converts the page to a byte slice for disk storage.
//
// EDUCATIONAL NOTE:
// -----------------
// Serialization is the process of converting in-memory structures to
// bytes. Little-endian byte order is the native format of most modern
// CPUs (x86, ARM).
func (p *Page) Serialize() []byte {
	buf := make([]byte, PageSize)
	binary.LittleEndian.PutUint32(buf[0:4], p.id)
	buf[4] = byte(p.pageType)
	binary.LittleEndian.PutUint16(buf[5:7], p.numSlots)
	binary.LittleEndian.PutUint16(buf[7:9], p.freeSpaceOffset)
	binary.LittleEndian.PutUint32(buf[9:13], p.next)
	copy(buf[PageHeaderSize:], p.data[:])
	return buf
}

// Deserialize reads a page from a byte slice.
func Deserialize(buf []byte) (*Page, error) {
	if len(buf) != PageSize {
		return nil, fmt.Errorf("%w: size %d", ErrCorrupt, len(buf))
	}
	p := &Page{
		id:              binary.LittleEndian.Uint32(buf[0:4]),
		pageType:        PageType(buf[4]),
		numSlots:        binary.LittleEndian.Uint16(buf[5:7]),
		freeSpaceOffset: binary.LittleEndian.Uint16(buf[7:9]),
		next:            binary.LittleEndian.Uint32(buf[9:13]),
	}
	if p.freeSpaceOffset > MaxDataSize {
		return nil, fmt.Errorf("%w: page %d: free space offset %d", ErrCorrupt, p.id, p.freeSpaceOffset)
	}
	copy(p.data[:], buf[PageHeaderSize:])
	return p, nil
}
