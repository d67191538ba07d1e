package storage

import (
	"fmt"
	"os"
	"sync"
)

// Pager manages reading and writing pages of one file.
//
// EDUCATIONAL NOTE:
// -----------------
// The pager sits between the page file and everything above it. It opens
// the file, reads pages on demand into a cache, allocates pages at the end
// of the file and writes dirty pages back. A production pager would add a
// write-ahead log and checksums; a table snapshot needs neither, since a
// push rewrites the whole file.
type Pager struct {
	file     *os.File
	filePath string

	// pageCount is the total number of pages in the file.
	pageCount uint32

	// cache holds every page read or allocated since the last Truncate.
	cache map[uint32]*Page

	mu sync.RWMutex
}

// NewPager opens the page file at filePath, creating it if needed.
func NewPager(filePath string) (*Pager, error) {
	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open page file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat page file: %w", err)
	}
	if stat.Size()%PageSize != 0 {
		file.Close()
		return nil, fmt.Errorf("%w: file size %d is not a multiple of %d", ErrCorrupt, stat.Size(), PageSize)
	}
	return &Pager{
		file:      file,
		filePath:  filePath,
		pageCount: uint32(stat.Size() / PageSize),
		cache:     make(map[uint32]*Page),
	}, nil
}

// Path returns the path of the page file.
func (p *Pager) Path() string { return p.filePath }

// Close flushes all dirty pages and closes the file.
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.flushAllLocked(); err != nil {
		return err
	}
	return p.file.Close()
}

// GetPage retrieves a page from cache or disk.
func (p *Pager) GetPage(pageID uint32) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if page, ok := p.cache[pageID]; ok {
		return page, nil
	}
	if pageID >= p.pageCount {
		return nil, fmt.Errorf("page %d does not exist (only %d pages)", pageID, p.pageCount)
	}
	page, err := p.readPageFromDisk(pageID)
	if err != nil {
		return nil, err
	}
	p.cache[pageID] = page
	return page, nil
}

// AllocatePage appends a new page to the file.
func (p *Pager) AllocatePage(pageType PageType) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	page := NewPage(p.pageCount, pageType)
	p.pageCount++
	p.cache[page.ID()] = page
	return page, nil
}

// FlushPage writes a page to disk if it's dirty.
func (p *Pager) FlushPage(pageID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	page, ok := p.cache[pageID]
	if !ok {
		return nil
	}
	if err := p.flushPageLocked(page); err != nil {
		return err
	}
	return p.file.Sync()
}

// FlushAll writes all dirty pages to disk.
func (p *Pager) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushAllLocked()
}

// Truncate drops all pages.
func (p *Pager) Truncate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate page file: %w", err)
	}
	p.pageCount = 0
	clear(p.cache)
	return nil
}

// PageCount returns the total number of pages.
func (p *Pager) PageCount() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pageCount
}

func (p *Pager) readPageFromDisk(pageID uint32) (*Page, error) {
	buf := make([]byte, PageSize)
	n, err := p.file.ReadAt(buf, int64(pageID)*PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read page %d: %w", pageID, err)
	}
	if n != PageSize {
		return nil, fmt.Errorf("short read for page %d: got %d bytes, expected %d", pageID, n, PageSize)
	}
	page, err := Deserialize(buf)
	if err != nil {
		return nil, err
	}
	if page.ID() != pageID {
		return nil, fmt.Errorf("%w: page %d holds id %d", ErrCorrupt, pageID, page.ID())
	}
	return page, nil
}

func (p *Pager) flushAllLocked() error {
	dirty := false
	for _, page := range p.cache {
		if !page.IsDirty() {
			continue
		}
		if err := p.flushPageLocked(page); err != nil {
			return err
		}
		dirty = true
	}
	if !dirty {
		return nil
	}
	return p.file.Sync()
}

// flushPageLocked writes a page to disk. Caller must hold the lock.
func (p *Pager) flushPageLocked(page *Page) error {
	if !page.IsDirty() {
		return nil
	}
	n, err := p.file.WriteAt(page.Serialize(), int64(page.ID())*PageSize)
	if err != nil {
		return fmt.Errorf("failed to write page %d: %w", page.ID(), err)
	}
	if n != PageSize {
		return fmt.Errorf("short write for page %d: wrote %d bytes, expected %d", page.ID(), n, PageSize)
	}
	page.MarkClean()
	return nil
}
