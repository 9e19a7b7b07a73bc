package vm

import (
	"container/list"
	"log"
	"sync"
)

// A Page is an entry in the page table. It maps a virtual page to the
// physical frame that holds it.
type Page struct {
	PageNumber  uint64
	FrameNumber uint64
}

// A PageTable holds the resident pages.
type PageTable interface {
	Insert(page Page)
	Remove(pageNumber uint64)
	Find(pageNumber uint64) (Page, bool)
	Len() int
	Pages() []Page
}

// NewPageTable creates a new PageTable.
func NewPageTable() PageTable {
	return &pageTableImpl{
		entries:      list.New(),
		entriesTable: make(map[uint64]*list.Element),
	}
}

// pageTableImpl is the default implementation of a PageTable. Pages are kept
// in insertion order so that they can be listed.
type pageTableImpl struct {
	sync.Mutex
	entries      *list.List
	entriesTable map[uint64]*list.Element
}

// Insert puts a new page into the PageTable.
func (t *pageTableImpl) Insert(page Page) {
	t.Lock()
	defer t.Unlock()

	t.pageMustNotExist(page.PageNumber)

	elem := t.entries.PushBack(page)
	t.entriesTable[page.PageNumber] = elem
}

// Remove removes the entry of the given page.
func (t *pageTableImpl) Remove(pageNumber uint64) {
	t.Lock()
	defer t.Unlock()

	t.pageMustExist(pageNumber)

	elem := t.entriesTable[pageNumber]
	t.entries.Remove(elem)
	delete(t.entriesTable, pageNumber)
}

// Find returns the entry of the given page. The bool return value indicates
// if the page is found or not.
func (t *pageTableImpl) Find(pageNumber uint64) (Page, bool) {
	t.Lock()
	defer t.Unlock()

	elem, found := t.entriesTable[pageNumber]
	if found {
		return elem.Value.(Page), true
	}

	return Page{}, false
}

// Len returns the number of resident pages.
func (t *pageTableImpl) Len() int {
	t.Lock()
	defer t.Unlock()

	return t.entries.Len()
}

// Pages lists the resident pages in insertion order.
func (t *pageTableImpl) Pages() []Page {
	t.Lock()
	defer t.Unlock()

	pages := make([]Page, 0, t.entries.Len())
	for e := t.entries.Front(); e != nil; e = e.Next() {
		pages = append(pages, e.Value.(Page))
	}

	return pages
}

func (t *pageTableImpl) pageMustExist(pageNumber uint64) {
	_, found := t.entriesTable[pageNumber]
	if !found {
		log.Panicf("page 0x%x does not exist", pageNumber)
	}
}

func (t *pageTableImpl) pageMustNotExist(pageNumber uint64) {
	_, found := t.entriesTable[pageNumber]
	if found {
		log.Panicf("page 0x%x already exists", pageNumber)
	}
}
