// Package tlb provides a set-associative translation lookaside buffer that
// maps virtual pages to physical frames.
package tlb

import (
	"log"

	"github.com/sarchlab/hetmem/mem/vm/internal/ring"
	"github.com/sarchlab/hetmem/sim"
)

// HookPosEvict marks a TLB entry being replaced to make room for another
// one. The hook item is the evicted page number.
var HookPosEvict = &sim.HookPos{Name: "TLBEvict"}

// Comp is a TLB. Each set keeps its entries in recency order and replaces
// the least recently used one.
type Comp struct {
	*sim.HookableBase

	name         string
	log2PageSize uint64
	sets         []*ring.Ring
}

// Name returns the name of the TLB.
func (c *Comp) Name() string {
	return c.name
}

// Lookup tells if the page of the address is cached.
func (c *Comp) Lookup(vAddr uint64) bool {
	pageNumber := c.pageNumber(vAddr)
	return c.setOf(pageNumber).Contains(pageNumber)
}

// Translate returns the frame number of the page of the address and marks
// the entry as most recently used. The page must be cached.
func (c *Comp) Translate(vAddr uint64) uint64 {
	pageNumber := c.pageNumber(vAddr)
	set := c.setOf(pageNumber)

	frame, found := set.Lookup(pageNumber)
	if !found {
		log.Panicf("tlb %s: page 0x%x is not cached", c.name, pageNumber)
	}

	set.Touch(pageNumber)

	return frame
}

// Insert caches the translation of the page of the address. The page must not
// be cached already.
func (c *Comp) Insert(vAddr uint64, frameNumber uint64) {
	pageNumber := c.pageNumber(vAddr)

	evicted, ok := c.setOf(pageNumber).Insert(pageNumber, frameNumber)
	if ok && c.NumHooks() > 0 {
		c.InvokeHook(sim.HookCtx{
			Domain: c,
			Pos:    HookPosEvict,
			Item:   evicted,
		})
	}
}

// Update marks the entry of the page of the address as most recently used.
func (c *Comp) Update(vAddr uint64) {
	pageNumber := c.pageNumber(vAddr)
	c.setOf(pageNumber).Touch(pageNumber)
}

// Invalidate drops the entry of a page. Pages that are not cached are
// ignored.
func (c *Comp) Invalidate(pageNumber uint64) {
	c.setOf(pageNumber).Remove(pageNumber)
}

// Len returns the number of cached translations.
func (c *Comp) Len() int {
	n := 0
	for _, s := range c.sets {
		n += s.Len()
	}

	return n
}

// Pages lists the cached pages, set by set, from the most recently used.
func (c *Comp) Pages() []uint64 {
	var pages []uint64
	for _, s := range c.sets {
		pages = append(pages, s.Keys()...)
	}

	return pages
}

func (c *Comp) pageNumber(vAddr uint64) uint64 {
	return vAddr >> c.log2PageSize
}

func (c *Comp) setOf(pageNumber uint64) *ring.Ring {
	return c.sets[pageNumber%uint64(len(c.sets))]
}
