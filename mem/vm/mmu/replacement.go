package mmu

import "github.com/sarchlab/hetmem/mem/vm/internal/ring"

// ReplacementUnit orders the resident pages by recency. The least recently
// used page is the one evicted when memory runs out of frames.
type ReplacementUnit struct {
	ring *ring.Ring
}

// NewReplacementUnit creates a replacement unit for the given number of
// frames.
func NewReplacementUnit(numFrames int) *ReplacementUnit {
	return &ReplacementUnit{ring: ring.New(numFrames)}
}

// Insert puts a newly resident page at the MRU position.
func (u *ReplacementUnit) Insert(pageNumber uint64) {
	u.ring.Insert(pageNumber, 0)
}

// Update moves the page to the MRU position.
func (u *ReplacementUnit) Update(pageNumber uint64) {
	u.ring.Touch(pageNumber)
}

// Victim removes the LRU page and returns it.
func (u *ReplacementUnit) Victim() uint64 {
	pageNumber, _ := u.ring.Victim()
	return pageNumber
}

// Contains tells if the page is tracked.
func (u *ReplacementUnit) Contains(pageNumber uint64) bool {
	return u.ring.Contains(pageNumber)
}

// Len returns the number of tracked pages.
func (u *ReplacementUnit) Len() int {
	return u.ring.Len()
}

// Pages lists the pages from the most to the least recently used.
func (u *ReplacementUnit) Pages() []uint64 {
	return u.ring.Keys()
}
