package cache

import (
	"fmt"
	"strings"
)

// A Line is one slot of a cache.
type Line struct {
	SetID int
	WayID int

	Valid          bool
	Tag            uint64
	Base           uint64
	LastAccessTime uint64
	AccessCounter  uint64
	Data           []byte
	Prefetched     bool
	Dirty          bool
	Skip           bool
	ApplID         int
	IsGPU          bool
}

// A Set is the group of lines that a certain address can be stored at.
type Set struct {
	Lines       []Line
	NumCPULines int
	NumGPULines int
}

// NumValid returns the number of valid lines in the set.
func (s *Set) NumValid() int {
	n := 0
	for i := range s.Lines {
		if s.Lines[i].Valid {
			n++
		}
	}

	return n
}

func (s *Set) occupancy(isGPU bool) int {
	if isGPU {
		return s.NumGPULines
	}

	return s.NumCPULines
}

func (s *Set) occupy(isGPU bool) {
	if isGPU {
		s.NumGPULines++
	} else {
		s.NumCPULines++
	}
}

func (s *Set) release(isGPU bool) {
	if isGPU {
		s.NumGPULines--
	} else {
		s.NumCPULines--
	}
}

// dump lists the state of every line, used when a set is found corrupted.
func (s *Set) dump() string {
	var b strings.Builder

	for i := range s.Lines {
		l := &s.Lines[i]
		fmt.Fprintf(&b, "way:%d valid:%t gpu:%t lru:%d base:0x%x\n",
			l.WayID, l.Valid, l.IsGPU, l.LastAccessTime, l.Base)
	}

	return b.String()
}
