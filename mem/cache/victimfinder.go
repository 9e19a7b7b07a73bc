package cache

import (
	"log"
	"math"
)

// A VictimFinder decides which line of a set should be replaced when a new
// line is inserted.
type VictimFinder interface {
	FindVictim(set *Set, applID int, isGPU bool) *Line
}

// LRUVictimFinder evicts the least recently used line. Invalid lines are
// always taken first.
type LRUVictimFinder struct {
}

// NewLRUVictimFinder returns a newly constructed lru evictor
func NewLRUVictimFinder() *LRUVictimFinder {
	return new(LRUVictimFinder)
}

// FindVictim returns the first invalid line or the least recently used one.
func (e *LRUVictimFinder) FindVictim(set *Set, _ int, _ bool) *Line {
	lruIndex := 0
	lruTime := uint64(math.MaxUint64)

	for i := range set.Lines {
		line := &set.Lines[i]
		if !line.Valid {
			return line
		}

		if line.LastAccessTime < lruTime {
			lruIndex = i
			lruTime = line.LastAccessTime
		}
	}

	return &set.Lines[lruIndex]
}

// PseudoLRUVictimFinder treats LastAccessTime as a not-recently-used marker.
// A line whose marker is zero can be evicted. When every line has been used,
// all the markers are cleared and the search starts over.
type PseudoLRUVictimFinder struct {
}

// NewPseudoLRUVictimFinder returns a newly constructed pseudo-lru evictor
func NewPseudoLRUVictimFinder() *PseudoLRUVictimFinder {
	return new(PseudoLRUVictimFinder)
}

// FindVictim returns the first invalid or not-recently-used line.
func (e *PseudoLRUVictimFinder) FindVictim(set *Set, _ int, _ bool) *Line {
	for {
		for i := range set.Lines {
			line := &set.Lines[i]
			if !line.Valid || line.LastAccessTime == 0 {
				return line
			}
		}

		for i := range set.Lines {
			set.Lines[i].LastAccessTime = 0
		}
	}
}

// PartitionVictimFinder splits each set statically between CPU and GPU lines.
// CPU lines may use at most CPUQuota ways and GPU lines the rest.
type PartitionVictimFinder struct {
	CPUQuota int
}

// NewPartitionVictimFinder returns an evictor that enforces the CPU quota.
func NewPartitionVictimFinder(cpuQuota int) *PartitionVictimFinder {
	return &PartitionVictimFinder{CPUQuota: cpuQuota}
}

// FindVictim returns an invalid line while the requester's type is under its
// quota, and otherwise the least recently used line of the requester's type.
// It panics if neither exists, since that means the occupancy counters no
// longer agree with the content of the set.
func (e *PartitionVictimFinder) FindVictim(
	set *Set,
	_ int,
	isGPU bool,
) *Line {
	count := set.occupancy(isGPU)
	limit := e.limit(len(set.Lines), isGPU)

	lruIndex := -1
	lruTime := uint64(math.MaxUint64)

	for i := range set.Lines {
		line := &set.Lines[i]
		if !line.Valid && count < limit {
			return line
		}

		if line.Valid && line.IsGPU == isGPU && line.LastAccessTime < lruTime {
			lruIndex = i
			lruTime = line.LastAccessTime
		}
	}

	if lruIndex == -1 {
		setID := -1
		if len(set.Lines) > 0 {
			setID = set.Lines[0].SetID
		}

		log.Panicf("cache: no victim in set %d assoc:%d count:%d max:%d "+
			"gpu:%t\n%s",
			setID, len(set.Lines), count, limit, isGPU, set.dump())
	}

	return &set.Lines[lruIndex]
}

func (e *PartitionVictimFinder) limit(assoc int, isGPU bool) int {
	if isGPU {
		return assoc - e.CPUQuota
	}

	return e.CPUQuota
}
