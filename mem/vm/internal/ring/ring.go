// Package ring provides a fixed-capacity recency list. Entries are kept from
// the most recently used to the least recently used. Nodes live in an arena
// and are linked by index, so no operation allocates after construction.
package ring

import "log"

const (
	head = 0
	tail = 1
	none = -1
)

type node struct {
	key   uint64
	value uint64
	prev  int
	next  int
}

// A Ring is an MRU-ordered list with O(1) insertion, promotion and eviction.
type Ring struct {
	nodes []node
	free  []int
	index map[uint64]int
}

// New creates a ring that holds at most capacity entries.
func New(capacity int) *Ring {
	if capacity <= 0 {
		log.Panicf("ring capacity must be positive, got %d", capacity)
	}

	r := &Ring{
		nodes: make([]node, capacity+2),
		free:  make([]int, 0, capacity),
		index: make(map[uint64]int, capacity),
	}

	r.nodes[head] = node{prev: none, next: tail}
	r.nodes[tail] = node{prev: head, next: none}

	for i := len(r.nodes) - 1; i > tail; i-- {
		r.free = append(r.free, i)
	}

	return r
}

// Len returns the number of entries.
func (r *Ring) Len() int {
	return len(r.index)
}

// Cap returns the maximum number of entries.
func (r *Ring) Cap() int {
	return len(r.nodes) - 2
}

// Contains tells if the key is in the ring.
func (r *Ring) Contains(key uint64) bool {
	_, ok := r.index[key]
	return ok
}

// Lookup returns the value of the key without changing its position.
func (r *Ring) Lookup(key uint64) (value uint64, ok bool) {
	i, ok := r.index[key]
	if !ok {
		return 0, false
	}

	return r.nodes[i].value, true
}

// Insert puts a new key at the MRU position. When the ring is full, the LRU
// entry is replaced and returned as evicted. The key must not be present.
func (r *Ring) Insert(key, value uint64) (evictedKey uint64, evicted bool) {
	if _, ok := r.index[key]; ok {
		log.Panicf("key 0x%x already in ring", key)
	}

	var i int
	if len(r.free) > 0 {
		i = r.free[len(r.free)-1]
		r.free = r.free[:len(r.free)-1]
	} else {
		i = r.nodes[tail].prev
		r.detach(i)
		evictedKey = r.nodes[i].key
		evicted = true
		delete(r.index, evictedKey)
	}

	r.nodes[i].key = key
	r.nodes[i].value = value
	r.index[key] = i
	r.attach(i)

	return evictedKey, evicted
}

// Touch moves the key to the MRU position. The key must be present.
func (r *Ring) Touch(key uint64) {
	i := r.mustFind(key)
	r.detach(i)
	r.attach(i)
}

// Victim removes and returns the LRU entry. The ring must not be empty.
func (r *Ring) Victim() (key, value uint64) {
	i := r.nodes[tail].prev
	if i == head {
		log.Panic("victim requested from an empty ring")
	}

	key, value = r.nodes[i].key, r.nodes[i].value
	r.release(i)

	return key, value
}

// Remove drops the key. It returns false if the key is not present.
func (r *Ring) Remove(key uint64) bool {
	i, ok := r.index[key]
	if !ok {
		return false
	}

	r.release(i)

	return true
}

// Keys lists the keys from MRU to LRU.
func (r *Ring) Keys() []uint64 {
	keys := make([]uint64, 0, r.Len())
	for i := r.nodes[head].next; i != tail; i = r.nodes[i].next {
		keys = append(keys, r.nodes[i].key)
	}

	return keys
}

func (r *Ring) mustFind(key uint64) int {
	i, ok := r.index[key]
	if !ok {
		log.Panicf("key 0x%x not in ring", key)
	}

	return i
}

func (r *Ring) release(i int) {
	r.detach(i)
	delete(r.index, r.nodes[i].key)
	r.nodes[i] = node{prev: none, next: none}
	r.free = append(r.free, i)
}

func (r *Ring) detach(i int) {
	n := &r.nodes[i]
	r.nodes[n.prev].next = n.next
	r.nodes[n.next].prev = n.prev
}

func (r *Ring) attach(i int) {
	n := &r.nodes[i]
	n.next = r.nodes[head].next
	n.prev = head
	r.nodes[head].next = i
	r.nodes[n.next].prev = i
}
