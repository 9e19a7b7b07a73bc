package cache

// A ReplacementPolicy keeps the recency state of the lines up to date. The
// hooks are called by Engine.Access when the caller asks for the replacement
// state to be updated.
type ReplacementPolicy interface {
	// OnAccess is called before the set is searched.
	OnAccess(setID int, lineAddr uint64, applID int)

	// OnHit is called with the line that hits.
	OnHit(line *Line, setID int, applID int, now uint64)

	// OnMiss is called when no line matches. Set-dueling policies sample
	// their leader sets here.
	OnMiss(setID int, applID int)
}

// RecencyPolicy stamps the hit line with the current cycle. It is the
// default policy and serves both LRUVictimFinder and PseudoLRUVictimFinder.
type RecencyPolicy struct {
}

// OnAccess does nothing.
func (RecencyPolicy) OnAccess(int, uint64, int) {}

// OnHit records the access time.
func (RecencyPolicy) OnHit(line *Line, _ int, _ int, now uint64) {
	line.LastAccessTime = now
}

// OnMiss does nothing.
func (RecencyPolicy) OnMiss(int, int) {}
