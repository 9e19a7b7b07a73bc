// Package vm defines the micro-operation record that flows through the
// translation unit and the page table that backs it.
package vm

import (
	"fmt"
	"log"
)

// UopState tells where an access is in the translation pipeline.
type UopState int

// States of a micro-operation.
const (
	StateTransBegin UopState = iota
	StateTransDone
	StateTransWalkQueue
	StateTransRetryQueue
	StateTransFaultBuffer
	StateTransFaultRetryQueue
	StateScheduled
)

var stateNames = [...]string{
	"TRANS_BEGIN",
	"TRANS_DONE",
	"TRANS_WALK_QUEUE",
	"TRANS_RETRY_QUEUE",
	"TRANS_FAULT_BUFFER",
	"TRANS_FAULT_RETRY_QUEUE",
	"SCHEDULED",
}

func (s UopState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("UopState(%d)", int(s))
	}

	return stateNames[s]
}

// A Uop is a memory micro-operation. It is owned by the core that issued it
// and is annotated in place by the translation unit and the memory system.
type Uop struct {
	ID       uint64
	CoreID   int
	ThreadID int
	ApplID   int
	IsGPU    bool
	IsStore  bool

	VAddr      uint64
	PAddr      uint64
	Size       int
	Translated bool
	State      UopState

	// Parent is set on the pieces of an access that was split because it
	// crosses a page boundary.
	Parent           *Uop
	NumChildUops     int
	NumChildUopsDone int

	// NumPageTableWalks counts the children of this uop that are still
	// between the walk queue and the fault buffer.
	NumPageTableWalks int

	DoneCycle uint64
}

// IsParent tells if the uop only exists to track its children.
func (u *Uop) IsParent() bool {
	return u.NumChildUops > 0
}

// IsDone tells if the access has completed.
func (u *Uop) IsDone() bool {
	return u.State == StateScheduled
}

// Split divides the uop into one child per page that it touches. Nothing is
// split if the access stays within one page.
func (u *Uop) Split(log2PageSize uint64, nextID func() uint64) []*Uop {
	if u.Size <= 1 {
		return nil
	}

	lastByte := u.VAddr + uint64(u.Size) - 1
	if lastByte < u.VAddr {
		log.Panicf("uop %d: access at %#x of %d bytes wraps around",
			u.ID, u.VAddr, u.Size)
	}

	first := u.VAddr >> log2PageSize
	last := lastByte >> log2PageSize

	if first == last {
		return nil
	}

	children := make([]*Uop, 0, last-first+1)
	addr := u.VAddr
	offsetMask := uint64(1)<<log2PageSize - 1

	for page := first; page <= last; page++ {
		pageLast := min(page<<log2PageSize|offsetMask, lastByte)

		children = append(children, &Uop{
			ID:       nextID(),
			CoreID:   u.CoreID,
			ThreadID: u.ThreadID,
			ApplID:   u.ApplID,
			IsGPU:    u.IsGPU,
			IsStore:  u.IsStore,
			VAddr:    addr,
			Size:     int(pageLast - addr + 1),
			Parent:   u,
		})

		addr = pageLast + 1
	}

	u.NumChildUops = len(children)

	return children
}

func (u *Uop) String() string {
	return fmt.Sprintf("uop %d core:%d thread:%d vaddr:0x%x state:%s",
		u.ID, u.CoreID, u.ThreadID, u.VAddr, u.State)
}
