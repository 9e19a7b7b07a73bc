// Package workload turns memory-access traces into micro-operations.
package workload

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/hetmem/mem/vm"
)

// Application IDs given to the accesses of each device.
const (
	CPUApplID = 0
	GPUApplID = 1
)

// A Reader parses a text trace. Each line holds one access:
//
//	<core> <thread> <R|W> <hex vaddr> <size> <cpu|gpu>
//
// Blank lines and everything after a '#' are ignored. An access may be at
// most one page long and must not run past the top of the address space.
type Reader struct {
	scanner      *bufio.Scanner
	closer       io.Closer
	log2PageSize uint64
	lineNo       int
	nextID       uint64
	pending      []*vm.Uop
}

// NewReader creates a Reader over r. Accesses that cross a page boundary
// are split into one uop per page.
func NewReader(r io.Reader, log2PageSize uint64) *Reader {
	return &Reader{
		scanner:      bufio.NewScanner(r),
		log2PageSize: log2PageSize,
	}
}

// Open creates a Reader over a trace file.
func Open(path string, log2PageSize uint64) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}

	r := NewReader(f, log2PageSize)
	r.closer = f

	return r, nil
}

// Close releases the file opened by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}

	return r.closer.Close()
}

// Next returns the next uop to issue. The pieces of a split access are
// returned one after another, each pointing to the same parent. io.EOF is
// returned at the end of the trace.
func (r *Reader) Next() (*vm.Uop, error) {
	if len(r.pending) > 0 {
		u := r.pending[0]
		r.pending = r.pending[1:]

		return u, nil
	}

	for r.scanner.Scan() {
		r.lineNo++

		line := r.scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		uop, err := r.parse(fields)
		if err != nil {
			return nil, fmt.Errorf("trace line %d: %w", r.lineNo, err)
		}

		children := uop.Split(r.log2PageSize, r.allocID)
		if children == nil {
			return uop, nil
		}

		r.pending = children[1:]

		return children[0], nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}

	return nil, io.EOF
}

func (r *Reader) allocID() uint64 {
	r.nextID++
	return r.nextID
}

func (r *Reader) parse(fields []string) (*vm.Uop, error) {
	if len(fields) != 6 {
		return nil, fmt.Errorf("expected 6 fields, got %d", len(fields))
	}

	coreID, err := strconv.Atoi(fields[0])
	if err != nil || coreID < 0 {
		return nil, fmt.Errorf("bad core %q", fields[0])
	}

	threadID, err := strconv.Atoi(fields[1])
	if err != nil || threadID < 0 {
		return nil, fmt.Errorf("bad thread %q", fields[1])
	}

	var isStore bool

	switch strings.ToUpper(fields[2]) {
	case "R":
	case "W":
		isStore = true
	default:
		return nil, fmt.Errorf("bad access type %q", fields[2])
	}

	hex := strings.TrimPrefix(strings.ToLower(fields[3]), "0x")

	vAddr, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("bad address %q: %w", fields[3], err)
	}

	size, err := strconv.Atoi(fields[4])
	if err != nil || size <= 0 {
		return nil, fmt.Errorf("bad size %q", fields[4])
	}

	if uint64(size) > uint64(1)<<r.log2PageSize {
		return nil, fmt.Errorf("size %d is larger than a page", size)
	}

	if vAddr > math.MaxUint64-uint64(size)+1 {
		return nil, fmt.Errorf("access at %#x of %d bytes wraps around",
			vAddr, size)
	}

	var isGPU bool

	switch strings.ToLower(fields[5]) {
	case "cpu":
	case "gpu":
		isGPU = true
	default:
		return nil, fmt.Errorf("bad device %q", fields[5])
	}

	applID := CPUApplID
	if isGPU {
		applID = GPUApplID
	}

	return &vm.Uop{
		ID:       r.allocID(),
		CoreID:   coreID,
		ThreadID: threadID,
		ApplID:   applID,
		IsGPU:    isGPU,
		IsStore:  isStore,
		VAddr:    vAddr,
		Size:     size,
	}, nil
}
