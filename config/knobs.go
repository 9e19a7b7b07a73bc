// Package config holds the knobs of a simulation run.
package config

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrInvalidKnob is wrapped by every error returned from Validate.
var ErrInvalidKnob = errors.New("invalid knob")

// Knobs are the parameters of a simulation run.
type Knobs struct {
	FrequencyMHz float64
	NumCPUCores  int
	NumGPUCores  int
	MaxCycles    uint64

	LineSize     int
	Log2PageSize uint64

	L1Sets   int
	L1Assoc  int
	L1Banks  int
	L2Sets   int
	L2Assoc  int
	LLCSets  int
	LLCAssoc int
	LLCBanks int

	L1Latency    int
	L2Latency    int
	LLCLatency   int
	DRAMLatency  int
	PortsPerBank int

	PseudoLRU       bool
	StaticPartition bool
	CPUQuota        int

	MemorySize       uint64
	TLBEntries       int
	TLBSets          int
	FaultBufferSize  int
	WalkLatency      uint64
	FaultLatency     uint64
	EvictionLatency  uint64
	BatchOverhead    uint64
	MinRetireLatency uint64
}

// DefaultKnobs returns the knobs of a small two-core system.
func DefaultKnobs() Knobs {
	return Knobs{
		FrequencyMHz: 1000,
		NumCPUCores:  1,
		NumGPUCores:  1,

		LineSize:     64,
		Log2PageSize: 12,

		L1Sets:   64,
		L1Assoc:  8,
		L1Banks:  4,
		L2Sets:   512,
		L2Assoc:  8,
		LLCSets:  2048,
		LLCAssoc: 16,
		LLCBanks: 4,

		L1Latency:    3,
		L2Latency:    12,
		LLCLatency:   30,
		DRAMLatency:  200,
		PortsPerBank: 1,

		CPUQuota: 8,

		MemorySize:       1 << 30,
		TLBEntries:       64,
		TLBSets:          1,
		FaultBufferSize:  32,
		WalkLatency:      100,
		FaultLatency:     1000,
		EvictionLatency:  500,
		BatchOverhead:    5000,
		MinRetireLatency: 1,
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && bits.OnesCount(uint(n)) == 1
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidKnob, fmt.Sprintf(format, args...))
}

// Validate checks that the knobs describe a system that can be built.
func (k Knobs) Validate() error {
	if k.FrequencyMHz <= 0 {
		return invalid("frequency must be positive, got %g", k.FrequencyMHz)
	}

	if k.NumCPUCores < 0 || k.NumGPUCores < 0 ||
		k.NumCPUCores+k.NumGPUCores == 0 {
		return invalid("need at least one core, got %d CPU and %d GPU",
			k.NumCPUCores, k.NumGPUCores)
	}

	if !isPowerOfTwo(k.LineSize) {
		return invalid("line size %d is not a power of two", k.LineSize)
	}

	if k.Log2PageSize == 0 || k.Log2PageSize > 30 {
		return invalid("log2 page size %d out of range", k.Log2PageSize)
	}

	if uint64(k.LineSize) > 1<<k.Log2PageSize {
		return invalid("line size %d exceeds the page size", k.LineSize)
	}

	if err := k.validateCaches(); err != nil {
		return err
	}

	return k.validateMMU()
}

func (k Knobs) validateCaches() error {
	geometries := []struct {
		name               string
		sets, assoc, banks int
	}{
		{"L1", k.L1Sets, k.L1Assoc, k.L1Banks},
		{"L2", k.L2Sets, k.L2Assoc, 1},
		{"LLC", k.LLCSets, k.LLCAssoc, k.LLCBanks},
	}

	for _, g := range geometries {
		if !isPowerOfTwo(g.sets) {
			return invalid("%s sets %d is not a power of two", g.name, g.sets)
		}

		if g.assoc <= 0 {
			return invalid("%s associativity must be positive", g.name)
		}

		if g.banks < 0 || (g.banks > 0 && !isPowerOfTwo(g.banks)) {
			return invalid("%s banks %d is not a power of two", g.name, g.banks)
		}
	}

	for name, lat := range map[string]int{
		"L1": k.L1Latency, "L2": k.L2Latency,
		"LLC": k.LLCLatency, "DRAM": k.DRAMLatency,
	} {
		if lat <= 0 {
			return invalid("%s latency must be positive", name)
		}
	}

	if k.PortsPerBank < 0 {
		return invalid("ports per bank must not be negative")
	}

	if k.StaticPartition && (k.CPUQuota <= 0 || k.CPUQuota >= k.LLCAssoc) {
		return invalid("CPU quota %d must leave ways for both devices in "+
			"a %d-way LLC", k.CPUQuota, k.LLCAssoc)
	}

	return nil
}

func (k Knobs) validateMMU() error {
	if k.MemorySize>>k.Log2PageSize == 0 {
		return invalid("memory size %d holds no page", k.MemorySize)
	}

	if k.TLBSets <= 0 || k.TLBEntries <= 0 || k.TLBEntries%k.TLBSets != 0 {
		return invalid("%d TLB entries cannot be spread over %d sets",
			k.TLBEntries, k.TLBSets)
	}

	if k.FaultBufferSize <= 0 {
		return invalid("fault buffer size must be positive")
	}

	if k.WalkLatency == 0 {
		return invalid("walk latency must be positive")
	}

	return nil
}
