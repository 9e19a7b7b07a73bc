package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix starts the name of every environment variable that sets a knob.
const EnvPrefix = "HETMEM_"

// knobRefs maps the variable names, without the prefix, to the knobs.
func (k *Knobs) knobRefs() map[string]any {
	return map[string]any{
		"FREQUENCY_MHZ":      &k.FrequencyMHz,
		"NUM_CPU_CORES":      &k.NumCPUCores,
		"NUM_GPU_CORES":      &k.NumGPUCores,
		"MAX_CYCLES":         &k.MaxCycles,
		"LINE_SIZE":          &k.LineSize,
		"LOG2_PAGE_SIZE":     &k.Log2PageSize,
		"L1_SETS":            &k.L1Sets,
		"L1_ASSOC":           &k.L1Assoc,
		"L1_BANKS":           &k.L1Banks,
		"L2_SETS":            &k.L2Sets,
		"L2_ASSOC":           &k.L2Assoc,
		"LLC_SETS":           &k.LLCSets,
		"LLC_ASSOC":          &k.LLCAssoc,
		"LLC_BANKS":          &k.LLCBanks,
		"L1_LATENCY":         &k.L1Latency,
		"L2_LATENCY":         &k.L2Latency,
		"LLC_LATENCY":        &k.LLCLatency,
		"DRAM_LATENCY":       &k.DRAMLatency,
		"PORTS_PER_BANK":     &k.PortsPerBank,
		"PSEUDO_LRU":         &k.PseudoLRU,
		"STATIC_PARTITION":   &k.StaticPartition,
		"CPU_QUOTA":          &k.CPUQuota,
		"MEMORY_SIZE":        &k.MemorySize,
		"TLB_ENTRIES":        &k.TLBEntries,
		"TLB_SETS":           &k.TLBSets,
		"FAULT_BUFFER_SIZE":  &k.FaultBufferSize,
		"WALK_LATENCY":       &k.WalkLatency,
		"FAULT_LATENCY":      &k.FaultLatency,
		"EVICTION_LATENCY":   &k.EvictionLatency,
		"BATCH_OVERHEAD":     &k.BatchOverhead,
		"MIN_RETIRE_LATENCY": &k.MinRetireLatency,
	}
}

// EnvNames returns the full names of the variables that set knobs.
func EnvNames() []string {
	var k Knobs

	names := make([]string, 0, len(k.knobRefs()))
	for name := range k.knobRefs() {
		names = append(names, EnvPrefix+name)
	}

	return names
}

// Set assigns a knob from its variable name, with or without the prefix.
func (k *Knobs) Set(name, value string) error {
	key := strings.TrimPrefix(strings.ToUpper(name), EnvPrefix)

	ref, ok := k.knobRefs()[key]
	if !ok {
		return fmt.Errorf("%w: unknown knob %s", ErrInvalidKnob, name)
	}

	var err error

	value = strings.TrimSpace(value)

	switch p := ref.(type) {
	case *int:
		*p, err = strconv.Atoi(value)
	case *uint64:
		*p, err = strconv.ParseUint(value, 0, 64)
	case *float64:
		*p, err = strconv.ParseFloat(value, 64)
	case *bool:
		*p, err = strconv.ParseBool(value)
	default:
		panic(fmt.Sprintf("knob %s has unsupported type %T", key, ref))
	}

	if err != nil {
		return fmt.Errorf("%w: %s=%q: %w", ErrInvalidKnob, name, value, err)
	}

	return nil
}

// ApplyEnv overrides the knobs whose variables are set in the process
// environment.
func (k *Knobs) ApplyEnv() error {
	for name := range k.knobRefs() {
		value, ok := os.LookupEnv(EnvPrefix + name)
		if !ok {
			continue
		}

		if err := k.Set(name, value); err != nil {
			return err
		}
	}

	return nil
}

// LoadEnvFile overrides the knobs with the HETMEM_ variables of a .env file.
// Other variables in the file are ignored.
func (k *Knobs) LoadEnvFile(path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	for name, value := range values {
		if !strings.HasPrefix(name, EnvPrefix) {
			continue
		}

		if err := k.Set(name, value); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}

	return nil
}

// Load starts from the defaults, applies the .env file if a path is given,
// then the process environment, and validates the result.
func Load(envFile string) (Knobs, error) {
	k := DefaultKnobs()

	if envFile != "" {
		if err := k.LoadEnvFile(envFile); err != nil {
			return k, err
		}
	}

	if err := k.ApplyEnv(); err != nil {
		return k, err
	}

	if err := k.Validate(); err != nil {
		return k, err
	}

	return k, nil
}

// Env returns the knobs as variables, as a .env file would hold them.
func (k Knobs) Env() map[string]string {
	env := make(map[string]string)

	for name, ref := range k.knobRefs() {
		var value string

		switch p := ref.(type) {
		case *int:
			value = strconv.Itoa(*p)
		case *uint64:
			value = strconv.FormatUint(*p, 10)
		case *float64:
			value = strconv.FormatFloat(*p, 'g', -1, 64)
		case *bool:
			value = strconv.FormatBool(*p)
		}

		env[EnvPrefix+name] = value
	}

	return env
}
