package registry

import "fmt"

// Cost is the result of a cost lookup: modeled latency, CPU cost, and
// memory footprint for moving bytes bytes of a given message kind
// through a given serializer format.
type Cost struct {
	LatencyNS   int64
	CPUCycles   int64
	MemoryBytes int64
}

// FormatCost parameterizes the throughput model for one serializer
// format, keyed by the config surface's serializer.format.
type FormatCost struct {
	// ThroughputBytesPerNS is how many bytes this format can move per
	// nanosecond of modeled time; latency's size-dependent term is
	// bytes / ThroughputBytesPerNS.
	ThroughputBytesPerNS float64
	BaseNS                int64
	CPUOverheadNS         int64
	CPUCyclesPerByte      int64
	CPUCycleOverhead      int64
	MemoryOverheadBytes   int64
}

// Table holds the per-format cost parameters. A fresh Table starts
// with the default formats from DefaultTable; callers may add or
// override formats for scenario-specific tuning.
type Table struct {
	formats map[string]FormatCost
}

// NewTable creates a Table seeded with DefaultTable's formats.
func NewTable() *Table {
	t := &Table{formats: make(map[string]FormatCost)}
	for name, fc := range DefaultTable() {
		t.formats[name] = fc
	}
	return t
}

// Set registers or overrides the cost parameters for a format.
func (t *Table) Set(format string, fc FormatCost) {
	t.formats[format] = fc
}

// DefaultTable returns the built-in per-format cost parameters: a
// cheap "raw" passthrough, a moderately-priced "cdr" (DDS's native
// wire format), and a pricier "json" text format.
func DefaultTable() map[string]FormatCost {
	return map[string]FormatCost{
		"raw": {
			ThroughputBytesPerNS: 8,
			BaseNS:               20,
			CPUOverheadNS:        5,
			CPUCyclesPerByte:     1,
			CPUCycleOverhead:     50,
			MemoryOverheadBytes:  0,
		},
		"cdr": {
			ThroughputBytesPerNS: 4,
			BaseNS:               50,
			CPUOverheadNS:        20,
			CPUCyclesPerByte:     3,
			CPUCycleOverhead:     200,
			MemoryOverheadBytes:  16,
		},
		"json": {
			ThroughputBytesPerNS: 1,
			BaseNS:               150,
			CPUOverheadNS:        80,
			CPUCyclesPerByte:     8,
			CPUCycleOverhead:     600,
			MemoryOverheadBytes:  64,
		},
	}
}

// CostOf consults the table for format and applies the throughput
// model: latency_ns = bytes/throughput + base + cpu_overhead. kind is
// accepted for parity with the cost-estimator interface external
// collaborators consult, but the built-in table does not currently
// differentiate by message kind.
func (t *Table) CostOf(kind string, bytes int64, format string) (Cost, error) {
	fc, ok := t.formats[format]
	if !ok {
		return Cost{}, fmt.Errorf("registry: unknown serializer format %q", format)
	}
	latency := int64(float64(bytes)/fc.ThroughputBytesPerNS) + fc.BaseNS + fc.CPUOverheadNS
	cycles := bytes*fc.CPUCyclesPerByte + fc.CPUCycleOverhead
	memory := bytes + fc.MemoryOverheadBytes
	return Cost{LatencyNS: latency, CPUCycles: cycles, MemoryBytes: memory}, nil
}

// Load describes system load for the adaptive cost variant, each
// field normalized to [0, 1] except MessageRateHz.
type Load struct {
	CPU           float64
	Memory        float64
	Network       float64
	MessageRateHz float64
}

// AdaptiveWeights parameterizes how much each load dimension inflates
// the base cost in AdaptiveCostOf.
type AdaptiveWeights struct {
	CPUWeight     float64
	MemoryWeight  float64
	NetworkWeight float64
	RateWeight    float64
}

// DefaultAdaptiveWeights returns a reasonable default weighting: CPU
// and network load dominate, memory pressure contributes less, and
// message rate compounds the others multiplicatively.
func DefaultAdaptiveWeights() AdaptiveWeights {
	return AdaptiveWeights{CPUWeight: 0.6, MemoryWeight: 0.2, NetworkWeight: 0.5, RateWeight: 0.05}
}

// AdaptiveCostOf scales CostOf's result by a load-dependent penalty:
// penalty = 1 + (cpu*cpuWeight + memory*memoryWeight + network*networkWeight)
//             * (1 + rateWeight*messageRateHz)
// so cost grows both with instantaneous resource pressure and with
// how often messages are arriving.
func (t *Table) AdaptiveCostOf(kind string, bytes int64, format string, load Load, weights AdaptiveWeights) (Cost, error) {
	base, err := t.CostOf(kind, bytes, format)
	if err != nil {
		return Cost{}, err
	}
	pressure := load.CPU*weights.CPUWeight + load.Memory*weights.MemoryWeight + load.Network*weights.NetworkWeight
	penalty := 1 + pressure*(1+weights.RateWeight*load.MessageRateHz)

	return Cost{
		LatencyNS:   int64(float64(base.LatencyNS) * penalty),
		CPUCycles:   int64(float64(base.CPUCycles) * penalty),
		MemoryBytes: int64(float64(base.MemoryBytes) * penalty),
	}, nil
}
