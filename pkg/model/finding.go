package model

// LeakCategory is the tagged variant identifying which detector produced
// a finding.
type LeakCategory string

const (
	CategoryTimerRetention     LeakCategory = "timer-retention"
	CategoryDetachedDOM        LeakCategory = "detached-dom"
	CategoryGlobalAccumulation LeakCategory = "global-accumulation"
	CategoryShapeDuplication   LeakCategory = "shape-duplication"
	CategoryCollectionGrowth   LeakCategory = "collection-growth"
)

// RootKind classifies the origin of a retainer path.
type RootKind string

const (
	RootGlobal    RootKind = "global"
	RootClosure   RootKind = "closure"
	RootDOM       RootKind = "dom"
	RootFramework RootKind = "framework"
	RootGC        RootKind = "gc-root"
	RootUnknown   RootKind = "unknown"
)

// RetainerHop is one step on a reconstructed root-to-object path.
type RetainerHop struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// RetainerPath is a plausible path from a root-equivalent to an object.
// It is the strongest-incoming-edge reconstruction, not necessarily the
// globally shortest path.
type RetainerPath struct {
	NodeID     uint64        `json:"node_id"`
	RootKind   RootKind      `json:"root_kind"`
	Hops       []RetainerHop `json:"hops"`
	Confidence int           `json:"confidence"`
	Severity   Significance  `json:"severity"`
	Assessment string        `json:"assessment,omitempty"`
}

// LeakFinding is one scored, categorized result from the leak classifier.
type LeakFinding struct {
	Category    LeakCategory  `json:"category"`
	Severity    Significance  `json:"severity"`
	Confidence  int           `json:"confidence"` // clamped to [10,100]
	NodeIDs     []uint64      `json:"node_ids"`
	Description string        `json:"description"`
	Remediation string        `json:"remediation"`
	Path        *RetainerPath `json:"path,omitempty"`
}
