// Package model defines the shared result types produced by heap analysis.
package model

import "time"

// SnapshotRole identifies a snapshot's position in a capture workflow.
type SnapshotRole string

const (
	RoleBaseline SnapshotRole = "baseline"
	RoleTarget   SnapshotRole = "target"
	RoleFinal    SnapshotRole = "final"
)

// Significance is the size tier assigned to a ranked node.
type Significance string

const (
	SignificanceLow      Significance = "LOW"
	SignificanceMedium   Significance = "MEDIUM"
	SignificanceHigh     Significance = "HIGH"
	SignificanceCritical Significance = "CRITICAL"
)

// GrowthPattern classifies how a tracked object's size evolved.
type GrowthPattern string

const (
	PatternMonotonic   GrowthPattern = "MONOTONIC"
	PatternFluctuating GrowthPattern = "FLUCTUATING"
	PatternStable      GrowthPattern = "STABLE"
)

// RankedNode is one row of the size-ranking table.
type RankedNode struct {
	Rank           int          `json:"rank"`
	NodeID         uint64       `json:"node_id"`
	Name           string       `json:"name"`
	Kind           string       `json:"kind"`
	SelfSize       int64        `json:"self_size"`
	RetainedSize   int64        `json:"retained_size"`
	SizePercentage float64      `json:"size_percentage"`
	Significance   Significance `json:"significance"`
}

// ShapeRecord groups structurally-similar nodes for duplication analysis.
type ShapeRecord struct {
	ShapeKey     string   `json:"shape_key"`
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	NodeIDs      []uint64 `json:"node_ids"`
	Count        int      `json:"count"`
	TotalSize    int64    `json:"total_size"`
	WastedMemory int64    `json:"wasted_memory"`
	Wasteful     bool     `json:"wasteful"`
}

// FanoutRecord describes a node with a high outgoing-reference count.
type FanoutRecord struct {
	NodeID        uint64       `json:"node_id"`
	Name          string       `json:"name"`
	Kind          string       `json:"kind"`
	OutDegree     int          `json:"out_degree"`
	SelfSize      int64        `json:"self_size"`
	RetainedSize  int64        `json:"retained_size"`
	Severity      Significance `json:"severity"`
	SuspicionTags []string     `json:"suspicion_tags,omitempty"`
}

// GrowthRecord is the per-object history built by the growth tracker.
type GrowthRecord struct {
	NodeID        uint64        `json:"node_id"`
	Name          string        `json:"name"`
	Kind          string        `json:"kind"`
	SizeHistory   []int64       `json:"size_history"`
	Pattern       GrowthPattern `json:"pattern"`
	TotalGrowth   int64         `json:"total_growth"`
	DisappearedAt int           `json:"disappeared_at,omitempty"` // snapshot index, 0 = never
}

// GrowthReport is the growth tracker's final output for one session.
type GrowthReport struct {
	SnapshotCount int            `json:"snapshot_count"`
	EnoughData    bool           `json:"enough_data"`
	Records       []GrowthRecord `json:"records,omitempty"`
	TrackedTotal  int            `json:"tracked_total"`
	CappedAt      int            `json:"capped_at,omitempty"`
}

// SnapshotSummary holds decode-time statistics for one snapshot.
type SnapshotSummary struct {
	Role          SnapshotRole `json:"role"`
	NodeCount     int          `json:"node_count"`
	EdgeCount     int          `json:"edge_count"`
	TotalSelfSize int64        `json:"total_self_size"`
	SizeMode      string       `json:"size_mode"`
}

// SnapshotReport bundles the single-snapshot analyzer outputs for one snapshot.
type SnapshotReport struct {
	Role     SnapshotRole   `json:"role"`
	Ranking  []RankedNode   `json:"ranking"`
	Shapes   []ShapeRecord  `json:"shapes"`
	Fanout   []FanoutRecord `json:"fanout"`
	Detached []uint64       `json:"detached,omitempty"`
}

// Diagnostic is a non-fatal problem recorded during an analysis run.
type Diagnostic struct {
	Code    string `json:"code"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

// AnalysisResult is the structured output of an analysis run. Callers of
// the analyze entry point always receive one of these; per-snapshot
// failures are recorded in Diagnostics instead of aborting the run.
type AnalysisResult struct {
	RunUUID     string            `json:"run_uuid"`
	AnalyzedAt  time.Time         `json:"analyzed_at"`
	Snapshots   []SnapshotSummary `json:"snapshots"`
	Reports     []SnapshotReport  `json:"reports"`
	Growth      *GrowthReport     `json:"growth,omitempty"`
	Findings    []LeakFinding     `json:"findings"`
	Diagnostics []Diagnostic      `json:"diagnostics,omitempty"`
}

// AnalysisRequest identifies the snapshots of one analyze run. Snapshot
// documents arrive as already-resolved role/bytes pairs; the core never
// infers roles from filenames.
type AnalysisRequest struct {
	RunUUID   string
	Snapshots []SnapshotInput
}

// SnapshotInput is one raw snapshot document with its resolved role.
type SnapshotInput struct {
	Role SnapshotRole
	Data []byte
}
