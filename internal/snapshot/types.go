// Package snapshot decodes flat-array heap snapshot documents into an
// arena-style node/edge graph.
package snapshot

import "strings"

// NodeKind is the tagged variant of a heap node.
type NodeKind uint8

const (
	KindObject NodeKind = iota
	KindClosure
	KindArray
	KindString
	KindNumber
	KindRegexp
	KindCode
	KindNative
	KindSynthetic
	KindHidden
)

// String returns the kind name used in results and reports.
func (k NodeKind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindClosure:
		return "closure"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindRegexp:
		return "regexp"
	case KindCode:
		return "code"
	case KindNative:
		return "native"
	case KindSynthetic:
		return "synthetic"
	case KindHidden:
		return "hidden"
	default:
		return "hidden"
	}
}

// ParseNodeKind maps a type-table name to a NodeKind. Producers use a few
// dialect spellings ("concatenated string", "object shape"); unknown names
// fall back to hidden so they are excluded by the default filters.
func ParseNodeKind(name string) NodeKind {
	switch name {
	case "object":
		return KindObject
	case "closure":
		return KindClosure
	case "array":
		return KindArray
	case "string":
		return KindString
	case "number", "bigint":
		return KindNumber
	case "regexp":
		return KindRegexp
	case "code":
		return KindCode
	case "native":
		return KindNative
	case "synthetic":
		return KindSynthetic
	case "hidden":
		return KindHidden
	}
	if strings.Contains(name, "string") {
		return KindString
	}
	return KindHidden
}

// EdgeKind is the tagged variant of a heap edge.
type EdgeKind uint8

const (
	EdgeProperty EdgeKind = iota
	EdgeElement
	EdgeInternal
	EdgeHidden
	EdgeWeak
	EdgeContext
	EdgeShortcut
)

// String returns the edge kind name.
func (k EdgeKind) String() string {
	switch k {
	case EdgeProperty:
		return "property"
	case EdgeElement:
		return "element"
	case EdgeInternal:
		return "internal"
	case EdgeHidden:
		return "hidden"
	case EdgeWeak:
		return "weak"
	case EdgeContext:
		return "context"
	case EdgeShortcut:
		return "shortcut"
	default:
		return "hidden"
	}
}

// ParseEdgeKind maps a type-table name to an EdgeKind.
func ParseEdgeKind(name string) EdgeKind {
	switch name {
	case "property":
		return EdgeProperty
	case "element":
		return EdgeElement
	case "internal":
		return EdgeInternal
	case "hidden":
		return EdgeHidden
	case "weak":
		return EdgeWeak
	case "context":
		return EdgeContext
	case "shortcut":
		return EdgeShortcut
	}
	return EdgeHidden
}

// IsStrong reports whether the edge kind keeps its target alive for the
// purposes of reachability analysis.
func (k EdgeKind) IsStrong() bool {
	return k == EdgeProperty || k == EdgeElement
}

// Node is one heap object in decode order.
type Node struct {
	ID           uint64
	Index        int
	Kind         NodeKind
	Name         string
	SelfSize     int64
	RetainedSize int64
}

// Edge is one reference between two nodes, addressed by node index.
// Name is empty for anonymous edges.
type Edge struct {
	From int
	To   int
	Kind EdgeKind
	Name string
}

// SizeMode records how a snapshot's retained sizes were produced.
type SizeMode uint8

const (
	// SizeModeApprox means retained size equals self size; no dominator
	// pass was run.
	SizeModeApprox SizeMode = iota
	// SizeModeDominator means retained sizes come from a dominator-tree
	// pass and satisfy retained >= self.
	SizeModeDominator
)

// String returns the size mode name.
func (m SizeMode) String() string {
	if m == SizeModeDominator {
		return "dominator"
	}
	return "approx"
}

// DecodeStats counts recoverable problems encountered during decode.
type DecodeStats struct {
	UnresolvedStrings int
	DanglingEdges     int
}

// Snapshot is an immutable decoded heap graph. Nodes are stored in a flat
// arena indexed by decode order; edges address nodes by index, so cycles
// are plain data and traversals need no special-casing.
type Snapshot struct {
	nodes     []Node
	edges     []Edge
	idToIndex map[uint64]int
	outEdges  [][]int32 // node index -> edge indices
	inEdges   [][]int32
	totalSelf int64
	sizeMode  SizeMode
	stats     DecodeStats
}

// NodeCount returns the number of nodes.
func (s *Snapshot) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of edges.
func (s *Snapshot) EdgeCount() int { return len(s.edges) }

// Node returns the node at the given decode index.
func (s *Snapshot) Node(i int) *Node { return &s.nodes[i] }

// Nodes returns the node arena. Callers must not mutate it.
func (s *Snapshot) Nodes() []Node { return s.nodes }

// Edge returns the edge at the given index.
func (s *Snapshot) Edge(i int) *Edge { return &s.edges[i] }

// Edges returns the edge arena. Callers must not mutate it.
func (s *Snapshot) Edges() []Edge { return s.edges }

// NodeByID returns the index of the node with the given runtime id,
// or -1 if the id is not present.
func (s *Snapshot) NodeByID(id uint64) int {
	if idx, ok := s.idToIndex[id]; ok {
		return idx
	}
	return -1
}

// OutEdges returns the edge indices leaving node i.
func (s *Snapshot) OutEdges(i int) []int32 {
	if i < 0 || i >= len(s.outEdges) {
		return nil
	}
	return s.outEdges[i]
}

// InEdges returns the edge indices entering node i.
func (s *Snapshot) InEdges(i int) []int32 {
	if i < 0 || i >= len(s.inEdges) {
		return nil
	}
	return s.inEdges[i]
}

// TotalSelfSize returns the sum of all node self sizes.
func (s *Snapshot) TotalSelfSize() int64 { return s.totalSelf }

// SizeMode reports which mode produced the snapshot's retained sizes.
func (s *Snapshot) SizeMode() SizeMode { return s.sizeMode }

// Stats returns decode-time recoverable problem counts.
func (s *Snapshot) Stats() DecodeStats { return s.stats }

// rootNamePatterns identifies names that behave like retention roots:
// the global object, documents and windows, and synthetic GC root nodes.
var rootNamePatterns = []string{
	"Window",
	"GlobalObject",
	"global",
	"Document",
	"GC roots",
	"(GC roots)",
}

// IsRootEquivalent reports whether a node counts as a retention root for
// reachability purposes.
func IsRootEquivalent(n *Node) bool {
	if n.Kind == KindSynthetic && n.Index == 0 {
		return true
	}
	for _, pat := range rootNamePatterns {
		if strings.Contains(n.Name, pat) {
			if n.Kind == KindSynthetic || n.Kind == KindNative || n.Kind == KindObject {
				return true
			}
		}
	}
	return false
}

// IsRootEquivalent reports whether the node at index i counts as a
// retention root. Out-of-range indices are never roots.
func (s *Snapshot) IsRootEquivalent(i int) bool {
	if i < 0 || i >= len(s.nodes) {
		return false
	}
	return IsRootEquivalent(&s.nodes[i])
}

// Roots returns the indices of all root-equivalent nodes.
func (s *Snapshot) Roots() []int {
	var roots []int
	for i := range s.nodes {
		if IsRootEquivalent(&s.nodes[i]) {
			roots = append(roots, i)
		}
	}
	return roots
}
