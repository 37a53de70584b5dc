// Package testutil provides synthetic snapshot builders for tests.
package testutil

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/heapscope/internal/snapshot"
)

// Canonical type tables used by the encoder. Type codes are indices
// into these tables.
var (
	NodeTypeTable = []string{
		"hidden", "object", "closure", "array", "string",
		"number", "regexp", "code", "native", "synthetic",
	}
	EdgeTypeTable = []string{
		"property", "element", "internal", "hidden", "weak", "context", "shortcut",
	}
)

type builderNode struct {
	id       uint64
	typeCode int64
	name     string
	selfSize int64
}

type builderEdge struct {
	from     uint64
	to       uint64
	typeCode int64
	name     string
	index    int64 // element index, used when typeCode is element
}

// GraphBuilder assembles a synthetic heap graph and encodes it into the
// flat-array snapshot form, exercising the same wire shape producers emit.
type GraphBuilder struct {
	nodes  []builderNode
	edges  []builderEdge
	nextID uint64
	byID   map[uint64]int
}

// NewGraphBuilder creates an empty builder. Node ids are assigned
// sequentially starting at 1.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{nextID: 1, byID: make(map[uint64]int)}
}

// AddRoot adds a synthetic GC-roots node and returns its id. Call it
// first so the root lands at decode index 0.
func (b *GraphBuilder) AddRoot() uint64 {
	return b.AddNode("synthetic", "(GC roots)", 0)
}

// AddNode adds a node of the given kind name and returns its id.
func (b *GraphBuilder) AddNode(kind, name string, selfSize int64) uint64 {
	code := int64(0)
	for i, k := range NodeTypeTable {
		if k == kind {
			code = int64(i)
			break
		}
	}
	id := b.nextID
	b.nextID++
	b.byID[id] = len(b.nodes)
	b.nodes = append(b.nodes, builderNode{id: id, typeCode: code, name: name, selfSize: selfSize})
	return id
}

// AddEdge adds a named edge of the given kind between two node ids.
func (b *GraphBuilder) AddEdge(from, to uint64, kind, name string) {
	code := int64(0)
	for i, k := range EdgeTypeTable {
		if k == kind {
			code = int64(i)
			break
		}
	}
	b.edges = append(b.edges, builderEdge{from: from, to: to, typeCode: code, name: name})
}

// AddElement adds an element edge with a numeric index.
func (b *GraphBuilder) AddElement(from, to uint64, index int64) {
	b.edges = append(b.edges, builderEdge{from: from, to: to, typeCode: 1, index: index})
}

// NodeCount returns the number of nodes added so far.
func (b *GraphBuilder) NodeCount() int { return len(b.nodes) }

// EdgeCount returns the number of edges added so far.
func (b *GraphBuilder) EdgeCount() int { return len(b.edges) }

// Raw encodes the graph into the flat-array form using the edge_count
// convention: edges are grouped by source node in node order.
func (b *GraphBuilder) Raw() *snapshot.RawSnapshot {
	nodeFields := []string{"type", "name", "id", "self_size", "edge_count"}
	edgeFields := []string{"type", "name_or_index", "to_node"}

	strings := []string{""}
	stringIdx := map[string]int64{"": 0}
	intern := func(s string) int64 {
		if idx, ok := stringIdx[s]; ok {
			return idx
		}
		idx := int64(len(strings))
		strings = append(strings, s)
		stringIdx[s] = idx
		return idx
	}

	// Group edges by source, preserving insertion order within a node.
	grouped := make([]builderEdge, len(b.edges))
	copy(grouped, b.edges)
	sort.SliceStable(grouped, func(i, j int) bool {
		return b.byID[grouped[i].from] < b.byID[grouped[j].from]
	})

	edgeCounts := make([]int64, len(b.nodes))
	for _, e := range grouped {
		edgeCounts[b.byID[e.from]]++
	}

	nodes := make([]int64, 0, len(b.nodes)*len(nodeFields))
	for i, n := range b.nodes {
		nodes = append(nodes, n.typeCode, intern(n.name), int64(n.id), n.selfSize, edgeCounts[i])
	}

	edges := make([]int64, 0, len(grouped)*len(edgeFields))
	for _, e := range grouped {
		nameOrIndex := e.index
		if e.typeCode != 1 { // everything except element carries a string name
			nameOrIndex = intern(e.name)
		}
		toOffset := int64(b.byID[e.to]) * int64(len(nodeFields))
		edges = append(edges, e.typeCode, nameOrIndex, toOffset)
	}

	return &snapshot.RawSnapshot{
		Meta: snapshot.Meta{
			NodeFields: nodeFields,
			NodeTypes:  NodeTypeTable,
			EdgeFields: edgeFields,
			EdgeTypes:  EdgeTypeTable,
		},
		Nodes:   nodes,
		Edges:   edges,
		Strings: strings,
	}
}

// Document encodes the graph as a JSON snapshot document, the shape the
// CLI reads from disk.
func (b *GraphBuilder) Document() []byte {
	raw := b.Raw()
	doc := map[string]interface{}{
		"snapshot": map[string]interface{}{
			"meta": map[string]interface{}{
				"node_fields": raw.Meta.NodeFields,
				"node_types":  []interface{}{raw.Meta.NodeTypes},
				"edge_fields": raw.Meta.EdgeFields,
				"edge_types":  []interface{}{raw.Meta.EdgeTypes},
			},
		},
		"nodes":   raw.Nodes,
		"edges":   raw.Edges,
		"strings": raw.Strings,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return data
}

// Build decodes the encoded graph, failing the test on error.
func (b *GraphBuilder) Build(t *testing.T) *snapshot.Snapshot {
	t.Helper()
	snap, err := snapshot.Decode(b.Raw())
	if err != nil {
		t.Fatalf("failed to decode synthetic snapshot: %v", err)
	}
	return snap
}
