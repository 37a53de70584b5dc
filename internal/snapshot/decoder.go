package snapshot

import (
	"encoding/json"
	"strconv"

	"github.com/heapscope/pkg/errors"
)

// Required field names for the node and edge field-order descriptors.
const (
	fieldType         = "type"
	fieldName         = "name"
	fieldSelfSize     = "self_size"
	fieldID           = "id"
	fieldEdgeCount    = "edge_count"
	fieldRetainedSize = "retained_size"
	fieldToNode       = "to_node"
	fieldFromNode     = "from_node"
	fieldNameOrIndex  = "name_or_index"
)

// Meta is the decode table of a raw snapshot: field order for the flat
// node/edge arrays and the type-name lookup tables. It is only needed
// during decoding and is discarded afterward.
type Meta struct {
	NodeFields []string `json:"node_fields"`
	NodeTypes  []string `json:"node_types"`
	EdgeFields []string `json:"edge_fields"`
	EdgeTypes  []string `json:"edge_types"`
}

// RawSnapshot is the flat-array form of a heap snapshot document.
type RawSnapshot struct {
	Meta    Meta
	Nodes   []int64
	Edges   []int64
	Strings []string
}

// rawDocument mirrors the on-disk JSON layout. The type tables may be
// either flat string arrays or nested one level, depending on the
// producer dialect.
type rawDocument struct {
	Snapshot struct {
		Meta struct {
			NodeFields []string          `json:"node_fields"`
			NodeTypes  []json.RawMessage `json:"node_types"`
			EdgeFields []string          `json:"edge_fields"`
			EdgeTypes  []json.RawMessage `json:"edge_types"`
		} `json:"meta"`
	} `json:"snapshot"`
	Nodes   []int64  `json:"nodes"`
	Edges   []int64  `json:"edges"`
	Strings []string `json:"strings"`
}

// ParseDocument parses a raw snapshot document from JSON bytes.
func ParseDocument(data []byte) (*RawSnapshot, error) {
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.CodeMalformedSnapshot, "snapshot document is not valid JSON", err)
	}

	nodeTypes, err := parseTypeTable(doc.Snapshot.Meta.NodeTypes)
	if err != nil {
		return nil, errors.Wrap(errors.CodeMalformedSnapshot, "invalid node type table", err)
	}
	edgeTypes, err := parseTypeTable(doc.Snapshot.Meta.EdgeTypes)
	if err != nil {
		return nil, errors.Wrap(errors.CodeMalformedSnapshot, "invalid edge type table", err)
	}

	return &RawSnapshot{
		Meta: Meta{
			NodeFields: doc.Snapshot.Meta.NodeFields,
			NodeTypes:  nodeTypes,
			EdgeFields: doc.Snapshot.Meta.EdgeFields,
			EdgeTypes:  edgeTypes,
		},
		Nodes:   doc.Nodes,
		Edges:   doc.Edges,
		Strings: doc.Strings,
	}, nil
}

// parseTypeTable accepts either ["a","b"] or [["a","b"], ...] where only
// the first nested entry carries the names.
func parseTypeTable(raw []json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var nested []string
	if err := json.Unmarshal(raw[0], &nested); err == nil {
		return nested, nil
	}
	names := make([]string, 0, len(raw))
	for _, msg := range raw {
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return nil, err
		}
		names = append(names, s)
	}
	return names, nil
}

// fieldOffset returns the position of a field name in a field-order
// descriptor, or -1 when absent.
func fieldOffset(fields []string, name string) int {
	for i, f := range fields {
		if f == name {
			return i
		}
	}
	return -1
}

// Decode turns a raw snapshot into a typed node/edge graph. It is a
// single linear pass per array and keeps no references to the raw
// buffers. Structural problems return a MALFORMED_SNAPSHOT error;
// out-of-range string indices degrade to empty names and are counted
// in the snapshot's DecodeStats.
func Decode(raw *RawSnapshot) (*Snapshot, error) {
	nodeFieldCount := len(raw.Meta.NodeFields)
	edgeFieldCount := len(raw.Meta.EdgeFields)

	if nodeFieldCount == 0 {
		return nil, errors.New(errors.CodeMalformedSnapshot, "node field descriptor is empty")
	}
	if len(raw.Nodes)%nodeFieldCount != 0 {
		return nil, errors.Newf(errors.CodeMalformedSnapshot,
			"node array length %d is not a multiple of field count %d", len(raw.Nodes), nodeFieldCount)
	}
	if edgeFieldCount == 0 && len(raw.Edges) > 0 {
		return nil, errors.New(errors.CodeMalformedSnapshot, "edge field descriptor is empty")
	}
	if edgeFieldCount > 0 && len(raw.Edges)%edgeFieldCount != 0 {
		return nil, errors.Newf(errors.CodeMalformedSnapshot,
			"edge array length %d is not a multiple of field count %d", len(raw.Edges), edgeFieldCount)
	}

	nodeType := fieldOffset(raw.Meta.NodeFields, fieldType)
	nodeName := fieldOffset(raw.Meta.NodeFields, fieldName)
	nodeSelf := fieldOffset(raw.Meta.NodeFields, fieldSelfSize)
	nodeID := fieldOffset(raw.Meta.NodeFields, fieldID)
	nodeEdgeCount := fieldOffset(raw.Meta.NodeFields, fieldEdgeCount)
	nodeRetained := fieldOffset(raw.Meta.NodeFields, fieldRetainedSize)

	if nodeType < 0 || nodeName < 0 || nodeSelf < 0 || nodeID < 0 {
		return nil, errors.New(errors.CodeMalformedSnapshot,
			"node field descriptor is missing one of: type, name, self_size, id")
	}

	edgeType := fieldOffset(raw.Meta.EdgeFields, fieldType)
	edgeName := fieldOffset(raw.Meta.EdgeFields, fieldNameOrIndex)
	if edgeName < 0 {
		edgeName = fieldOffset(raw.Meta.EdgeFields, fieldName)
	}
	edgeTo := fieldOffset(raw.Meta.EdgeFields, fieldToNode)
	edgeFrom := fieldOffset(raw.Meta.EdgeFields, fieldFromNode)

	if edgeFieldCount > 0 && (edgeType < 0 || edgeName < 0 || edgeTo < 0) {
		return nil, errors.New(errors.CodeMalformedSnapshot,
			"edge field descriptor is missing one of: type, name, to_node")
	}
	// Edge sources are either explicit (from_node) or attributed via the
	// node edge_count convention. Without either there is no way to know
	// who owns an edge.
	if edgeFieldCount > 0 && edgeFrom < 0 && nodeEdgeCount < 0 {
		return nil, errors.New(errors.CodeMalformedSnapshot,
			"edge sources are unattributable: no from_node field and no node edge_count field")
	}

	nodeCount := len(raw.Nodes) / nodeFieldCount
	edgeCount := 0
	if edgeFieldCount > 0 {
		edgeCount = len(raw.Edges) / edgeFieldCount
	}

	snap := &Snapshot{
		nodes:     make([]Node, nodeCount),
		edges:     make([]Edge, 0, edgeCount),
		idToIndex: make(map[uint64]int, nodeCount),
		sizeMode:  SizeModeApprox,
	}

	resolveString := func(idx int64) string {
		if idx < 0 || idx >= int64(len(raw.Strings)) {
			snap.stats.UnresolvedStrings++
			return ""
		}
		return raw.Strings[idx]
	}

	retainedAdopted := false
	for i := 0; i < nodeCount; i++ {
		base := i * nodeFieldCount
		typeCode := raw.Nodes[base+nodeType]

		kind := KindHidden
		if typeCode >= 0 && typeCode < int64(len(raw.Meta.NodeTypes)) {
			kind = ParseNodeKind(raw.Meta.NodeTypes[typeCode])
		}

		n := Node{
			ID:       uint64(raw.Nodes[base+nodeID]),
			Index:    i,
			Kind:     kind,
			Name:     resolveString(raw.Nodes[base+nodeName]),
			SelfSize: raw.Nodes[base+nodeSelf],
		}
		n.RetainedSize = n.SelfSize
		if nodeRetained >= 0 {
			if r := raw.Nodes[base+nodeRetained]; r > n.SelfSize {
				n.RetainedSize = r
				retainedAdopted = true
			}
		}
		snap.nodes[i] = n
		snap.idToIndex[n.ID] = i
		snap.totalSelf += n.SelfSize
	}

	// Producer-supplied retained sizes count as fully computed, but only
	// when at least one value was actually adopted. A retained_size field
	// whose values all collapsed to self size leaves the mode at approx.
	if retainedAdopted {
		snap.sizeMode = SizeModeDominator
	}

	// Edge sources via the edge_count convention: edges are laid out in
	// node order, edge_count per node.
	var implicitFrom []int
	if edgeFieldCount > 0 && edgeFrom < 0 {
		implicitFrom = make([]int, 0, edgeCount)
		for i := 0; i < nodeCount; i++ {
			cnt := raw.Nodes[i*nodeFieldCount+nodeEdgeCount]
			for j := int64(0); j < cnt; j++ {
				implicitFrom = append(implicitFrom, i)
			}
		}
		if len(implicitFrom) != edgeCount {
			return nil, errors.Newf(errors.CodeMalformedSnapshot,
				"edge_count sum %d does not match edge array entries %d", len(implicitFrom), edgeCount)
		}
	}

	// Node endpoints in edges are offsets into the flat node array.
	resolveNodeOffset := func(off int64) int {
		if off < 0 || off%int64(nodeFieldCount) != 0 {
			return -1
		}
		idx := int(off / int64(nodeFieldCount))
		if idx >= nodeCount {
			return -1
		}
		return idx
	}

	for i := 0; i < edgeCount; i++ {
		base := i * edgeFieldCount
		typeCode := raw.Edges[base+edgeType]

		kind := EdgeHidden
		if typeCode >= 0 && typeCode < int64(len(raw.Meta.EdgeTypes)) {
			kind = ParseEdgeKind(raw.Meta.EdgeTypes[typeCode])
		}

		to := resolveNodeOffset(raw.Edges[base+edgeTo])
		from := -1
		if edgeFrom >= 0 {
			from = resolveNodeOffset(raw.Edges[base+edgeFrom])
		} else {
			from = implicitFrom[i]
		}
		if from < 0 || to < 0 {
			// Endpoint outside the node table. Recover locally by
			// dropping the edge rather than failing the decode.
			snap.stats.DanglingEdges++
			continue
		}

		name := ""
		nameField := raw.Edges[base+edgeName]
		if kind == EdgeElement {
			name = strconv.FormatInt(nameField, 10)
		} else {
			name = resolveString(nameField)
		}

		snap.edges = append(snap.edges, Edge{From: from, To: to, Kind: kind, Name: name})
	}

	snap.buildAdjacency()
	return snap, nil
}

// buildAdjacency builds the per-node in/out edge index lists.
func (s *Snapshot) buildAdjacency() {
	outDeg := make([]int32, len(s.nodes))
	inDeg := make([]int32, len(s.nodes))
	for i := range s.edges {
		outDeg[s.edges[i].From]++
		inDeg[s.edges[i].To]++
	}

	s.outEdges = make([][]int32, len(s.nodes))
	s.inEdges = make([][]int32, len(s.nodes))
	for i := range s.nodes {
		if outDeg[i] > 0 {
			s.outEdges[i] = make([]int32, 0, outDeg[i])
		}
		if inDeg[i] > 0 {
			s.inEdges[i] = make([]int32, 0, inDeg[i])
		}
	}
	for i := range s.edges {
		e := &s.edges[i]
		s.outEdges[e.From] = append(s.outEdges[e.From], int32(i))
		s.inEdges[e.To] = append(s.inEdges[e.To], int32(i))
	}
}
