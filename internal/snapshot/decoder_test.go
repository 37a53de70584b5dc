package snapshot_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapscope/internal/snapshot"
	"github.com/heapscope/internal/testutil"
	apperrors "github.com/heapscope/pkg/errors"
)

func TestDecodeSmallGraph(t *testing.T) {
	b := testutil.SmallGraph()
	snap := b.Build(t)

	assert.Equal(t, 4, snap.NodeCount())
	assert.Equal(t, 3, snap.EdgeCount())
	assert.Equal(t, snapshot.SizeModeApprox, snap.SizeMode())

	root := snap.Node(0)
	assert.Equal(t, snapshot.KindSynthetic, root.Kind)
	assert.Equal(t, "(GC roots)", root.Name)
	assert.True(t, snap.IsRootEquivalent(0))

	obj := snap.Node(1)
	assert.Equal(t, "AppState", obj.Name)
	assert.Equal(t, int64(64), obj.SelfSize)
	assert.Equal(t, obj.SelfSize, obj.RetainedSize)
}

func TestDecodeRoundTripPreservesGraph(t *testing.T) {
	b := testutil.TimerLeakGraph(20, 1024)
	snap := b.Build(t)

	require.Equal(t, b.NodeCount(), snap.NodeCount())
	require.Equal(t, b.EdgeCount(), snap.EdgeCount())

	// Every edge endpoint resolves and adjacency is symmetric.
	for i := 0; i < snap.EdgeCount(); i++ {
		e := snap.Edge(i)
		require.GreaterOrEqual(t, e.From, 0)
		require.Less(t, e.From, snap.NodeCount())
		require.GreaterOrEqual(t, e.To, 0)
		require.Less(t, e.To, snap.NodeCount())
		assert.Contains(t, snap.OutEdges(e.From), int32(i))
		assert.Contains(t, snap.InEdges(e.To), int32(i))
	}

	var total int64
	for _, n := range snap.Nodes() {
		total += n.SelfSize
	}
	assert.Equal(t, total, snap.TotalSelfSize())
}

func TestDecodeNodeByID(t *testing.T) {
	b := testutil.NewGraphBuilder()
	b.AddRoot()
	id := b.AddNode("object", "Target", 40)
	snap := b.Build(t)

	idx := snap.NodeByID(id)
	require.NotEqual(t, -1, idx)
	assert.Equal(t, "Target", snap.Node(idx).Name)
	assert.Equal(t, -1, snap.NodeByID(999999))
}

func TestDecodeParseDocument(t *testing.T) {
	b := testutil.SmallGraph()
	raw, err := snapshot.ParseDocument(b.Document())
	require.NoError(t, err)

	snap, err := snapshot.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.NodeCount())
}

func TestDecodeParseDocumentInvalidJSON(t *testing.T) {
	_, err := snapshot.ParseDocument([]byte("{not json"))
	require.Error(t, err)
	assert.True(t, apperrors.IsMalformedSnapshot(err))
}

func TestDecodeMissingRequiredField(t *testing.T) {
	b := testutil.SmallGraph()
	raw := b.Raw()
	raw.Meta.NodeFields = []string{"type", "name", "self_size", "edge_count"} // no id

	_, err := snapshot.Decode(raw)
	require.Error(t, err)
	assert.True(t, apperrors.IsMalformedSnapshot(err))
}

func TestDecodeTruncatedNodeArray(t *testing.T) {
	b := testutil.SmallGraph()
	raw := b.Raw()
	raw.Nodes = raw.Nodes[:len(raw.Nodes)-1]

	_, err := snapshot.Decode(raw)
	require.Error(t, err)
	assert.True(t, apperrors.IsMalformedSnapshot(err))
}

func TestDecodeOutOfRangeStringIndex(t *testing.T) {
	b := testutil.SmallGraph()
	raw := b.Raw()
	// Corrupt the name index of the second node.
	nameOffset := len(raw.Meta.NodeFields) + 1
	raw.Nodes[nameOffset] = int64(len(raw.Strings)) + 50

	snap, err := snapshot.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "", snap.Node(1).Name)
	assert.Equal(t, 1, snap.Stats().UnresolvedStrings)
}

func TestDecodeDanglingEdgeDropped(t *testing.T) {
	b := testutil.SmallGraph()
	raw := b.Raw()
	// Point the first edge at an offset past the node table.
	toOffset := 2
	raw.Edges[toOffset] = int64(len(raw.Nodes)) * 10

	snap, err := snapshot.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.EdgeCount())
	assert.Equal(t, 1, snap.Stats().DanglingEdges)
}

func TestDecodeMisalignedEdgeTargetDropped(t *testing.T) {
	b := testutil.SmallGraph()
	raw := b.Raw()
	// An offset that is not a multiple of the node field count does not
	// name a node.
	raw.Edges[2] = 3

	snap, err := snapshot.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.EdgeCount())
	assert.Equal(t, 1, snap.Stats().DanglingEdges)
}

func TestDecodeProducerRetainedSizes(t *testing.T) {
	raw := &snapshot.RawSnapshot{
		Meta: snapshot.Meta{
			NodeFields: []string{"type", "name", "id", "self_size", "retained_size", "edge_count"},
			NodeTypes:  testutil.NodeTypeTable,
			EdgeFields: []string{"type", "name_or_index", "to_node"},
			EdgeTypes:  testutil.EdgeTypeTable,
		},
		Nodes: []int64{
			9, 1, 1, 0, 100, 1, // synthetic root, retains everything
			1, 2, 2, 60, 60, 0, // object
		},
		Edges:   []int64{0, 3, 6},
		Strings: []string{"", "(GC roots)", "AppState", "state"},
	}

	snap, err := snapshot.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, snapshot.SizeModeDominator, snap.SizeMode())
	assert.Equal(t, int64(100), snap.Node(0).RetainedSize)
	assert.Equal(t, int64(60), snap.Node(1).RetainedSize)
}

func TestDecodeRetainedSizesAllCollapsed(t *testing.T) {
	// A retained_size column whose values never exceed self size carries
	// no extra information; the snapshot must stay in approx mode.
	raw := &snapshot.RawSnapshot{
		Meta: snapshot.Meta{
			NodeFields: []string{"type", "name", "id", "self_size", "retained_size", "edge_count"},
			NodeTypes:  testutil.NodeTypeTable,
			EdgeFields: []string{"type", "name_or_index", "to_node"},
			EdgeTypes:  testutil.EdgeTypeTable,
		},
		Nodes: []int64{
			9, 1, 1, 0, 0, 1, // synthetic root, retained == self
			1, 2, 2, 60, 40, 0, // object, retained below self
		},
		Edges:   []int64{0, 3, 6},
		Strings: []string{"", "(GC roots)", "AppState", "state"},
	}

	snap, err := snapshot.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, snapshot.SizeModeApprox, snap.SizeMode())
	assert.Equal(t, int64(0), snap.Node(0).RetainedSize)
	assert.Equal(t, int64(60), snap.Node(1).RetainedSize)
}

func TestDecodeLargeRandomGraphRoundTrip(t *testing.T) {
	const nodeCount = 10000
	rng := rand.New(rand.NewSource(42))
	kinds := []string{"object", "closure", "array", "string", "native"}

	b := testutil.NewGraphBuilder()
	ids := make([]uint64, 0, nodeCount)
	names := make(map[uint64]string, nodeCount)
	sizes := make(map[uint64]int64, nodeCount)

	root := b.AddRoot()
	ids = append(ids, root)
	names[root] = "(GC roots)"
	sizes[root] = 0

	var totalSelf int64
	for i := 1; i < nodeCount; i++ {
		name := fmt.Sprintf("Obj%d", i)
		size := int64(rng.Intn(4096) + 16)
		id := b.AddNode(kinds[rng.Intn(len(kinds))], name, size)
		ids = append(ids, id)
		names[id] = name
		sizes[id] = size
		totalSelf += size

		// Hang every node off an earlier one so the graph stays connected.
		b.AddEdge(ids[rng.Intn(i)], id, "property", fmt.Sprintf("p%d", i))
	}
	// Cross edges, including back edges, so the graph contains cycles.
	for i := 0; i < nodeCount/2; i++ {
		from := ids[rng.Intn(len(ids))]
		to := ids[rng.Intn(len(ids))]
		b.AddEdge(from, to, "internal", "ref")
	}

	snap := b.Build(t)
	require.Equal(t, b.NodeCount(), snap.NodeCount())
	require.Equal(t, b.EdgeCount(), snap.EdgeCount())
	assert.Equal(t, totalSelf, snap.TotalSelfSize())
	assert.Zero(t, snap.Stats().DanglingEdges)
	assert.Zero(t, snap.Stats().UnresolvedStrings)

	// Sampled nodes survive the encode/decode cycle with their identity,
	// name, and size intact.
	for i := 0; i < 200; i++ {
		id := ids[rng.Intn(len(ids))]
		idx := snap.NodeByID(id)
		require.NotEqual(t, -1, idx)
		n := snap.Node(idx)
		assert.Equal(t, id, n.ID)
		assert.Equal(t, names[id], n.Name)
		assert.Equal(t, sizes[id], n.SelfSize)
	}

	// Adjacency lists stay symmetric with the edge arena.
	for i := 0; i < snap.EdgeCount(); i++ {
		e := snap.Edge(i)
		require.Contains(t, snap.OutEdges(e.From), int32(i))
		require.Contains(t, snap.InEdges(e.To), int32(i))
	}
}

func TestDecodeEdgeKinds(t *testing.T) {
	b := testutil.NewGraphBuilder()
	root := b.AddRoot()
	a := b.AddNode("object", "A", 10)
	w := b.AddNode("object", "W", 10)
	b.AddEdge(root, a, "property", "strong")
	b.AddEdge(root, w, "weak", "weakRef")
	snap := b.Build(t)

	var strong, weak int
	for _, e := range snap.Edges() {
		if e.Kind.IsStrong() {
			strong++
		}
		if e.Kind == snapshot.EdgeWeak {
			weak++
		}
	}
	assert.Equal(t, 1, strong)
	assert.Equal(t, 1, weak)
}

func TestDecodeElementEdgeNames(t *testing.T) {
	b := testutil.NewGraphBuilder()
	root := b.AddRoot()
	arr := b.AddNode("array", "Array", 64)
	e0 := b.AddNode("object", "Item", 8)
	b.AddEdge(root, arr, "property", "items")
	b.AddElement(arr, e0, 7)
	snap := b.Build(t)

	found := false
	for _, e := range snap.Edges() {
		if e.Kind == snapshot.EdgeElement {
			assert.Equal(t, "7", e.Name)
			found = true
		}
	}
	assert.True(t, found)
}

func TestRootDetectionByName(t *testing.T) {
	b := testutil.NewGraphBuilder()
	obj := b.AddNode("object", "plain", 10)
	win := b.AddNode("native", "Window", 100)
	b.AddEdge(win, obj, "property", "field")
	snap := b.Build(t)

	assert.False(t, snap.IsRootEquivalent(snap.NodeByID(obj)))
	assert.True(t, snap.IsRootEquivalent(snap.NodeByID(win)))
	assert.Equal(t, []int{snap.NodeByID(win)}, snap.Roots())

	// Out-of-range indices, including the -1 from a failed id lookup,
	// are never roots.
	assert.False(t, snap.IsRootEquivalent(-1))
	assert.False(t, snap.IsRootEquivalent(snap.NodeCount()))
}
