package testutil

import "fmt"

// SmallGraph builds a minimal well-formed graph: a root retaining one
// object that holds a string and an array.
func SmallGraph() *GraphBuilder {
	b := NewGraphBuilder()
	root := b.AddRoot()
	obj := b.AddNode("object", "AppState", 64)
	str := b.AddNode("string", "hello", 24)
	arr := b.AddNode("array", "Array", 128)
	b.AddEdge(root, obj, "property", "state")
	b.AddEdge(obj, str, "property", "greeting")
	b.AddEdge(obj, arr, "property", "items")
	return b
}

// TimerLeakGraph builds a heap where a timer registry retains count
// Timer closures, each holding a context object of ctxSize bytes.
func TimerLeakGraph(count int, ctxSize int64) *GraphBuilder {
	b := NewGraphBuilder()
	root := b.AddRoot()
	registry := b.AddNode("object", "TimerRegistry", 256)
	b.AddEdge(root, registry, "property", "timers")
	for i := 0; i < count; i++ {
		timer := b.AddNode("object", "Timer", 96)
		cb := b.AddNode("closure", "onTick", 64)
		ctx := b.AddNode("object", "CapturedContext", ctxSize)
		b.AddElement(registry, timer, int64(i))
		b.AddEdge(timer, cb, "property", "callback")
		b.AddEdge(cb, ctx, "context", "context")
	}
	return b
}

// DuplicateShapeGraph builds a heap with count structurally identical
// objects of the given self size, all retained by one holder array.
func DuplicateShapeGraph(count int, selfSize int64) *GraphBuilder {
	b := NewGraphBuilder()
	root := b.AddRoot()
	holder := b.AddNode("array", "Array", 128)
	b.AddEdge(root, holder, "property", "cache")
	for i := 0; i < count; i++ {
		obj := b.AddNode("object", "CacheEntry", selfSize)
		key := b.AddNode("string", "key", 16)
		val := b.AddNode("string", "value", 16)
		b.AddElement(holder, obj, int64(i))
		b.AddEdge(obj, key, "property", "key")
		b.AddEdge(obj, val, "property", "value")
	}
	return b
}

// DetachedTreeGraph builds a heap with an attached subtree under the
// root and a detached subtree reachable only through a retainer node.
// It returns the builder plus the ids of the retainer and the detached
// subtree root.
func DetachedTreeGraph(detachedDepth int) (*GraphBuilder, uint64, uint64) {
	b := NewGraphBuilder()
	root := b.AddRoot()
	doc := b.AddNode("native", "Document", 512)
	b.AddEdge(root, doc, "property", "document")

	retainer := b.AddNode("closure", "handler", 64)
	b.AddEdge(root, retainer, "property", "listener")

	// The retainer holds the subtree through a context edge, so no
	// strong path leads back to a root.
	detached := b.AddNode("native", "Detached HTMLDivElement", 256)
	b.AddEdge(retainer, detached, "context", "element")
	prev := detached
	for i := 0; i < detachedDepth; i++ {
		child := b.AddNode("native", fmt.Sprintf("Detached HTMLSpanElement %d", i), 128)
		b.AddEdge(prev, child, "property", "child")
		prev = child
	}
	return b, retainer, detached
}

// GrowingCollectionGraph builds a heap whose single array holds n
// elements, suitable for cross-snapshot growth scenarios when built
// with increasing n.
func GrowingCollectionGraph(n int, elemSize int64) *GraphBuilder {
	b := NewGraphBuilder()
	root := b.AddRoot()
	arr := b.AddNode("array", "Array", 64+int64(n)*8)
	b.AddEdge(root, arr, "property", "pending")
	for i := 0; i < n; i++ {
		e := b.AddNode("object", "QueueItem", elemSize)
		b.AddElement(arr, e, int64(i))
	}
	return b
}
