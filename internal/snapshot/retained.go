package snapshot

// ComputeRetainedSizes runs a dominator-tree pass and replaces the
// approximated retained sizes with true transitive-ownership sizes.
// After it returns, SizeMode reports SizeModeDominator and every node
// satisfies retained >= self.
//
// The pass uses the Lengauer-Tarjan algorithm over a virtual super root
// connected to every root-equivalent node. Nodes unreachable from any
// root are attached directly to the super root so they still receive a
// well-defined retained size. Weak edges do not retain their target and
// are excluded from the flow graph.
func (s *Snapshot) ComputeRetainedSizes() {
	n := len(s.nodes)
	if n == 0 {
		s.sizeMode = SizeModeDominator
		return
	}

	// Flow graph indices: 0 = virtual super root, node i = i+1.
	total := n + 1
	succ := make([][]int32, total)

	for i := range s.edges {
		e := &s.edges[i]
		if e.Kind == EdgeWeak {
			continue
		}
		succ[e.From+1] = append(succ[e.From+1], int32(e.To+1))
	}

	rootSet := make([]bool, total)
	for _, r := range s.Roots() {
		if !rootSet[r+1] {
			rootSet[r+1] = true
			succ[0] = append(succ[0], int32(r+1))
		}
	}

	// Attach entry points for anything the roots cannot reach, so
	// unreachable cycles and orphans are dominated by the super root.
	visited := make([]bool, total)
	var reach func(start int32)
	reach = func(start int32) {
		stack := []int32{start}
		visited[start] = true
		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, w := range succ[v] {
				if !visited[w] {
					visited[w] = true
					stack = append(stack, w)
				}
			}
		}
	}
	reach(0)
	for i := 1; i < total; i++ {
		if !visited[int32(i)] {
			succ[0] = append(succ[0], int32(i))
			reach(int32(i))
		}
	}

	pred := make([][]int32, total)
	for v := 0; v < total; v++ {
		for _, w := range succ[v] {
			pred[w] = append(pred[w], int32(v))
		}
	}

	idom := lengauerTarjan(succ, pred, total)

	// Accumulate retained sizes bottom-up over the dominator tree.
	// Children are processed before parents by walking nodes in reverse
	// DFS numbering, which lengauerTarjan returns via the vertex order.
	retained := make([]int64, total)
	for i := 0; i < n; i++ {
		retained[i+1] = s.nodes[i].SelfSize
	}

	order := dfsOrder(succ, total)
	for i := len(order) - 1; i >= 1; i-- {
		v := order[i]
		if d := idom[v]; d >= 0 && v != 0 {
			retained[d] += retained[v]
		}
	}

	for i := 0; i < n; i++ {
		s.nodes[i].RetainedSize = retained[i+1]
	}
	s.sizeMode = SizeModeDominator
}

// dfsOrder returns vertices reachable from 0 in DFS preorder.
func dfsOrder(succ [][]int32, total int) []int32 {
	order := make([]int32, 0, total)
	seen := make([]bool, total)
	stack := []int32{0}
	seen[0] = true
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, v)
		for i := len(succ[v]) - 1; i >= 0; i-- {
			w := succ[v][i]
			if !seen[w] {
				seen[w] = true
				stack = append(stack, w)
			}
		}
	}
	return order
}

// lengauerTarjan computes immediate dominators for a flow graph rooted
// at vertex 0. Returns idom[v] for every vertex; idom[0] = -1 and
// unreachable vertices (there are none after entry-point attachment)
// would also be -1.
func lengauerTarjan(succ, pred [][]int32, total int) []int32 {
	const none = int32(-1)

	dfn := make([]int32, total)    // DFS number, 0 = unvisited (numbers are 1-based)
	vertex := make([]int32, total+1)
	parent := make([]int32, total)
	semi := make([]int32, total)
	idom := make([]int32, total)
	ancestor := make([]int32, total)
	label := make([]int32, total)
	bucket := make([][]int32, total)

	for i := range idom {
		idom[i] = int32(none)
		ancestor[i] = none
		label[i] = int32(i)
	}

	// Iterative DFS numbering.
	type frame struct {
		v int32
		i int
	}
	n := int32(0)
	stack := []frame{{v: 0}}
	n++
	dfn[0] = n
	vertex[n] = 0
	semi[0] = n
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		advanced := false
		for f.i < len(succ[f.v]) {
			w := succ[f.v][f.i]
			f.i++
			if dfn[w] == 0 {
				parent[w] = f.v
				n++
				dfn[w] = n
				vertex[n] = w
				semi[w] = n
				stack = append(stack, frame{v: w})
				advanced = true
				break
			}
		}
		if !advanced {
			stack = stack[:len(stack)-1]
		}
	}

	// EVAL with path compression.
	compress := func(v int32) {
		// Collect the ancestor chain, then relabel top-down.
		var chain []int32
		for u := v; ancestor[ancestor[u]] != none; u = ancestor[u] {
			chain = append(chain, u)
		}
		for i := len(chain) - 1; i >= 0; i-- {
			u := chain[i]
			if semi[label[ancestor[u]]] < semi[label[u]] {
				label[u] = label[ancestor[u]]
			}
			ancestor[u] = ancestor[ancestor[u]]
		}
	}
	eval := func(v int32) int32 {
		if ancestor[v] == none {
			return v
		}
		compress(v)
		return label[v]
	}

	// Process vertices in reverse DFS order.
	for i := n; i >= 2; i-- {
		w := vertex[i]

		for _, v := range pred[w] {
			if dfn[v] == 0 {
				continue
			}
			u := eval(v)
			if semi[u] < semi[w] {
				semi[w] = semi[u]
			}
		}

		sv := vertex[semi[w]]
		bucket[sv] = append(bucket[sv], w)
		ancestor[w] = parent[w]

		for _, v := range bucket[parent[w]] {
			u := eval(v)
			if semi[u] < semi[v] {
				idom[v] = u
			} else {
				idom[v] = parent[w]
			}
		}
		bucket[parent[w]] = bucket[parent[w]][:0]
	}

	// Final pass: resolve relative dominators.
	for i := int32(2); i <= n; i++ {
		w := vertex[i]
		if idom[w] != vertex[semi[w]] {
			idom[w] = idom[idom[w]]
		}
	}
	idom[0] = none

	return idom
}
