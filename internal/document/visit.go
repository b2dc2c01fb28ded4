package document

type (
	// Predicate decides whether a node matches.
	Predicate func(Node) bool

	// Action transforms a matched node. Returning the node unchanged is the usual way to
	// accumulate side results while keeping the tree intact.
	Action func(Node) Node
)

// Visit walks node depth-first, pre-order, and returns a transformed copy of the tree.
//
// For every node where match holds, the node is replaced by action(node). The replacement is
// then walked in turn, so an action that returns its input lets the walk continue into the
// matched node's descendants: matches at different depths are not mutually exclusive.
//
// Maps are walked in key order and lists in index order, which fixes the order in which
// actions run. The input tree is never modified. Scalars end the walk on their branch.
func Visit(node Node, match Predicate, action Action) Node {
	if node == nil {
		return nil
	}

	if match(node) {
		node = action(node)
	}

	switch n := node.(type) {
	case *Map:
		visited := NewMap()
		for _, k := range n.Keys() {
			child, _ := n.Get(k)
			visited.Set(k, Visit(child, match, action))
		}

		return visited
	case List:
		visited := make(List, len(n))
		for i, child := range n {
			visited[i] = Visit(child, match, action)
		}

		return visited
	default:
		return node
	}
}

// Collect walks node with Visit and returns extract(n) for every matching node n, in walk order.
// The tree itself is left untouched.
func Collect(node Node, match Predicate, extract func(Node) Node) []Node {
	accumulator := []Node{}

	Visit(node, match, func(n Node) Node {
		accumulator = append(accumulator, extract(n))

		return n
	})

	return accumulator
}

// MapWhere returns a predicate matching maps that satisfy fn.
func MapWhere(fn func(*Map) bool) Predicate {
	return func(n Node) bool {
		m, ok := n.(*Map)

		return ok && fn(m)
	}
}
