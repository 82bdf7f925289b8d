package aggregate

import (
	"fmt"
	"iter"
	"strings"
)

// RootPolicy selects where a walk starts.
type RootPolicy string

const (
	// RootsFirst walks only the subtree of the first node ever created.
	// The result depends on the order traces were ingested in.
	RootsFirst RootPolicy = "first"
	// RootsAll walks every node with an empty parent prefix, in discovery order.
	RootsAll RootPolicy = "all"
)

// ParseRootPolicy converts a configuration value into a RootPolicy.
func ParseRootPolicy(s string) (RootPolicy, error) {
	switch RootPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case RootsFirst:
		return RootsFirst, nil
	case RootsAll, "":
		return RootsAll, nil
	default:
		return "", fmt.Errorf("unsupported root policy: %s", s)
	}
}

// Walk returns a preorder sequence of (node, depth) pairs. Depth is 0 at the
// starting roots and children are visited in first-discovery order. The
// sequence can be ranged over any number of times.
func (s *State) Walk(policy RootPolicy) iter.Seq2[*Node, int] {
	return func(yield func(*Node, int) bool) {
		for _, root := range s.startNodes(policy) {
			if !s.visit(root, 0, yield) {
				return
			}
		}
	}
}

func (s *State) startNodes(policy RootPolicy) []*Node {
	if policy == RootsFirst {
		if root := s.Root(); root != nil {
			return []*Node{root}
		}
		return nil
	}
	return s.Roots()
}

func (s *State) visit(n *Node, depth int, yield func(*Node, int) bool) bool {
	if !yield(n, depth) {
		return false
	}
	for _, idx := range n.children {
		if !s.visit(s.nodes[idx], depth+1, yield) {
			return false
		}
	}
	return true
}
