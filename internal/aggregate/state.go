// Package aggregate merges spans from many traces into a single call-path tree keyed by ancestor-path identity.
package aggregate

import (
	"tracecollapse/internal/models"
)

const noNode = -1

// Sample is one span filed under a node.
type Sample struct {
	Duration float64 `json:"duration_ms"`
	TraceID  string  `json:"trace_id"`
	SpanID   string  `json:"span_id"`
}

// Node is one position in the merged call-path tree.
type Node struct {
	Name        string
	ServicePath string
	Samples     []Sample

	parent   int
	children []int
}

// Durations returns the durations of every sample in filing order.
func (n *Node) Durations() []float64 {
	out := make([]float64, len(n.Samples))
	for i, s := range n.Samples {
		out[i] = s.Duration
	}
	return out
}

// SpanCount returns the number of spans merged into the node.
func (n *Node) SpanCount() int {
	return len(n.Samples)
}

// IsRoot returns true if the node has an empty parent prefix.
func (n *Node) IsRoot() bool {
	return n.parent == noNode
}

// State owns the node arena and the lookup tables built during ingestion.
// It is populated once and then only read.
type State struct {
	TotalTraces int
	RootURIs    map[string]int

	nodes     []*Node
	byName    map[string]int
	spanNodes map[SpanKey]int
	root      int
	roots     []int
}

// New creates an empty aggregation state.
func New() *State {
	return &State{
		RootURIs:  make(map[string]int),
		byName:    make(map[string]int),
		spanNodes: make(map[SpanKey]int),
		root:      noNode,
	}
}

// IngestTrace files every span of the trace under its ancestor-path node.
// A malformed trace is rejected before the state is touched.
func (s *State) IngestTrace(trace models.TraceRecord) error {
	if err := Validate(trace); err != nil {
		return err
	}

	s.TotalTraces++

	for i := range trace.Spans {
		span := &trace.Spans[i]

		parentName := ""
		if !span.IsRoot() {
			if idx, ok := s.spanNodes[SpanKey{TraceID: trace.TraceID, SpanID: span.ParentID}]; ok {
				parentName = s.nodes[idx].Name
			}
		}

		servicePath := ServicePath(span.Services)
		s.fileSpan(NodeName(parentName, servicePath), parentName, servicePath, Sample{
			Duration: span.DurationMillis(),
			TraceID:  trace.TraceID,
			SpanID:   span.ID,
		})

		if span.IsRoot() {
			if uri, ok := span.Annotation(models.AnnotationHTTPURI); ok {
				s.RootURIs[uri]++
			}
		}
	}

	return nil
}

// fileSpan appends the sample to the named node, creating and linking the
// node on first sight.
func (s *State) fileSpan(name, parentName, servicePath string, sample Sample) *Node {
	idx, ok := s.byName[name]
	if ok {
		node := s.nodes[idx]
		node.Samples = append(node.Samples, sample)
	} else {
		idx = len(s.nodes)
		node := &Node{
			Name:        name,
			ServicePath: servicePath,
			Samples:     []Sample{sample},
			parent:      noNode,
		}
		s.nodes = append(s.nodes, node)
		s.byName[name] = idx

		if parentIdx, ok := s.byName[parentName]; ok {
			node.parent = parentIdx
			parent := s.nodes[parentIdx]
			parent.children = append(parent.children, idx)
		} else {
			s.roots = append(s.roots, idx)
		}

		if s.root == noNode {
			s.root = idx
		}
	}

	s.spanNodes[SpanKey{TraceID: sample.TraceID, SpanID: sample.SpanID}] = idx
	return s.nodes[idx]
}

// Node looks up a node by its full path name.
func (s *State) Node(name string) (*Node, bool) {
	idx, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return s.nodes[idx], true
}

// NodeFor returns the node a span was filed under.
func (s *State) NodeFor(key SpanKey) (*Node, bool) {
	idx, ok := s.spanNodes[key]
	if !ok {
		return nil, false
	}
	return s.nodes[idx], true
}

// Nodes returns every node in creation order.
func (s *State) Nodes() []*Node {
	out := make([]*Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Len returns the number of distinct nodes.
func (s *State) Len() int {
	return len(s.nodes)
}

// SpanCount returns the number of spans filed across all nodes.
func (s *State) SpanCount() int {
	total := 0
	for _, n := range s.nodes {
		total += len(n.Samples)
	}
	return total
}

// Root returns the first node ever created, or nil for an empty state.
func (s *State) Root() *Node {
	if s.root == noNode {
		return nil
	}
	return s.nodes[s.root]
}

// Roots returns every node with an empty parent prefix in discovery order.
func (s *State) Roots() []*Node {
	return s.collect(s.roots)
}

// Parent returns the parent of n, or nil for a root.
func (s *State) Parent(n *Node) *Node {
	if n.parent == noNode {
		return nil
	}
	return s.nodes[n.parent]
}

// Children returns the children of n in first-discovery order.
func (s *State) Children(n *Node) []*Node {
	return s.collect(n.children)
}

func (s *State) collect(indices []int) []*Node {
	out := make([]*Node, len(indices))
	for i, idx := range indices {
		out[i] = s.nodes[idx]
	}
	return out
}
