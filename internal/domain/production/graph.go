package production

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	NodeStart   = "start"
	NodeEnd     = "end"
	NodeProcess = "process"
	NodeQCGate  = "qc_gate"
	NodeBuffer  = "buffer"
	NodeGroup   = "group"
)

func IsNodeType(t string) bool {
	switch t {
	case NodeStart, NodeEnd, NodeProcess, NodeQCGate, NodeBuffer, NodeGroup:
		return true
	}
	return false
}

// FlowGraph is the editor document stored on a FlowVersion.
type FlowGraph struct {
	Nodes    []FlowNode      `json:"nodes"`
	Edges    []FlowEdge      `json:"edges"`
	Viewport json.RawMessage `json:"viewport,omitempty"`
}

type FlowNode struct {
	ID       string        `json:"id"`
	Type     string        `json:"type,omitempty"`
	Position *NodePosition `json:"position,omitempty"`
	Data     NodeData      `json:"data"`
	ParentID string        `json:"parentId,omitempty"`
}

type NodePosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type NodeData struct {
	Label    map[string]string `json:"label,omitempty"`
	NodeType string            `json:"nodeType,omitempty"`
	Config   json.RawMessage   `json:"config,omitempty"`
}

type FlowEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// Kind resolves the domain node type; data.nodeType wins over the editor type.
func (n FlowNode) Kind() string {
	if t := strings.TrimSpace(n.Data.NodeType); t != "" {
		return t
	}
	return strings.TrimSpace(n.Type)
}

func (n FlowNode) DisplayLabel() string {
	for _, lang := range []string{"en", "hu"} {
		if v := strings.TrimSpace(n.Data.Label[lang]); v != "" {
			return v
		}
	}
	for _, v := range n.Data.Label {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return n.ID
}

// ParseGraph decodes a stored graph. An empty document is an empty graph.
func ParseGraph(raw []byte) (FlowGraph, error) {
	var g FlowGraph
	if len(strings.TrimSpace(string(raw))) == 0 {
		return g, nil
	}
	if err := json.Unmarshal(raw, &g); err != nil {
		return g, Errorf(ErrValidation, "graph is not valid JSON: %v", err)
	}
	return g, nil
}

func (g FlowGraph) Encode() ([]byte, error) {
	if g.Nodes == nil {
		g.Nodes = []FlowNode{}
	}
	if g.Edges == nil {
		g.Edges = []FlowEdge{}
	}
	return json.Marshal(g)
}

// Validate checks structural well-formedness. It does not require the graph
// to be runnable; see CheckComplete.
func (g FlowGraph) Validate() error {
	nodes := make(map[string]FlowNode, len(g.Nodes))
	for i, n := range g.Nodes {
		id := strings.TrimSpace(n.ID)
		if id == "" {
			return Errorf(ErrValidation, "node %d has no id", i)
		}
		if _, dup := nodes[id]; dup {
			return Errorf(ErrValidation, "duplicate node id %q", id)
		}
		if !IsNodeType(n.Kind()) {
			return Errorf(ErrValidation, "node %q has unknown type %q", id, n.Kind())
		}
		nodes[id] = n
	}
	for _, n := range g.Nodes {
		if n.ParentID == "" {
			continue
		}
		parent, ok := nodes[n.ParentID]
		if !ok {
			return Errorf(ErrValidation, "node %q references missing parent %q", n.ID, n.ParentID)
		}
		if parent.Kind() != NodeGroup {
			return Errorf(ErrValidation, "node %q parent %q is not a group", n.ID, n.ParentID)
		}
	}
	edgeIDs := make(map[string]struct{}, len(g.Edges))
	for i, e := range g.Edges {
		if e.ID != "" {
			if _, dup := edgeIDs[e.ID]; dup {
				return Errorf(ErrValidation, "duplicate edge id %q", e.ID)
			}
			edgeIDs[e.ID] = struct{}{}
		}
		src, ok := nodes[e.Source]
		if !ok {
			return Errorf(ErrValidation, "edge %d references missing source %q", i, e.Source)
		}
		dst, ok := nodes[e.Target]
		if !ok {
			return Errorf(ErrValidation, "edge %d references missing target %q", i, e.Target)
		}
		if e.Source == e.Target {
			return Errorf(ErrValidation, "edge %d is a self-loop on %q", i, e.Source)
		}
		if src.Kind() == NodeGroup || dst.Kind() == NodeGroup {
			return Errorf(ErrValidation, "edge %d connects a group node", i)
		}
	}
	return nil
}

// Step is one entry of the canonical step sequence a run walks through.
type Step struct {
	Index    int    `json:"index"`
	NodeID   string `json:"node_id"`
	NodeType string `json:"node_type"`
	Label    string `json:"label"`
}

// CheckComplete reports whether the graph can be executed by a run.
func (g FlowGraph) CheckComplete() error {
	if err := g.Validate(); err != nil {
		return Errorf(ErrIncompleteGraph, "%s", err.Error())
	}
	steps, err := g.StepSequence()
	if err != nil {
		return err
	}
	hasEnd := false
	for _, s := range steps {
		if s.NodeType == NodeEnd {
			hasEnd = true
			break
		}
	}
	if !hasEnd {
		return Errorf(ErrIncompleteGraph, "no end node is reachable from a start node")
	}
	return nil
}

// StepSequence linearises the non-group nodes reachable from the start nodes
// in topological order. Ties are broken by declaration order so the result is
// deterministic for a given graph.
func (g FlowGraph) StepSequence() ([]Step, error) {
	order := make(map[string]int, len(g.Nodes))
	byID := make(map[string]FlowNode, len(g.Nodes))
	var starts []string
	for i, n := range g.Nodes {
		if n.Kind() == NodeGroup {
			continue
		}
		order[n.ID] = i
		byID[n.ID] = n
		if n.Kind() == NodeStart {
			starts = append(starts, n.ID)
		}
	}
	if len(starts) == 0 {
		return nil, Errorf(ErrIncompleteGraph, "graph has no start node")
	}

	adj := make(map[string][]string, len(byID))
	for _, e := range g.Edges {
		if _, ok := byID[e.Source]; !ok {
			continue
		}
		if _, ok := byID[e.Target]; !ok {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	reachable := make(map[string]bool, len(byID))
	queue := append([]string(nil), starts...)
	for _, s := range starts {
		reachable[s] = true
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, nxt := range adj[cur] {
			if !reachable[nxt] {
				reachable[nxt] = true
				queue = append(queue, nxt)
			}
		}
	}

	indegree := make(map[string]int, len(reachable))
	for id := range reachable {
		for _, nxt := range adj[id] {
			indegree[nxt]++
		}
	}

	var ready []string
	for id := range reachable {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	steps := make([]Step, 0, len(reachable))
	for len(ready) > 0 {
		best := 0
		for i := 1; i < len(ready); i++ {
			if order[ready[i]] < order[ready[best]] {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)

		n := byID[id]
		steps = append(steps, Step{
			Index:    len(steps),
			NodeID:   id,
			NodeType: n.Kind(),
			Label:    n.DisplayLabel(),
		})
		for _, nxt := range adj[id] {
			indegree[nxt]--
			if indegree[nxt] == 0 {
				ready = append(ready, nxt)
			}
		}
	}
	if len(steps) != len(reachable) {
		return nil, Errorf(ErrIncompleteGraph, "graph contains a cycle among %d steps", len(reachable)-len(steps))
	}
	return steps, nil
}

func (s Step) String() string {
	return fmt.Sprintf("%d:%s(%s)", s.Index, s.NodeID, s.NodeType)
}
