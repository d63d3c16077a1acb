package production

import (
	"errors"
	"testing"
)

func linearGraph() FlowGraph {
	return FlowGraph{
		Nodes: []FlowNode{
			{ID: "s", Data: NodeData{NodeType: NodeStart, Label: map[string]string{"en": "Receiving"}}},
			{ID: "p", Data: NodeData{NodeType: NodeProcess, Label: map[string]string{"hu": "Csontozás"}}},
			{ID: "q", Data: NodeData{NodeType: NodeQCGate}},
			{ID: "e", Data: NodeData{NodeType: NodeEnd}},
		},
		Edges: []FlowEdge{
			{ID: "e1", Source: "s", Target: "p"},
			{ID: "e2", Source: "p", Target: "q"},
			{ID: "e3", Source: "q", Target: "e"},
		},
	}
}

func TestStepSequenceLinear(t *testing.T) {
	steps, err := linearGraph().StepSequence()
	if err != nil {
		t.Fatalf("StepSequence: %v", err)
	}
	want := []string{"s", "p", "q", "e"}
	if len(steps) != len(want) {
		t.Fatalf("steps: want=%d got=%d", len(want), len(steps))
	}
	for i, id := range want {
		if steps[i].NodeID != id || steps[i].Index != i {
			t.Fatalf("step %d: want=%s got=%s", i, id, steps[i])
		}
	}
	if steps[1].Label != "Csontozás" {
		t.Fatalf("label fallback: want=Csontozás got=%s", steps[1].Label)
	}
}

func TestStepSequenceBranchesFollowDeclarationOrder(t *testing.T) {
	g := FlowGraph{
		Nodes: []FlowNode{
			{ID: "s", Data: NodeData{NodeType: NodeStart}},
			{ID: "b", Data: NodeData{NodeType: NodeProcess}},
			{ID: "a", Data: NodeData{NodeType: NodeProcess}},
			{ID: "grp", Data: NodeData{NodeType: NodeGroup}},
			{ID: "e", Data: NodeData{NodeType: NodeEnd}, ParentID: "grp"},
			{ID: "orphan", Data: NodeData{NodeType: NodeProcess}},
		},
		Edges: []FlowEdge{
			{Source: "s", Target: "a"},
			{Source: "s", Target: "b"},
			{Source: "a", Target: "e"},
			{Source: "b", Target: "e"},
		},
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	steps, err := g.StepSequence()
	if err != nil {
		t.Fatalf("StepSequence: %v", err)
	}
	got := ""
	for _, s := range steps {
		got += s.NodeID + ","
	}
	if got != "s,b,a,e," {
		t.Fatalf("order: want=s,b,a,e, got=%s", got)
	}
}

func TestValidateRejectsStructuralProblems(t *testing.T) {
	cases := map[string]FlowGraph{
		"duplicate id": {Nodes: []FlowNode{{ID: "a", Type: NodeStart}, {ID: "a", Type: NodeEnd}}},
		"unknown type": {Nodes: []FlowNode{{ID: "a", Type: "mixer"}}},
		"missing edge target": {
			Nodes: []FlowNode{{ID: "a", Type: NodeStart}},
			Edges: []FlowEdge{{Source: "a", Target: "zzz"}},
		},
		"parent not group": {
			Nodes: []FlowNode{{ID: "a", Type: NodeStart}, {ID: "b", Type: NodeEnd, ParentID: "a"}},
		},
		"self loop": {
			Nodes: []FlowNode{{ID: "a", Type: NodeProcess}},
			Edges: []FlowEdge{{Source: "a", Target: "a"}},
		},
	}
	for name, g := range cases {
		t.Run(name, func(t *testing.T) {
			err := g.Validate()
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("want ErrValidation got=%v", err)
			}
		})
	}
}

func TestCheckComplete(t *testing.T) {
	if err := linearGraph().CheckComplete(); err != nil {
		t.Fatalf("linear graph should be complete: %v", err)
	}

	noEnd := linearGraph()
	noEnd.Nodes = noEnd.Nodes[:3]
	noEnd.Edges = noEnd.Edges[:2]
	if err := noEnd.CheckComplete(); !errors.Is(err, ErrIncompleteGraph) {
		t.Fatalf("missing end: want ErrIncompleteGraph got=%v", err)
	}

	cyclic := linearGraph()
	cyclic.Edges = append(cyclic.Edges, FlowEdge{Source: "q", Target: "p"})
	if err := cyclic.CheckComplete(); !errors.Is(err, ErrIncompleteGraph) {
		t.Fatalf("cycle: want ErrIncompleteGraph got=%v", err)
	}

	if err := (FlowGraph{}).CheckComplete(); !errors.Is(err, ErrIncompleteGraph) {
		t.Fatalf("empty: want ErrIncompleteGraph got=%v", err)
	}
}

func TestParseGraphRoundTripKeepsViewport(t *testing.T) {
	raw := []byte(`{"nodes":[{"id":"s","type":"start","data":{}}],"edges":[],"viewport":{"x":1,"y":2,"zoom":1}}`)
	g, err := ParseGraph(raw)
	if err != nil {
		t.Fatalf("ParseGraph: %v", err)
	}
	if g.Nodes[0].Kind() != NodeStart {
		t.Fatalf("kind: want=start got=%s", g.Nodes[0].Kind())
	}
	if string(g.Viewport) != `{"x":1,"y":2,"zoom":1}` {
		t.Fatalf("viewport: got=%s", g.Viewport)
	}
	if _, err := ParseGraph([]byte("{")); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad json: want ErrValidation got=%v", err)
	}
}
