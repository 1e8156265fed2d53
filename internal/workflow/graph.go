package workflow

// GraphSpec describes a graph before validation.
type GraphSpec struct {
	Name  string
	Entry string
	// Seeds are the context keys a caller may supply at submission.
	Seeds  []string
	Stages []Stage
}

// Graph is a validated, immutable stage graph.
type Graph struct {
	name   string
	entry  string
	seeds  []string
	order  []string
	stages map[string]*Stage
}

// NewGraph validates spec and returns the graph. Structural problems are
// reported as *GraphConfigurationError.
func NewGraph(spec GraphSpec) (*Graph, error) {
	g := &Graph{
		name:   spec.Name,
		entry:  spec.Entry,
		seeds:  append([]string(nil), spec.Seeds...),
		stages: make(map[string]*Stage, len(spec.Stages)),
	}
	if err := g.load(spec.Stages); err != nil {
		return nil, err
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// MustGraph is NewGraph for graphs fixed at compile time.
func MustGraph(spec GraphSpec) *Graph {
	g, err := NewGraph(spec)
	if err != nil {
		panic(err)
	}
	return g
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Entry returns the entry stage name.
func (g *Graph) Entry() string { return g.entry }

// Seeds returns the accepted submission keys in declaration order.
func (g *Graph) Seeds() []string { return append([]string(nil), g.seeds...) }

// Stage looks up a stage by name.
func (g *Graph) Stage(name string) (*Stage, bool) {
	stage, ok := g.stages[name]
	return stage, ok
}

// Stages returns the stages in declaration order.
func (g *Graph) Stages() []*Stage {
	out := make([]*Stage, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.stages[name])
	}
	return out
}

// AcceptsSeed reports whether key is a declared submission input.
func (g *Graph) AcceptsSeed(key string) bool {
	for _, seed := range g.seeds {
		if seed == key {
			return true
		}
	}
	return false
}

// next returns the successor after a successful stage.
func (g *Graph) next(stage *Stage, ctx Reader) (string, error) {
	if len(stage.Edges) == 0 {
		return End, nil
	}
	for _, edge := range stage.Edges {
		if edge.Guard == nil || edge.Guard(ctx) {
			return edge.To, nil
		}
	}
	return "", graphError(g.name, GraphNoMatchingEdge, stage.Name, "no edge guard matched the run context")
}

// skipTarget returns the successor after a skipped stage: the explicit skip
// edge, else the first matching edge, else the end of the run.
func (g *Graph) skipTarget(stage *Stage, ctx Reader) string {
	if stage.SkipTo != "" {
		return stage.SkipTo
	}
	for _, edge := range stage.Edges {
		if edge.Guard == nil || edge.Guard(ctx) {
			return edge.To
		}
	}
	return End
}

// successors lists every possible next stage, skip edge included.
func (g *Graph) successors(stage *Stage) []string {
	out := make([]string, 0, len(stage.Edges)+1)
	seen := make(map[string]struct{}, len(stage.Edges)+1)
	add := func(to string) {
		if to == "" || to == End {
			return
		}
		if _, ok := seen[to]; ok {
			return
		}
		seen[to] = struct{}{}
		out = append(out, to)
	}
	for _, edge := range stage.Edges {
		add(edge.To)
	}
	add(stage.SkipTo)
	return out
}
