package workflow

import (
	"sort"
	"strings"
)

func (g *Graph) load(stages []Stage) error {
	if strings.TrimSpace(g.name) == "" {
		return graphError(g.name, GraphInvalid, "", "graph name is required")
	}
	if len(stages) == 0 {
		return graphError(g.name, GraphInvalid, "", "graph has no stages")
	}
	for i := range stages {
		stage := stages[i]
		name := stage.Name
		if strings.TrimSpace(name) == "" {
			return graphError(g.name, GraphInvalid, "", "stage %d has no name", i)
		}
		if strings.HasPrefix(name, "$") {
			return graphError(g.name, GraphInvalid, name, "stage names may not start with $")
		}
		if _, dup := g.stages[name]; dup {
			return graphError(g.name, GraphDuplicateStage, name, "stage declared more than once")
		}
		if stage.Capability == nil {
			return graphError(g.name, GraphInvalid, name, "stage has no capability")
		}
		if key, dup := firstDuplicate(stage.InputKeys, stage.OptionalInputKeys); dup {
			return graphError(g.name, GraphInvalid, name, "input key %q declared twice", key)
		}
		if key, dup := firstDuplicate(stage.OutputKeys); dup {
			return graphError(g.name, GraphInvalid, name, "output key %q declared twice", key)
		}
		stage.InputKeys = append([]string(nil), stage.InputKeys...)
		stage.OptionalInputKeys = append([]string(nil), stage.OptionalInputKeys...)
		stage.OutputKeys = append([]string(nil), stage.OutputKeys...)
		stage.Edges = append([]Edge(nil), stage.Edges...)
		g.stages[name] = &stage
		g.order = append(g.order, name)
	}
	if key, dup := firstDuplicate(g.seeds); dup {
		return graphError(g.name, GraphInvalid, "", "seed %q declared twice", key)
	}
	return nil
}

func (g *Graph) validate() error {
	if _, ok := g.stages[g.entry]; !ok {
		return graphError(g.name, GraphUnknownTarget, "", "entry stage %q is not declared", g.entry)
	}
	for _, name := range g.order {
		stage := g.stages[name]
		for _, edge := range stage.Edges {
			if !g.knownTarget(edge.To) {
				return graphError(g.name, GraphUnknownTarget, name, "edge to unknown stage %q", edge.To)
			}
		}
		if stage.SkipTo != "" && !g.knownTarget(stage.SkipTo) {
			return graphError(g.name, GraphUnknownTarget, name, "skip edge to unknown stage %q", stage.SkipTo)
		}
	}
	if err := g.checkAcyclic(); err != nil {
		return err
	}
	if err := g.checkReachable(); err != nil {
		return err
	}
	return g.checkKeyProvenance()
}

func (g *Graph) knownTarget(name string) bool {
	if name == End {
		return true
	}
	_, ok := g.stages[name]
	return ok
}

// checkAcyclic runs Kahn's algorithm and reports a concrete cycle when nodes
// remain.
func (g *Graph) checkAcyclic() error {
	indegree := make(map[string]int, len(g.order))
	for _, name := range g.order {
		indegree[name] += 0
		for _, next := range g.successors(g.stages[name]) {
			indegree[next]++
		}
	}
	queue := make([]string, 0, len(g.order))
	for _, name := range g.order {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	visited := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range g.successors(g.stages[name]) {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited == len(g.order) {
		return nil
	}
	cycle := g.findCycle()
	return graphError(g.name, GraphCycle, "", "cycle detected: %s", strings.Join(cycle, " -> "))
}

func (g *Graph) findCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.order))
	var stack []string
	var found []string

	var visit func(string) bool
	visit = func(name string) bool {
		color[name] = grey
		stack = append(stack, name)
		for _, next := range g.successors(g.stages[name]) {
			switch color[next] {
			case grey:
				for i, candidate := range stack {
					if candidate == next {
						found = append(append([]string(nil), stack[i:]...), next)
						return true
					}
				}
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return false
	}

	for _, name := range g.order {
		if color[name] == white && visit(name) {
			return found
		}
	}
	return nil
}

func (g *Graph) checkReachable() error {
	seen := map[string]struct{}{g.entry: {}}
	queue := []string{g.entry}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, next := range g.successors(g.stages[name]) {
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	for _, name := range g.order {
		if _, ok := seen[name]; !ok {
			return graphError(g.name, GraphUnreachable, name, "stage is not reachable from entry %q", g.entry)
		}
	}
	return nil
}

// checkKeyProvenance requires every key a stage reads to be a seed or the
// output of one of its ancestors, and forbids two writers of one key on the
// same path.
func (g *Graph) checkKeyProvenance() error {
	seeds := make(map[string]struct{}, len(g.seeds))
	for _, key := range g.seeds {
		seeds[key] = struct{}{}
	}
	ancestors := g.ancestors()
	for _, name := range g.order {
		stage := g.stages[name]
		written := make(map[string]string)
		for _, ancestor := range ancestors[name] {
			for _, key := range g.stages[ancestor].OutputKeys {
				written[key] = ancestor
			}
		}
		for _, key := range stage.OutputKeys {
			if _, ok := seeds[key]; ok {
				return graphError(g.name, GraphDuplicateWriter, name, "output %q is also a seed", key)
			}
			if other, ok := written[key]; ok {
				return graphError(g.name, GraphDuplicateWriter, name, "output %q is also written by ancestor %s", key, other)
			}
		}
		for _, key := range append(append([]string(nil), stage.InputKeys...), stage.OptionalInputKeys...) {
			if _, ok := seeds[key]; ok {
				continue
			}
			if _, ok := written[key]; ok {
				continue
			}
			return graphError(g.name, GraphUnwrittenInput, name, "input %q has no writer among seeds or ancestors", key)
		}
	}
	return nil
}

// ancestors maps each stage to the sorted names of every stage with a path to it.
func (g *Graph) ancestors() map[string][]string {
	parents := make(map[string][]string, len(g.order))
	for _, name := range g.order {
		for _, next := range g.successors(g.stages[name]) {
			parents[next] = append(parents[next], name)
		}
	}
	out := make(map[string][]string, len(g.order))
	for _, name := range g.order {
		seen := make(map[string]struct{})
		queue := append([]string(nil), parents[name]...)
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			if _, ok := seen[current]; ok {
				continue
			}
			seen[current] = struct{}{}
			queue = append(queue, parents[current]...)
		}
		list := make([]string, 0, len(seen))
		for ancestor := range seen {
			list = append(list, ancestor)
		}
		sort.Strings(list)
		out[name] = list
	}
	return out
}

func firstDuplicate(lists ...[]string) (string, bool) {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, key := range list {
			if _, ok := seen[key]; ok {
				return key, true
			}
			seen[key] = struct{}{}
		}
	}
	return "", false
}
