package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/model"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/pipeline"
)

// DAGResult holds the result of stage-graph analysis.
type DAGResult struct {
	// Deps maps each stage to the stages it depends on (upstream).
	Deps map[string][]string
	// Consumers maps each stage to the stages reading its output.
	Consumers map[string][]string
	// Order is the topological execution order. Stages with equal
	// depth keep their declaration order, so dispatch ties break the
	// way the document reads.
	Order []string
}

// BuildDAG wires stage inputs to stage outputs and topologically sorts
// the result with Kahn's algorithm. An input of "<stage>.out" creates
// an edge stage -> consumer; inputs naming declared channels create no
// edges. Channel operator declarations are also checked for reference
// cycles. Returns a ConfigurationError on any cycle.
func BuildDAG(p *pipeline.Pipeline) (*DAGResult, error) {
	if err := checkChannelCycles(p); err != nil {
		return nil, err
	}

	declOrder := make(map[string]int, len(p.Stages))
	for i, s := range p.Stages {
		declOrder[s.Name] = i
	}

	deps := make(map[string][]string, len(p.Stages))
	consumers := make(map[string][]string, len(p.Stages))
	inDegree := make(map[string]int, len(p.Stages))
	for _, s := range p.Stages {
		inDegree[s.Name] = 0
	}

	for _, s := range p.Stages {
		if !pipeline.IsStageRef(s.Input) {
			continue
		}
		up := pipeline.StageOfRef(s.Input)
		deps[s.Name] = append(deps[s.Name], up)
		consumers[up] = append(consumers[up], s.Name)
		inDegree[s.Name]++
	}

	// Deterministic consumer order: declaration order of the consumers.
	for up := range consumers {
		sort.Slice(consumers[up], func(i, j int) bool {
			return declOrder[consumers[up][i]] < declOrder[consumers[up][j]]
		})
	}

	// Kahn's algorithm; the ready queue is kept in declaration order.
	var queue []string
	for _, s := range p.Stages {
		if inDegree[s.Name] == 0 {
			queue = append(queue, s.Name)
		}
	}

	var order []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, succ := range consumers[node] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
		sort.Slice(queue, func(i, j int) bool {
			return declOrder[queue[i]] < declOrder[queue[j]]
		})
	}

	if len(order) != len(p.Stages) {
		var cycleNodes []string
		for name, deg := range inDegree {
			if deg > 0 {
				cycleNodes = append(cycleNodes, name)
			}
		}
		sort.Strings(cycleNodes)
		return nil, &model.ConfigurationError{
			Field:   "stages",
			Message: "stage graph contains a cycle involving: " + strings.Join(cycleNodes, ", "),
		}
	}

	return &DAGResult{Deps: deps, Consumers: consumers, Order: order}, nil
}

// checkChannelCycles walks the operator declarations (pair, concat,
// map_ids, if_empty) for reference cycles among channels.
func checkChannelCycles(p *pipeline.Pipeline) error {
	refs := make(map[string][]string, len(p.Channels))
	for _, c := range p.Channels {
		refs[c.Name] = c.Refs()
	}

	const (
		white = 0
		grey  = 1
		black = 2
	)
	state := make(map[string]int, len(refs))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case grey:
			return &model.ConfigurationError{
				Field:   "channels." + name,
				Message: fmt.Sprintf("channel declarations form a cycle through %q", name),
			}
		case black:
			return nil
		}
		state[name] = grey
		for _, ref := range refs[name] {
			if err := visit(ref); err != nil {
				return err
			}
		}
		state[name] = black
		return nil
	}

	for _, c := range p.Channels {
		if err := visit(c.Name); err != nil {
			return err
		}
	}
	return nil
}
