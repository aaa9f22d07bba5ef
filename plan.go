package graft

import (
	"errors"
	"fmt"
	"sort"
)

// TaskSpec describes a single named task in a batch submission.
type TaskSpec struct {
	// Name must be unique within the plan.
	Name string `json:"name,omitempty"`
	// Desc is human-readable documentation.
	Desc string `json:"desc,omitempty"`
	// Deps are the names of other tasks in the plan that must finish first.
	Deps []string `json:"deps,omitempty"`
	// Run is the work for this task.
	Run func() error `json:"-"`
}

// Plan is an immutable, validated batch of named tasks.
//
// The engine itself leaves acyclicity to the caller; BuildPlan is the
// validated front-end for callers who want the check. A Plan is safe for
// concurrent read-only use and may be submitted many times.
type Plan struct {
	// specs is the source-of-truth list, index -> TaskSpec.
	specs []TaskSpec

	// indexByName lets us go from name -> index in O(1).
	indexByName map[string]int

	// topoOrder is a topological sort of all tasks; submission walks it so
	// every task's dependencies exist before the task is wired.
	topoOrder []int
}

// BuildPlan compiles a slice of TaskSpecs into an immutable Plan.
//
// It validates:
//   - unique, non-empty names
//   - all dependencies exist
//   - the graph is acyclic
func BuildPlan(specs ...TaskSpec) (*Plan, error) {
	if len(specs) == 0 {
		return nil, errors.New("build plan: no tasks provided")
	}

	p := &Plan{
		specs:       make([]TaskSpec, len(specs)),
		indexByName: make(map[string]int, len(specs)),
	}

	for i := range specs {
		s := specs[i] // copy
		if s.Name == "" {
			return nil, fmt.Errorf("build plan: task at index %d has empty Name", i)
		}
		if _, exists := p.indexByName[s.Name]; exists {
			return nil, fmt.Errorf("build plan: duplicate task name %q", s.Name)
		}
		if s.Run == nil {
			return nil, fmt.Errorf("build plan: task %q has nil Run", s.Name)
		}
		p.indexByName[s.Name] = i
		p.specs[i] = s
	}

	// Resolve dependencies by index and count indegrees.
	indegree := make([]int, len(specs))
	dependents := make([][]int, len(specs))
	for i := range p.specs {
		for _, depName := range p.specs[i].Deps {
			depIndex, ok := p.indexByName[depName]
			if !ok {
				return nil, fmt.Errorf("build plan: task %q depends on unknown task %q", p.specs[i].Name, depName)
			}
			dependents[depIndex] = append(dependents[depIndex], i)
			indegree[i]++
		}
	}

	topoOrder, err := topoSort(indegree, dependents)
	if err != nil {
		return nil, err
	}
	p.topoOrder = topoOrder

	return p, nil
}

// Names returns all task names in deterministic order.
func (p *Plan) Names() []string {
	names := make([]string, len(p.specs))
	for i, s := range p.specs {
		names[i] = s.Name
	}
	sort.Strings(names)
	return names
}

// Spec returns the immutable task definition by name.
func (p *Plan) Spec(name string) (TaskSpec, bool) {
	idx, ok := p.indexByName[name]
	if !ok {
		return TaskSpec{}, false
	}
	return p.specs[idx], true
}

// Submit submits every task in the plan to pool, wired per the plan's
// dependency edges, and returns the submitted tasks by name. Each task is
// named after its spec; opts apply to every submission.
func (p *Plan) Submit(pool Pool, opts ...SubmitOption) map[string]*Task[Void] {
	return p.submit(func(deps []Dependency, run func() error, name string) *Task[Void] {
		return SubmitVoid(pool, deps, run, append(opts, WithName(name))...)
	})
}

// SubmitIn is Submit through a task group: every task in the plan counts
// toward the group's barrier.
func (p *Plan) SubmitIn(g *TaskGroup, opts ...SubmitOption) map[string]*Task[Void] {
	return p.submit(func(deps []Dependency, run func() error, name string) *Task[Void] {
		return g.SubmitVoid(deps, run, append(opts, WithName(name))...)
	})
}

func (p *Plan) submit(one func(deps []Dependency, run func() error, name string) *Task[Void]) map[string]*Task[Void] {
	tasks := make(map[string]*Task[Void], len(p.specs))
	// Walking in topological order guarantees each task's dependencies were
	// already submitted.
	for _, idx := range p.topoOrder {
		s := p.specs[idx]
		deps := make([]Dependency, 0, len(s.Deps))
		for _, depName := range s.Deps {
			deps = append(deps, tasks[depName])
		}
		tasks[s.Name] = one(deps, s.Run, s.Name)
	}
	return tasks
}

// topoSort performs a topological sort via Kahn's algorithm.
//
// indegree is consumed and mutated. adj is adjacency of outgoing edges:
// u -> v for each v in adj[u].
func topoSort(indegree []int, adj [][]int) ([]int, error) {
	n := len(indegree)
	queue := make([]int, 0, n)

	for i, d := range indegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}
	if len(queue) == 0 {
		return nil, errors.New("build plan: graph has a cycle (no starting node)")
	}

	topo := make([]int, 0, n)
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		topo = append(topo, u)

		for _, v := range adj[u] {
			indegree[v]--
			if indegree[v] == 0 {
				queue = append(queue, v)
			}
		}
	}

	if len(topo) != n {
		return nil, errors.New("build plan: graph has at least one cycle")
	}
	return topo, nil
}
