// Package graph provides the workflow graph: agent nodes wired with
// unconditional and conditional edges, plus the topology builders.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/docuflow/docuflow/internal/agent"
	"github.com/docuflow/docuflow/pkg/models"
)

// Finish is the sentinel terminal target. It is not a node; routing to
// it ends the workflow.
const Finish = "FINISH"

var (
	// ErrNoEntry indicates the graph has no entry node.
	ErrNoEntry = errors.New("graph has no entry node")
	// ErrUnreachableFinish indicates no path from the entry can ever
	// reach the terminal sentinel.
	ErrUnreachableFinish = errors.New("FINISH is unreachable from the entry node")
	// ErrUnknownTarget indicates an edge references a node that does not
	// exist in the graph.
	ErrUnknownTarget = errors.New("edge references unknown node")
	// ErrUndeclaredTarget indicates a routing function returned a target
	// outside its declared set.
	ErrUndeclaredTarget = errors.New("routing function returned undeclared target")
	// ErrNoRoute indicates a node has neither an unconditional nor a
	// conditional edge.
	ErrNoRoute = errors.New("node has no outgoing edge")
)

// Role tags what part a node plays in its topology.
type Role string

const (
	// RoleSequential is a step in a sequential chain.
	RoleSequential Role = "sequential"
	// RoleCoordinator directs a dynamic-adaptive workflow.
	RoleCoordinator Role = "coordinator"
	// RoleWorker executes work assigned by a supervisor.
	RoleWorker Role = "worker"
	// RoleCollaborative is a peer in a collaborative workflow.
	RoleCollaborative Role = "collaborative"
	// RoleConsensus merges peer outputs into one outcome.
	RoleConsensus Role = "consensus"
	// RoleAdaptive is a specialist invoked by a coordinator.
	RoleAdaptive Role = "adaptive"
	// RoleSpecialized handles a detour such as recovery or quality review.
	RoleSpecialized Role = "specialized"
)

// RoutingFunc inspects the shared workflow state after a node has run
// and returns the next node id, or Finish. It must not mutate state.
type RoutingFunc func(state *models.WorkflowState) string

// Node binds one agent into the graph under a role tag.
type Node struct {
	// ID is the node's identifier, unique within the graph.
	ID string
	// Agent is the bound agent.
	Agent agent.Agent
	// Role tags the node's part in the topology.
	Role Role
}

// conditionalEdge pairs a routing function with its declared target set.
type conditionalEdge struct {
	route   RoutingFunc
	allowed map[string]bool
}

// WorkflowGraph is a directed graph of agent nodes. Routing is either a
// fixed successor or a conditional edge whose function picks the next
// node from a declared target set.
type WorkflowGraph struct {
	mu    sync.RWMutex
	entry string
	// entryRoute, when set, picks the first node from the state instead
	// of the fixed entry. Used by the collaborative topology.
	entryRoute *conditionalEdge
	nodes      map[string]*Node
	// edges maps node id to its unconditional successor.
	edges map[string]string
	// conditional maps node id to its conditional edge.
	conditional map[string]*conditionalEdge
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates an empty workflow graph.
func New() *WorkflowGraph {
	return &WorkflowGraph{
		nodes:       make(map[string]*Node),
		edges:       make(map[string]string),
		conditional: make(map[string]*conditionalEdge),
		debugLog:    func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (g *WorkflowGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// AddNode registers a node. Re-adding an id overwrites the previous
// binding.
func (g *WorkflowGraph) AddNode(n *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[n.ID] = n
	g.debugLog("[graph.AddNode] id=%s role=%s agent=%s", n.ID, n.Role, n.Agent.ID())
}

// SetEntry sets the fixed entry node id.
func (g *WorkflowGraph) SetEntry(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entry = id
}

// SetEntryRoute sets a conditional entry: the routing function picks
// the first node from the initial state. The targets list declares
// every node the function may return.
func (g *WorkflowGraph) SetEntryRoute(route RoutingFunc, targets ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entryRoute = &conditionalEdge{route: route, allowed: targetSet(targets)}
}

// AddEdge wires from's unconditional successor. The target may be
// Finish.
func (g *WorkflowGraph) AddEdge(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges[from] = to
	g.debugLog("[graph.AddEdge] %s -> %s", from, to)
}

// AddConditionalEdge wires from's conditional edge. The targets list
// declares every node the routing function may return; Finish is
// always implicitly allowed.
func (g *WorkflowGraph) AddConditionalEdge(from string, route RoutingFunc, targets ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conditional[from] = &conditionalEdge{route: route, allowed: targetSet(targets)}
	g.debugLog("[graph.AddConditionalEdge] %s -> one of %v", from, targets)
}

func targetSet(targets []string) map[string]bool {
	allowed := make(map[string]bool, len(targets)+1)
	for _, t := range targets {
		allowed[t] = true
	}
	allowed[Finish] = true
	return allowed
}

// Entry resolves the first node to execute. With a conditional entry
// the initial state picks it; otherwise the fixed entry is returned.
func (g *WorkflowGraph) Entry(state *models.WorkflowState) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.entryRoute != nil {
		target := g.entryRoute.route(state)
		if !g.entryRoute.allowed[target] {
			return "", fmt.Errorf("%w: entry route returned %q", ErrUndeclaredTarget, target)
		}
		g.debugLog("[graph.Entry] conditional entry resolved to %s", target)
		return target, nil
	}
	if g.entry == "" {
		return "", ErrNoEntry
	}
	return g.entry, nil
}

// Node returns the node for an id, or nil.
func (g *WorkflowGraph) Node(id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Nodes returns every node id in sorted order.
func (g *WorkflowGraph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Next resolves the node to execute after from, given the shared state
// as mutated by from's agent. It returns Finish when the workflow is
// done, and an error if a routing function escapes its declared
// target set.
func (g *WorkflowGraph) Next(from string, state *models.WorkflowState) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if edge, ok := g.conditional[from]; ok {
		target := edge.route(state)
		if !edge.allowed[target] {
			return "", fmt.Errorf("%w: node %s routed to %q", ErrUndeclaredTarget, from, target)
		}
		g.debugLog("[graph.Next] %s routed conditionally to %s", from, target)
		return target, nil
	}
	if to, ok := g.edges[from]; ok {
		g.debugLog("[graph.Next] %s -> %s", from, to)
		return to, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoRoute, from)
}

// Validate checks the graph's structural invariants: an entry exists,
// every edge target is a known node or Finish, every node has an
// outgoing edge, and Finish is reachable from the entry through some
// combination of declared targets.
func (g *WorkflowGraph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.entry == "" && g.entryRoute == nil {
		return ErrNoEntry
	}
	if g.entry != "" {
		if _, ok := g.nodes[g.entry]; !ok {
			return fmt.Errorf("%w: entry %s", ErrUnknownTarget, g.entry)
		}
	}

	// successors returns every target a node may route to.
	successors := func(id string) []string {
		if edge, ok := g.conditional[id]; ok {
			targets := make([]string, 0, len(edge.allowed))
			for t := range edge.allowed {
				targets = append(targets, t)
			}
			sort.Strings(targets)
			return targets
		}
		if to, ok := g.edges[id]; ok {
			return []string{to}
		}
		return nil
	}

	for id := range g.nodes {
		targets := successors(id)
		if len(targets) == 0 {
			return fmt.Errorf("%w: %s", ErrNoRoute, id)
		}
		for _, t := range targets {
			if t == Finish {
				continue
			}
			if _, ok := g.nodes[t]; !ok {
				return fmt.Errorf("%w: %s -> %s", ErrUnknownTarget, id, t)
			}
		}
	}

	// Depth-first walk from every possible starting node; Finish must
	// be reachable.
	starts := make([]string, 0, 4)
	if g.entry != "" {
		starts = append(starts, g.entry)
	}
	if g.entryRoute != nil {
		for t := range g.entryRoute.allowed {
			if t != Finish {
				if _, ok := g.nodes[t]; !ok {
					return fmt.Errorf("%w: entry route target %s", ErrUnknownTarget, t)
				}
				starts = append(starts, t)
			}
		}
	}

	visited := make(map[string]bool)
	var reached bool
	var visit func(id string)
	visit = func(id string) {
		if id == Finish {
			reached = true
			return
		}
		if visited[id] || reached {
			return
		}
		visited[id] = true
		for _, t := range successors(id) {
			visit(t)
		}
	}
	for _, start := range starts {
		visit(start)
	}
	if !reached {
		return ErrUnreachableFinish
	}

	g.debugLog("[graph.Validate] graph valid: %d nodes", len(g.nodes))
	return nil
}
