package compiler

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/roach88/reentry/internal/ir"
)

// RecursionWarning reports routines that can re-enter themselves through
// dispatch actions.
//
// Recursion is legal: the variable backup protocol exists for it. The
// warning level says what bounds it:
//   - "info": every routine on the cycle has max_instances set
//   - "warning": at least one has none, so only the depth ceiling stops it
type RecursionWarning struct {
	Path    []string `json:"path"` // e.g. ["Ping", "Pong", "Ping"]
	Message string   `json:"message"`
	Level   string   `json:"level"`
}

// dispatchGraph maps routine name -> routines its body dispatches to.
type dispatchGraph map[string][]string

// AnalyzeRecursion finds dispatch cycles with Tarjan's algorithm.
// Warnings are sorted by path for stable output. A table without cycles
// returns an empty slice.
func AnalyzeRecursion(decls []ir.RoutineDecl) []RecursionWarning {
	graph, byName := buildDispatchGraph(decls)

	warnings := []RecursionWarning{}
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !hasSelfLoop(scc[0], graph) {
			continue
		}
		sort.Strings(scc)
		path := reconstructCyclePath(scc, graph)

		level := "info"
		var unbounded []string
		for _, name := range scc {
			if byName[name].MaxInstances == 0 {
				level = "warning"
				unbounded = append(unbounded, name)
			}
		}

		msg := fmt.Sprintf("recursive dispatch: %s", strings.Join(path, " -> "))
		if len(unbounded) > 0 {
			msg += fmt.Sprintf(" (no max_instances on %s; bounded only by max depth)", strings.Join(unbounded, ", "))
		}
		warnings = append(warnings, RecursionWarning{Path: path, Message: msg, Level: level})
	}

	sort.Slice(warnings, func(i, j int) bool {
		return strings.Join(warnings[i].Path, "\x00") < strings.Join(warnings[j].Path, "\x00")
	})
	return warnings
}

// buildDispatchGraph resolves dispatch targets case-insensitively to the
// declared routine names. Targets that do not exist are skipped; Validate
// reports them.
func buildDispatchGraph(decls []ir.RoutineDecl) (dispatchGraph, map[string]ir.RoutineDecl) {
	fold := cases.Fold()
	canonical := make(map[string]string, len(decls))
	byName := make(map[string]ir.RoutineDecl, len(decls))
	for _, d := range decls {
		canonical[fold.String(d.Name)] = d.Name
		byName[d.Name] = d
	}

	graph := make(dispatchGraph, len(decls))
	for _, d := range decls {
		if graph[d.Name] == nil {
			graph[d.Name] = []string{}
		}
		for _, a := range d.Body {
			if a.Op != ir.OpDispatch || len(a.Args) == 0 {
				continue
			}
			if target, ok := canonical[fold.String(a.Args[0])]; ok {
				graph[d.Name] = append(graph[d.Name], target)
			}
		}
	}
	return graph, byName
}

func hasSelfLoop(node string, graph dispatchGraph) bool {
	for _, n := range graph[node] {
		if n == node {
			return true
		}
	}
	return false
}

// tarjanSCC returns the strongly connected components of graph.
// Nodes are visited in sorted order so results are deterministic.
func tarjanSCC(graph dispatchGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

// reconstructCyclePath walks edges inside the SCC from its first member
// back to itself.
func reconstructCyclePath(scc []string, graph dispatchGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	inSCC := make(map[string]bool, len(scc))
	for _, n := range scc {
		inSCC[n] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, n := range graph[current] {
			if inSCC[n] && (!visited[n] || n == start) {
				next = n
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
