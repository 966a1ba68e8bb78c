// Package lifecycle defines the valid statuses and transitions for tasks and exams.
package lifecycle

import "sort"

type edgeSet[S ~string] map[S]map[S]struct{}

func edges[S ~string](pairs ...[2]S) edgeSet[S] {
	set := make(edgeSet[S])
	for _, p := range pairs {
		if set[p[0]] == nil {
			set[p[0]] = make(map[S]struct{})
		}
		set[p[0]][p[1]] = struct{}{}
	}
	return set
}

type machine[S ~string] struct {
	states map[S]struct{}
	edges  edgeSet[S]
}

func (m machine[S]) valid(s S) bool {
	_, ok := m.states[s]
	return ok
}

// canTransition is exact over the edge table: self-loops, unknown states and
// unlisted pairs are all rejected.
func (m machine[S]) canTransition(current, requested S) bool {
	if current == requested {
		return false
	}
	next, ok := m.edges[current]
	if !ok {
		return false
	}
	_, ok = next[requested]
	return ok
}

func (m machine[S]) next(current S) []S {
	out := make([]S, 0, len(m.edges[current]))
	for _, s := range m.ordered() {
		if _, ok := m.edges[current][s]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (m machine[S]) ordered() []S {
	out := make([]S, 0, len(m.states))
	for s := range m.states {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Transition renders a FROM->TO pair for error reporting.
func Transition[S ~string](from, to S) string {
	return string(from) + "->" + string(to)
}
