// Package opt holds route-level heuristics shared by the CVRP solvers:
// local search, savings construction, cheapest insertion and feasibility repair.
package opt

import (
	"cvrpsim/internal/cvrp"
)

// improveEps keeps floating-point noise from being accepted as an improvement.
const improveEps = 1e-10

// TwoOpt applies 2-opt to a single route, depot included at both ends.
// Routes with two or fewer customers are returned unchanged. The result is
// never longer than r.
func TwoOpt(p *cvrp.Problem, r cvrp.Route) cvrp.Route {
	n := len(r)
	if n <= 2 {
		return r
	}
	best := append(cvrp.Route(nil), r...)
	improved := true
	for improved {
		improved = false
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				if twoOptDelta(p, best, i, k) < -improveEps {
					reverse(best, i, k)
					improved = true
				}
			}
		}
	}
	if p.RouteDistance(best) > p.RouteDistance(r) {
		return r
	}
	return best
}

// twoOptDelta is the change in route length when best[i..k] is reversed.
func twoOptDelta(p *cvrp.Problem, r cvrp.Route, i, k int) float64 {
	prev := 0
	if i > 0 {
		prev = r[i-1]
	}
	next := 0
	if k < len(r)-1 {
		next = r[k+1]
	}
	before := p.Distance(prev, r[i]) + p.Distance(r[k], next)
	after := p.Distance(prev, r[k]) + p.Distance(r[i], next)
	return after - before
}

func reverse(r cvrp.Route, i, k int) {
	for a, b := i, k; a < b; a, b = a+1, b-1 {
		r[a], r[b] = r[b], r[a]
	}
}

// Relocate moves single customers to a better position inside the same
// route (or-opt with segment length 1) until no move shortens it.
func Relocate(p *cvrp.Problem, r cvrp.Route) cvrp.Route {
	n := len(r)
	if n <= 2 {
		return r
	}
	best := append(cvrp.Route(nil), r...)
	bestDist := p.RouteDistance(best)
	improved := true
	for improved {
		improved = false
		for i := 0; i < n && !improved; i++ {
			for j := 0; j <= n-1; j++ {
				if j == i {
					continue
				}
				cand := moveNode(best, i, j)
				if d := p.RouteDistance(cand); d+improveEps < bestDist {
					best, bestDist = cand, d
					improved = true
					break
				}
			}
		}
	}
	return best
}

// moveNode returns a copy of r with the node at i moved to index j.
func moveNode(r cvrp.Route, i, j int) cvrp.Route {
	out := make(cvrp.Route, 0, len(r))
	node := r[i]
	out = append(out, r[:i]...)
	out = append(out, r[i+1:]...)
	out = append(out[:j], append(cvrp.Route{node}, out[j:]...)...)
	return out
}

// ImproveSolution runs 2-opt on every route.
func ImproveSolution(p *cvrp.Problem, s cvrp.Solution) cvrp.Solution {
	out := make(cvrp.Solution, len(s))
	for i, r := range s {
		out[i] = TwoOpt(p, r)
	}
	return out
}

// ImproveSolutionDeep runs 2-opt followed by relocate on every route.
func ImproveSolutionDeep(p *cvrp.Problem, s cvrp.Solution) cvrp.Solution {
	out := make(cvrp.Solution, len(s))
	for i, r := range s {
		out[i] = Relocate(p, TwoOpt(p, r))
	}
	return out
}

// Flatten concatenates routes into a giant tour without depot visits.
func Flatten(s cvrp.Solution) []int {
	n := 0
	for _, r := range s {
		n += len(r)
	}
	out := make([]int, 0, n)
	for _, r := range s {
		out = append(out, r...)
	}
	return out
}
