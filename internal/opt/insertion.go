package opt

import (
	"math"

	"cvrpsim/internal/cvrp"
)

// CheapestInsertion decodes a customer order into routes. Each customer is
// inserted at the position of minimum marginal distance among the routes
// with enough spare capacity; a new route is opened when none has room.
// A customer that cannot fit a vehicle alone gets its own route.
func CheapestInsertion(p *cvrp.Problem, order []int) cvrp.Solution {
	sol := cvrp.Solution{}
	loads := []int{}
	for _, c := range order {
		dem := p.Demand(c)
		if !p.Fits(dem) {
			sol = append(sol, cvrp.Route{c})
			loads = append(loads, dem)
			continue
		}
		bestRoute, bestPos := -1, -1
		bestDelta := math.MaxFloat64
		for ri, r := range sol {
			if !p.Fits(loads[ri] + dem) {
				continue
			}
			for pos := 0; pos <= len(r); pos++ {
				if d := insertDelta(p, r, c, pos); d < bestDelta {
					bestDelta = d
					bestRoute, bestPos = ri, pos
				}
			}
		}
		if bestRoute == -1 {
			sol = append(sol, cvrp.Route{c})
			loads = append(loads, dem)
			continue
		}
		r := sol[bestRoute]
		r = append(r, 0)
		copy(r[bestPos+1:], r[bestPos:])
		r[bestPos] = c
		sol[bestRoute] = r
		loads[bestRoute] += dem
	}
	return sol
}

// insertDelta: prev->c + c->next - prev->next, with the depot at both ends.
func insertDelta(p *cvrp.Problem, r cvrp.Route, c, pos int) float64 {
	prev := 0
	if pos > 0 {
		prev = r[pos-1]
	}
	next := 0
	if pos < len(r) {
		next = r[pos]
	}
	return p.Distance(prev, c) + p.Distance(c, next) - p.Distance(prev, next)
}

// Feasible checks every route of s. A route with a zero-length or unbounded
// hop (depot legs included) is split into singletons; a route over capacity
// is split greedily, closing it whenever the next customer would overflow.
func Feasible(p *cvrp.Problem, s cvrp.Solution) cvrp.Solution {
	out := make(cvrp.Solution, 0, len(s))
	for _, r := range s {
		if len(r) == 0 {
			continue
		}
		if !hopsBounded(p, r) {
			for _, c := range r {
				out = append(out, cvrp.Route{c})
			}
			continue
		}
		if p.Fits(p.RouteDemand(r)) {
			out = append(out, r)
			continue
		}
		out = append(out, SplitByCapacity(p, r)...)
	}
	return out
}

// SplitByCapacity cuts a customer sequence into consecutive routes that respect capacity.
func SplitByCapacity(p *cvrp.Problem, seq []int) cvrp.Solution {
	var out cvrp.Solution
	cur := cvrp.Route{}
	load := 0
	for _, c := range seq {
		dem := p.Demand(c)
		if len(cur) > 0 && !p.Fits(load+dem) {
			out = append(out, cur)
			cur, load = cvrp.Route{}, 0
		}
		cur = append(cur, c)
		load += dem
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func hopsBounded(p *cvrp.Problem, r cvrp.Route) bool {
	if len(r) == 1 {
		// a singleton is the fallback itself
		return true
	}
	prev := 0
	for _, c := range r {
		if !hopOK(p.Distance(prev, c)) {
			return false
		}
		prev = c
	}
	return hopOK(p.Distance(prev, 0))
}

func hopOK(d float64) bool {
	return d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}
