package opt

import (
	"sort"

	"cvrpsim/internal/cvrp"
)

type saving struct {
	i, j  int
	value float64
}

// Savings builds a solution with the Clarke-Wright parallel savings
// heuristic. Customers that do not fit a vehicle alone stay on singleton routes.
func Savings(p *cvrp.Problem) cvrp.Solution {
	n := p.NumCustomers()
	if n == 0 {
		return cvrp.Solution{}
	}
	routeOf := make([]int, n+1)
	routes := make(map[int]cvrp.Route, n)
	loads := make(map[int]int, n)
	for c := 1; c <= n; c++ {
		routeOf[c] = c
		routes[c] = cvrp.Route{c}
		loads[c] = p.Demand(c)
	}

	list := make([]saving, 0, n*(n-1)/2)
	for i := 1; i <= n; i++ {
		for j := i + 1; j <= n; j++ {
			v := p.Distance(0, i) + p.Distance(0, j) - p.Distance(i, j)
			if v > 0 {
				list = append(list, saving{i: i, j: j, value: v})
			}
		}
	}
	sort.SliceStable(list, func(a, b int) bool { return list[a].value > list[b].value })

	for _, s := range list {
		ri, rj := routeOf[s.i], routeOf[s.j]
		if ri == rj {
			continue
		}
		if !p.Fits(loads[ri] + loads[rj]) {
			continue
		}
		a, b := routes[ri], routes[rj]
		var merged cvrp.Route
		switch {
		case a[len(a)-1] == s.i && b[0] == s.j:
			merged = append(append(cvrp.Route{}, a...), b...)
		case a[0] == s.i && b[len(b)-1] == s.j:
			merged = append(append(cvrp.Route{}, b...), a...)
		case a[len(a)-1] == s.i && b[len(b)-1] == s.j:
			merged = append(append(cvrp.Route{}, a...), reversed(b)...)
		case a[0] == s.i && b[0] == s.j:
			merged = append(reversed(a), b...)
		default:
			// i or j is interior to its route
			continue
		}
		routes[ri] = merged
		loads[ri] += loads[rj]
		delete(routes, rj)
		delete(loads, rj)
		for _, c := range b {
			routeOf[c] = ri
		}
	}

	ids := make([]int, 0, len(routes))
	for id := range routes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make(cvrp.Solution, 0, len(ids))
	for _, id := range ids {
		out = append(out, routes[id])
	}
	return out
}

func reversed(r cvrp.Route) cvrp.Route {
	out := make(cvrp.Route, len(r))
	for i, v := range r {
		out[len(r)-1-i] = v
	}
	return out
}
