package aco

import (
	"math"

	"cvrpsim/internal/cvrp"
)

// construct builds one ant's solution. Routes are closed when no unvisited
// customer fits the remaining capacity. Customers that do not fit an empty
// vehicle end up on singleton routes.
func (s *Solver) construct() cvrp.Solution {
	p := s.problem
	n := p.NumCustomers()
	visited := make([]bool, n+1)
	served := make([]int, 0, n)
	left := n
	var sol cvrp.Solution

	for left > 0 {
		var route cvrp.Route
		load, cur := 0, 0
		for {
			s.candidates = s.candidates[:0]
			for c := 1; c <= n; c++ {
				if !visited[c] && p.Fits(load+p.Demand(c)) {
					s.candidates = append(s.candidates, c)
				}
			}
			if len(s.candidates) == 0 {
				break
			}
			next := s.pick(cur, s.candidates)
			route = append(route, next)
			visited[next] = true
			served = append(served, next)
			left--
			load += p.Demand(next)
			cur = next
		}
		if len(route) == 0 {
			// only customers that overflow an empty vehicle remain
			for _, c := range p.UnvisitedCustomers(served) {
				sol = append(sol, cvrp.Route{c})
			}
			break
		}
		sol = append(sol, route)
	}
	return sol
}

// pick draws the next node with probability proportional to
// tau(cur,j)^alpha * eta(cur,j)^beta, falling back to a uniform draw when
// every weight is zero.
func (s *Solver) pick(cur int, cand []int) int {
	w := s.weights[:0]
	total := 0.0
	for _, c := range cand {
		v := fastPow(s.pheromone[cur][c], s.cfg.Alpha) * fastPow(s.heuristic[cur][c], s.cfg.Beta)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		w = append(w, v)
		total += v
	}
	s.weights = w
	if !(total > 0) || math.IsInf(total, 0) {
		return cand[s.rng.Intn(len(cand))]
	}
	r := s.rng.Float64() * total
	last := -1
	for i, v := range w {
		if v <= 0 {
			continue
		}
		if r < v {
			return cand[i]
		}
		r -= v
		last = i
	}
	// rounding left r past the final positive weight
	return cand[last]
}

func (s *Solver) updatePheromone(sols []cvrp.Solution, costs []float64) {
	evap := 1 - s.cfg.Rho
	for _, row := range s.pheromone {
		for j := range row {
			row[j] *= evap
		}
	}

	if s.cfg.MinMax {
		s.deposit(s.iterBest, amount(1, s.iterBestCost))
		s.deposit(s.best, s.cfg.GlobalBestWeight*amount(1, s.bestCost))
		s.bound(s.minTau, s.maxTau)
		return
	}

	for i, sol := range sols {
		s.deposit(sol, amount(s.cfg.Q, costs[i]))
	}
	if s.cfg.ElitistAnts > 0 {
		s.deposit(s.best, amount(s.cfg.Q, s.bestCost)*float64(s.cfg.ElitistAnts))
	}
	s.bound(s.cfg.PheromoneFloor, math.Inf(1))
}

// amount is q/cost, or 0 for degenerate costs.
func amount(q, cost float64) float64 {
	if cost > 0 && !math.IsInf(cost, 0) {
		return q / cost
	}
	return 0
}

// deposit adds delta on every edge of sol in both directions, depot edges included.
func (s *Solver) deposit(sol cvrp.Solution, delta float64) {
	if delta == 0 {
		return
	}
	for _, r := range sol {
		prev := 0
		for _, c := range r {
			s.pheromone[prev][c] += delta
			s.pheromone[c][prev] += delta
			prev = c
		}
		s.pheromone[prev][0] += delta
		s.pheromone[0][prev] += delta
	}
}

func (s *Solver) bound(lo, hi float64) {
	for _, row := range s.pheromone {
		for j, v := range row {
			if v < lo {
				row[j] = lo
			} else if v > hi {
				row[j] = hi
			}
		}
	}
}

// fastPow special-cases the exponents colonies are usually tuned with.
func fastPow(base, exp float64) float64 {
	switch exp {
	case 0:
		return 1
	case 0.5:
		return math.Sqrt(base)
	case 1:
		return base
	case 1.5:
		return base * math.Sqrt(base)
	case 2:
		return base * base
	case 3:
		return base * base * base
	case 4:
		b2 := base * base
		return b2 * b2
	default:
		return math.Pow(base, exp)
	}
}
