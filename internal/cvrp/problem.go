// Package cvrp models the Capacitated Vehicle Routing Problem: one depot,
// customers with demands, a vehicle capacity and a Euclidean distance matrix.
package cvrp

import (
	"fmt"
	"math"
	"math/rand"
)

// Customer is a node of the problem. ID 0 is the depot by convention.
type Customer struct {
	ID     int     `json:"id" yaml:"id"`
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Demand int     `json:"demand" yaml:"demand"`
}

// Route lists customer indices in visiting order. The depot is implicit at both ends.
type Route []int

// Solution is a set of routes.
type Solution []Route

// Clone returns a deep copy of s.
func (s Solution) Clone() Solution {
	if s == nil {
		return nil
	}
	out := make(Solution, len(s))
	for i, r := range s {
		out[i] = append(Route(nil), r...)
	}
	return out
}

// Random instance bounds.
const (
	RandomCoordMin  = -100.0
	RandomCoordMax  = 100.0
	RandomDemandMin = 10
	RandomDemandMax = 40
)

// Problem holds the depot (index 0), customers and the distance matrix.
// Solvers treat it as read-only; it can be shared across concurrent runs.
type Problem struct {
	Capacity  float64
	Customers []Customer

	distances [][]float64
	stale     bool
}

// New returns an empty problem with the given vehicle capacity.
func New(capacity float64) *Problem {
	return &Problem{Capacity: capacity}
}

// AddDepot appends the depot. It must be the first node added.
func (p *Problem) AddDepot(x, y float64) error {
	if len(p.Customers) > 0 {
		return fmt.Errorf("depot must be added first (have %d nodes)", len(p.Customers))
	}
	p.Customers = append(p.Customers, Customer{ID: 0, X: x, Y: y})
	p.stale = true
	return nil
}

// AddCustomer appends a customer after the depot.
func (p *Problem) AddCustomer(id int, x, y float64, demand int) error {
	if len(p.Customers) == 0 {
		return fmt.Errorf("add depot before customer %d", id)
	}
	if demand < 0 {
		return fmt.Errorf("customer %d: negative demand %d", id, demand)
	}
	p.Customers = append(p.Customers, Customer{ID: id, X: x, Y: y, Demand: demand})
	p.stale = true
	return nil
}

// LoadRandom replaces the problem with n random customers around a depot at
// the origin. Equal seeds produce equal problems.
func (p *Problem) LoadRandom(n int, capacity float64, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	p.Capacity = capacity
	p.Customers = make([]Customer, 0, n+1)
	p.Customers = append(p.Customers, Customer{ID: 0})
	for i := 1; i <= n; i++ {
		x := RandomCoordMin + rng.Float64()*(RandomCoordMax-RandomCoordMin)
		y := RandomCoordMin + rng.Float64()*(RandomCoordMax-RandomCoordMin)
		demand := RandomDemandMin + rng.Intn(RandomDemandMax-RandomDemandMin+1)
		p.Customers = append(p.Customers, Customer{ID: i, X: x, Y: y, Demand: demand})
	}
	p.CalculateDistances()
}

// CalculateDistances rebuilds the symmetric Euclidean distance matrix.
func (p *Problem) CalculateDistances() {
	n := len(p.Customers)
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := p.Customers[i].X - p.Customers[j].X
			dy := p.Customers[i].Y - p.Customers[j].Y
			v := math.Sqrt(dx*dx + dy*dy)
			d[i][j] = v
			d[j][i] = v
		}
	}
	p.distances = d
	p.stale = false
}

// Validate reports whether the problem can be handed to a solver.
func (p *Problem) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil problem", ErrNotReady)
	}
	if len(p.Customers) == 0 {
		return fmt.Errorf("%w: no depot", ErrNotReady)
	}
	if !(p.Capacity > 0) {
		return fmt.Errorf("%w: capacity must be positive, got %v", ErrNotReady, p.Capacity)
	}
	if p.stale || len(p.distances) != len(p.Customers) {
		return fmt.Errorf("%w: distance matrix is stale, call CalculateDistances", ErrNotReady)
	}
	return nil
}

// Size is the number of nodes including the depot.
func (p *Problem) Size() int { return len(p.Customers) }

// NumCustomers is the number of nodes excluding the depot.
func (p *Problem) NumCustomers() int {
	if len(p.Customers) == 0 {
		return 0
	}
	return len(p.Customers) - 1
}

// Demand returns the demand of node i.
func (p *Problem) Demand(i int) int { return p.Customers[i].Demand }

// Distance returns the distance between nodes i and j.
func (p *Problem) Distance(i, j int) float64 { return p.distances[i][j] }

// Distances returns a copy of the distance matrix.
func (p *Problem) Distances() [][]float64 {
	out := make([][]float64, len(p.distances))
	for i, row := range p.distances {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Fits reports whether demand alone fits into one vehicle.
func (p *Problem) Fits(demand int) bool { return float64(demand) <= p.Capacity }

// RouteDistance is depot -> route... -> depot.
func (p *Problem) RouteDistance(r Route) float64 {
	if len(r) == 0 {
		return 0
	}
	total := 0.0
	prev := 0
	for _, node := range r {
		total += p.distances[prev][node]
		prev = node
	}
	return total + p.distances[prev][0]
}

// RouteDemand sums the demands served by r.
func (p *Problem) RouteDemand(r Route) int {
	sum := 0
	for _, node := range r {
		sum += p.Customers[node].Demand
	}
	return sum
}

// SolutionCost sums route distances.
func (p *Problem) SolutionCost(s Solution) float64 {
	total := 0.0
	for _, r := range s {
		total += p.RouteDistance(r)
	}
	return total
}

// IsSolutionValid checks capacity on every route and that each customer
// 1..n is served exactly once.
func (p *Problem) IsSolutionValid(s Solution) bool {
	n := p.NumCustomers()
	seen := make([]bool, n+1)
	count := 0
	for _, r := range s {
		load := 0
		for _, node := range r {
			if node < 1 || node > n || seen[node] {
				return false
			}
			seen[node] = true
			count++
			load += p.Customers[node].Demand
		}
		if !p.Fits(load) {
			return false
		}
	}
	return count == n
}

// Oversize lists the customers whose demand alone exceeds the capacity.
// Solvers serve each of them on a singleton route.
func (p *Problem) Oversize() []int {
	var out []int
	for i := 1; i < len(p.Customers); i++ {
		if !p.Fits(p.Customers[i].Demand) {
			out = append(out, i)
		}
	}
	return out
}

// CheckInfeasible returns ErrInfeasibleInput naming the oversize
// customers, or nil when every demand fits one vehicle.
func (p *Problem) CheckInfeasible() error {
	if ids := p.Oversize(); len(ids) > 0 {
		return fmt.Errorf("%w: customers %v", ErrInfeasibleInput, ids)
	}
	return nil
}

// UnvisitedCustomers lists customers 1..n not contained in visited, in index order.
func (p *Problem) UnvisitedCustomers(visited []int) []int {
	n := p.NumCustomers()
	mark := make([]bool, n+1)
	for _, v := range visited {
		if v >= 1 && v <= n {
			mark[v] = true
		}
	}
	out := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		if !mark[i] {
			out = append(out, i)
		}
	}
	return out
}

// Clone returns an independent copy, including the distance matrix.
func (p *Problem) Clone() *Problem {
	c := &Problem{
		Capacity:  p.Capacity,
		Customers: append([]Customer(nil), p.Customers...),
		stale:     p.stale,
	}
	if p.distances != nil {
		c.distances = p.Distances()
	}
	return c
}
