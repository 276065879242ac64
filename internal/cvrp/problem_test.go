package cvrp

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// squareProblem places the depot at the origin and five customers on a
// 10x10 square layout, each with demand 5 and capacity 10.
func squareProblem(t *testing.T) *Problem {
	t.Helper()
	p := New(10)
	require.NoError(t, p.AddDepot(0, 0))
	coords := [][2]float64{{10, 0}, {10, 10}, {0, 10}, {-10, 0}, {0, -10}}
	for i, c := range coords {
		require.NoError(t, p.AddCustomer(i+1, c[0], c[1], 5))
	}
	p.CalculateDistances()
	return p
}

func TestDistanceMatrixSymmetric(t *testing.T) {
	p := squareProblem(t)
	for i := 0; i < p.Size(); i++ {
		require.Zero(t, p.Distance(i, i))
		for j := 0; j < p.Size(); j++ {
			require.Equal(t, p.Distance(i, j), p.Distance(j, i))
		}
	}
	require.InDelta(t, math.Sqrt(200), p.Distance(0, 2), 1e-12)
	require.InDelta(t, 10, p.Distance(1, 2), 1e-12)
}

func TestAddOrdering(t *testing.T) {
	p := New(10)
	require.Error(t, p.AddCustomer(1, 1, 1, 1), "customer before depot")
	require.NoError(t, p.AddDepot(0, 0))
	require.Error(t, p.AddDepot(1, 1), "second depot")
	require.Error(t, p.AddCustomer(1, 1, 1, -3), "negative demand")
}

func TestValidateStaleMatrix(t *testing.T) {
	p := squareProblem(t)
	require.NoError(t, p.Validate())
	require.NoError(t, p.AddCustomer(6, 3, 3, 1))
	require.ErrorIs(t, p.Validate(), ErrNotReady)
	p.CalculateDistances()
	require.NoError(t, p.Validate())

	var nilProblem *Problem
	require.ErrorIs(t, nilProblem.Validate(), ErrNotReady)
	require.ErrorIs(t, New(10).Validate(), ErrNotReady)

	zeroCap := squareProblem(t)
	zeroCap.Capacity = 0
	require.True(t, errors.Is(zeroCap.Validate(), ErrNotReady))
}

func TestRouteQueries(t *testing.T) {
	p := squareProblem(t)
	r := Route{1, 2}
	require.InDelta(t, 10+10+math.Sqrt(200), p.RouteDistance(r), 1e-9)
	require.Equal(t, 10, p.RouteDemand(r))
	require.Zero(t, p.RouteDistance(nil))

	sol := Solution{{1, 2}, {3, 4}, {5}}
	want := p.RouteDistance(sol[0]) + p.RouteDistance(sol[1]) + p.RouteDistance(sol[2])
	require.InDelta(t, want, p.SolutionCost(sol), 1e-9)
	require.Equal(t, p.SolutionCost(sol), p.SolutionCost(sol), "cost is deterministic")
}

func TestIsSolutionValid(t *testing.T) {
	p := squareProblem(t)
	cases := []struct {
		name string
		sol  Solution
		want bool
	}{
		{"valid", Solution{{1, 2}, {3, 4}, {5}}, true},
		{"over capacity", Solution{{1, 2, 3}, {4, 5}}, false},
		{"duplicate", Solution{{1, 2}, {2, 3}, {4, 5}}, false},
		{"missing", Solution{{1, 2}, {3, 4}}, false},
		{"out of range", Solution{{1, 2}, {3, 4}, {5, 6}}, false},
		{"depot in route", Solution{{0, 1}, {2, 3}, {4, 5}}, false},
		{"negative index", Solution{{-1}}, false},
		{"negative index after valid routes", Solution{{1, 2}, {3, 4}, {5, -1}}, false},
		{"index past end in first route", Solution{{7, 1}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, p.IsSolutionValid(tc.sol))
		})
	}
}

func TestLoadRandomDeterministic(t *testing.T) {
	a, b := New(0), New(0)
	a.LoadRandom(30, 100, 42)
	b.LoadRandom(30, 100, 42)
	require.Equal(t, a.Customers, b.Customers)
	require.Equal(t, 30, a.NumCustomers())
	require.Equal(t, Customer{ID: 0}, a.Customers[0])
	for _, c := range a.Customers[1:] {
		require.GreaterOrEqual(t, c.X, RandomCoordMin)
		require.LessOrEqual(t, c.X, RandomCoordMax)
		require.GreaterOrEqual(t, c.Demand, RandomDemandMin)
		require.LessOrEqual(t, c.Demand, RandomDemandMax)
	}
	require.NoError(t, a.Validate())

	c := New(0)
	c.LoadRandom(30, 100, 43)
	require.NotEqual(t, a.Customers, c.Customers)
}

func TestUnvisitedAndClone(t *testing.T) {
	p := squareProblem(t)
	require.Equal(t, []int{2, 4}, p.UnvisitedCustomers([]int{1, 3, 5}))

	c := p.Clone()
	c.Customers[1].Demand = 9
	require.Equal(t, 5, p.Demand(1))
	require.Equal(t, p.Distances(), c.Distances())
	require.NoError(t, c.Validate())
}

func TestSolutionClone(t *testing.T) {
	s := Solution{{1, 2}, {3}}
	c := s.Clone()
	c[0][0] = 9
	require.Equal(t, 1, s[0][0])
	require.Nil(t, Solution(nil).Clone())
}

func TestCheckInfeasible(t *testing.T) {
	p := squareProblem(t)
	require.Empty(t, p.Oversize())
	require.NoError(t, p.CheckInfeasible())

	require.NoError(t, p.AddCustomer(6, 5, 5, 11))
	require.NoError(t, p.AddCustomer(7, 6, 6, 10))
	p.CalculateDistances()
	require.Equal(t, []int{6}, p.Oversize())
	err := p.CheckInfeasible()
	require.ErrorIs(t, err, ErrInfeasibleInput)
	require.Contains(t, err.Error(), "[6]")
}
