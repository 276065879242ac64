package ga

import (
	"math"

	"cvrpsim/internal/solver"
)

// Selection picks parents from the evaluated population.
type Selection string

const (
	Tournament Selection = "tournament"
	Roulette   Selection = "roulette"
	Rank       Selection = "rank"
)

// Crossover recombines two parent permutations.
type Crossover string

const (
	Ordered         Crossover = "ordered"
	PartiallyMapped Crossover = "partially_mapped"
	Cycle           Crossover = "cycle"
)

// Mutation perturbs one permutation in place.
type Mutation string

const (
	Swap      Mutation = "swap"
	Insert    Mutation = "insert"
	Inversion Mutation = "inversion"
	Scramble  Mutation = "scramble"
)

// Config holds the evolution parameters.
type Config struct {
	PopulationSize int     `json:"populationSize" yaml:"populationSize" validate:"gte=1"`
	MutationRate   float64 `json:"mutationRate" yaml:"mutationRate" validate:"gte=0,lte=1"`
	CrossoverRate  float64 `json:"crossoverRate" yaml:"crossoverRate" validate:"gte=0,lte=1"`
	Elitism        int     `json:"elitism" yaml:"elitism" validate:"gte=0,ltfield=PopulationSize"`
	MaxGenerations int     `json:"maxGenerations" yaml:"maxGenerations" validate:"gte=1"`

	Selection      Selection `json:"selection" yaml:"selection" validate:"oneof=tournament roulette rank"`
	Crossover      Crossover `json:"crossover" yaml:"crossover" validate:"oneof=ordered partially_mapped cycle"`
	Mutation       Mutation  `json:"mutation" yaml:"mutation" validate:"oneof=swap insert inversion scramble"`
	TournamentSize int       `json:"tournamentSize" yaml:"tournamentSize" validate:"gte=2"`

	// EarlyStopping ends the run after this many generations without a new
	// global best. Zero disables it.
	EarlyStopping int  `json:"earlyStopping" yaml:"earlyStopping" validate:"gte=0"`
	LocalSearch   bool `json:"localSearch" yaml:"localSearch"`

	// CapacityPenalty is charged per unit of demand over capacity.
	CapacityPenalty float64 `json:"capacityPenalty" yaml:"capacityPenalty" validate:"gte=0"`
	// RoutePenalty is charged per route above max(1, n/3).
	RoutePenalty float64 `json:"routePenalty" yaml:"routePenalty" validate:"gte=0"`

	// Seed of the run's random source. Zero picks a time-based seed.
	Seed int64 `json:"seed" yaml:"seed"`
}

// DefaultConfig returns the stock evolution settings.
func DefaultConfig() Config {
	return Config{
		PopulationSize:  50,
		MutationRate:    0.1,
		CrossoverRate:   0.8,
		Elitism:         5,
		MaxGenerations:  100,
		Selection:       Tournament,
		Crossover:       Ordered,
		Mutation:        Swap,
		TournamentSize:  3,
		CapacityPenalty: 100,
		RoutePenalty:    50,
	}
}

// Validate rejects out-of-range values and unknown operators with cvrp.ErrConfig.
func (c Config) Validate() error {
	return solver.ValidateStruct(c)
}

// Normalize clamps every field to the nearest usable value. Unknown
// operator names fall back to the defaults.
func (c Config) Normalize() Config {
	d := DefaultConfig()
	c.PopulationSize = solver.Clamp(c.PopulationSize, 1, 10000)
	c.MutationRate = clampRate(c.MutationRate)
	c.CrossoverRate = clampRate(c.CrossoverRate)
	c.Elitism = solver.Clamp(c.Elitism, 0, c.PopulationSize-1)
	c.MaxGenerations = max(1, c.MaxGenerations)
	if _, ok := selectors[c.Selection]; !ok {
		c.Selection = d.Selection
	}
	if _, ok := crossovers[c.Crossover]; !ok {
		c.Crossover = d.Crossover
	}
	if _, ok := mutators[c.Mutation]; !ok {
		c.Mutation = d.Mutation
	}
	c.TournamentSize = max(2, c.TournamentSize)
	c.EarlyStopping = max(0, c.EarlyStopping)
	if !(c.CapacityPenalty >= 0) {
		c.CapacityPenalty = d.CapacityPenalty
	}
	if !(c.RoutePenalty >= 0) {
		c.RoutePenalty = d.RoutePenalty
	}
	return c
}

func clampRate(r float64) float64 {
	if math.IsNaN(r) {
		return 0
	}
	return solver.Clamp(r, 0, 1)
}
