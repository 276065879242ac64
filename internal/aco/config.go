package aco

import (
	"fmt"
	"math"

	"cvrpsim/internal/cvrp"
	"cvrpsim/internal/solver"
)

// Config holds the colony parameters.
type Config struct {
	NumAnts       int     `json:"numAnts" yaml:"numAnts" validate:"gte=1"`
	Alpha         float64 `json:"alpha" yaml:"alpha" validate:"gte=0"`
	Beta          float64 `json:"beta" yaml:"beta" validate:"gte=0"`
	Rho           float64 `json:"rho" yaml:"rho" validate:"gte=0,lte=1"`
	Q             float64 `json:"q" yaml:"q" validate:"gt=0"`
	MaxIterations int     `json:"maxIterations" yaml:"maxIterations" validate:"gte=1"`

	MinMax      bool `json:"minMax" yaml:"minMax"`
	LocalSearch bool `json:"localSearch" yaml:"localSearch"`
	ElitistAnts int  `json:"elitistAnts" yaml:"elitistAnts" validate:"gte=0"`

	InitialPheromone float64 `json:"initialPheromone" yaml:"initialPheromone" validate:"gt=0"`
	// PheromoneFloor is the lower bound of every trail outside MIN-MAX mode.
	PheromoneFloor float64 `json:"pheromoneFloor" yaml:"pheromoneFloor" validate:"gte=0"`
	// MinMaxRatio sets min = max * ratio in MIN-MAX mode.
	MinMaxRatio float64 `json:"minMaxRatio" yaml:"minMaxRatio" validate:"gt=0,lte=1"`
	// GlobalBestWeight scales the global-best deposit in MIN-MAX mode.
	GlobalBestWeight float64 `json:"globalBestWeight" yaml:"globalBestWeight" validate:"gte=0"`

	// Seed of the run's random source. Zero picks a time-based seed.
	Seed int64 `json:"seed" yaml:"seed"`
}

// DefaultConfig returns the stock colony settings.
func DefaultConfig() Config {
	return Config{
		NumAnts:          10,
		Alpha:            1.0,
		Beta:             2.0,
		Rho:              0.5,
		Q:                100,
		MaxIterations:    100,
		InitialPheromone: 1.0,
		PheromoneFloor:   1e-12,
		MinMaxRatio:      0.01,
		GlobalBestWeight: 2.0,
	}
}

// Validate rejects out-of-range values with cvrp.ErrConfig.
func (c Config) Validate() error {
	if err := solver.ValidateStruct(c); err != nil {
		return err
	}
	if c.MinMax && c.Rho == 0 {
		return fmt.Errorf("%w: MIN-MAX mode needs rho > 0", cvrp.ErrConfig)
	}
	return nil
}

// Normalize clamps every field to the nearest usable value.
func (c Config) Normalize() Config {
	d := DefaultConfig()
	c.NumAnts = solver.Clamp(c.NumAnts, 1, 1000)
	c.Alpha = math.Max(0, c.Alpha)
	c.Beta = math.Max(0, c.Beta)
	c.Rho = solver.Clamp(c.Rho, 0.001, 0.999)
	if c.Q < 1 {
		c.Q = 1
	}
	c.MaxIterations = max(1, c.MaxIterations)
	c.ElitistAnts = max(0, c.ElitistAnts)
	if !(c.InitialPheromone > 0) {
		c.InitialPheromone = d.InitialPheromone
	}
	if !(c.PheromoneFloor >= 0) {
		c.PheromoneFloor = d.PheromoneFloor
	}
	if !(c.MinMaxRatio > 0 && c.MinMaxRatio <= 1) {
		c.MinMaxRatio = d.MinMaxRatio
	}
	c.GlobalBestWeight = math.Max(0, c.GlobalBestWeight)
	return c
}
