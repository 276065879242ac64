package cvrp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// Point is a bare coordinate pair.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Record is the persisted problem layout:
// {capacity, depot:{x,y}, customers:[{id,x,y,demand}]}.
type Record struct {
	Capacity  float64    `json:"capacity" yaml:"capacity"`
	Depot     Point      `json:"depot" yaml:"depot"`
	Customers []Customer `json:"customers" yaml:"customers"`
}

// Wire shapes with pointer fields so missing keys can be told apart from zero values.
type rawPoint struct {
	X *float64 `json:"x" yaml:"x"`
	Y *float64 `json:"y" yaml:"y"`
}

type rawCustomer struct {
	ID     *int     `json:"id" yaml:"id"`
	X      *float64 `json:"x" yaml:"x"`
	Y      *float64 `json:"y" yaml:"y"`
	Demand *int     `json:"demand" yaml:"demand"`
}

type rawRecord struct {
	Capacity  *float64       `json:"capacity" yaml:"capacity"`
	Depot     *rawPoint      `json:"depot" yaml:"depot"`
	Customers *[]rawCustomer `json:"customers" yaml:"customers"`
}

func (r rawRecord) record() (Record, error) {
	if r.Capacity == nil {
		return Record{}, fmt.Errorf("%w: missing capacity", ErrFormat)
	}
	if r.Depot == nil || r.Depot.X == nil || r.Depot.Y == nil {
		return Record{}, fmt.Errorf("%w: missing depot coordinates", ErrFormat)
	}
	if r.Customers == nil {
		return Record{}, fmt.Errorf("%w: missing customers", ErrFormat)
	}
	out := Record{
		Capacity:  *r.Capacity,
		Depot:     Point{X: *r.Depot.X, Y: *r.Depot.Y},
		Customers: make([]Customer, 0, len(*r.Customers)),
	}
	for i, c := range *r.Customers {
		if c.ID == nil || c.X == nil || c.Y == nil || c.Demand == nil {
			return Record{}, fmt.Errorf("%w: customer #%d is missing id, x, y or demand", ErrFormat, i)
		}
		out.Customers = append(out.Customers, Customer{ID: *c.ID, X: *c.X, Y: *c.Y, Demand: *c.Demand})
	}
	return out, nil
}

// Validate checks the constraints a record must satisfy before it becomes a Problem.
func (r Record) Validate() error {
	if !(r.Capacity > 0) {
		return fmt.Errorf("%w: capacity must be positive, got %v", ErrFormat, r.Capacity)
	}
	ids := make(map[int]struct{}, len(r.Customers))
	for _, c := range r.Customers {
		if c.Demand < 0 {
			return fmt.Errorf("%w: customer %d has negative demand", ErrFormat, c.ID)
		}
		if _, dup := ids[c.ID]; dup {
			return fmt.Errorf("%w: duplicate customer id %d", ErrFormat, c.ID)
		}
		ids[c.ID] = struct{}{}
	}
	return nil
}

// ParseRecord decodes a record from JSON, or YAML when format is "yaml"/"yml".
func ParseRecord(data []byte, format string) (Record, error) {
	var raw rawRecord
	var err error
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	rec, err := raw.record()
	if err != nil {
		return Record{}, err
	}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// FromRecord builds a ready-to-solve problem.
func FromRecord(rec Record) (*Problem, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	p := New(rec.Capacity)
	if err := p.AddDepot(rec.Depot.X, rec.Depot.Y); err != nil {
		return nil, err
	}
	for _, c := range rec.Customers {
		if err := p.AddCustomer(c.ID, c.X, c.Y, c.Demand); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
	}
	p.CalculateDistances()
	return p, nil
}

// Record returns the persisted layout of p.
func (p *Problem) Record() (Record, error) {
	if len(p.Customers) == 0 {
		return Record{}, fmt.Errorf("%w: no depot", ErrNotReady)
	}
	depot := p.Customers[0]
	return Record{
		Capacity:  p.Capacity,
		Depot:     Point{X: depot.X, Y: depot.Y},
		Customers: append([]Customer{}, p.Customers[1:]...),
	}, nil
}

// LoadFromFile replaces p with the problem stored at path. On any error p is
// left untouched.
func (p *Problem) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	rec, err := ParseRecord(data, filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	loaded, err := FromRecord(rec)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	*p = *loaded
	return nil
}

// SaveToFile writes p as JSON, or YAML for .yaml/.yml paths.
func (p *Problem) SaveToFile(path string) error {
	rec, err := p.Record()
	if err != nil {
		return err
	}
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(rec)
	default:
		data, err = json.MarshalIndent(rec, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}
