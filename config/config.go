// Package config loads the simulation-parameter table: problem name,
// floating-point precision, iteration count, output directory, and the
// scalar and array constants referenced by the equations.
//
// Parameters are read from an HCL file of the form:
//
//	simulation {
//	  name       = "viscous_burgers"
//	  precision  = "double"
//	  iterations = 1000
//	  output     = "./generated"
//	}
//
//	constants {
//	  deltat = 0.0005
//	  deltai0 = 0.005
//	  rkold  = [0.25, 0.15, 0.6]
//	}
package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Value is one constant value: either a scalar or a fixed-length array.
type Value struct {
	Scalar  float64
	Array   []float64
	IsArray bool
}

// Len returns the number of values: 1 for scalars.
func (v Value) Len() int {
	if v.IsArray {
		return len(v.Array)
	}
	return 1
}

// Simulation is the loaded parameter table.
type Simulation struct {
	Name       string
	Precision  string
	Iterations int
	OutputDir  string

	order  []string
	values map[string]Value
}

type constantsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

type fileSchema struct {
	Simulation struct {
		Name       string `hcl:"name"`
		Precision  string `hcl:"precision"`
		Iterations int    `hcl:"iterations"`
		OutputDir  string `hcl:"output"`
	} `hcl:"simulation,block"`
	Constants *constantsBlock `hcl:"constants,block"`
}

// Load parses a simulation parameter file.
func Load(path string) (*Simulation, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", path, diags)
	}
	return decode(file.Body)
}

// LoadSource parses parameters from an in-memory buffer; filename is used
// only for diagnostics.
func LoadSource(src []byte, filename string) (*Simulation, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", filename, diags)
	}
	return decode(file.Body)
}

func decode(body hcl.Body) (*Simulation, error) {
	var raw fileSchema
	if diags := gohcl.DecodeBody(body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("decode parameters: %w", diags)
	}
	sim := &Simulation{
		Name:       raw.Simulation.Name,
		Precision:  raw.Simulation.Precision,
		Iterations: raw.Simulation.Iterations,
		OutputDir:  raw.Simulation.OutputDir,
		values:     make(map[string]Value),
	}
	if sim.Precision == "" {
		sim.Precision = "double"
	}
	if raw.Constants == nil {
		return sim, nil
	}
	attrs, diags := raw.Constants.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("decode constants: %w", diags)
	}
	// hcl attribute maps are unordered; iterate by source position so the
	// table order matches the file.
	for _, attr := range sortedByRange(attrs) {
		ctyVal, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("constant %s: %w", attr.Name, diags)
		}
		val, err := fromCty(ctyVal)
		if err != nil {
			return nil, fmt.Errorf("constant %s: %w", attr.Name, err)
		}
		sim.Set(attr.Name, val)
	}
	return sim, nil
}

func sortedByRange(attrs hcl.Attributes) []*hcl.Attribute {
	out := make([]*hcl.Attribute, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, a)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Range.Start.Line < out[i].Range.Start.Line {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

func fromCty(v cty.Value) (Value, error) {
	ty := v.Type()
	if ty.IsTupleType() || ty.IsListType() {
		var arr []float64
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			var f float64
			if err := gocty.FromCtyValue(ev, &f); err != nil {
				return Value{}, err
			}
			arr = append(arr, f)
		}
		return Value{Array: arr, IsArray: true}, nil
	}
	var f float64
	if err := gocty.FromCtyValue(v, &f); err != nil {
		return Value{}, err
	}
	return Value{Scalar: f}, nil
}

// Set records a constant value, keeping first-set order.
func (s *Simulation) Set(name string, v Value) {
	if _, ok := s.values[name]; !ok {
		s.order = append(s.order, name)
	}
	s.values[name] = v
}

// SetScalar records a scalar constant.
func (s *Simulation) SetScalar(name string, v float64) {
	s.Set(name, Value{Scalar: v})
}

// SetArray records an array constant.
func (s *Simulation) SetArray(name string, v []float64) {
	s.Set(name, Value{Array: v, IsArray: true})
}

// Lookup returns a constant's value from the table.
func (s *Simulation) Lookup(name string) (Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

// ConstantNames returns the constant names in table order.
func (s *Simulation) ConstantNames() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// NewSimulation builds an in-memory parameter table, used by producers that
// do not go through a file.
func NewSimulation(name, precision string, iterations int, outputDir string) *Simulation {
	return &Simulation{
		Name:       name,
		Precision:  precision,
		Iterations: iterations,
		OutputDir:  outputDir,
		values:     make(map[string]Value),
	}
}
