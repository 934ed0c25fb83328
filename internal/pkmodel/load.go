package pkmodel

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema/model.schema.json
var schemaJSON string

const schemaURL = "model.schema.json"

// ErrInvalidDefinition is wrapped by every error caused by the content of a
// model file rather than by reading it.
var ErrInvalidDefinition = errors.New("pkmodel: invalid model definition")

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("pkmodel: failed to add schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Load reads, validates and decodes a YAML model file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pkmodel: failed to read model: %w", err)
	}
	return Parse(data, path)
}

// Parse validates data against the model schema and the cross-reference
// rules, then decodes it. source names the origin in error messages.
func Parse(data []byte, source string) (*Definition, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: invalid YAML: %v", ErrInvalidDefinition, source, err)
	}

	doc, err := toJSONValue(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, source, err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s: schema validation failed: %v", ErrInvalidDefinition, source, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%w: %s: failed to decode: %v", ErrInvalidDefinition, source, err)
	}
	def.source = source

	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, source, err)
	}
	return &def, nil
}

// toJSONValue round-trips a decoded YAML document through encoding/json so
// the schema validator only sees JSON value types.
func toJSONValue(raw any) (any, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("document is not representable as JSON: %v", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks the references between parameters, compartments, flows,
// outputs and doses.
func (d *Definition) Validate() error {
	vars := make(map[string]string)
	claim := func(name, what string) error {
		if prev, ok := vars[name]; ok {
			return fmt.Errorf("%s %q clashes with %s of the same name", what, name, prev)
		}
		vars[name] = what
		return nil
	}

	for _, p := range d.Parameters {
		if err := claim(p.Name, "parameter"); err != nil {
			return err
		}
	}

	seen := make(map[string]bool)
	for _, c := range d.Compartments {
		if seen[c.Name] {
			return fmt.Errorf("duplicate compartment %q", c.Name)
		}
		seen[c.Name] = true

		if err := claim(c.StateName(), "state"); err != nil {
			return err
		}
		if c.Volume != "" && d.parameterIndex(c.Volume) < 0 {
			return fmt.Errorf("compartment %q: volume parameter %q is not declared", c.Name, c.Volume)
		}
		if c.Concentration != "" {
			if c.Volume == "" {
				return fmt.Errorf("compartment %q: concentration needs a volume", c.Name)
			}
			if err := claim(c.ConcentrationName(), "concentration"); err != nil {
				return err
			}
		}
	}

	for i, f := range d.Flows {
		if err := d.validateFlow(f); err != nil {
			return fmt.Errorf("flow %d (%s from %s): %v", i, f.Kind, f.From, err)
		}
	}

	outSeen := make(map[string]bool)
	for _, o := range d.Outputs {
		what, ok := vars[o]
		if !ok || what == "parameter" {
			return fmt.Errorf("output %q is not a state or concentration variable", o)
		}
		if outSeen[o] {
			return fmt.Errorf("output %q listed twice", o)
		}
		outSeen[o] = true
	}

	for i, dose := range d.Protocol {
		if d.compartmentIndex(dose.Compartment) < 0 {
			return fmt.Errorf("dose %d targets unknown compartment %q", i, dose.Compartment)
		}
		if dose.Count > 1 && dose.Period <= 0 {
			return fmt.Errorf("dose %d repeats %d times but has no period", i, dose.Count)
		}
		if dose.Period > 0 && dose.Duration > dose.Period {
			return fmt.Errorf("dose %d: infusion duration %g exceeds period %g", i, dose.Duration, dose.Period)
		}
	}

	return nil
}

func (d *Definition) validateFlow(f Flow) error {
	from := d.compartmentIndex(f.From)
	if from < 0 {
		return fmt.Errorf("unknown compartment %q", f.From)
	}
	if f.To != "" {
		to := d.compartmentIndex(f.To)
		if to < 0 {
			return fmt.Errorf("unknown target compartment %q", f.To)
		}
		if to == from {
			return fmt.Errorf("flow into its own compartment")
		}
	}

	need := func(field, name string) error {
		if name == "" {
			return fmt.Errorf("missing %s parameter", field)
		}
		if d.parameterIndex(name) < 0 {
			return fmt.Errorf("%s parameter %q is not declared", field, name)
		}
		return nil
	}
	needVolume := func(compartment string) error {
		if d.Compartments[d.compartmentIndex(compartment)].Volume == "" {
			return fmt.Errorf("compartment %q needs a volume", compartment)
		}
		return nil
	}

	switch f.Kind {
	case FlowClearance:
		if err := need("clearance", f.Clearance); err != nil {
			return err
		}
		return needVolume(f.From)
	case FlowFirstOrder:
		return need("rate", f.Rate)
	case FlowMichaelisMenten:
		if err := need("vmax", f.Vmax); err != nil {
			return err
		}
		if err := need("km", f.Km); err != nil {
			return err
		}
		return needVolume(f.From)
	case FlowExchange:
		if f.To == "" {
			return fmt.Errorf("exchange needs a target compartment")
		}
		if err := need("clearance", f.Clearance); err != nil {
			return err
		}
		if err := needVolume(f.From); err != nil {
			return err
		}
		return needVolume(f.To)
	default:
		return fmt.Errorf("unknown kind %q", f.Kind)
	}
}
