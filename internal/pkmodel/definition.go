package pkmodel

import (
	"fmt"

	"github.com/san-kum/pkpdsim/internal/sim"
)

// Flow kinds.
const (
	FlowClearance       = "clearance"
	FlowFirstOrder      = "first-order"
	FlowMichaelisMenten = "michaelis-menten"
	FlowExchange        = "exchange"
)

// Definition is a compartmental model as read from a model file. It is not
// modified after Load; bind values to it with NewSystem.
type Definition struct {
	Name         string        `yaml:"name" json:"name"`
	Description  string        `yaml:"description,omitempty" json:"description,omitempty"`
	Parameters   []Parameter   `yaml:"parameters" json:"parameters"`
	Compartments []Compartment `yaml:"compartments" json:"compartments"`
	Flows        []Flow        `yaml:"flows,omitempty" json:"flows,omitempty"`
	Outputs      []string      `yaml:"outputs" json:"outputs"`
	Protocol     []Dose        `yaml:"protocol,omitempty" json:"protocol,omitempty"`

	source string
}

type Parameter struct {
	Name  string  `yaml:"name" json:"name"`
	Value float64 `yaml:"value" json:"value"`
	Unit  string  `yaml:"unit,omitempty" json:"unit,omitempty"`
}

// Compartment is one pool of drug. Its state variable is Name.Amount; when
// Volume names a parameter, Name.Concentration is Amount/Volume.
type Compartment struct {
	Name          string  `yaml:"name" json:"name"`
	Amount        string  `yaml:"amount" json:"amount"`
	Concentration string  `yaml:"concentration,omitempty" json:"concentration,omitempty"`
	Volume        string  `yaml:"volume,omitempty" json:"volume,omitempty"`
	Initial       float64 `yaml:"initial" json:"initial"`
}

func (c Compartment) StateName() string {
	return c.Name + "." + c.Amount
}

func (c Compartment) ConcentrationName() string {
	if c.Concentration == "" {
		return ""
	}
	return c.Name + "." + c.Concentration
}

// Flow moves drug out of From, into To when set (otherwise it is eliminated).
// The parameter fields name the parameters the Kind needs.
type Flow struct {
	From      string `yaml:"from" json:"from"`
	To        string `yaml:"to,omitempty" json:"to,omitempty"`
	Kind      string `yaml:"kind" json:"kind"`
	Clearance string `yaml:"clearance,omitempty" json:"clearance,omitempty"`
	Rate      string `yaml:"rate,omitempty" json:"rate,omitempty"`
	Vmax      string `yaml:"vmax,omitempty" json:"vmax,omitempty"`
	Km        string `yaml:"km,omitempty" json:"km,omitempty"`
}

// Dose is a bolus (Duration 0) or zero-order infusion into a compartment,
// optionally repeated Count times every Period.
type Dose struct {
	Compartment string  `yaml:"compartment" json:"compartment"`
	Amount      float64 `yaml:"amount" json:"amount"`
	Time        float64 `yaml:"time" json:"time"`
	Duration    float64 `yaml:"duration,omitempty" json:"duration,omitempty"`
	Period      float64 `yaml:"period,omitempty" json:"period,omitempty"`
	Count       int     `yaml:"count,omitempty" json:"count,omitempty"`
}

// Source is the path or builtin name the definition was loaded from.
func (d *Definition) Source() string {
	return d.source
}

// StateNames returns the qualified state variable names in declared order.
func (d *Definition) StateNames() []string {
	names := make([]string, len(d.Compartments))
	for i, c := range d.Compartments {
		names[i] = c.StateName()
	}
	return names
}

func (d *Definition) ParameterNames() []string {
	names := make([]string, len(d.Parameters))
	for i, p := range d.Parameters {
		names[i] = p.Name
	}
	return names
}

func (d *Definition) InitialState() []float64 {
	x := make([]float64, len(d.Compartments))
	for i, c := range d.Compartments {
		x[i] = c.Initial
	}
	return x
}

func (d *Definition) ParameterValues() []float64 {
	v := make([]float64, len(d.Parameters))
	for i, p := range d.Parameters {
		v[i] = p.Value
	}
	return v
}

// VariableNames lists every observable variable: states, then concentrations.
func (d *Definition) VariableNames() []string {
	names := d.StateNames()
	for _, c := range d.Compartments {
		if n := c.ConcentrationName(); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func (d *Definition) compartmentIndex(name string) int {
	for i, c := range d.Compartments {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (d *Definition) parameterIndex(name string) int {
	for i, p := range d.Parameters {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Schedule expands the dosing protocol into bolus and infusion events.
func (d *Definition) Schedule() (sim.Schedule, error) {
	return d.ScheduleFor(d.Protocol)
}

// ScheduleFor expands doses other than the file's protocol, such as one
// subject's dose record, against this model's compartments.
func (d *Definition) ScheduleFor(doses []Dose) (sim.Schedule, error) {
	var sched sim.Schedule
	for _, dose := range doses {
		idx := d.compartmentIndex(dose.Compartment)
		if idx < 0 {
			return sim.Schedule{}, fmt.Errorf("dose targets unknown compartment %q", dose.Compartment)
		}
		if dose.Duration < 0 || dose.Period < 0 {
			return sim.Schedule{}, fmt.Errorf("dose into %s has a negative duration or period", dose.Compartment)
		}
		count := dose.Count
		if count < 1 {
			count = 1
		}
		for k := 0; k < count; k++ {
			start := dose.Time + float64(k)*dose.Period
			if dose.Duration > 0 {
				sched.Infusions = append(sched.Infusions, sim.Infusion{
					Start: start,
					End:   start + dose.Duration,
					Index: idx,
					Rate:  dose.Amount / dose.Duration,
				})
				continue
			}
			sched.Boluses = append(sched.Boluses, sim.Bolus{Time: start, Index: idx, Amount: dose.Amount})
		}
	}
	if err := sched.Validate(len(d.Compartments)); err != nil {
		return sim.Schedule{}, err
	}
	return sched, nil
}

// DoseCompartment is where externally recorded doses go: the compartment
// of the first protocol dose, or the first compartment.
func (d *Definition) DoseCompartment() string {
	if len(d.Protocol) > 0 {
		return d.Protocol[0].Compartment
	}
	return d.Compartments[0].Name
}
