package model_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/pkpdsim/internal/dynamo"
	"github.com/san-kum/pkpdsim/internal/integrators"
	"github.com/san-kum/pkpdsim/internal/model"
	"github.com/san-kum/pkpdsim/internal/pkmodel"
	"github.com/san-kum/pkpdsim/internal/sim"
)

func hours(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

var _ = Describe("SingleOutputModel", func() {
	const file = "builtin:one_compartment_bolus_linear"
	var m *model.SingleOutputModel

	BeforeEach(func() {
		var err error
		m, err = model.NewSingleOutputModel(file)
		Expect(err).NotTo(HaveOccurred())
	})

	It("exposes names in declared order", func() {
		Expect(m.StateNames()).To(Equal([]string{"centralCompartment.drug"}))
		Expect(m.OutputName()).To(Equal("centralCompartment.drugConcentration"))
		Expect(m.ParameterNames()).To(Equal([]string{"centralCompartment.CL", "centralCompartment.V"}))
	})

	It("counts initial states and model parameters as fit parameters", func() {
		Expect(m.NParameters()).To(Equal(3))
		Expect(m.NOutputs()).To(Equal(1))
		Expect(m.NParameters()).To(Equal(m.NParameters()))
		Expect(m.NOutputs()).To(Equal(m.NOutputs()))
	})

	It("matches a direct solve on a freshly loaded definition", func() {
		parameters := []float64{0, 2, 4}
		times := hours(25)

		def, err := pkmodel.Resolve(file)
		Expect(err).NotTo(HaveOccurred())
		sys, err := pkmodel.NewSystem(def, []float64{0}, []float64{2, 4})
		Expect(err).NotTo(HaveOccurred())
		sched, err := def.Schedule()
		Expect(err).NotTo(HaveOccurred())

		cfg := sim.DefaultConfig()
		cfg.LogTimes = times
		cfg.Duration = times[len(times)-1] + 1
		ref, err := sim.New(integrators.NewRK45()).Run(context.Background(), sys, sys.InitialState(), sched, cfg)
		Expect(err).NotTo(HaveOccurred())

		got, err := m.SimulateValues(parameters, times)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(len(times)))

		for i, x := range ref.States {
			c, err := sys.Observe(x, "centralCompartment.drugConcentration")
			Expect(err).NotTo(HaveOccurred())
			Expect(got[i]).To(Equal(c))
		}
	})

	It("agrees with the analytic one-compartment solution", func() {
		times := hours(25)
		got, err := m.SimulateValues([]float64{0, 2, 4}, times)
		Expect(err).NotTo(HaveOccurred())

		for i, tm := range times {
			expected := 10.0 / 4.0 * math.Exp(-2.0/4.0*tm)
			Expect(got[i]).To(BeNumerically("~", expected, 1e-6))
		}
	})

	It("is deterministic", func() {
		times := []float64{0, 0.5, 3, 7.25, 24}
		a, err := m.Simulate([]float64{1, 3, 5}, times)
		Expect(err).NotTo(HaveOccurred())
		b, err := m.Simulate([]float64{1, 3, 5}, times)
		Expect(err).NotTo(HaveOccurred())
		Expect(mat.Equal(a, b)).To(BeTrue())
	})

	It("rejects a parameter vector of the wrong length", func() {
		_, err := m.Simulate([]float64{2, 4}, hours(5))
		var countErr *model.ParameterCountError
		Expect(errors.As(err, &countErr)).To(BeTrue())
		Expect(countErr.Got).To(Equal(2))
		Expect(countErr.Want).To(Equal(3))
	})

	It("rejects an invalid time grid", func() {
		for _, times := range [][]float64{nil, {0, 2, 1}, {-1, 0}, {0, 0}, {0, math.NaN()}} {
			_, err := m.Simulate([]float64{0, 2, 4}, times)
			Expect(err).To(MatchError(model.ErrInvalidTimes))
		}
	})

	It("reports a failed solve as a SimulationError", func() {
		_, err := m.Simulate([]float64{0, 2, -4}, hours(5))
		var simErr *model.SimulationError
		Expect(errors.As(err, &simErr)).To(BeTrue())
	})

	It("needs exactly one output", func() {
		_, err := model.NewSingleOutputModel("builtin:two_compartment")
		var loadErr *model.LoadError
		Expect(errors.As(err, &loadErr)).To(BeTrue())

		single, err := model.NewSingleOutputModel("builtin:two_compartment", model.WithOutputs("peripheral1.C_p1"))
		Expect(err).NotTo(HaveOccurred())
		Expect(single.OutputName()).To(Equal("peripheral1.C_p1"))
	})
})

var _ = Describe("MultiOutputModel", func() {
	It("loads the one-compartment model", func() {
		m, err := model.NewMultiOutputModel("builtin:one_compartment")
		Expect(err).NotTo(HaveOccurred())

		Expect(m.StateNames()).To(Equal([]string{"bolus.y_c"}))
		Expect(m.ParameterNames()).To(Equal([]string{"param.CL", "param.V_c"}))
		Expect(m.NParameters()).To(Equal(3))
		Expect(m.NOutputs()).To(Equal(1))

		layout := m.Layout()
		Expect(layout.Names()).To(Equal([]string{"bolus.y_c", "param.CL", "param.V_c"}))
		Expect(m.DefaultParameters()).To(Equal([]float64{1, 3, 2}))
	})

	It("returns a (len(times), n_outputs) matrix", func() {
		m, err := model.NewMultiOutputModel("builtin:two_compartment")
		Expect(err).NotTo(HaveOccurred())

		times := []float64{0, 1, 2, 6, 12, 13, 24}
		out, err := m.Simulate(m.DefaultParameters(), times)
		Expect(err).NotTo(HaveOccurred())

		r, c := out.Dims()
		Expect(r).To(Equal(len(times)))
		Expect(c).To(Equal(m.NOutputs()))
		Expect(c).To(Equal(2))

		// second bolus at t=12 is in the t=12 row
		Expect(out.At(4, 0)).To(BeNumerically(">", out.At(3, 0)))
	})

	It("uses the initial-state prefix of the parameter vector", func() {
		m, err := model.NewMultiOutputModel("builtin:one_compartment")
		Expect(err).NotTo(HaveOccurred())

		times := hours(25)
		out, err := m.Simulate([]float64{20, 2, 4}, times)
		Expect(err).NotTo(HaveOccurred())

		for i, tm := range times {
			Expect(out.At(i, 0)).To(BeNumerically("~", 20*math.Exp(-0.5*tm), 1e-6))
		}
	})

	It("simulates batches in input order", func() {
		m, err := model.NewMultiOutputModel("builtin:one_compartment", model.WithWorkers(2))
		Expect(err).NotTo(HaveOccurred())

		sets := [][]float64{{1, 1, 1}, {2, 1, 1}, {3, 1, 1}, {4, 1, 1}}
		times := []float64{0, 1}
		outs, err := m.SimulateBatch(context.Background(), sets, times)
		Expect(err).NotTo(HaveOccurred())
		Expect(outs).To(HaveLen(4))
		for i, out := range outs {
			Expect(out.At(0, 0)).To(Equal(float64(i + 1)))
			Expect(out.At(1, 0)).To(BeNumerically("~", float64(i+1)*math.Exp(-1), 1e-7))
		}

		_, err = m.SimulateBatch(context.Background(), [][]float64{{1, 1}}, times)
		var countErr *model.ParameterCountError
		Expect(errors.As(err, &countErr)).To(BeTrue())
	})

	It("honours solver options", func() {
		m, err := model.NewMultiOutputModel("builtin:one_compartment",
			model.WithIntegrator("rk4"), model.WithStep(0.01))
		Expect(err).NotTo(HaveOccurred())

		out, err := m.Simulate([]float64{1, 1, 1}, []float64{0, 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.At(1, 0)).To(BeNumerically("~", math.Exp(-2), 1e-8))

		_, err = model.NewMultiOutputModel("builtin:one_compartment", model.WithIntegrator("leapfrog"))
		Expect(err).To(HaveOccurred())

		tight, err := model.NewMultiOutputModel("builtin:one_compartment",
			model.WithMaxSteps(3), model.WithTolerance(dynamo.Tolerance{Abs: 1e-14, Rel: 1e-14}))
		Expect(err).NotTo(HaveOccurred())
		_, err = tight.Simulate([]float64{1, 1, 1}, hours(25))
		Expect(errors.Is(err, dynamo.ErrMaxSteps)).To(BeTrue())
	})

	It("fails to load a missing file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "missing.yaml")
		_, err := model.NewMultiOutputModel(path)

		var loadErr *model.LoadError
		Expect(errors.As(err, &loadErr)).To(BeTrue())
		Expect(loadErr.Path).To(Equal(path))
		Expect(errors.Is(err, os.ErrNotExist)).To(BeTrue())
	})

	It("fails to load a malformed file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "bad.yaml")
		Expect(os.WriteFile(path, []byte("name: bad\ncompartments: []\noutputs: []\n"), 0644)).To(Succeed())

		_, err := model.NewMultiOutputModel(path)
		var loadErr *model.LoadError
		Expect(errors.As(err, &loadErr)).To(BeTrue())
		Expect(errors.Is(err, pkmodel.ErrInvalidDefinition)).To(BeTrue())
	})

	It("replaces the protocol with recorded doses", func() {
		m, err := model.NewMultiOutputModel("builtin:one_compartment_bolus_linear")
		Expect(err).NotTo(HaveOccurred())

		dosed, err := m.WithDoses([]pkmodel.Dose{
			{Compartment: "centralCompartment", Amount: 20, Time: 0},
			{Compartment: "centralCompartment", Amount: 20, Time: 2},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(dosed.Schedule().Boluses).To(HaveLen(2))

		parameters := []float64{0, 2, 4}
		out, err := dosed.Simulate(parameters, []float64{0, 1, 2, 3})
		Expect(err).NotTo(HaveOccurred())
		atTwo := 5*math.Exp(-1) + 5
		Expect(out.At(0, 0)).To(BeNumerically("~", 5, 1e-6))
		Expect(out.At(1, 0)).To(BeNumerically("~", 5*math.Exp(-0.5), 1e-6))
		Expect(out.At(2, 0)).To(BeNumerically("~", atTwo, 1e-6))
		Expect(out.At(3, 0)).To(BeNumerically("~", atTwo*math.Exp(-0.5), 1e-6))

		original, err := m.Simulate(parameters, []float64{0})
		Expect(err).NotTo(HaveOccurred())
		Expect(original.At(0, 0)).To(BeNumerically("~", 2.5, 1e-12))

		_, err = m.WithDoses([]pkmodel.Dose{{Compartment: "liver", Amount: 1}})
		Expect(err).To(HaveOccurred())
	})

	It("accepts a schedule at construction", func() {
		m, err := model.NewMultiOutputModel("builtin:one_compartment_bolus_linear",
			model.WithSchedule(sim.Schedule{Boluses: []sim.Bolus{{Time: 0, Index: 0, Amount: 4}}}))
		Expect(err).NotTo(HaveOccurred())

		out, err := m.Simulate([]float64{0, 2, 4}, []float64{0})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.At(0, 0)).To(BeNumerically("~", 1, 1e-12))

		_, err = model.NewMultiOutputModel("builtin:one_compartment_bolus_linear",
			model.WithSchedule(sim.Schedule{Boluses: []sim.Bolus{{Time: 0, Index: 3, Amount: 4}}}))
		var loadErr *model.LoadError
		Expect(errors.As(err, &loadErr)).To(BeTrue())
	})
})
