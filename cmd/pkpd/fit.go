package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/san-kum/pkpdsim/internal/data"
	"github.com/san-kum/pkpdsim/internal/inference"
	"github.com/san-kum/pkpdsim/internal/metrics"
	"github.com/san-kum/pkpdsim/internal/pkmodel"
	"github.com/san-kum/pkpdsim/internal/storage"
)

func runFit(cmd *cobra.Command, args []string) error {
	m, err := loadModel(args[0])
	if err != nil {
		return err
	}

	ds, err := data.Load(dataFile, data.Options{
		ValueColumns: columns,
		IDColumn:     idColumn,
		DoseColumn:   doseColumn,
		Subject:      subject,
	})
	if err != nil {
		return err
	}
	if len(ds.Doses) > 0 {
		m, err = m.WithDoses(recordedDoses(m.Definition().DoseCompartment(), ds.Doses, doseDuration))
		if err != nil {
			return err
		}
		slog.Info("using recorded doses", "subject", ds.Subject, "doses", len(ds.Doses), "compartment", m.Definition().DoseCompartment())
	}

	problem, err := inference.NewProblem(m, ds)
	if err != nil {
		return err
	}
	if err := problem.SetObjectiveFunction(cfg.Fit.Objective); err != nil {
		return err
	}
	if err := problem.SetOptimiser(cfg.Fit.Optimiser); err != nil {
		return err
	}
	problem.SetMaxEvaluations(cfg.Fit.MaxEvaluations)
	if err := problem.SetMaxUnchangedIterations(cfg.Fit.MaxUnchangedIterations, cfg.Fit.Threshold); err != nil {
		return err
	}
	problem.SetSeed(cfg.Fit.Seed)
	problem.SetWorkers(runtime.GOMAXPROCS(0))
	if cfg.Workers > 0 {
		problem.SetWorkers(cfg.Workers)
	}

	x0, err := vectorOrDefault(x0Spec, m.DefaultParameters())
	if err != nil {
		return fmt.Errorf("--x0: %w", err)
	}
	if sigma0 != "" {
		s, err := parseFloats(sigma0)
		if err != nil {
			return fmt.Errorf("--sigma0: %w", err)
		}
		if err := problem.SetInitialParameterUncertainty(s); err != nil {
			return err
		}
	}
	if lowerSpec != "" || upperSpec != "" {
		lower, err := parseFloats(lowerSpec)
		if err != nil {
			return fmt.Errorf("--lower: %w", err)
		}
		upper, err := parseFloats(upperSpec)
		if err != nil {
			return fmt.Errorf("--upper: %w", err)
		}
		if err := problem.SetParameterBoundaries(lower, upper); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	slog.Info("fitting model", "model", m.Name(), "data", dataFile, "optimiser", cfg.Fit.Optimiser, "objective", cfg.Fit.Objective)
	est, err := problem.FindOptimalParameters(ctx, x0)
	if err != nil {
		return err
	}
	fmt.Print(renderFit(m, est))

	if !save {
		return nil
	}

	res, err := m.SimulateContext(ctx, est.Parameters, ds.Times)
	if err != nil {
		return fmt.Errorf("failed to simulate the estimate: %w", err)
	}

	st := storage.New(cfg.RunsDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(storage.RunMetadata{
		Kind:       storage.KindFit,
		Model:      m.Name(),
		Source:     args[0],
		Integrator: cfg.Integrator,
		Names:      m.Layout().Names(),
		Parameters: est.Parameters,
		Metrics:    metrics.Exposure(m.OutputNames(), ds.Times, res),
		Fit: &storage.FitRecord{
			DataFile:    dataFile,
			Subject:     ds.Subject,
			Optimiser:   est.Optimiser,
			Objective:   est.Objective,
			Score:       est.Score,
			Evaluations: est.Evaluations,
			Status:      est.Status,
			Seconds:     est.Elapsed.Seconds(),
		},
	}, toDataset(m, ds.Times, res, ""))
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

// recordedDoses turns a subject's dose column into model doses.
func recordedDoses(compartment string, doses []data.Dose, duration float64) []pkmodel.Dose {
	out := make([]pkmodel.Dose, len(doses))
	for i, d := range doses {
		out[i] = pkmodel.Dose{Compartment: compartment, Amount: d.Amount, Time: d.Time, Duration: duration}
	}
	return out
}
