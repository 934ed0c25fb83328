package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/pkpdsim/internal/data"
	"github.com/san-kum/pkpdsim/internal/metrics"
	"github.com/san-kum/pkpdsim/internal/model"
	"github.com/san-kum/pkpdsim/internal/pkmodel"
	"github.com/san-kum/pkpdsim/internal/storage"
	"github.com/san-kum/pkpdsim/internal/watch"
)

type simulationJSON struct {
	Model      string               `json:"model"`
	Parameters []float64            `json:"parameters"`
	Times      []float64            `json:"times"`
	Outputs    map[string][]float64 `json:"outputs"`
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ref := args[0]
	if format != "csv" && format != "json" {
		return fmt.Errorf("unknown format: %s", format)
	}

	if err := simulateOnce(cmd.Context(), ref, os.Stdout); err != nil {
		return err
	}
	if !watchFile {
		return nil
	}
	if strings.HasPrefix(ref, pkmodel.BuiltinPrefix) {
		return fmt.Errorf("--watch needs a model file, %s is builtin", ref)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	w, err := watch.New(ref, func(string) {
		if err := simulateOnce(ctx, ref, os.Stdout); err != nil {
			slog.Error("simulation failed", "model", ref, "error", err)
		}
	})
	if err != nil {
		return err
	}
	slog.Info("watching model file, interrupt to stop", "path", ref)
	return w.Run(ctx)
}

// simulateOnce loads the model afresh, simulates every parameter set and
// writes the outputs.
func simulateOnce(ctx context.Context, ref string, out io.Writer) error {
	m, err := loadModel(ref)
	if err != nil {
		return err
	}
	times, err := parseTimes(timesSpec)
	if err != nil {
		return err
	}
	sets, err := parameterSets(m)
	if err != nil {
		return err
	}

	var results []*mat.Dense
	if len(sets) == 1 {
		res, err := m.SimulateContext(ctx, sets[0], times)
		if err != nil {
			return err
		}
		results = []*mat.Dense{res}
	} else {
		results, err = m.SimulateBatch(ctx, sets, times)
		if err != nil {
			return err
		}
	}

	if save {
		st := storage.New(cfg.RunsDir)
		if err := st.Init(); err != nil {
			return err
		}
		for i, res := range results {
			runID, err := st.Save(storage.RunMetadata{
				Kind:       storage.KindSimulate,
				Model:      m.Name(),
				Source:     ref,
				Integrator: cfg.Integrator,
				Names:      m.Layout().Names(),
				Parameters: sets[i],
				Metrics:    metrics.Exposure(m.OutputNames(), times, res),
			}, toDataset(m, times, res, ""))
			if err != nil {
				return err
			}
			slog.Info("saved run", "id", runID)
		}
	}

	if showMetrics {
		for i, res := range results {
			printExposure(os.Stderr, m, times, res, i+1, len(results))
		}
	}

	if format == "json" {
		docs := make([]simulationJSON, len(results))
		for i, res := range results {
			docs[i] = simulationJSON{
				Model:      m.Name(),
				Parameters: sets[i],
				Times:      times,
				Outputs:    make(map[string][]float64, m.NOutputs()),
			}
			for j, name := range m.OutputNames() {
				docs[i].Outputs[name] = mat.Col(nil, j, res)
			}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}

	return data.Encode(out, wideDataset(m, times, results))
}

func printExposure(w io.Writer, m *model.MultiOutputModel, times []float64, res *mat.Dense, set, sets int) {
	title := "exposure"
	if sets > 1 {
		title = fmt.Sprintf("exposure, set %d", set)
	}
	fmt.Fprintln(w, titleStyle.Render(title))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTPUT\tCMAX\tTMAX\tAUC\tHALF-LIFE")
	vals := metrics.Exposure(m.OutputNames(), times, res)
	for _, name := range m.OutputNames() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name,
			formatMetric(vals, name+"/cmax"), formatMetric(vals, name+"/tmax"),
			formatMetric(vals, name+"/auc"), formatMetric(vals, name+"/half_life"))
	}
	tw.Flush()
}

func formatMetric(vals map[string]float64, name string) string {
	v, ok := vals[name]
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.4g", v)
}

func parameterSets(m *model.MultiOutputModel) ([][]float64, error) {
	if len(paramSets) == 0 {
		return [][]float64{m.DefaultParameters()}, nil
	}
	sets := make([][]float64, len(paramSets))
	for i, spec := range paramSets {
		p, err := parseFloats(spec)
		if err != nil {
			return nil, fmt.Errorf("--params %d: %w", i+1, err)
		}
		if len(p) != m.NParameters() {
			return nil, &model.ParameterCountError{Got: len(p), Want: m.NParameters()}
		}
		sets[i] = p
	}
	return sets, nil
}

func toDataset(m *model.MultiOutputModel, times []float64, res *mat.Dense, suffix string) *data.Dataset {
	names := m.OutputNames()
	for i := range names {
		names[i] += suffix
	}
	rows, _ := res.Dims()
	ds := &data.Dataset{
		TimeName:   "time",
		ValueNames: names,
		Times:      append([]float64(nil), times...),
		Values:     make([][]float64, rows),
	}
	for i := range ds.Values {
		ds.Values[i] = mat.Row(nil, i, res)
	}
	return ds
}

// wideDataset puts several simulations side by side, suffixing column
// names with the set number when there is more than one.
func wideDataset(m *model.MultiOutputModel, times []float64, results []*mat.Dense) *data.Dataset {
	if len(results) == 1 {
		return toDataset(m, times, results[0], "")
	}
	wide := toDataset(m, times, results[0], "#1")
	for k, res := range results[1:] {
		part := toDataset(m, times, res, fmt.Sprintf("#%d", k+2))
		wide.ValueNames = append(wide.ValueNames, part.ValueNames...)
		for i := range wide.Values {
			wide.Values[i] = append(wide.Values[i], part.Values[i]...)
		}
	}
	return wide
}

func runGenerate(cmd *cobra.Command, args []string) error {
	m, err := loadModel(args[0])
	if err != nil {
		return err
	}
	times, err := parseTimes(timesSpec)
	if err != nil {
		return err
	}
	sets, err := parameterSets(m)
	if err != nil {
		return err
	}
	if len(sets) != 1 {
		return fmt.Errorf("generate takes a single --params set, got %d", len(sets))
	}
	if noise < 0 {
		return fmt.Errorf("noise must not be negative, got %g", noise)
	}

	res, err := m.SimulateContext(cmd.Context(), sets[0], times)
	if err != nil {
		return err
	}

	ds := toDataset(m, times, res, "")
	rng := rand.New(rand.NewSource(seed))
	for _, row := range ds.Values {
		for j, v := range row {
			row[j] = v * (1 + noise*rng.NormFloat64())
		}
	}
	slog.Debug("generated observations", "model", m.Name(), "samples", len(times), "noise", noise, "seed", seed)

	if outPath == "" {
		return data.Encode(os.Stdout, ds)
	}
	if err := data.Write(outPath, ds); err != nil {
		return err
	}
	fmt.Printf("wrote %d samples of %d outputs to %s\n", ds.Len(), len(ds.ValueNames), outPath)
	return nil
}
