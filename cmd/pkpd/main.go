package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/san-kum/pkpdsim/internal/config"
	"github.com/san-kum/pkpdsim/internal/logger"
	"github.com/san-kum/pkpdsim/internal/model"
	"github.com/san-kum/pkpdsim/internal/pkmodel"
)

var (
	dataDir    string
	configFile string
	preset     string
	logLevel   string
	logFile    string
	integrator string
	dt         float64

	paramSets   []string
	timesSpec   string
	format      string
	save        bool
	watchFile   bool
	showMetrics bool

	noise   float64
	seed    int64
	outPath string

	dataFile  string
	columns   []string
	x0Spec    string
	sigma0    string
	lowerSpec string
	upperSpec string
	optimiser string
	objective string
	maxEvals  int

	idColumn     string
	doseColumn   string
	subject      string
	doseDuration float64
	maxUnchanged int
	threshold    float64

	sweepParam  string
	sweepRange  string
	variability float64
	vary        []string
	trials      int
)

// cfg is the effective configuration after presets, the config file and
// flags have been applied.
var cfg = config.DefaultConfig()

var logCloser io.Closer

func main() {
	rootCmd := &cobra.Command{
		Use:               "pkpd",
		Short:             "pharmacokinetic model simulation and calibration",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDir, "data-dir", "", "run store directory (default from config)")
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "solver preset ("+fmt.Sprint(config.ListPresets())+")")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&logFile, "log-file", "", "also write JSON logs to this rotated file")
	pf.StringVar(&integrator, "integrator", "", "integrator: rk45, rk4, euler")
	pf.Float64Var(&dt, "dt", 0, "fixed step for rk4 and euler, first trial step for rk45 (default from config)")

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list builtin models",
		Args:  cobra.NoArgs,
		RunE:  listModels,
	}

	infoCmd := &cobra.Command{
		Use:   "info [model]",
		Short: "show states, parameters, outputs and the fit vector layout",
		Args:  cobra.ExactArgs(1),
		RunE:  showInfo,
	}

	simulateCmd := &cobra.Command{
		Use:   "simulate [model]",
		Short: "simulate model outputs at the given times",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulate,
	}
	simulateCmd.Flags().StringArrayVar(&paramSets, "params", nil, "fit vector, comma separated; repeat for several sets (default: model values)")
	simulateCmd.Flags().StringVar(&timesSpec, "times", "0:24:1", "sample times as start:stop:step or a comma separated list")
	simulateCmd.Flags().StringVar(&format, "format", "csv", "output format: csv or json")
	simulateCmd.Flags().BoolVar(&save, "save", false, "store the run")
	simulateCmd.Flags().BoolVar(&watchFile, "watch", false, "re-simulate whenever the model file changes")
	simulateCmd.Flags().BoolVar(&showMetrics, "metrics", false, "print cmax, tmax, auc and half-life per output to stderr")

	generateCmd := &cobra.Command{
		Use:   "generate [model]",
		Short: "write synthetic observations with gaussian noise",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerate,
	}
	generateCmd.Flags().StringArrayVar(&paramSets, "params", nil, "fit vector, comma separated (default: model values)")
	generateCmd.Flags().StringVar(&timesSpec, "times", "0:24:1", "sample times as start:stop:step or a comma separated list")
	generateCmd.Flags().Float64Var(&noise, "noise", 0, "noise standard deviation relative to each value")
	generateCmd.Flags().Int64Var(&seed, "seed", 0, "random seed")
	generateCmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (default stdout)")

	fitCmd := &cobra.Command{
		Use:   "fit [model]",
		Short: "calibrate the fit vector against observed data",
		Args:  cobra.ExactArgs(1),
		RunE:  runFit,
	}
	fitCmd.Flags().StringVar(&dataFile, "data", "", "observed data file (csv)")
	fitCmd.Flags().StringSliceVar(&columns, "columns", nil, "value columns to fit, in output order (default: all)")
	fitCmd.Flags().StringVar(&x0Spec, "x0", "", "starting fit vector (default: model values)")
	fitCmd.Flags().StringVar(&sigma0, "sigma0", "", "initial parameter uncertainty per entry")
	fitCmd.Flags().StringVar(&lowerSpec, "lower", "", "lower boundaries")
	fitCmd.Flags().StringVar(&upperSpec, "upper", "", "upper boundaries")
	fitCmd.Flags().StringVar(&optimiser, "optimiser", "", "optimiser (default from config)")
	fitCmd.Flags().StringVar(&objective, "objective", "", "sum-of-squares, mean-squared or root-mean-squared")
	fitCmd.Flags().IntVar(&maxEvals, "max-evals", 0, "evaluation budget (default from config)")
	fitCmd.Flags().IntVar(&maxUnchanged, "max-unchanged", 0, "stop after this many iterations without improvement (default from config)")
	fitCmd.Flags().Float64Var(&threshold, "threshold", 0, "smallest improvement that counts (default from config)")
	fitCmd.Flags().StringVar(&idColumn, "id-column", "", "patient ID column; rows are grouped by subject")
	fitCmd.Flags().StringVar(&subject, "subject", "", "subject to fit when the data holds several")
	fitCmd.Flags().StringVar(&doseColumn, "dose-column", "", "dose amount column; recorded doses replace the model protocol")
	fitCmd.Flags().Float64Var(&doseDuration, "dose-duration", 0, "infusion time of recorded doses (0 gives boluses)")
	fitCmd.Flags().Int64Var(&seed, "seed", 0, "random seed for stochastic optimisers")
	fitCmd.Flags().BoolVar(&save, "save", false, "store the run")
	fitCmd.MarkFlagRequired("data")

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "vary one fit parameter and report exposure metrics",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringVar(&sweepParam, "param", "", "fit vector entry to vary, e.g. central.CL")
	sweepCmd.Flags().StringVar(&sweepRange, "range", "", "min:max:steps")
	sweepCmd.Flags().StringVar(&x0Spec, "base", "", "fit vector for the other entries (default: model values)")
	sweepCmd.Flags().StringVar(&timesSpec, "times", "0:24:1", "sample times as start:stop:step or a comma separated list")
	sweepCmd.MarkFlagRequired("param")
	sweepCmd.MarkFlagRequired("range")

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [model]",
		Short: "simulate log-normal parameter variability and summarise exposure",
		Args:  cobra.ExactArgs(1),
		RunE:  runMonteCarlo,
	}
	monteCarloCmd.Flags().Float64Var(&variability, "cv", 0.3, "log-normal standard deviation of each varied entry")
	monteCarloCmd.Flags().StringSliceVar(&vary, "vary", nil, "fit vector entries to vary (default: all model parameters)")
	monteCarloCmd.Flags().IntVar(&trials, "trials", 200, "number of trials")
	monteCarloCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 picks one)")
	monteCarloCmd.Flags().StringVar(&x0Spec, "base", "", "typical fit vector (default: model values)")
	monteCarloCmd.Flags().StringVar(&timesSpec, "times", "0:24:1", "sample times as start:stop:step or a comma separated list")

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "inspect stored runs",
	}
	runsCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "list runs",
			Args:  cobra.NoArgs,
			RunE:  listRuns,
		},
		&cobra.Command{
			Use:   "show [run_id]",
			Short: "show run metadata and outputs",
			Args:  cobra.ExactArgs(1),
			RunE:  showRun,
		},
	)

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list solver presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				p := config.Presets[name]
				fmt.Printf("  %-9s %s abs=%g rel=%g dt=%g fit=%s/%d\n",
					name, p.Integrator, p.Tolerance.Abs, p.Tolerance.Rel, p.Dt, p.Fit.Optimiser, p.Fit.MaxEvaluations)
			}
			return nil
		},
	}

	rootCmd.AddCommand(modelsCmd, infoCmd, simulateCmd, generateCmd, fitCmd, sweepCmd, monteCarloCmd, runsCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup resolves the configuration (defaults, then preset, then config
// file, then flags) and installs the default logger.
func setup(cmd *cobra.Command, args []string) error {
	if preset != "" {
		p := config.GetPreset(preset)
		if p == nil {
			return fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.RunsDir = dataDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = logFile
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if f := flags.Lookup("optimiser"); f != nil && f.Changed {
		cfg.Fit.Optimiser = optimiser
	}
	if f := flags.Lookup("objective"); f != nil && f.Changed {
		cfg.Fit.Objective = objective
	}
	if f := flags.Lookup("max-evals"); f != nil && f.Changed {
		cfg.Fit.MaxEvaluations = maxEvals
	}
	if f := flags.Lookup("max-unchanged"); f != nil && f.Changed {
		cfg.Fit.MaxUnchangedIterations = maxUnchanged
	}
	if f := flags.Lookup("threshold"); f != nil && f.Changed {
		cfg.Fit.Threshold = threshold
	}
	if cmd.Name() == "fit" {
		if f := flags.Lookup("seed"); f != nil && f.Changed {
			cfg.Fit.Seed = seed
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log, closer := logger.New(level,
		logger.WithLogToFile(cfg.Log.File != ""),
		logger.WithLogFile(cfg.Log.File),
	)
	slog.SetDefault(log)
	logCloser = closer
	return nil
}

func loadModel(ref string) (*model.MultiOutputModel, error) {
	return model.NewMultiOutputModel(ref, cfg.ModelOptions()...)
}

func listModels(cmd *cobra.Command, args []string) error {
	for _, name := range pkmodel.BuiltinNames() {
		def, err := pkmodel.Builtin(name)
		if err != nil {
			return err
		}
		fmt.Printf("  %s%-30s %s\n", pkmodel.BuiltinPrefix, name, dimStyle.Render(def.Description))
	}
	return nil
}

func showInfo(cmd *cobra.Command, args []string) error {
	m, err := loadModel(args[0])
	if err != nil {
		return err
	}
	fmt.Print(renderInfo(m))
	return nil
}
