package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/pkpdsim/internal/data"
	"github.com/san-kum/pkpdsim/internal/storage"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(cfg.RunsDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tMODEL\tTIME\tINTEG\tSCORE")

	for _, run := range runs {
		score := "-"
		if run.Fit != nil {
			score = fmt.Sprintf("%.4g", run.Fit.Score)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID,
			run.Kind,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Integrator,
			score,
		)
	}

	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(cfg.RunsDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render(meta.ID))
	fmt.Printf("%s %s (%s)\n", labelStyle.Render("model "), meta.Model, meta.Source)
	fmt.Printf("%s %s\n", labelStyle.Render("kind  "), meta.Kind)
	fmt.Printf("%s %s\n", labelStyle.Render("time  "), meta.Timestamp.Format("2006-01-02 15:04:05"))
	if meta.Fit != nil {
		fmt.Printf("%s %s / %s on %s, score %.6g after %d evaluations (%s)\n",
			labelStyle.Render("fit   "), meta.Fit.Optimiser, meta.Fit.Objective, meta.Fit.DataFile,
			meta.Fit.Score, meta.Fit.Evaluations, meta.Fit.Status)
	}
	fmt.Println(labelStyle.Render("parameters"))
	for i, name := range meta.Names {
		if i < len(meta.Parameters) {
			fmt.Printf("  %-32s %g\n", name, meta.Parameters[i])
		}
	}

	outputs, err := st.LoadOutputs(meta.ID)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println(labelStyle.Render("outputs"))
	return data.Encode(os.Stdout, outputs)
}
