package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/arthursn/gomatcalc/internal/job"
	"github.com/arthursn/gomatcalc/internal/results"
)

func newSweepCmd(a *app) *cobra.Command {
	var (
		format     string
		output     string
		dbPath     string
		noProgress bool
	)

	cmd := &cobra.Command{
		Use:   "sweep JOB",
		Short: "Run a batch of equilibria described by a job file",
		Long: `Run every point of a YAML or TOML job file: the setup commands and fixed
composition once, then one equilibrium per temperature and axis value.

With continue_on_error set in the job, failed equilibria are recorded and
the sweep goes on; otherwise the first failure aborts it.`,
		Example: `  matcalc sweep fe-c.yaml
  matcalc sweep fe-c.yaml --format csv --output fe-c.csv
  matcalc sweep fe-c.toml --db results.sqlite`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			j, err := job.Load(args[0])
			if err != nil {
				return err
			}
			// the session changes the working directory
			if output, err = absPath(output); err != nil {
				return err
			}
			if dbPath, err = absPath(dbPath); err != nil {
				return err
			}

			mc, err := a.openSession(true)
			if err != nil {
				return err
			}
			defer mc.Close()

			bar := newProgressBar(cmd.ErrOrStderr(), !noProgress)
			runner := &job.Runner{Session: mc, Logger: a.logger, Progress: bar.Update}
			set, err := runner.Run(cmd.Context(), j)
			if err != nil {
				if set != nil {
					a.logger.Warn("sweep aborted", "job", j.Name, "completed", len(set.Rows))
				}
				return err
			}

			// results reach the output even when storing fails
			if err := emit(cmd, output, set, format); err != nil {
				return err
			}
			if dbPath != "" {
				return store(cmd, dbPath, set)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&format, "format", "o", formatTable, "Output format: table, csv, json")
	f.StringVar(&output, "output", "", "Write results to this file instead of stdout")
	f.StringVar(&dbPath, "db", "", "Also store the run in this SQLite database")
	f.BoolVar(&noProgress, "no-progress", false, "Do not draw a progress bar")
	return cmd
}

func absPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	return filepath.Abs(path)
}

func store(cmd *cobra.Command, path string, set *results.Set) error {
	st, err := results.OpenStore(path)
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := st.Save(cmd.Context(), set)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "stored run %d in %s\n", id, path)
	return nil
}

func emit(cmd *cobra.Command, path string, set *results.Set, format string) error {
	var w io.Writer = cmd.OutOrStdout()
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeSet(w, set, format)
}
