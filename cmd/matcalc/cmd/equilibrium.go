package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arthursn/gomatcalc/internal/job"
	"github.com/arthursn/gomatcalc/pkg/matcalc"
)

func newEquilibriumCmd(a *app) *cobra.Command {
	var (
		temperature float64
		mole        []string
		weight      []string
		site        []string
		setup       []string
		variables   []string
		phases      []string
		format      string
	)

	cmd := &cobra.Command{
		Use:   "equilibrium",
		Short: "Calculate one equilibrium and print selected variables",
		Long: `Initialize the engine, run the --setup commands, enter the composition,
set the temperature, calculate the equilibrium and read back each --var.

Each --phase reads F$<phase> and reports whether the phase is present.`,
		Example: `  matcalc equilibrium --setup "use-module core" \
    --setup "open-thermodyn-database mc_fe.tdb" \
    --setup "select-element C" --setup "select-phase FCC_A1 BCC_A2" \
    --setup "read-thermodyn-database" \
    --mole C=0.01 --temperature 1000 --var MU$C --phase FCC_A1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			if temperature <= 0 {
				return fmt.Errorf("temperature must be positive kelvin, got %g", temperature)
			}
			if len(variables) == 0 && len(phases) == 0 {
				return errors.New("nothing to read: give at least one --var or --phase")
			}

			j := &job.Job{
				Name:        "equilibrium",
				Setup:       setup,
				Temperature: job.Range{Start: temperature, Num: 1},
				Variables:   variables,
				Phases:      phases,
				Threshold:   job.DefaultThreshold,
			}
			for _, group := range []struct {
				mode matcalc.Mode
				args []string
			}{
				{matcalc.MoleFraction, mole},
				{matcalc.WeightFraction, weight},
				{matcalc.SiteFraction, site},
			} {
				for _, arg := range group.args {
					c, err := parseFraction(group.mode, arg)
					if err != nil {
						return err
					}
					j.Composition = append(j.Composition, c)
				}
			}

			if err := j.Validate(); err != nil {
				return err
			}

			mc, err := a.openSession(true)
			if err != nil {
				return err
			}
			defer mc.Close()

			set, err := (&job.Runner{Session: mc, Logger: a.logger}).Run(cmd.Context(), j)
			if err != nil {
				return err
			}
			return writeSet(cmd.OutOrStdout(), set, format)
		},
	}

	f := cmd.Flags()
	f.Float64VarP(&temperature, "temperature", "T", 0, "Temperature in kelvin")
	f.StringArrayVar(&mole, "mole", nil, "Mole fraction as El=value (repeatable)")
	f.StringArrayVar(&weight, "weight", nil, "Weight fraction as El=value (repeatable)")
	f.StringArrayVar(&site, "site", nil, "Site fraction as El=value (repeatable)")
	f.StringArrayVar(&setup, "setup", nil, "Command to run before the composition is entered (repeatable)")
	f.StringArrayVar(&variables, "var", nil, "Engine variable to read, e.g. MU$C (repeatable)")
	f.StringArrayVar(&phases, "phase", nil, "Phase whose presence to report (repeatable)")
	f.StringVarP(&format, "format", "o", formatTable, "Output format: table, csv, json")
	_ = cmd.MarkFlagRequired("temperature")
	return cmd
}

// parseFraction parses "El=value".
func parseFraction(mode matcalc.Mode, arg string) (job.Composition, error) {
	el, val, ok := strings.Cut(arg, "=")
	el = strings.TrimSpace(el)
	if !ok || el == "" {
		return job.Composition{}, fmt.Errorf("invalid fraction %q: want El=value", arg)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return job.Composition{}, fmt.Errorf("invalid fraction %q: %w", arg, err)
	}
	return job.Composition{Element: el, Mode: string(mode), Value: v}, nil
}
