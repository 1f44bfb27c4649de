package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newExecCmd(a *app) *cobra.Command {
	var (
		script    string
		newColine bool
		noInit    bool
	)

	cmd := &cobra.Command{
		Use:   "exec [command...]",
		Short: "Forward commands to the engine's command interpreter",
		Long: `Initialize the engine and forward each command to its interpreter in
order. Commands from --script run first, then those given as arguments.
Script lines that are blank or start with '#' are skipped. Execution stops
at the first command the engine rejects.

With --no-init the engine is used as loaded, for scripts that initialize
it themselves.`,
		Example: `  matcalc exec "use-module core" "open-thermodyn-database mc_fe.tdb"
  matcalc exec --script setup.mcs
  cat setup.mcs | matcalc exec --script -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cmds []string
			if script != "" {
				lines, err := loadScript(cmd, script)
				if err != nil {
					return err
				}
				cmds = append(cmds, lines...)
			}
			cmds = append(cmds, args...)
			if len(cmds) == 0 {
				return errors.New("no commands given")
			}

			mc, err := a.openSession(!noInit)
			if err != nil {
				return err
			}
			defer mc.Close()

			for i, c := range cmds {
				if newColine {
					err = mc.ExecuteCommandNewColine(c)
				} else {
					err = mc.ExecuteCommand(c)
				}
				if err != nil {
					return fmt.Errorf("command %d: %w", i+1, err)
				}
				a.logger.Info("executed", "command", c)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d commands executed\n", len(cmds))
			return nil
		},
	}

	cmd.Flags().StringVarP(&script, "script", "f", "", "Read commands from a file, '-' for stdin")
	cmd.Flags().BoolVar(&noInit, "no-init", false, "Skip engine initialization")
	cmd.Flags().BoolVar(&newColine, "new-coline", false, "Submit through the new-command-line entry point")
	return cmd
}

func loadScript(cmd *cobra.Command, path string) ([]string, error) {
	if path == "-" {
		return readScript(cmd.InOrStdin())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return readScript(f)
}

// readScript returns the non-blank, non-comment lines of r, trimmed.
func readScript(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return lines, nil
}
