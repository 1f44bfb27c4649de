package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/arthursn/gomatcalc/internal/ffi"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "matcalc %s\n", Version)
			fmt.Fprintf(out, "  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "  library: %s\n", ffi.LibraryName())
			return nil
		},
	}
}
