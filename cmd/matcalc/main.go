// Package main provides the entry point for the matcalc CLI.
package main

import (
	"os"

	"github.com/arthursn/gomatcalc/cmd/matcalc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
