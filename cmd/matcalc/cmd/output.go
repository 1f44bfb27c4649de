package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/mattn/go-isatty"

	"github.com/arthursn/gomatcalc/internal/results"
)

// Output formats.
const (
	formatTable = "table"
	formatCSV   = "csv"
	formatJSON  = "json"
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func checkFormat(format string) error {
	switch format {
	case formatTable, formatCSV, formatJSON:
		return nil
	default:
		return fmt.Errorf("unknown format %q (want table, csv or json)", format)
	}
}

// writeSet renders set to w. Tables are styled only on a terminal.
func writeSet(w io.Writer, set *results.Set, format string) error {
	switch format {
	case formatCSV:
		return results.WriteCSV(w, set)
	case formatJSON:
		return results.WriteJSON(w, set)
	default:
		_, err := fmt.Fprintln(w, results.RenderTable(set, isTerminal(w)))
		return err
	}
}

// progressBar draws sweep progress on a terminal and stays silent otherwise.
type progressBar struct {
	w       io.Writer
	bar     progress.Model
	enabled bool
}

func newProgressBar(w io.Writer, enabled bool) *progressBar {
	return &progressBar{
		w:       w,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		enabled: enabled && isTerminal(w),
	}
}

func (p *progressBar) Update(done, total int) {
	if !p.enabled || total == 0 {
		return
	}
	fmt.Fprintf(p.w, "\r%s %d/%d", p.bar.ViewAs(float64(done)/float64(total)), done, total)
	if done == total {
		fmt.Fprintln(p.w)
	}
}
