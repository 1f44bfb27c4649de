// Package results holds equilibrium sweep results and writes them as a
// terminal table, CSV, JSON or into SQLite.
package results

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Set is the outcome of one sweep.
type Set struct {
	// Job names the job file the set came from.
	Job string
	// AxisLabel describes the composition axis, e.g. "X(C)". Empty when
	// the sweep only varies temperature.
	AxisLabel string
	// Variables are the engine variables read at each point, in column
	// order.
	Variables []string
	// Phases, when set, adds a phase_mask column: bit i is set when
	// phase i is present.
	Phases []string
	Rows   []Row
}

// Row is one equilibrium point.
type Row struct {
	Temperature float64
	Axis        float64
	// Values aligns with Set.Variables. NaN marks a value the engine did
	// not provide or a failed point.
	Values    []float64
	PhaseMask uint64
	// Err is the engine error message when the point failed.
	Err string
}

// Failed reports whether the equilibrium at this point failed.
func (r Row) Failed() bool { return r.Err != "" }

// Header returns the column names.
func (s *Set) Header() []string {
	h := []string{"T"}
	if s.AxisLabel != "" {
		h = append(h, s.AxisLabel)
	}
	h = append(h, s.Variables...)
	if len(s.Phases) > 0 {
		h = append(h, "phase_mask")
	}
	return append(h, "error")
}

// Record returns row i formatted for text output.
func (s *Set) Record(i int) []string {
	r := s.Rows[i]
	rec := []string{FormatValue(r.Temperature)}
	if s.AxisLabel != "" {
		rec = append(rec, FormatValue(r.Axis))
	}
	for _, v := range r.Values {
		rec = append(rec, FormatValue(v))
	}
	if len(s.Phases) > 0 {
		if r.Failed() {
			rec = append(rec, "")
		} else {
			rec = append(rec, strconv.FormatUint(r.PhaseMask, 10))
		}
	}
	return append(rec, r.Err)
}

// Failures counts failed rows.
func (s *Set) Failures() int {
	n := 0
	for _, r := range s.Rows {
		if r.Failed() {
			n++
		}
	}
	return n
}

// FormatValue renders v in %g; NaN renders empty.
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCSV writes the header and every row.
func WriteCSV(w io.Writer, s *Set) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Header()); err != nil {
		return err
	}
	for i := range s.Rows {
		if err := cw.Write(s.Record(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonRow struct {
	Temperature float64             `json:"temperature"`
	Axis        *float64            `json:"axis,omitempty"`
	Values      map[string]*float64 `json:"values"`
	PhaseMask   *uint64             `json:"phase_mask,omitempty"`
	Error       string              `json:"error,omitempty"`
}

type jsonSet struct {
	Job       string    `json:"job,omitempty"`
	AxisLabel string    `json:"axis_label,omitempty"`
	Variables []string  `json:"variables"`
	Phases    []string  `json:"phases,omitempty"`
	Rows      []jsonRow `json:"rows"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// WriteJSON writes the set as one indented JSON document. Values JSON
// cannot represent (NaN, Inf) are written as null.
func WriteJSON(w io.Writer, s *Set) error {
	out := jsonSet{
		Job:       s.Job,
		AxisLabel: s.AxisLabel,
		Variables: s.Variables,
		Phases:    s.Phases,
		Rows:      make([]jsonRow, 0, len(s.Rows)),
	}
	for _, r := range s.Rows {
		jr := jsonRow{
			Temperature: r.Temperature,
			Values:      make(map[string]*float64, len(s.Variables)),
			Error:       r.Err,
		}
		if s.AxisLabel != "" {
			jr.Axis = finite(r.Axis)
		}
		for i, name := range s.Variables {
			if i < len(r.Values) {
				jr.Values[name] = finite(r.Values[i])
			}
		}
		if len(s.Phases) > 0 && !r.Failed() {
			mask := r.PhaseMask
			jr.PhaseMask = &mask
		}
		out.Rows = append(out.Rows, jr)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}
