package job

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/arthursn/gomatcalc/internal/logging"
	"github.com/arthursn/gomatcalc/internal/results"
	"github.com/arthursn/gomatcalc/pkg/matcalc"
)

// Session is the part of *matcalc.API a sweep needs.
type Session interface {
	ExecuteCommand(cmd string) error
	SetTemperatureKelvin(kelvin float64) error
	SetElementFraction(mode matcalc.Mode, element string, value float64) error
	CalculateEquilibrium() error
	GetVariable(name string) (float64, error)
}

var _ Session = (*matcalc.API)(nil)

// Runner drives a Session through a Job.
type Runner struct {
	Session Session
	Logger  *slog.Logger
	// Progress, when set, is called after every point.
	Progress func(done, total int)
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return logging.Discard()
	}
	return r.Logger
}

// Prepare runs the setup commands and enters the fixed composition. The
// engine must already be initialized.
func (r *Runner) Prepare(j *Job) error {
	for _, cmd := range j.Setup {
		if err := r.Session.ExecuteCommand(cmd); err != nil {
			return fmt.Errorf("setup: %w", err)
		}
	}
	for _, c := range j.Composition {
		mode, err := matcalc.ParseMode(c.Mode)
		if err != nil {
			return err
		}
		if err := r.Session.SetElementFraction(mode, c.Element, c.Value); err != nil {
			return fmt.Errorf("composition: %w", err)
		}
	}
	return nil
}

// Run prepares the engine and evaluates every point of j in order.
//
// An engine error at a point aborts the run unless j.ContinueOnError is
// set, in which case the point is recorded as failed. Cancelling ctx stops
// the sweep between points; the call in progress always completes.
func (r *Runner) Run(ctx context.Context, j *Job) (*results.Set, error) {
	if err := r.Prepare(j); err != nil {
		return nil, err
	}

	set := &results.Set{
		Job:       j.Name,
		Variables: append([]string(nil), j.Variables...),
		Phases:    append([]string(nil), j.Phases...),
	}
	var axisMode matcalc.Mode
	if j.Axis != nil {
		set.AxisLabel = j.Axis.Label()
		axisMode, _ = matcalc.ParseMode(j.Axis.Mode)
	}

	points := j.Points()
	log := r.logger()
	for i, p := range points {
		if err := ctx.Err(); err != nil {
			return set, err
		}

		row, err := r.evaluate(j, axisMode, p)
		if err != nil {
			if _, ok := matcalc.IsCommandError(err); !ok || !j.ContinueOnError {
				return set, fmt.Errorf("point %d (T=%g): %w", i, p.Temperature, err)
			}
			log.Debug("equilibrium point failed", "index", i, "temperature", p.Temperature, "error", err)
			row.Err = err.Error()
		}
		if j.Axis == nil {
			row.Axis = math.NaN()
		}
		set.Rows = append(set.Rows, row)

		if r.Progress != nil {
			r.Progress(i+1, len(points))
		}
	}

	log.Info("sweep finished", "job", j.Name, "points", len(points), "failed", set.Failures())
	return set, nil
}

func (r *Runner) evaluate(j *Job, axisMode matcalc.Mode, p Point) (results.Row, error) {
	row := results.Row{
		Temperature: p.Temperature,
		Axis:        p.Axis,
		Values:      nanValues(len(j.Variables)),
	}

	if err := r.Session.SetTemperatureKelvin(p.Temperature); err != nil {
		return row, err
	}
	if j.Axis != nil {
		if err := r.Session.SetElementFraction(axisMode, j.Axis.Element, p.Axis); err != nil {
			return row, err
		}
	}
	if err := r.Session.CalculateEquilibrium(); err != nil {
		return row, err
	}

	for i, name := range j.Variables {
		v, err := r.Session.GetVariable(name)
		if err != nil {
			return row, err
		}
		row.Values[i] = v
	}
	if len(j.Phases) > 0 {
		fractions := make([]float64, len(j.Phases))
		for i, phase := range j.Phases {
			v, err := r.Session.GetVariable(PhaseVariable(phase))
			if err != nil {
				return row, err
			}
			fractions[i] = v
		}
		row.PhaseMask = PhaseMask(fractions, j.Threshold)
	}
	return row, nil
}

func nanValues(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = math.NaN()
	}
	return v
}
