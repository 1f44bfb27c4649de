// Package job describes batch equilibrium sweeps and runs them against a
// matcalc session.
package job

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"github.com/arthursn/gomatcalc/pkg/matcalc"
)

// Scales accepted by Range.
const (
	ScaleLinear = "linear"
	ScaleLog    = "log"
)

// DefaultThreshold is the phase fraction above which a phase counts as
// present.
const DefaultThreshold = 1e-9

// Composition is one fixed element fraction entered before the sweep.
type Composition struct {
	Element string  `yaml:"element" toml:"element"`
	Mode    string  `yaml:"mode" toml:"mode"`
	Value   float64 `yaml:"value" toml:"value"`
}

// Range is an evenly spaced sequence of Num values from Start to Stop,
// inclusive, on a linear or logarithmic scale.
type Range struct {
	Start float64 `yaml:"start" toml:"start"`
	Stop  float64 `yaml:"stop" toml:"stop"`
	Num   int     `yaml:"num" toml:"num"`
	Scale string  `yaml:"scale" toml:"scale"`
}

// Axis is a composition range for one element.
type Axis struct {
	Element string  `yaml:"element" toml:"element"`
	Mode    string  `yaml:"mode" toml:"mode"`
	Start   float64 `yaml:"start" toml:"start"`
	Stop    float64 `yaml:"stop" toml:"stop"`
	Num     int     `yaml:"num" toml:"num"`
	Scale   string  `yaml:"scale" toml:"scale"`
}

// Range returns the numeric part of the axis.
func (a Axis) Range() Range {
	return Range{Start: a.Start, Stop: a.Stop, Num: a.Num, Scale: a.Scale}
}

// Label returns the column label, e.g. "X(C)".
func (a Axis) Label() string {
	mode, err := matcalc.ParseMode(a.Mode)
	if err != nil {
		return a.Element
	}
	return fmt.Sprintf("%s(%s)", string(mode), a.Element)
}

// Job is a sweep over temperature and, optionally, one composition axis.
type Job struct {
	// Name defaults to the job file name.
	Name string `yaml:"name" toml:"name"`
	// Setup commands run in order after Init.
	Setup       []string      `yaml:"setup" toml:"setup"`
	Composition []Composition `yaml:"composition" toml:"composition"`
	Temperature Range         `yaml:"temperature" toml:"temperature"`
	Axis        *Axis         `yaml:"axis" toml:"axis"`
	Variables   []string      `yaml:"variables" toml:"variables"`
	// Phases whose presence is encoded in the phase mask, read from the
	// F$<phase> variables.
	Phases    []string `yaml:"phases" toml:"phases"`
	Threshold float64  `yaml:"threshold" toml:"threshold"`
	// ContinueOnError records failed equilibria instead of aborting.
	ContinueOnError bool `yaml:"continue_on_error" toml:"continue_on_error"`
}

// Load reads a job file. Files ending in .toml are decoded as TOML, all
// others as YAML.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}

	var j *Job
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		j, err = ParseTOML(data)
	} else {
		j, err = ParseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if j.Name == "" {
		j.Name = filepath.Base(path)
	}
	return j, nil
}

// ParseYAML decodes and validates a YAML job.
func ParseYAML(data []byte) (*Job, error) {
	var j Job
	if err := yaml.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse job: %w", err)
	}
	return &j, j.normalize()
}

// ParseTOML decodes and validates a TOML job.
func ParseTOML(data []byte) (*Job, error) {
	var j Job
	if _, err := toml.Decode(string(data), &j); err != nil {
		return nil, fmt.Errorf("parse job: %w", err)
	}
	return &j, j.normalize()
}

func (j *Job) normalize() error {
	if j.Threshold == 0 {
		j.Threshold = DefaultThreshold
	}
	return j.Validate()
}

// Validate checks the job without touching the engine.
func (j *Job) Validate() error {
	var errs []error
	if len(j.Variables) == 0 && len(j.Phases) == 0 {
		errs = append(errs, errors.New("job reads no variables or phases"))
	}
	if err := j.Temperature.validate(); err != nil {
		errs = append(errs, fmt.Errorf("temperature: %w", err))
	} else if !positive(j.Temperature.Start) || (j.Temperature.Num > 1 && !positive(j.Temperature.Stop)) {
		errs = append(errs, errors.New("temperature: must be positive kelvin"))
	}
	if dup := firstDuplicate(j.Variables); dup != "" {
		errs = append(errs, fmt.Errorf("variables: %s listed twice", dup))
	}
	if dup := firstDuplicate(j.Phases); dup != "" {
		errs = append(errs, fmt.Errorf("phases: %s listed twice", dup))
	}
	for i, c := range j.Composition {
		if c.Element == "" {
			errs = append(errs, fmt.Errorf("composition[%d]: missing element", i))
		}
		if _, err := matcalc.ParseMode(c.Mode); err != nil {
			errs = append(errs, fmt.Errorf("composition[%d]: %w", i, err))
		}
	}
	if j.Axis != nil {
		if j.Axis.Element == "" {
			errs = append(errs, errors.New("axis: missing element"))
		}
		if _, err := matcalc.ParseMode(j.Axis.Mode); err != nil {
			errs = append(errs, fmt.Errorf("axis: %w", err))
		}
		if err := j.Axis.Range().validate(); err != nil {
			errs = append(errs, fmt.Errorf("axis: %w", err))
		}
	}
	if len(j.Phases) > 64 {
		errs = append(errs, errors.New("phases: at most 64 fit in the phase mask"))
	}
	return errors.Join(errs...)
}

// positive reports whether v is a finite number above zero.
func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func firstDuplicate(names []string) string {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return n
		}
		seen[n] = true
	}
	return ""
}

func (r Range) validate() error {
	if r.Num < 1 {
		return fmt.Errorf("num must be at least 1, got %d", r.Num)
	}
	if !finite(r.Start) || (r.Num > 1 && !finite(r.Stop)) {
		return errors.New("start and stop must be finite")
	}
	switch strings.ToLower(r.Scale) {
	case "", ScaleLinear:
	case ScaleLog:
		if r.Start <= 0 || (r.Num > 1 && r.Stop <= 0) {
			return errors.New("log scale needs positive start and stop")
		}
	default:
		return fmt.Errorf("unknown scale %q", r.Scale)
	}
	return nil
}

// Values expands the range.
func (r Range) Values() []float64 {
	if r.Num <= 1 {
		return []float64{r.Start}
	}
	dst := make([]float64, r.Num)
	if strings.EqualFold(r.Scale, ScaleLog) {
		return floats.LogSpan(dst, r.Start, r.Stop)
	}
	return floats.Span(dst, r.Start, r.Stop)
}

// Point is one equilibrium of the sweep.
type Point struct {
	Temperature float64
	// Axis is the axis fraction; meaningless when the job has no axis.
	Axis float64
}

// Points lists every point, temperature outermost.
func (j *Job) Points() []Point {
	temps := j.Temperature.Values()
	axis := []float64{0}
	if j.Axis != nil {
		axis = j.Axis.Range().Values()
	}
	points := make([]Point, 0, len(temps)*len(axis))
	for _, t := range temps {
		for _, x := range axis {
			points = append(points, Point{Temperature: t, Axis: x})
		}
	}
	return points
}

// PhaseVariable returns the engine variable holding the fraction of phase.
func PhaseVariable(phase string) string {
	return "F$" + phase
}

// PhaseMask sets bit i when fractions[i] exceeds threshold.
func PhaseMask(fractions []float64, threshold float64) uint64 {
	var mask uint64
	for i, f := range fractions {
		if i >= 64 {
			break
		}
		if f > threshold {
			mask |= 1 << uint(i)
		}
	}
	return mask
}
