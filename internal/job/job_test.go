package job

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthursn/gomatcalc/internal/ffi"
	"github.com/arthursn/gomatcalc/internal/testutil"
	"github.com/arthursn/gomatcalc/pkg/matcalc"
)

const feCJob = `
setup:
  - use-module core
  - open-thermodyn-database mc_fe.tdb
  - select-element C Mn
  - select-phase FCC_A1 BCC_A2 CEMENTITE
  - read-thermodyn-database
composition:
  - {element: Mn, mode: mole, value: 0.01}
temperature: {start: 700, stop: 1200, num: 3}
axis: {element: C, mode: X, start: 1e-5, stop: 1e-1, num: 5, scale: log}
variables: [MU$C, MU$Mn]
phases: [FCC_A1, BCC_A2, CEMENTITE]
continue_on_error: true
`

func newSession(t *testing.T, engine *testutil.FakeEngine) *matcalc.API {
	t.Helper()
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	testutil.InstallLibrary(t, dir)

	api, err := matcalc.New(matcalc.WithApplicationDirectory(dir), matcalc.WithLibraryOpener(engine.Open))
	require.NoError(t, err)
	t.Cleanup(func() { _ = api.Close() })
	require.NoError(t, api.Init())
	return api
}

func TestParseYAML(t *testing.T) {
	j, err := ParseYAML([]byte(feCJob))
	require.NoError(t, err)

	assert.Len(t, j.Setup, 5)
	assert.Equal(t, []Composition{{Element: "Mn", Mode: "mole", Value: 0.01}}, j.Composition)
	assert.Equal(t, Range{Start: 700, Stop: 1200, Num: 3}, j.Temperature)
	require.NotNil(t, j.Axis)
	assert.Equal(t, "X(C)", j.Axis.Label())
	assert.Equal(t, DefaultThreshold, j.Threshold)
	assert.True(t, j.ContinueOnError)
}

func TestParseTOML(t *testing.T) {
	j, err := ParseTOML([]byte(`
setup = ["use-module core"]
variables = ["T"]
threshold = 1e-6

[temperature]
start = 800
stop = 900
num = 2

[axis]
element = "Cr"
mode = "weight"
start = 0.01
stop = 0.05
num = 5

[[composition]]
element = "C"
mode = "site"
value = 0.002
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"use-module core"}, j.Setup)
	assert.Equal(t, 1e-6, j.Threshold)
	assert.Equal(t, "W(Cr)", j.Axis.Label())
	assert.Equal(t, []float64{0.01, 0.02, 0.03, 0.04, 0.05}, roundAll(j.Axis.Range().Values()))
	assert.Equal(t, []Composition{{Element: "C", Mode: "site", Value: 0.002}}, j.Composition)
}

func roundAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = math.Round(v[i]*1e12) / 1e12
	}
	return out
}

func TestLoad_ByExtension(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "fe-c.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(feCJob), 0o644))

	j, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "fe-c.yaml", j.Name)

	tomlPath := filepath.Join(dir, "point.TOML")
	require.NoError(t, os.WriteFile(tomlPath, []byte("name = \"single\"\nvariables = [\"T\"]\n[temperature]\nstart = 1000\nnum = 1\n"), 0o644))
	j, err = Load(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, "single", j.Name)
	assert.Equal(t, []Point{{Temperature: 1000}}, j.Points())
}

func TestValidate(t *testing.T) {
	tests := map[string]string{
		"no outputs":        "temperature: {start: 800, num: 1}",
		"zero num":          "variables: [T]\ntemperature: {start: 800, num: 0}",
		"negative kelvin":   "variables: [T]\ntemperature: {start: -5, stop: 10, num: 2}",
		"log with zero":     "variables: [T]\ntemperature: {start: 800, num: 1}\naxis: {element: C, mode: X, start: 0, stop: 0.1, num: 3, scale: log}",
		"unknown scale":     "variables: [T]\ntemperature: {start: 800, num: 1, scale: cubic}",
		"bad mode":          "variables: [T]\ntemperature: {start: 800, num: 1}\ncomposition: [{element: C, mode: volume, value: 0.1}]",
		"missing element":   "variables: [T]\ntemperature: {start: 800, num: 1}\naxis: {mode: X, start: 0, stop: 0.1, num: 3}",
		"unparseable input": "variables: [T",
		"nan temperature":   "variables: [T]\ntemperature: {start: .nan, num: 1}",
		"infinite stop":     "variables: [T]\ntemperature: {start: 800, stop: .inf, num: 3}",
		"infinite axis":     "variables: [T]\ntemperature: {start: 800, num: 1}\naxis: {element: C, mode: X, start: 0, stop: .inf, num: 3}",
		"repeated variable": "variables: [T, MU$C, T]\ntemperature: {start: 800, num: 1}",
		"repeated phase":    "phases: [FCC_A1, FCC_A1]\ntemperature: {start: 800, num: 1}",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestRangeValues(t *testing.T) {
	assert.Equal(t, []float64{700, 950, 1200}, Range{Start: 700, Stop: 1200, Num: 3}.Values())
	assert.Equal(t, []float64{5}, Range{Start: 5, Stop: 100, Num: 1}.Values())

	logs := Range{Start: 1e-5, Stop: 1e-1, Num: 5, Scale: "log"}.Values()
	require.Len(t, logs, 5)
	for i, want := range []float64{1e-5, 1e-4, 1e-3, 1e-2, 1e-1} {
		assert.InEpsilon(t, want, logs[i], 1e-9)
	}
}

func TestPoints_TemperatureOuter(t *testing.T) {
	j := &Job{
		Temperature: Range{Start: 700, Stop: 800, Num: 2},
		Axis:        &Axis{Element: "C", Mode: "X", Start: 0.1, Stop: 0.2, Num: 2},
	}
	assert.Equal(t, []Point{
		{Temperature: 700, Axis: 0.1},
		{Temperature: 700, Axis: 0.2},
		{Temperature: 800, Axis: 0.1},
		{Temperature: 800, Axis: 0.2},
	}, j.Points())
}

func TestPhaseMask(t *testing.T) {
	assert.Equal(t, uint64(0), PhaseMask(nil, DefaultThreshold))
	assert.Equal(t, uint64(0b101), PhaseMask([]float64{0.7, 1e-12, 0.3}, DefaultThreshold))
	assert.Equal(t, uint64(0b010), PhaseMask([]float64{math.NaN(), 1, 0}, DefaultThreshold))
	assert.Equal(t, "F$FCC_A1", PhaseVariable("FCC_A1"))
}

func TestRunner_Run(t *testing.T) {
	engine := testutil.NewFakeEngine()
	engine.EquilibriumCodeAt[950] = 7
	engine.VariableFunc = func(name string, temperature float64) float64 {
		switch name {
		case "MU$C":
			return -temperature
		case "F$FCC_A1":
			if temperature > 1000 {
				return 1
			}
			return 0
		case "F$BCC_A2":
			if temperature < 1000 {
				return 1
			}
			return 0
		default:
			return 0
		}
	}
	api := newSession(t, engine)

	j, err := ParseYAML([]byte(feCJob))
	require.NoError(t, err)

	var progress []int
	r := &Runner{Session: api, Progress: func(done, total int) {
		assert.Equal(t, 15, total)
		progress = append(progress, done)
	}}
	set, err := r.Run(context.Background(), j)
	require.NoError(t, err)

	require.Len(t, set.Rows, 15)
	assert.Len(t, progress, 15)
	assert.Equal(t, "X(C)", set.AxisLabel)
	assert.Equal(t, 5, set.Failures(), "every point at 950 K fails")

	first := set.Rows[0]
	assert.Equal(t, 700.0, first.Temperature)
	assert.InEpsilon(t, 1e-5, first.Axis, 1e-9)
	assert.Equal(t, -700.0, first.Values[0])
	assert.Equal(t, uint64(0b010), first.PhaseMask)

	failed := set.Rows[5]
	assert.Equal(t, 950.0, failed.Temperature)
	assert.Equal(t, "Err nr 7 while calculating equilibrium", failed.Err)
	assert.True(t, math.IsNaN(failed.Values[0]))

	last := set.Rows[14]
	assert.Equal(t, uint64(0b001), last.PhaseMask)

	cmds := engine.Commands()
	assert.Equal(t, "use-module core", cmds[2], "setup follows Init")
	assert.Contains(t, cmds, "enter-composition X Mn=0.01")
	assert.Contains(t, cmds, "enter-composition X C="+fmt.Sprintf("%g", set.Rows[0].Axis))
	assert.Len(t, engine.CallsTo(ffi.SymSetTemperature), 15)
}

func TestRunner_AbortsWithoutContinueOnError(t *testing.T) {
	engine := testutil.NewFakeEngine()
	engine.EquilibriumCodeAt[800] = 2
	api := newSession(t, engine)

	j := &Job{
		Name:        "abort",
		Temperature: Range{Start: 700, Stop: 900, Num: 3},
		Variables:   []string{"T"},
		Threshold:   DefaultThreshold,
	}
	set, err := (&Runner{Session: api}).Run(context.Background(), j)
	require.Error(t, err)

	cmdErr, ok := matcalc.IsCommandError(err)
	require.True(t, ok)
	assert.Equal(t, 2, cmdErr.Code)
	assert.Len(t, set.Rows, 1)
	assert.True(t, math.IsNaN(set.Rows[0].Axis))
}

func TestRunner_SetupFailureStops(t *testing.T) {
	engine := testutil.NewFakeEngine()
	engine.CommandCodes["open-thermodyn-database missing.tdb"] = 1
	api := newSession(t, engine)

	j := &Job{
		Setup:       []string{"open-thermodyn-database missing.tdb", "read-thermodyn-database"},
		Temperature: Range{Start: 700, Num: 1},
		Variables:   []string{"T"},
	}
	_, err := (&Runner{Session: api}).Run(context.Background(), j)
	assert.EqualError(t, err, "setup: Err nr 1 while executing 'open-thermodyn-database missing.tdb'")
	assert.NotContains(t, engine.Commands(), "read-thermodyn-database")
}

func TestRunner_ClosedSessionIsFatal(t *testing.T) {
	engine := testutil.NewFakeEngine()
	api := newSession(t, engine)
	require.NoError(t, api.Close())

	j := &Job{Temperature: Range{Start: 700, Num: 1}, Variables: []string{"T"}, ContinueOnError: true}
	_, err := (&Runner{Session: api}).Run(context.Background(), j)
	assert.ErrorIs(t, err, matcalc.ErrClosed)
}

func TestRunner_Cancelled(t *testing.T) {
	engine := testutil.NewFakeEngine()
	api := newSession(t, engine)

	ctx, cancel := context.WithCancel(context.Background())
	j := &Job{Temperature: Range{Start: 700, Stop: 800, Num: 10}, Variables: []string{"T"}}
	r := &Runner{Session: api, Progress: func(done, _ int) {
		if done == 2 {
			cancel()
		}
	}}
	set, err := r.Run(ctx, j)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, set.Rows, 2)
}
