package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthursn/gomatcalc/internal/config"
	"github.com/arthursn/gomatcalc/internal/ffi"
	"github.com/arthursn/gomatcalc/internal/results"
	"github.com/arthursn/gomatcalc/internal/testutil"
	"github.com/arthursn/gomatcalc/pkg/matcalc"
)

type harness struct {
	t      *testing.T
	engine *testutil.FakeEngine
	work   string
	appDir string
	config string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv(config.EnvApplicationDirectory, "")
	t.Setenv(config.EnvLibrary, "")
	t.Setenv(config.EnvLogLevel, "")

	h := &harness{
		t:      t,
		engine: testutil.NewFakeEngine(),
		work:   t.TempDir(),
		appDir: t.TempDir(),
	}
	t.Chdir(h.work)
	testutil.InstallLibrary(t, h.appDir)
	h.config = h.write("config.yaml", "log_level: warn\n")
	return h
}

func (h *harness) write(name, content string) string {
	h.t.Helper()
	path := filepath.Join(h.work, name)
	require.NoError(h.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes the CLI against the fake engine with --app-dir set.
func (h *harness) run(args ...string) (string, string, error) {
	return h.runRaw(append([]string{"--app-dir", h.appDir}, args...)...)
}

func (h *harness) runRaw(args ...string) (string, string, error) {
	cmd := NewRootCmd(matcalc.WithLibraryOpener(h.engine.Open))
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", h.config}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make(map[string]bool)
	for _, sc := range cmd.Commands() {
		names[sc.Name()] = true
	}
	for _, want := range []string{"exec", "equilibrium", "sweep", "version"} {
		assert.True(t, names[want], "should have %s command", want)
	}

	for _, flag := range []string{"config", "app-dir", "library", "log-level", "lock-file", "quiet"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "should have --%s flag", flag)
	}
}

func TestVersionCmd(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run("version")
	require.NoError(t, err)
	assert.Contains(t, out, "matcalc dev")
	assert.Contains(t, out, ffi.LibraryName())
	assert.Empty(t, h.engine.OpenedPaths(), "version does not load the engine")
}

func TestExecCmd_ForwardsCommandsAfterInit(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run("exec", "use-module core", "open-thermodyn-database mc_fe.tdb")
	require.NoError(t, err)
	assert.Contains(t, out, "2 commands executed")

	cmds := h.engine.Commands()
	require.Len(t, cmds, 4)
	assert.Equal(t, "set-working-directory ./", cmds[0])
	assert.Equal(t, []string{"use-module core", "open-thermodyn-database mc_fe.tdb"}, cmds[2:])
	assert.Equal(t, 1, h.engine.Closes())
}

func TestExecCmd_Script(t *testing.T) {
	h := newHarness(t)
	script := h.write("setup.mcs", "# Fe-C\nuse-module core\n\n  select-element C  \n")

	_, _, err := h.run("exec", "--script", script, "--new-coline", "read-thermodyn-database")
	require.NoError(t, err)

	var got []string
	for _, c := range h.engine.CallsTo(ffi.SymProcessCommandLineNewColine) {
		got = append(got, c.Args[0].(string))
	}
	assert.Equal(t, []string{"use-module core", "select-element C", "read-thermodyn-database"}, got)
}

func TestExecCmd_StopsAtFirstError(t *testing.T) {
	h := newHarness(t)
	h.engine.CommandCodes["select-element Zz"] = -5

	_, _, err := h.run("exec", "select-element Zz", "read-thermodyn-database")
	require.EqualError(t, err, "command 1: Err nr -5 while executing 'select-element Zz'")
	assert.NotContains(t, h.engine.Commands(), "read-thermodyn-database")
	assert.Equal(t, 1, h.engine.Closes())
}

func TestExecCmd_NoCommands(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run("exec")
	require.EqualError(t, err, "no commands given")
	assert.Empty(t, h.engine.OpenedPaths())
}

func TestExecCmd_MissingLibrary(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.runRaw("--app-dir", t.TempDir(), "exec", "use-module core")
	require.Error(t, err)
	assert.ErrorIs(t, err, matcalc.ErrLibraryNotFound)
}

func TestAppDirFromConfigAndEnv(t *testing.T) {
	h := newHarness(t)
	h.config = h.write("config.yaml", "application_directory: "+h.appDir+"\n")

	_, _, err := h.runRaw("exec", "use-module core")
	require.NoError(t, err)
	require.Len(t, h.engine.OpenedPaths(), 1)
	assert.Equal(t, h.appDir, filepath.Dir(h.engine.OpenedPaths()[0]))

	// environment beats the file
	other := t.TempDir()
	testutil.InstallLibrary(t, other)
	t.Setenv(config.EnvApplicationDirectory, other)

	_, _, err = h.runRaw("exec", "use-module core")
	require.NoError(t, err)
	assert.Equal(t, other, filepath.Dir(h.engine.OpenedPaths()[1]))
}

func TestEquilibriumCmd(t *testing.T) {
	h := newHarness(t)
	h.engine.Variables["MU$C"] = -1234.5
	h.engine.Variables["F$FCC_A1"] = 1

	out, _, err := h.run("equilibrium",
		"--setup", "use-module core",
		"--mole", "C=0.01",
		"--weight", "Mn=0.015",
		"-T", "1000",
		"--var", "MU$C",
		"--phase", "FCC_A1", "--phase", "BCC_A2",
		"--format", "csv",
	)
	require.NoError(t, err)
	assert.Equal(t, "T,MU$C,phase_mask,error\n1000,-1234.5,1,\n", out)

	cmds := h.engine.Commands()
	assert.Equal(t, []string{
		"use-module core",
		"enter-composition X C=0.01",
		"enter-composition W Mn=0.015",
	}, cmds[2:])
	require.Len(t, h.engine.CallsTo(ffi.SymSetTemperature), 1)
	assert.Equal(t, 1000.0, h.engine.CallsTo(ffi.SymSetTemperature)[0].Args[0])
}

func TestEquilibriumCmd_EngineFailure(t *testing.T) {
	h := newHarness(t)
	h.engine.EquilibriumCode = 7

	_, _, err := h.run("equilibrium", "-T", "1000", "--var", "T")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Err nr 7 while calculating equilibrium")
}

func TestEquilibriumCmd_BadInput(t *testing.T) {
	tests := map[string][]string{
		"no temperature":  {"equilibrium", "--var", "T"},
		"negative kelvin": {"equilibrium", "-T", "-3", "--var", "T"},
		"nothing to read": {"equilibrium", "-T", "1000"},
		"bad fraction":    {"equilibrium", "-T", "1000", "--var", "T", "--mole", "C"},
		"bad format":      {"equilibrium", "-T", "1000", "--var", "T", "--format", "xml"},
		"repeated var":    {"equilibrium", "-T", "1000", "--var", "T", "--var", "T"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			_, _, err := h.run(args...)
			assert.Error(t, err)
			assert.Empty(t, h.engine.OpenedPaths())
		})
	}
}

func TestParseFraction(t *testing.T) {
	c, err := parseFraction(matcalc.SiteFraction, " Cr = 0.2 ")
	require.NoError(t, err)
	assert.Equal(t, "Cr", c.Element)
	assert.Equal(t, "U", c.Mode)
	assert.Equal(t, 0.2, c.Value)

	for _, bad := range []string{"", "Cr", "=0.2", "Cr=abc"} {
		_, err := parseFraction(matcalc.MoleFraction, bad)
		assert.Error(t, err, bad)
	}
}

func TestReadScript(t *testing.T) {
	lines, err := readScript(strings.NewReader("# comment\n\nuse-module core\r\n\t# indented comment\nselect-element C\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"use-module core", "select-element C"}, lines)
}

const sweepJob = `
setup: [use-module core]
temperature: {start: 800, stop: 1000, num: 3}
variables: [MU$C]
phases: [FCC_A1]
continue_on_error: true
`

func TestSweepCmd_WritesFileAndStore(t *testing.T) {
	h := newHarness(t)
	h.engine.EquilibriumCodeAt[900] = 4
	h.engine.VariableFunc = func(name string, temperature float64) float64 {
		if name == "F$FCC_A1" {
			return 1
		}
		return -temperature
	}
	jobPath := h.write("fe-c.yaml", sweepJob)

	// relative paths are taken from the caller's directory
	_, errOut, err := h.run("sweep", "fe-c.yaml", "--format", "json", "--output", "out.json", "--db", "runs.sqlite")
	require.NoError(t, err)
	assert.Contains(t, errOut, "stored run 1")
	assert.NotContains(t, errOut, "\r", "no progress bar off a terminal")

	data, err := os.ReadFile(filepath.Join(h.work, "out.json"))
	require.NoError(t, err)
	var doc struct {
		Job  string `json:"job"`
		Rows []struct {
			Temperature float64             `json:"temperature"`
			Values      map[string]*float64 `json:"values"`
			Error       string              `json:"error"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, filepath.Base(jobPath), doc.Job)
	require.Len(t, doc.Rows, 3)
	require.NotNil(t, doc.Rows[0].Values["MU$C"])
	assert.Equal(t, -800.0, *doc.Rows[0].Values["MU$C"])
	assert.Nil(t, doc.Rows[1].Values["MU$C"])
	assert.Equal(t, "Err nr 4 while calculating equilibrium", doc.Rows[1].Error)

	st, err := results.OpenStore(filepath.Join(h.work, "runs.sqlite"))
	require.NoError(t, err)
	defer st.Close()
	set, err := st.Load(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, set.Rows, 3)
	assert.Equal(t, 1, set.Failures())
}

func TestSweepCmd_TableToStdout(t *testing.T) {
	h := newHarness(t)
	jobPath := h.write("fe-c.yaml", sweepJob)

	out, _, err := h.run("sweep", jobPath)
	require.NoError(t, err)
	assert.Contains(t, out, "MU$C")
	assert.Contains(t, out, "3 points, 0 failed")
	assert.NotContains(t, out, "\x1b[", "plain table off a terminal")
}

func TestSweepCmd_AbortsWithoutContinueOnError(t *testing.T) {
	h := newHarness(t)
	h.engine.EquilibriumCodeAt[900] = 4
	jobPath := h.write("abort.yaml", strings.Replace(sweepJob, "continue_on_error: true", "", 1))

	_, _, err := h.run("sweep", jobPath, "--output", "never.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Err nr 4 while calculating equilibrium")
	assert.NoFileExists(t, filepath.Join(h.work, "never.csv"))
}

func TestSweepCmd_InvalidJob(t *testing.T) {
	h := newHarness(t)
	jobPath := h.write("bad.yaml", "temperature: {start: 800, num: 0}\n")

	_, _, err := h.run("sweep", jobPath)
	require.Error(t, err)
	assert.Empty(t, h.engine.OpenedPaths())
}

func TestExecCmd_NoInit(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run("exec", "--no-init", "use-module core")
	require.NoError(t, err)
	assert.Empty(t, h.engine.CallsTo(ffi.SymInitialize))
	assert.Equal(t, []string{"use-module core"}, h.engine.Commands())
}

func TestSweepCmd_StoreFailureKeepsOutput(t *testing.T) {
	h := newHarness(t)
	jobPath := h.write("fe-c.yaml", sweepJob)

	// a directory cannot be opened as a database
	out, _, err := h.run("sweep", jobPath, "--format", "csv", "--db", t.TempDir())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(out, "T,MU$C,phase_mask,error\n"))
	assert.Equal(t, 4, strings.Count(out, "\n"), "header and three points")
}
