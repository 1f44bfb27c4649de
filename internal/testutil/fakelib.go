// Package testutil provides shared test utilities for gomatcalc tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/arthursn/gomatcalc/internal/ffi"
)

// Call is one recorded invocation of a fake entry point.
type Call struct {
	Symbol string
	Args   []any
}

// FakeEngine is an in-memory stand-in for mc_core. It implements
// ffi.Library and records every call made through the bound entry points.
//
// Configure the exported fields before handing the engine to the code under
// test; they are read under the engine's lock.
type FakeEngine struct {
	// Missing lists symbols that fail to bind.
	Missing map[string]bool
	// OpenErr is returned by Open when set.
	OpenErr error

	InitializeResult bool
	// CommandCodes maps a command string to the code ProcessCommandLine
	// returns; unknown commands return 0.
	CommandCodes map[string]int32
	// NewColineCodes does the same for ProcessCommandLineNewColine.
	NewColineCodes map[string]int32
	// EquilibriumCode is returned by CalcEquilibrium unless the current
	// temperature has an entry in EquilibriumCodeAt.
	EquilibriumCode   int32
	EquilibriumCodeAt map[float64]int32
	TemperatureResult float64
	// Variables holds values returned by GetVariable; unknown names
	// return VariableDefault.
	Variables       map[string]float64
	VariableDefault float64
	// VariableFunc, when set, overrides Variables.
	VariableFunc func(name string, temperature float64) float64

	mu              sync.Mutex
	temperature     float64
	calls           []Call
	opened          []string
	closes          int
	callsAfterClose int
}

// NewFakeEngine returns a FakeEngine whose entry points all succeed.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		Missing:           make(map[string]bool),
		InitializeResult:  true,
		CommandCodes:      make(map[string]int32),
		NewColineCodes:    make(map[string]int32),
		EquilibriumCodeAt: make(map[float64]int32),
		Variables:         make(map[string]float64),
	}
}

// Open records path and returns the engine itself.
func (f *FakeEngine) Open(path string) (ffi.Library, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, path)
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	return f, nil
}

// Bind implements ffi.Library.
func (f *FakeEngine) Bind(name string, fptr any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Missing[name] {
		return fmt.Errorf("%w: %s", ffi.ErrSymbolNotFound, name)
	}

	ok := false
	switch name {
	case ffi.SymInitialize:
		var p *ffi.InitializeFunc
		if p, ok = fptr.(*ffi.InitializeFunc); ok {
			*p = f.initialize
		}
	case ffi.SymProcessCommandLine:
		var p *ffi.CommandFunc
		if p, ok = fptr.(*ffi.CommandFunc); ok {
			*p = f.processCommandLine
		}
	case ffi.SymProcessCommandLineNewColine:
		var p *ffi.CommandFunc
		if p, ok = fptr.(*ffi.CommandFunc); ok {
			*p = f.processCommandLineNewColine
		}
	case ffi.SymCalcEquilibrium:
		var p *ffi.EquilibriumFunc
		if p, ok = fptr.(*ffi.EquilibriumFunc); ok {
			*p = f.calcEquilibrium
		}
	case ffi.SymSetTemperature:
		var p *ffi.TemperatureFunc
		if p, ok = fptr.(*ffi.TemperatureFunc); ok {
			*p = f.setTemperature
		}
	case ffi.SymGetVariable:
		var p *ffi.VariableFunc
		if p, ok = fptr.(*ffi.VariableFunc); ok {
			*p = f.getVariable
		}
	default:
		return fmt.Errorf("%w: %s", ffi.ErrSymbolNotFound, name)
	}
	if !ok {
		return fmt.Errorf("fake engine: %s cannot be bound to %T", name, fptr)
	}
	return nil
}

// Close implements ffi.Library.
func (f *FakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *FakeEngine) record(symbol string, args ...any) {
	if f.closes > 0 {
		f.callsAfterClose++
	}
	f.calls = append(f.calls, Call{Symbol: symbol, Args: args})
}

func (f *FakeEngine) initialize(appDir string, flag bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ffi.SymInitialize, appDir, flag)
	return f.InitializeResult
}

func (f *FakeEngine) processCommandLine(cmd string) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ffi.SymProcessCommandLine, cmd)
	return f.CommandCodes[cmd]
}

func (f *FakeEngine) processCommandLineNewColine(cmd string) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ffi.SymProcessCommandLineNewColine, cmd)
	return f.NewColineCodes[cmd]
}

func (f *FakeEngine) calcEquilibrium(flag bool, mode int32) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ffi.SymCalcEquilibrium, flag, mode)
	if code, ok := f.EquilibriumCodeAt[f.temperature]; ok {
		return code
	}
	return f.EquilibriumCode
}

func (f *FakeEngine) setTemperature(kelvin float64, flag bool) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ffi.SymSetTemperature, kelvin, flag)
	f.temperature = kelvin
	return f.TemperatureResult
}

func (f *FakeEngine) getVariable(name string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ffi.SymGetVariable, name)
	if f.VariableFunc != nil {
		return f.VariableFunc(name, f.temperature)
	}
	if v, ok := f.Variables[name]; ok {
		return v
	}
	return f.VariableDefault
}

// Calls returns a copy of every recorded call in order.
func (f *FakeEngine) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the recorded calls to symbol.
func (f *FakeEngine) CallsTo(symbol string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Symbol == symbol {
			out = append(out, c)
		}
	}
	return out
}

// Commands returns the strings passed to ProcessCommandLine.
func (f *FakeEngine) Commands() []string {
	var cmds []string
	for _, c := range f.CallsTo(ffi.SymProcessCommandLine) {
		cmds = append(cmds, c.Args[0].(string))
	}
	return cmds
}

// OpenedPaths returns every path passed to Open.
func (f *FakeEngine) OpenedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}

// Closes returns how many times Close was called.
func (f *FakeEngine) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// CallsAfterClose counts entry point calls made after Close.
func (f *FakeEngine) CallsAfterClose() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callsAfterClose
}

// InstallLibrary creates an empty file with the conventional mc_core name
// in dir so that library discovery succeeds, and returns its path.
func InstallLibrary(tb testing.TB, dir string) string {
	tb.Helper()
	path := filepath.Join(dir, ffi.LibraryName())
	if err := os.WriteFile(path, []byte("mc_core"), 0o644); err != nil {
		tb.Fatalf("install fake library: %v", err)
	}
	return path
}
