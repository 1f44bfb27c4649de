package ffi

import "fmt"

// Exported mc_core entry points.
const (
	SymInitialize                  = "MCC_InitializeExternalConstChar"
	SymProcessCommandLine          = "MCCOL_ProcessCommandLineInput"
	SymProcessCommandLineNewColine = "MCCOL_ProcessCommandLineInputNewColine"
	SymCalcEquilibrium             = "MCC_CalcEquilibrium"
	SymSetTemperature              = "MCC_SetTemperature"
	SymGetVariable                 = "MCC_GetMCVariable"
)

// Signatures of the entry points. Go strings are passed as NUL-terminated
// copies that live for the duration of the call.
type (
	InitializeFunc  = func(appDir string, flag bool) bool
	CommandFunc     = func(cmd string) int32
	EquilibriumFunc = func(flag bool, mode int32) int32
	TemperatureFunc = func(kelvin float64, flag bool) float64
	VariableFunc    = func(name string) float64
)

// EntryPoints is the resolved symbol table of an opened mc_core.
// It is filled once by Resolve and never modified afterwards.
type EntryPoints struct {
	Initialize                  InitializeFunc
	ProcessCommandLine          CommandFunc
	ProcessCommandLineNewColine CommandFunc
	CalcEquilibrium             EquilibriumFunc
	SetTemperature              TemperatureFunc
	GetVariable                 VariableFunc
}

type binding struct {
	name string
	fptr any
}

func (ep *EntryPoints) bindings() []binding {
	return []binding{
		{SymInitialize, &ep.Initialize},
		{SymProcessCommandLine, &ep.ProcessCommandLine},
		{SymProcessCommandLineNewColine, &ep.ProcessCommandLineNewColine},
		{SymCalcEquilibrium, &ep.CalcEquilibrium},
		{SymSetTemperature, &ep.SetTemperature},
		{SymGetVariable, &ep.GetVariable},
	}
}

// SymbolNames returns every required entry point in resolution order.
func SymbolNames() []string {
	var ep EntryPoints
	b := ep.bindings()
	names := make([]string, len(b))
	for i := range b {
		names[i] = b[i].name
	}
	return names
}

// SymbolError reports an entry point that could not be bound.
type SymbolError struct {
	Symbol string
	Err    error
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Symbol, e.Err)
}

func (e *SymbolError) Unwrap() error { return e.Err }

// Resolve binds every entry point from lib. It fails on the first symbol
// that cannot be bound; there is no partial table.
func Resolve(lib Library) (*EntryPoints, error) {
	ep := &EntryPoints{}
	for _, b := range ep.bindings() {
		if err := lib.Bind(b.name, b.fptr); err != nil {
			return nil, &SymbolError{Symbol: b.name, Err: err}
		}
	}
	return ep, nil
}
