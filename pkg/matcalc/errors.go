package matcalc

import (
	"errors"
	"fmt"

	"github.com/arthursn/gomatcalc/internal/ffi"
)

var (
	// ErrClosed is matched by every error returned after Close.
	ErrClosed = errors.New("matcalc: session closed")

	// ErrLibraryNotFound is wrapped by LibraryLoadError when no mc_core
	// library exists in the application directory.
	ErrLibraryNotFound = ffi.ErrLibraryNotFound

	// ErrSessionLocked is returned by New when the lock file is held by
	// another process.
	ErrSessionLocked = errors.New("matcalc: session lock held by another process")
)

// Op identifies the command-style entry point that produced a CommandError.
type Op string

const (
	OpExecute              Op = "execute"
	OpExecuteNewColine     Op = "execute-new-coline"
	OpCalculateEquilibrium Op = "calculate-equilibrium"
)

// LibraryLoadError reports that mc_core could not be found or mapped.
// Err is the loader diagnostic, unmodified.
type LibraryLoadError struct {
	Path string
	Err  error
}

func (e *LibraryLoadError) Error() string {
	return fmt.Sprintf("matcalc: load %s: %v", e.Path, e.Err)
}

func (e *LibraryLoadError) Unwrap() error { return e.Err }

// SymbolResolutionError reports a required entry point missing from the
// opened library, usually an unsupported MatCalc version.
type SymbolResolutionError struct {
	Symbol string
	Err    error
}

func (e *SymbolResolutionError) Error() string {
	return fmt.Sprintf("matcalc: entry point %s not found: %v", e.Symbol, e.Err)
}

func (e *SymbolResolutionError) Unwrap() error { return e.Err }

// CommandError carries a non-zero code returned by a command-style entry
// point. Command is empty for OpCalculateEquilibrium.
type CommandError struct {
	Op      Op
	Code    int
	Command string
}

func (e *CommandError) Error() string {
	if e.Op == OpCalculateEquilibrium {
		return fmt.Sprintf("Err nr %d while calculating equilibrium", e.Code)
	}
	return fmt.Sprintf("Err nr %d while executing '%s'", e.Code, e.Command)
}

// UseAfterCloseError is returned by any operation on a closed API.
type UseAfterCloseError struct {
	Op string
}

func (e *UseAfterCloseError) Error() string {
	return fmt.Sprintf("matcalc: %s called after Close", e.Op)
}

// Is reports ErrClosed as a match.
func (e *UseAfterCloseError) Is(target error) bool {
	return target == ErrClosed
}

// IsCommandError reports whether err carries an engine error code, and
// returns it.
func IsCommandError(err error) (*CommandError, bool) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr, true
	}
	return nil, false
}
