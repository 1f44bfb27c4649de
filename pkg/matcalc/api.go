// Package matcalc binds the MatCalc thermodynamics engine (mc_core).
//
// An API is a session onto the engine: it owns one open handle to the
// shared library and the entry points resolved from it. mc_core keeps
// process-wide state (working directory, loaded databases, composition)
// that this package neither mirrors nor caches, so a process should drive
// the engine through one API at a time. Foreign calls from all APIs in the
// process are serialized; calls block until the engine returns and cannot
// be cancelled.
//
// Typical use:
//
//	mc, err := matcalc.New(matcalc.WithApplicationDirectory("/opt/matcalc"))
//	if err != nil {
//		return err
//	}
//	defer mc.Close()
//
//	if err := mc.Init(); err != nil {
//		return err
//	}
//	_ = mc.ExecuteCommand("use-module core")
//	_ = mc.SetTemperatureKelvin(1000)
//	_ = mc.SetElementMoleFraction("C", 0.01)
//	if err := mc.CalculateEquilibrium(); err != nil {
//		return err
//	}
//	mu, _ := mc.GetVariable("MU$C")
package matcalc

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/arthursn/gomatcalc/internal/ffi"
	"github.com/arthursn/gomatcalc/internal/lock"
	"github.com/arthursn/gomatcalc/internal/logging"
	"github.com/arthursn/gomatcalc/internal/quiet"
)

// EnvApplicationDirectory names the environment variable consulted when no
// application directory is given to New.
const EnvApplicationDirectory = "MATCALC_DIR"

// Commands issued by Init.
const (
	cmdSetWorkingDirectory     = "set-working-directory ./"
	cmdSetApplicationDirectory = "set-application-directory %s"
)

// engineMu serializes every call into mc_core. The engine is not reentrant.
var engineMu sync.Mutex

// Library is an opened engine library. See WithLibraryOpener.
type Library = ffi.Library

// Opener maps a library file and returns it.
type Opener func(path string) (Library, error)

// API is a session onto an opened mc_core library.
type API struct {
	appDir  string
	libPath string
	logger  *slog.Logger
	quiet   bool

	mu        sync.Mutex
	closed    bool
	lib       Library
	preloaded []Library
	ep        *ffi.EntryPoints
	lock      *lock.FileLock
}

type options struct {
	appDir   string
	libPath  string
	preload  []string
	lockFile string
	logger   *slog.Logger
	quiet    bool
	open     Opener
}

// Option configures New.
type Option func(*options)

// WithApplicationDirectory sets the MatCalc installation directory.
func WithApplicationDirectory(dir string) Option {
	return func(o *options) { o.appDir = dir }
}

// WithLibraryPath opens path instead of searching the application directory.
func WithLibraryPath(path string) Option {
	return func(o *options) { o.libPath = path }
}

// WithPreload opens the named libraries with global symbol visibility
// before mc_core. Relative names are taken from the application directory.
// Failures are logged and skipped.
func WithPreload(names ...string) Option {
	return func(o *options) { o.preload = append(o.preload, names...) }
}

// WithLockFile holds an exclusive lock on path for the session lifetime.
// New fails with ErrSessionLocked if another process holds it.
func WithLockFile(path string) Option {
	return func(o *options) { o.lockFile = path }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithQuietStdout discards whatever the engine prints to stdout during
// each call. While a call runs, all process stdout is discarded.
func WithQuietStdout(enabled bool) Option {
	return func(o *options) { o.quiet = enabled }
}

// WithLibraryOpener replaces the host dynamic loader.
func WithLibraryOpener(open Opener) Option {
	return func(o *options) { o.open = open }
}

// DefaultApplicationDirectory returns $MATCALC_DIR, or the platform default
// installation directory when it is unset.
func DefaultApplicationDirectory() string {
	if dir := os.Getenv(EnvApplicationDirectory); dir != "" {
		return dir
	}
	if runtime.GOOS == "windows" {
		return "C:/MatCalc"
	}
	return "."
}

// New loads mc_core and resolves its entry points.
//
// The process working directory is changed to the application directory,
// since the engine resolves its data files relative to it. New fails with
// *LibraryLoadError if the library cannot be found or mapped and with
// *SymbolResolutionError if any entry point is missing.
func New(opts ...Option) (*API, error) {
	o := options{open: ffi.Open}
	for _, opt := range opts {
		opt(&o)
	}
	if o.appDir == "" {
		o.appDir = DefaultApplicationDirectory()
	}
	logger := o.logger
	if logger == nil {
		logger = logging.Discard()
	}

	appDir, err := filepath.Abs(o.appDir)
	if err != nil {
		return nil, fmt.Errorf("matcalc: application directory %q: %w", o.appDir, err)
	}

	var fl *lock.FileLock
	if o.lockFile != "" {
		fl = lock.New(o.lockFile)
		ok, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("matcalc: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrSessionLocked, o.lockFile)
		}
	}
	fail := func(err error) (*API, error) {
		if fl != nil {
			_ = fl.Unlock()
		}
		return nil, err
	}

	libPath := o.libPath
	if libPath == "" {
		libPath, err = ffi.FindLibrary(appDir)
		if err != nil {
			return fail(&LibraryLoadError{Path: filepath.Join(appDir, ffi.LibraryName()), Err: err})
		}
	}

	if err := os.Chdir(appDir); err != nil {
		return fail(fmt.Errorf("matcalc: change to application directory: %w", err))
	}

	a := &API{
		appDir:  appDir,
		libPath: libPath,
		logger:  logger,
		quiet:   o.quiet,
		lock:    fl,
	}

	engineMu.Lock()
	defer engineMu.Unlock()

	for _, name := range o.preload {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(appDir, name)
		}
		dep, err := o.open(path)
		if err != nil {
			logger.Warn("preload failed", "path", path, "error", err)
			continue
		}
		a.preloaded = append(a.preloaded, dep)
	}

	lib, err := o.open(libPath)
	if err != nil {
		a.closePreloaded()
		return fail(&LibraryLoadError{Path: libPath, Err: err})
	}

	ep, err := ffi.Resolve(lib)
	if err != nil {
		_ = lib.Close()
		a.closePreloaded()
		var symErr *ffi.SymbolError
		if errors.As(err, &symErr) {
			return fail(&SymbolResolutionError{Symbol: symErr.Symbol, Err: symErr.Err})
		}
		return fail(err)
	}

	a.lib = lib
	a.ep = ep
	logger.Debug("mc_core loaded", "path", libPath, "app_dir", appDir)
	return a, nil
}

// ApplicationDirectory returns the absolute application directory captured
// by New.
func (a *API) ApplicationDirectory() string {
	return a.appDir
}

// LibraryPath returns the path of the opened library.
func (a *API) LibraryPath() string {
	return a.libPath
}

// call runs fn against the entry points with the engine lock held.
func (a *API) call(op string, fn func(ep *ffi.EntryPoints) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return &UseAfterCloseError{Op: op}
	}

	engineMu.Lock()
	defer engineMu.Unlock()

	if !a.quiet {
		return fn(a.ep)
	}
	var err error
	if qerr := quiet.Do(func() { err = fn(a.ep) }); qerr != nil {
		a.logger.Debug("stdout suppression unavailable", "error", qerr)
	}
	return err
}

func (a *API) command(ep *ffi.EntryPoints, op Op, cmd string) error {
	var code int32
	if op == OpExecuteNewColine {
		code = ep.ProcessCommandLineNewColine(cmd)
	} else {
		code = ep.ProcessCommandLine(cmd)
	}
	if code != 0 {
		a.logger.Debug("command failed", "op", op, "command", cmd, "code", code)
		return &CommandError{Op: op, Code: int(code), Command: cmd}
	}
	a.logger.Debug("command", "op", op, "command", cmd)
	return nil
}

// Init initializes the engine for the application directory and points its
// working and application directories at it. It must be called once before
// any operation that depends on engine state; this is not checked.
func (a *API) Init() error {
	return a.call("init", func(ep *ffi.EntryPoints) error {
		ep.Initialize(a.appDir, true)
		if err := a.command(ep, OpExecute, cmdSetWorkingDirectory); err != nil {
			return err
		}
		return a.command(ep, OpExecute, fmt.Sprintf(cmdSetApplicationDirectory, a.appDir))
	})
}

// ExecuteCommand forwards cmd to the engine's command interpreter. A
// non-zero engine code is returned as *CommandError.
func (a *API) ExecuteCommand(cmd string) error {
	return a.call(string(OpExecute), func(ep *ffi.EntryPoints) error {
		return a.command(ep, OpExecute, cmd)
	})
}

// ExecuteCommandNewColine is ExecuteCommand through the interpreter's
// new-command-line entry point.
func (a *API) ExecuteCommandNewColine(cmd string) error {
	return a.call(string(OpExecuteNewColine), func(ep *ffi.EntryPoints) error {
		return a.command(ep, OpExecuteNewColine, cmd)
	})
}

// CalculateEquilibrium runs an equilibrium calculation with the engine's
// default solver settings.
func (a *API) CalculateEquilibrium() error {
	return a.call(string(OpCalculateEquilibrium), func(ep *ffi.EntryPoints) error {
		if code := ep.CalcEquilibrium(false, 0); code != 0 {
			a.logger.Debug("equilibrium failed", "code", code)
			return &CommandError{Op: OpCalculateEquilibrium, Code: int(code)}
		}
		return nil
	})
}

// SetTemperatureKelvin sets the engine temperature. The engine's return
// value is not interpreted; the only possible error is UseAfterCloseError.
func (a *API) SetTemperatureKelvin(kelvin float64) error {
	return a.call("set-temperature", func(ep *ffi.EntryPoints) error {
		ep.SetTemperature(kelvin, false)
		return nil
	})
}

// GetVariable returns the engine value of name as is. Unknown names yield
// whatever the engine returns (0, NaN, ...). The only possible error is
// UseAfterCloseError.
func (a *API) GetVariable(name string) (float64, error) {
	var v float64
	err := a.call("get-variable", func(ep *ffi.EntryPoints) error {
		v = ep.GetVariable(name)
		return nil
	})
	return v, err
}

// Close releases the library handle. Calling Close again is a no-op.
func (a *API) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	engineMu.Lock()
	err := a.lib.Close()
	a.closePreloaded()
	engineMu.Unlock()

	a.ep = nil
	a.lib = nil
	if a.lock != nil {
		err = errors.Join(err, a.lock.Unlock())
	}
	a.logger.Debug("mc_core closed", "path", a.libPath)
	return err
}

func (a *API) closePreloaded() {
	for i := len(a.preloaded) - 1; i >= 0; i-- {
		if err := a.preloaded[i].Close(); err != nil {
			a.logger.Warn("close preloaded library", "error", err)
		}
	}
	a.preloaded = nil
}
