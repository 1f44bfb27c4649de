// Package ffi provides FFI bindings to the MatCalc mc_core shared library.
// It supports both purego (default) and CGO dlopen backends via build tags.
package ffi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/ebitengine/purego"
)

var (
	// ErrLibraryNotFound is returned when no mc_core library exists in the
	// searched directory.
	ErrLibraryNotFound = errors.New("mc_core library not found")

	// ErrLibraryClosed is returned when binding against a closed library.
	ErrLibraryClosed = errors.New("mc_core library closed")

	// ErrSymbolNotFound is returned when a symbol resolves to a nil address.
	ErrSymbolNotFound = errors.New("symbol not found")
)

// LibraryBaseName is the logical name of the engine library.
const LibraryBaseName = "mc_core"

// Library is an opened shared object that can bind its exported functions
// into Go func variables.
type Library interface {
	// Bind resolves the exported symbol name and stores a callable into
	// fptr, which must point to a func variable of the matching signature.
	Bind(name string, fptr any) error

	// Close releases the library. Bound funcs must not be called afterwards.
	Close() error
}

// sharedObject is a Library backed by the host dynamic loader.
type sharedObject struct {
	mu     sync.Mutex
	path   string
	handle uintptr
}

// Open maps the shared library at path with RTLD_NOW|RTLD_GLOBAL so that
// every dependency is resolved up front. The loader diagnostic is returned
// unchanged on failure.
func Open(path string) (Library, error) {
	handle, err := dlopenLibrary(path, RTLD_NOW|RTLD_GLOBAL)
	if err != nil {
		return nil, err
	}
	return &sharedObject{path: path, handle: handle}, nil
}

func (l *sharedObject) Bind(name string, fptr any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handle == 0 {
		return ErrLibraryClosed
	}
	addr, err := dlsymLibrary(l.handle, name)
	if err != nil {
		return err
	}
	if addr == 0 {
		return fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}
	purego.RegisterFunc(fptr, addr)
	return nil
}

func (l *sharedObject) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handle == 0 {
		return nil
	}
	if err := dlcloseLibrary(l.handle); err != nil {
		return fmt.Errorf("close %s: %w", l.path, err)
	}
	l.handle = 0
	return nil
}

// LibraryName returns the conventional file name of mc_core on this host.
func LibraryName() string {
	return LibraryNameFor(runtime.GOOS)
}

// LibraryNameFor returns the conventional file name of mc_core for goos.
func LibraryNameFor(goos string) string {
	switch goos {
	case "windows":
		return LibraryBaseName + ".dll"
	case "darwin":
		return "lib" + LibraryBaseName + ".dylib"
	default:
		return "lib" + LibraryBaseName + ".so"
	}
}

func libraryExtFor(goos string) string {
	switch goos {
	case "windows":
		return ".dll"
	case "darwin":
		return ".dylib"
	default:
		return ".so"
	}
}

// FindLibrary locates mc_core inside dir.
// It searches in the following order:
// 1. The conventional platform file name (e.g. libmc_core.so)
// 2. Any file matching {,lib}mc_core<ext>* (versioned sonames); the
// largest match wins
func FindLibrary(dir string) (string, error) {
	return findLibraryFor(dir, runtime.GOOS)
}

func findLibraryFor(dir, goos string) (string, error) {
	conventional := filepath.Join(dir, LibraryNameFor(goos))
	if fi, err := os.Stat(conventional); err == nil && fi.Mode().IsRegular() {
		return filepath.Abs(conventional)
	}

	type candidate struct {
		path string
		size int64
	}
	seen := make(map[string]bool)
	var matches []candidate

	ext := libraryExtFor(goos)
	for _, prefix := range []string{"", "lib"} {
		paths, err := filepath.Glob(filepath.Join(dir, prefix+LibraryBaseName+ext+"*"))
		if err != nil {
			return "", err
		}
		for _, p := range paths {
			resolved, err := filepath.EvalSymlinks(p)
			if err != nil {
				continue
			}
			if resolved, err = filepath.Abs(resolved); err != nil || seen[resolved] {
				continue
			}
			fi, err := os.Stat(resolved)
			if err != nil || !fi.Mode().IsRegular() {
				continue
			}
			seen[resolved] = true
			matches = append(matches, candidate{path: resolved, size: fi.Size()})
		}
	}

	if len(matches) == 0 {
		return "", fmt.Errorf("%w in %q", ErrLibraryNotFound, dir)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].size != matches[j].size {
			return matches[i].size < matches[j].size
		}
		return matches[i].path < matches[j].path
	})
	return matches[len(matches)-1].path, nil
}
