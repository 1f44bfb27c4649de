//go:build (!linux || !cgo) && !windows

package ffi

import "github.com/ebitengine/purego"

// Flags passed to dlopen. mc_core is opened with global visibility so the
// engine's own plugin modules can resolve its symbols.
const (
	RTLD_NOW    = purego.RTLD_NOW
	RTLD_GLOBAL = purego.RTLD_GLOBAL
)

// dlopenLibrary maps path without cgo. The error carries dlerror() text.
func dlopenLibrary(path string, flags int) (uintptr, error) {
	return purego.Dlopen(path, flags)
}

func dlsymLibrary(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

// dlcloseLibrary is a no-op on a zero handle.
func dlcloseLibrary(handle uintptr) error {
	if handle == 0 {
		return nil
	}
	return purego.Dlclose(handle)
}
