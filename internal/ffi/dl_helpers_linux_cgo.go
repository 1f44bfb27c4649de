//go:build linux && cgo

package ffi

/*
#cgo LDFLAGS: -ldl

#include <dlfcn.h>
#include <stdlib.h>
*/
import "C"

import (
	"errors"
	"unsafe"
)

// RTLD flags for dlopen - using C constants from dlfcn.h
const (
	RTLD_NOW    = C.RTLD_NOW
	RTLD_GLOBAL = C.RTLD_GLOBAL
)

// lastDLError returns the pending dlerror() message verbatim. The loader
// text is what users need to debug missing transitive dependencies.
func lastDLError(fallback string) error {
	if msg := C.dlerror(); msg != nil {
		return errors.New(C.GoString(msg))
	}
	return errors.New(fallback)
}

func dlopenLibrary(path string, flags int) (uintptr, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	C.dlerror()
	handle := C.dlopen(cpath, C.int(flags))
	if handle == nil {
		return 0, lastDLError("dlopen " + path + " failed")
	}
	return uintptr(handle), nil
}

func dlsymLibrary(handle uintptr, name string) (uintptr, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	C.dlerror()
	symbol := C.dlsym(unsafe.Pointer(handle), cname)
	if symbol == nil {
		return 0, lastDLError("dlsym " + name + " failed")
	}
	return uintptr(symbol), nil
}

func dlcloseLibrary(handle uintptr) error {
	if handle == 0 {
		return nil
	}
	if rc := C.dlclose(unsafe.Pointer(handle)); rc != 0 {
		return lastDLError("dlclose failed")
	}
	return nil
}
