//go:build windows

package ffi

import (
	"fmt"
	"syscall"
	"unsafe"
)

// RTLD flags - not used on Windows but defined for compatibility
const (
	RTLD_NOW    = 0
	RTLD_GLOBAL = 0
)

// loadWithAlteredSearchPath makes LoadLibraryEx look for the DLL's own
// dependencies next to it (the MatCalc installation directory) instead of
// the directory of the executable.
const loadWithAlteredSearchPath = 0x00000008

var (
	kernel32       = syscall.NewLazyDLL("kernel32.dll")
	loadLibraryExW = kernel32.NewProc("LoadLibraryExW")
	getProcAddress = kernel32.NewProc("GetProcAddress")
	freeLibrary    = kernel32.NewProc("FreeLibrary")
)

func dlopenLibrary(path string, _ int) (uintptr, error) {
	pathPtr, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	handle, _, err := loadLibraryExW.Call(uintptr(unsafe.Pointer(pathPtr)), 0, loadWithAlteredSearchPath)
	if handle == 0 {
		return 0, fmt.Errorf("LoadLibraryEx %s: %w", path, err)
	}
	return handle, nil
}

func dlsymLibrary(handle uintptr, name string) (uintptr, error) {
	namePtr, err := syscall.BytePtrFromString(name)
	if err != nil {
		return 0, err
	}
	addr, _, err := getProcAddress.Call(handle, uintptr(unsafe.Pointer(namePtr)))
	if addr == 0 {
		return 0, fmt.Errorf("GetProcAddress(%s): %w", name, err)
	}
	return addr, nil
}

func dlcloseLibrary(handle uintptr) error {
	if handle == 0 {
		return nil
	}
	ret, _, err := freeLibrary.Call(handle)
	if ret == 0 {
		return fmt.Errorf("FreeLibrary: %w", err)
	}
	return nil
}
