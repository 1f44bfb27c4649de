//go:build linux || darwin

package quiet

import (
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
)

var (
	fflushOnce sync.Once
	fflush     func(stream uintptr) int32
)

func libcPath() string {
	if runtime.GOOS == "darwin" {
		return "/usr/lib/libSystem.B.dylib"
	}
	return "libc.so.6"
}

// flushC calls fflush(NULL) so buffered C stdio output from mc_core is
// written before the descriptor changes. Best effort: if libc cannot be
// loaded, nothing is flushed.
func flushC() {
	fflushOnce.Do(func() {
		lib, err := purego.Dlopen(libcPath(), purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			return
		}
		sym, err := purego.Dlsym(lib, "fflush")
		if err != nil || sym == 0 {
			return
		}
		purego.RegisterFunc(&fflush, sym)
	})
	if fflush != nil {
		fflush(0)
	}
}
