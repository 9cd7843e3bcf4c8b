//go:build darwin || linux

package ffi

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// Available reports whether native calls work on this platform.
func Available() bool { return true }

func register(fptr any, addr uintptr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ffi: %v", r)
		}
	}()
	purego.RegisterFunc(fptr, addr)
	return nil
}

// Lookup finds symbol in the shared library lib. An empty lib searches the
// libraries already loaded into the process.
func Lookup(lib, symbol string) (uintptr, error) {
	handle, err := purego.Dlopen(libraryPath(lib), purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, fmt.Errorf("ffi: open %s: %w", lib, err)
	}
	addr, err := purego.Dlsym(handle, symbol)
	if err != nil {
		return 0, fmt.Errorf("ffi: %s in %s: %w", symbol, lib, err)
	}
	return addr, nil
}
