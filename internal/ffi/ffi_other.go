//go:build !darwin && !linux

package ffi

// Available reports whether native calls work on this platform.
func Available() bool { return false }

func register(fptr any, addr uintptr) error {
	return ErrUnsupported
}

// Lookup finds symbol in the shared library lib.
func Lookup(lib, symbol string) (uintptr, error) {
	return 0, ErrUnsupported
}
