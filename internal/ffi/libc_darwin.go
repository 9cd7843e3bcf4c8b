package ffi

func libraryPath(lib string) string {
	switch lib {
	case "", "c", "libc", "m", "libm":
		return "/usr/lib/libSystem.B.dylib"
	}
	return lib
}
