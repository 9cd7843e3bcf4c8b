package ffi

func libraryPath(lib string) string {
	switch lib {
	case "", "c", "libc":
		return "libc.so.6"
	case "m", "libm":
		return "libm.so.6"
	}
	return lib
}
