// Completion: 100% - Host platform description complete
package engine

import (
	"fmt"
	"runtime"
	"strings"
)

// Architecture type
type Arch int

const (
	ArchUnknown Arch = iota
	ArchX86_64
	ArchARM64
	ArchRiscv64
)

func (a Arch) String() string {
	switch a {
	case ArchX86_64:
		return "x86_64"
	case ArchARM64:
		return "aarch64"
	case ArchRiscv64:
		return "riscv64"
	default:
		return "unknown"
	}
}

// ParseArch parses an architecture string (like GOARCH values)
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(s) {
	case "x86_64", "amd64", "x86-64":
		return ArchX86_64, nil
	case "aarch64", "arm64":
		return ArchARM64, nil
	case "riscv64", "riscv", "rv64":
		return ArchRiscv64, nil
	default:
		return ArchUnknown, fmt.Errorf("unsupported architecture: %s (supported: amd64, arm64, riscv64)", s)
	}
}

// OS type
type OS int

const (
	OSUnknown OS = iota
	OSLinux
	OSDarwin
	OSFreeBSD
	OSWindows
)

func (o OS) String() string {
	switch o {
	case OSLinux:
		return "linux"
	case OSDarwin:
		return "darwin"
	case OSFreeBSD:
		return "freebsd"
	case OSWindows:
		return "windows"
	default:
		return "unknown"
	}
}

// ParseOS parses an OS string (like GOOS values)
func ParseOS(s string) (OS, error) {
	switch strings.ToLower(s) {
	case "linux":
		return OSLinux, nil
	case "darwin", "macos":
		return OSDarwin, nil
	case "freebsd":
		return OSFreeBSD, nil
	case "windows", "win":
		return OSWindows, nil
	default:
		return OSUnknown, fmt.Errorf("unsupported OS: %s (supported: linux, darwin, freebsd, windows)", s)
	}
}

// Platform is an architecture plus an operating system.
type Platform struct {
	Arch Arch
	OS   OS
}

// HostPlatform describes the platform the process runs on.
// Unsupported values map to ArchUnknown and OSUnknown.
func HostPlatform() Platform {
	arch, _ := ParseArch(runtime.GOARCH)
	os, _ := ParseOS(runtime.GOOS)
	return Platform{Arch: arch, OS: os}
}

// ParsePlatform parses "arch-os" or "arch/os", e.g. "amd64-linux".
func ParsePlatform(s string) (Platform, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '/' })
	if len(parts) != 2 {
		return Platform{}, fmt.Errorf("platform %q: want arch-os", s)
	}
	arch, err := ParseArch(parts[0])
	if err != nil {
		return Platform{}, err
	}
	os, err := ParseOS(parts[1])
	if err != nil {
		return Platform{}, err
	}
	return Platform{Arch: arch, OS: os}, nil
}

func (p Platform) String() string {
	return fmt.Sprintf("%s-%s", p.Arch, p.OS)
}

// FullString returns a detailed platform string
func (p Platform) FullString() string {
	return fmt.Sprintf("%s on %s", p.Arch, p.OS)
}
