//go:build unix

package codealloc

import "golang.org/x/sys/unix"

type mmapMapper struct {
	pageSize int
}

func hostMapper() (Mapper, error) {
	return &mmapMapper{pageSize: unix.Getpagesize()}, nil
}

func (m *mmapMapper) PageSize() int {
	return m.pageSize
}

func (m *mmapMapper) Map(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

func (m *mmapMapper) Protect(mem []byte, exec bool) error {
	prot := unix.PROT_READ | unix.PROT_WRITE
	if exec {
		prot = unix.PROT_READ | unix.PROT_EXEC
	}
	return unix.Mprotect(mem, prot)
}

func (m *mmapMapper) Unmap(mem []byte) error {
	return unix.Munmap(mem)
}
