// Package codealloc manages executable memory for generated code.
//
// Memory comes from the operating system in page-aligned chunks. Blocks are
// carved from a chunk first-fit and returned blocks coalesce with their free
// neighbours. A chunk is either writable or executable, never both: Write
// flips it to read-write, copies, and flips it back to read-execute.
package codealloc

import (
	"errors"
	"fmt"
	"sort"
	"unsafe"
)

// ErrExhausted is returned when the operating system refuses another chunk.
var ErrExhausted = errors.New("code memory exhausted")

// blockAlign keeps every block entry 16-byte aligned.
const blockAlign = 16

// Mapper obtains and protects raw memory. The host implementation uses mmap.
type Mapper interface {
	PageSize() int
	Map(size int) ([]byte, error)
	Protect(mem []byte, exec bool) error
	Unmap(mem []byte) error
}

// Block is one allocation inside a chunk.
type Block struct {
	chunk *chunk
	off   int
	size  int
}

// Addr is the address of the first byte of the block.
func (b *Block) Addr() uintptr {
	return uintptr(unsafe.Pointer(&b.chunk.mem[b.off]))
}

// Size is the usable size of the block.
func (b *Block) Size() int {
	return b.size
}

type span struct {
	off, size int
}

type chunk struct {
	mem  []byte
	free []span // sorted by offset, never adjacent
}

// Allocator hands out blocks of executable memory.
type Allocator struct {
	mapper     Mapper
	chunkBytes int
	chunks     []*chunk
	used       int
	closed     bool
}

// New creates an allocator on the host's memory mapper. chunkPages is the
// size of each chunk requested from the operating system.
func New(chunkPages int) (*Allocator, error) {
	m, err := hostMapper()
	if err != nil {
		return nil, err
	}
	return NewWithMapper(m, chunkPages), nil
}

// NewWithMapper creates an allocator on m.
func NewWithMapper(m Mapper, chunkPages int) *Allocator {
	if chunkPages < 1 {
		chunkPages = 1
	}
	return &Allocator{mapper: m, chunkBytes: chunkPages * m.PageSize()}
}

func roundUp(n, to int) int {
	return (n + to - 1) / to * to
}

// Alloc returns a block of at least size bytes.
func (a *Allocator) Alloc(size int) (*Block, error) {
	if a.closed {
		return nil, errors.New("codealloc: allocator is closed")
	}
	if size <= 0 {
		return nil, fmt.Errorf("codealloc: bad block size %d", size)
	}
	size = roundUp(size, blockAlign)
	for _, c := range a.chunks {
		if b := c.take(size); b != nil {
			a.used += size
			return b, nil
		}
	}
	n := max(a.chunkBytes, roundUp(size, a.mapper.PageSize()))
	mem, err := a.mapper.Map(n)
	if err != nil {
		return nil, fmt.Errorf("%w: mapping %d bytes: %v", ErrExhausted, n, err)
	}
	if err := a.mapper.Protect(mem, true); err != nil {
		a.mapper.Unmap(mem)
		return nil, fmt.Errorf("codealloc: protecting new chunk: %w", err)
	}
	c := &chunk{mem: mem, free: []span{{0, n}}}
	a.chunks = append(a.chunks, c)
	b := c.take(size)
	a.used += size
	return b, nil
}

// take carves size bytes from the first free span large enough.
func (c *chunk) take(size int) *Block {
	for i := range c.free {
		s := &c.free[i]
		if s.size < size {
			continue
		}
		b := &Block{chunk: c, off: s.off, size: size}
		s.off += size
		s.size -= size
		if s.size == 0 {
			c.free = append(c.free[:i], c.free[i+1:]...)
		}
		return b
	}
	return nil
}

// Free returns a block. Neighbouring free spans are merged.
func (a *Allocator) Free(b *Block) {
	if b == nil || b.chunk == nil || a.closed {
		return
	}
	c := b.chunk
	i := sort.Search(len(c.free), func(i int) bool { return c.free[i].off > b.off })
	c.free = append(c.free, span{})
	copy(c.free[i+1:], c.free[i:])
	c.free[i] = span{b.off, b.size}

	// merge with the right neighbour, then the left one
	if i+1 < len(c.free) && c.free[i].off+c.free[i].size == c.free[i+1].off {
		c.free[i].size += c.free[i+1].size
		c.free = append(c.free[:i+1], c.free[i+2:]...)
	}
	if i > 0 && c.free[i-1].off+c.free[i-1].size == c.free[i].off {
		c.free[i-1].size += c.free[i].size
		c.free = append(c.free[:i], c.free[i+1:]...)
	}
	a.used -= b.size
	b.chunk = nil
}

// Write copies code into b, flipping its chunk writable for the copy.
func (a *Allocator) Write(b *Block, code []byte) error {
	if len(code) > b.size {
		return fmt.Errorf("codealloc: %d bytes of code do not fit a %d byte block", len(code), b.size)
	}
	mem := b.chunk.mem
	if err := a.mapper.Protect(mem, false); err != nil {
		return fmt.Errorf("codealloc: unprotect: %w", err)
	}
	copy(mem[b.off:], code)
	if err := a.mapper.Protect(mem, true); err != nil {
		return fmt.Errorf("codealloc: protect: %w", err)
	}
	return nil
}

// Chunks is the number of chunks mapped so far.
func (a *Allocator) Chunks() int {
	return len(a.chunks)
}

// Used is the number of bytes in live blocks.
func (a *Allocator) Used() int {
	return a.used
}

// FreeSpans is the number of free spans across all chunks.
func (a *Allocator) FreeSpans() int {
	n := 0
	for _, c := range a.chunks {
		n += len(c.free)
	}
	return n
}

// Close unmaps every chunk. Every block becomes invalid.
func (a *Allocator) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	var errs []error
	for _, c := range a.chunks {
		if err := a.mapper.Unmap(c.mem); err != nil {
			errs = append(errs, err)
		}
	}
	a.chunks = nil
	a.used = 0
	return errors.Join(errs...)
}
