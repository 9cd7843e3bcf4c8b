package codealloc

import (
	"errors"
	"testing"
)

// heapMapper hands out ordinary Go memory and records protection flips.
type heapMapper struct {
	page     int
	limit    int // chunks before Map fails, 0 for no limit
	mapped   int
	flips    int
	writable map[*byte]bool
}

func newHeapMapper(page int) *heapMapper {
	return &heapMapper{page: page, writable: make(map[*byte]bool)}
}

func (m *heapMapper) PageSize() int { return m.page }

func (m *heapMapper) Map(size int) ([]byte, error) {
	if m.limit > 0 && m.mapped >= m.limit {
		return nil, errors.New("out of memory")
	}
	m.mapped++
	mem := make([]byte, size)
	m.writable[&mem[0]] = true
	return mem, nil
}

func (m *heapMapper) Protect(mem []byte, exec bool) error {
	m.flips++
	m.writable[&mem[0]] = !exec
	return nil
}

func (m *heapMapper) Unmap(mem []byte) error {
	delete(m.writable, &mem[0])
	m.mapped--
	return nil
}

func TestAllocFirstFitAndCoalesce(t *testing.T) {
	a := NewWithMapper(newHeapMapper(256), 1)
	b1, _ := a.Alloc(64)
	b2, _ := a.Alloc(64)
	b3, _ := a.Alloc(64)
	if a.Chunks() != 1 {
		t.Fatalf("three small blocks used %d chunks", a.Chunks())
	}
	if b2.Addr()-b1.Addr() != 64 || b3.Addr()-b2.Addr() != 64 {
		t.Fatal("blocks are not laid out first-fit")
	}
	start := b1.Addr()
	if a.Used() != 192 {
		t.Errorf("Used() = %d, want 192", a.Used())
	}

	a.Free(b1)
	a.Free(b3)
	if got := a.FreeSpans(); got != 2 {
		t.Fatalf("after freeing the ends: %d free spans, want 2", got)
	}
	a.Free(b2)
	if got := a.FreeSpans(); got != 1 {
		t.Fatalf("after freeing the middle: %d free spans, want 1", got)
	}
	if a.Used() != 0 {
		t.Errorf("Used() = %d after freeing everything", a.Used())
	}

	big, err := a.Alloc(256)
	if err != nil {
		t.Fatal(err)
	}
	if a.Chunks() != 1 || big.Addr() != start {
		t.Error("coalesced chunk was not reused for a full-size block")
	}
}

func TestAllocRoundsAndGrows(t *testing.T) {
	a := NewWithMapper(newHeapMapper(128), 1)
	b, err := a.Alloc(1)
	if err != nil {
		t.Fatal(err)
	}
	if b.Size() != blockAlign {
		t.Errorf("1-byte request got %d bytes", b.Size())
	}
	huge, err := a.Alloc(1000)
	if err != nil {
		t.Fatal(err)
	}
	if huge.Size() != 1008 || a.Chunks() != 2 {
		t.Errorf("large block: size %d, %d chunks", huge.Size(), a.Chunks())
	}
}

func TestAllocExhausted(t *testing.T) {
	m := newHeapMapper(64)
	m.limit = 1
	a := NewWithMapper(m, 1)
	if _, err := a.Alloc(64); err != nil {
		t.Fatal(err)
	}
	_, err := a.Alloc(64)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Alloc on a full mapper = %v, want ErrExhausted", err)
	}
}

func TestWriteFlipsProtection(t *testing.T) {
	m := newHeapMapper(64)
	a := NewWithMapper(m, 1)
	b, _ := a.Alloc(16)
	before := m.flips
	if err := a.Write(b, []byte{0xc3}); err != nil {
		t.Fatal(err)
	}
	if m.flips-before != 2 {
		t.Errorf("Write flipped protection %d times, want 2", m.flips-before)
	}
	if m.writable[&b.chunk.mem[0]] {
		t.Error("chunk left writable after Write")
	}
	if b.chunk.mem[b.off] != 0xc3 {
		t.Error("code not copied")
	}
	if err := a.Write(b, make([]byte, 17)); err == nil {
		t.Error("oversized Write accepted")
	}
}

func TestCloseUnmapsEverything(t *testing.T) {
	m := newHeapMapper(64)
	a := NewWithMapper(m, 1)
	a.Alloc(64)
	a.Alloc(64)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if m.mapped != 0 {
		t.Errorf("%d chunks still mapped after Close", m.mapped)
	}
	if _, err := a.Alloc(16); err == nil {
		t.Error("Alloc after Close succeeded")
	}
}
