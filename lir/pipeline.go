// pipeline.go - Writer stages composed into one linear chain
package lir

import (
	"fmt"
	"io"
	"strings"
)

// PipelineConfig selects which stages a Pipeline carries.
type PipelineConfig struct {
	Optimize bool      // CSE and expression simplification
	Validate bool      // a validator at each end of the chain
	Verbose  bool      // trace requests to Log
	Log      io.Writer // required when Verbose is set
	Params   []Kind    // declared parameter kinds, checked by the validators
}

// Pipeline owns the stages between a caller and a Buffer.
//
// The chain is built from the buffer outward. From the caller inward it reads:
//
//	validate(start) -> verbose -> cse -> expr -> validate(end) -> buffer
//
// The outer validator sees exactly what the caller emits and the inner one
// sees exactly what reaches the buffer. The tracer sits outside the
// optimizers so it reports requests before they are rewritten.
type Pipeline struct {
	buf    *Buffer
	head   Writer
	stages []Writer // construction order: buffer first
	closed bool
}

// NewPipeline builds the stages selected by cfg on top of buf.
func NewPipeline(buf *Buffer, cfg PipelineConfig) *Pipeline {
	if cfg.Verbose && cfg.Log == nil {
		panic("lir: verbose pipeline without a log writer")
	}
	p := &Pipeline{buf: buf}
	p.push(NewBufWriter(buf))
	if cfg.Validate {
		p.push(NewValidateWriter(p.head, buf, ValidateEnd, cfg.Params))
	}
	if cfg.Optimize {
		p.push(NewExprFilter(p.head, buf))
		p.push(NewCseFilter(p.head))
	}
	if cfg.Verbose {
		p.push(NewVerboseWriter(p.head, cfg.Log))
	}
	if cfg.Validate {
		p.push(NewValidateWriter(p.head, buf, ValidateStart, cfg.Params))
	}
	return p
}

func (p *Pipeline) push(w Writer) {
	p.stages = append(p.stages, w)
	p.head = w
}

// Head returns the outermost stage, the one callers emit through.
func (p *Pipeline) Head() Writer {
	if p.closed {
		panic(fmt.Sprintf("lir: %s: pipeline used after Close", p.buf.Name()))
	}
	return p.head
}

// Buffer returns the buffer the chain ends in.
func (p *Pipeline) Buffer() *Buffer {
	return p.buf
}

// Stages names the stages from the caller inward.
func (p *Pipeline) Stages() []string {
	names := make([]string, 0, len(p.stages))
	for i := len(p.stages) - 1; i >= 0; i-- {
		names = append(names, fmt.Sprint(p.stages[i]))
	}
	return names
}

func (p *Pipeline) String() string {
	return strings.Join(p.Stages(), " -> ")
}

// Close tears the stages down, outermost first, which is the reverse of
// construction order. The buffer itself is left intact.
func (p *Pipeline) Close() []string {
	if p.closed {
		return nil
	}
	var order []string
	for i := len(p.stages) - 1; i >= 0; i-- {
		w := p.stages[i]
		if c, ok := w.(interface{ Close() }); ok {
			c.Close()
		}
		order = append(order, fmt.Sprint(w))
	}
	p.stages = nil
	p.head = nil
	p.closed = true
	return order
}

// Closed reports whether Close was called.
func (p *Pipeline) Closed() bool {
	return p.closed
}
