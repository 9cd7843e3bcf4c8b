package jit

import (
	"io"
	"os"

	"github.com/xyproto/env/v2"
)

// DefaultCodeChunkPages is the size of one code memory chunk, in pages.
const DefaultCodeChunkPages = 16

// Config holds the settings of a Context.
type Config struct {
	Verbose             bool      // trace every emitted instruction and compiled fragment
	Validate            bool      // validators at both ends of each pipeline
	Engine              string    // "native", "interp" or "" for the best available
	CodeChunkPages      int       // native code memory grows by this many pages
	Log                 io.Writer // traces and warnings
	AbortOnBackendError bool      // exit the process when an engine fails
}

// ConfigFromEnv reads the defaults from NJX_VERBOSE, NJX_VALIDATE,
// NJX_ENGINE and NJX_CODE_CHUNK. Validation is on unless NJX_VALIDATE says otherwise.
func ConfigFromEnv() Config {
	cfg := Config{
		Verbose:        env.Bool("NJX_VERBOSE"),
		Validate:       true,
		Engine:         env.Str("NJX_ENGINE"),
		CodeChunkPages: env.Int("NJX_CODE_CHUNK", DefaultCodeChunkPages),
		Log:            os.Stderr,
	}
	if env.Has("NJX_VALIDATE") {
		cfg.Validate = env.Bool("NJX_VALIDATE")
	}
	if cfg.CodeChunkPages <= 0 {
		cfg.CodeChunkPages = DefaultCodeChunkPages
	}
	return cfg
}

// Option adjusts a Config. Options override the environment.
type Option func(*Config)

// WithEngine selects the compilation engine by name.
func WithEngine(name string) Option {
	return func(c *Config) { c.Engine = name }
}

// WithValidation turns the pipeline validators on or off.
func WithValidation(on bool) Option {
	return func(c *Config) { c.Validate = on }
}

// WithLog sends traces and warnings to w.
func WithLog(w io.Writer) Option {
	return func(c *Config) { c.Log = w }
}

// WithAbortOnBackendError makes engine failures fatal: the diagnostic is
// printed and the process exits with status 1.
func WithAbortOnBackendError() Option {
	return func(c *Config) { c.AbortOnBackendError = true }
}

// WithCodeChunk sets the native code memory chunk size in pages.
func WithCodeChunk(pages int) Option {
	return func(c *Config) {
		if pages > 0 {
			c.CodeChunkPages = pages
		}
	}
}
