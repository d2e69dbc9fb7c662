package skemac

import (
	"context"

	"go.uber.org/zap"
)

// StrictMode controls how schema findings that are not errors by the
// standard are treated (unknown keywords, unknown formats, ignored defaults).
type StrictMode int

const (
	StrictError StrictMode = iota // Fail compilation.
	StrictLog                     // Log a warning and continue.
	StrictOff                     // Ignore.
)

// CoerceMode selects type coercion of instance values.
type CoerceMode int

const (
	CoerceOff   CoerceMode = iota
	CoerceOn               // Scalars are converted to the declared type.
	CoerceArray            // As CoerceOn, plus wrapping/unwrapping single-element arrays.
)

// DefaultsMode selects injection of "default" values.
type DefaultsMode int

const (
	DefaultsOff   DefaultsMode = iota
	DefaultsOn                 // Assign when the property/item is absent.
	DefaultsEmpty              // Also assign over null and "".
)

// InlineRefs is the inlining policy for resolved references. A reference
// target without nested references is compiled into the caller when
// Enabled and it has at most MaxKeys keywords (0 means no limit).
type InlineRefs struct {
	Enabled bool
	MaxKeys int
}

// Loader fetches a schema document by absolute identifier for CompileAsync.
type Loader func(ctx context.Context, uri string) (any, error)

// Options configures a Compiler.
type Options struct {
	AllErrors   bool // Collect every error instead of stopping at the first.
	Strict      StrictMode
	Coerce      CoerceMode
	Defaults    DefaultsMode
	Unevaluated bool // Track evaluated properties/items (required by unevaluated*).
	Data        bool // Allow {"$data": "<relative json pointer>"} keyword values.
	InlineRefs  InlineRefs

	// LoopRequired and LoopEnum switch "required" and "enum" from unrolled
	// checks to a loop over a hoisted list above this many entries.
	LoopRequired int
	LoopEnum     int

	OptimizePasses int // IR optimizer passes per function (at least 1).
	MaxDepth       int // Maximum schema nesting depth (0 means no limit).

	ValidateFormats        bool // Check "format"; when false the keyword is annotation only.
	ValidateKeywordSchemas bool // Validate keyword values against keyword metaschemas.

	Loader   Loader
	Logger   *zap.Logger
	Language string // BCP-47 tag selecting the message catalog.
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		Strict:                 StrictError,
		Unevaluated:            true,
		InlineRefs:             InlineRefs{Enabled: true, MaxKeys: 0},
		LoopRequired:           8,
		LoopEnum:               8,
		OptimizePasses:         1,
		MaxDepth:               256,
		ValidateFormats:        true,
		ValidateKeywordSchemas: true,
		Language:               "en",
	}
}

func (o *Options) normalize() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.OptimizePasses < 1 {
		o.OptimizePasses = 1
	}
	if o.Language == "" {
		o.Language = "en"
	}
}
