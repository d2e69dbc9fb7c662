// Package skemac compiles JSON Schema (draft 2020-12) documents into
// validator programs.
//
// A Compiler walks a schema once, resolves its references and emits one
// program function per schema environment through the codegen builder. The
// optimized programs run on an internal interpreter; every regexp, format,
// keyword callable and referenced validator they use lives in a shared value
// table and is reached by name. Compiling the same schema object twice
// returns the same Validator.
//
// Typical usage:
//
//	c := skemac.New(skemac.DefaultOptions())
//	v, err := c.Compile(schema)
//	res, err := v.Run(ctx, &instance)
//	if !res.Valid {
//		for _, it := range res.Errors { ... }
//	}
//
// The vocabulary is extended with AddKeyword before the first compilation.
// A keyword is implemented by exactly one of Code (emits program text through
// a KeywordCxt), Compile (builds a Go checker from the schema value),
// Validate (called with the schema value and instance) or Macro (expands into
// another schema). The registry freezes on first compilation.
//
// Export serializes the program of a validator and everything it references;
// Load runs it without a compiler.
package skemac
