package kubeopenapi

import (
	"fmt"

	"github.com/reoring/skemac"
)

// UnknownBehavior configures how fields not declared by an object schema are
// treated.
type UnknownBehavior int

const (
	// UnknownPrune accepts undeclared fields; the API server would drop them.
	UnknownPrune UnknownBehavior = iota
	// UnknownStrict rejects undeclared fields unless the object has
	// x-kubernetes-preserve-unknown-fields.
	UnknownStrict
)

// Profile selects a compatibility profile.
type Profile string

const (
	ProfileStructuralV1 Profile = "structural-v1"
	ProfileLoose        Profile = "loose"
)

// Options controls import behavior for Kubernetes OpenAPI v3 schemas.
type Options struct {
	Profile Profile
	Unknown UnknownBehavior
	// EnableEmbeddedChecks turns x-kubernetes-embedded-resource into a check
	// for apiVersion, kind and metadata; otherwise it is an annotation.
	EnableEmbeddedChecks bool
	// Compiler configures the compiler Import creates. Nil selects
	// skemac.DefaultOptions with strict findings logged instead of failing.
	Compiler *skemac.Options
}

func (o Options) compilerOptions() skemac.Options {
	if o.Compiler != nil {
		return *o.Compiler
	}
	co := skemac.DefaultOptions()
	co.Strict = skemac.StrictLog
	return co
}

// Diag carries non-fatal warnings produced during import.
type Diag interface {
	HasWarnings() bool
	Warnings() []string
}

type simpleDiag struct{ ws []string }

func (d *simpleDiag) HasWarnings() bool        { return len(d.ws) > 0 }
func (d *simpleDiag) Warnings() []string       { return append([]string(nil), d.ws...) }
func (d *simpleDiag) warnf(f string, a ...any) { d.ws = append(d.ws, fmt.Sprintf(f, a...)) }
