package kubeopenapi

import (
	"errors"

	"github.com/reoring/skemac"
)

// ImportYAMLForCRDKind scans a multi-document YAML (e.g., CRD bundle) and imports
// the first CustomResourceDefinition matching the given spec.names.kind.
func ImportYAMLForCRDKind(data []byte, kind string, opts Options) (*skemac.Validator, Diag, error) {
	return importYAML(data, opts, func(m map[string]any) bool {
		spec, _ := m["spec"].(map[string]any)
		names, _ := spec["names"].(map[string]any)
		k, _ := names["kind"].(string)
		return k == kind
	}, "kubeopenapi: CRD kind not found in YAML bundle")
}

// ImportYAMLForCRDName scans a multi-document YAML and imports the CRD
// with given metadata.name.
func ImportYAMLForCRDName(data []byte, name string, opts Options) (*skemac.Validator, Diag, error) {
	return importYAML(data, opts, func(m map[string]any) bool {
		meta, _ := m["metadata"].(map[string]any)
		n, _ := meta["name"].(string)
		return n == name
	}, "kubeopenapi: CRD name not found in YAML bundle")
}

// ExtractSchemas returns the openAPIV3Schema of every CRD in a YAML bundle,
// keyed by metadata.name.
func ExtractSchemas(data []byte) (map[string]map[string]any, error) {
	crds, err := crdDocs(data)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any, len(crds))
	for _, m := range crds {
		meta, _ := m["metadata"].(map[string]any)
		n, _ := meta["name"].(string)
		if s := unwrapCRDSchema(m); s != nil {
			out[n] = s
		}
	}
	return out, nil
}

func importYAML(data []byte, opts Options, match func(map[string]any) bool, notFound string) (*skemac.Validator, Diag, error) {
	crds, err := crdDocs(data)
	if err != nil {
		return nil, &simpleDiag{}, err
	}
	for _, m := range crds {
		if match(m) {
			return Import(m, opts)
		}
	}
	return nil, &simpleDiag{}, errors.New(notFound)
}

func crdDocs(data []byte) ([]map[string]any, error) {
	docs, err := skemac.ParseYAMLAll(data)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for _, doc := range docs {
		m, ok := doc.(map[string]any)
		if !ok {
			continue
		}
		if k, _ := m["kind"].(string); k == "CustomResourceDefinition" {
			out = append(out, m)
		}
	}
	return out, nil
}
