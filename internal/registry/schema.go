package registry

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ParamSchema wraps a compiled JSON Schema (Draft 2020-12) describing a node
// kind's parameter map, plus the set of properties the schema author marked
// "tunable": true — the only properties UpdateParams may touch post-Init
// (spec §3 invariant 6, §6 "Node parameter schemas").
type ParamSchema struct {
	compiled *jsonschema.Schema
	tunable  map[string]bool
}

// CompileParamSchema compiles raw JSON Schema text and extracts the tunable
// set. The "tunable" keyword is a non-standard extension read directly out
// of the raw property objects, since jsonschema/v6 only validates against
// known vocabulary keywords and leaves unrecognized ones alone.
func CompileParamSchema(name string, raw []byte) (*ParamSchema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("registry: param schema %s: decode: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("registry: param schema %s: add resource: %w", name, err)
	}
	compiled, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("registry: param schema %s: compile: %w", name, err)
	}

	return &ParamSchema{compiled: compiled, tunable: extractTunable(doc)}, nil
}

func extractTunable(doc any) map[string]bool {
	out := map[string]bool{}
	obj, ok := doc.(map[string]any)
	if !ok {
		return out
	}
	props, ok := obj["properties"].(map[string]any)
	if !ok {
		return out
	}
	for name, rawProp := range props {
		prop, ok := rawProp.(map[string]any)
		if !ok {
			continue
		}
		if t, ok := prop["tunable"].(bool); ok && t {
			out[name] = true
		}
	}
	return out
}

// Validate checks a full parameter map against the schema, as graph.Build
// does for every node before materializing it.
func (s *ParamSchema) Validate(params map[string]any) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	// jsonschema/v6 validates against decoded JSON values (map[string]any,
	// []any, json.Number, ...); round-trip through encoding/json so numeric
	// and nested values match the shapes the compiler expects.
	norm, err := normalizeForValidation(params)
	if err != nil {
		return fmt.Errorf("registry: normalize params: %w", err)
	}
	if err := s.compiled.Validate(norm); err != nil {
		return fmt.Errorf("registry: param validation: %w", err)
	}
	return nil
}

// IsTunable reports whether a property may be changed through UpdateParams
// after Init has run.
func (s *ParamSchema) IsTunable(name string) bool {
	if s == nil {
		return false
	}
	return s.tunable[name]
}

// Tunable returns the set of tunable property names.
func (s *ParamSchema) Tunable() map[string]bool {
	if s == nil {
		return nil
	}
	out := make(map[string]bool, len(s.tunable))
	for k := range s.tunable {
		out[k] = true
	}
	return out
}

func normalizeForValidation(params map[string]any) (any, error) {
	buf, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(buf, &v); err != nil {
		return nil, err
	}
	return v, nil
}
