// Package validate holds result validators applied to a task's terminal
// payload before it is handed to the caller.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/jobwatch/internal/common"
)

// ResultValidator accepts, rejects or transforms a terminal payload.
// Rejections are validation errors (errors.Is(err, common.ErrValidation)).
type ResultValidator interface {
	Validate(payload any) (any, error)
}

// Func adapts a plain function to ResultValidator.
type Func func(payload any) (any, error)

func (f Func) Validate(payload any) (any, error) { return f(payload) }

type chain []ResultValidator

// Chain runs validators in order, feeding each the previous one's output.
// The first rejection wins.
func Chain(validators ...ResultValidator) ResultValidator {
	out := make(chain, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

func (c chain) Validate(payload any) (any, error) {
	var err error
	for _, v := range c {
		if payload, err = v.Validate(payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

type fieldLongerThan struct {
	field string
	min   int
}

// FieldLongerThan accepts an object payload whose field is a string strictly
// longer than n characters. The payload is passed through unchanged.
func FieldLongerThan(field string, n int) ResultValidator {
	return fieldLongerThan{field: field, min: n}
}

func (f fieldLongerThan) Validate(payload any) (any, error) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, common.ValidationError(fmt.Sprintf("result is not an object (got %T)", payload), nil)
	}
	s, ok := obj[f.field].(string)
	if !ok {
		return nil, common.ValidationError(fmt.Sprintf("result has no %q", f.field), nil)
	}
	if n := utf8.RuneCountInString(s); n <= f.min {
		return nil, common.ValidationError(
			fmt.Sprintf("%q too short or invalid (%d characters, need more than %d)", f.field, n, f.min), nil)
	}
	return payload, nil
}

type schemaValidator struct {
	schema *jsonschema.Schema
}

// Schema compiles schemaMap (a JSON Schema document) into a validator. The
// payload is normalized through JSON so structs and maps validate alike.
func Schema(schemaMap map[string]any) (ResultValidator, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("result.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schemaValidator{schema: schema}, nil
}

// MustSchema is Schema for package-level schemas known to be valid.
func MustSchema(schemaMap map[string]any) ResultValidator {
	v, err := Schema(schemaMap)
	if err != nil {
		panic(err)
	}
	return v
}

func (s schemaValidator) Validate(payload any) (any, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, common.ValidationError("result is not JSON-encodable", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, common.ValidationError("result is not valid JSON", err)
	}
	if err := s.schema.Validate(v); err != nil {
		return nil, common.ValidationError("result does not match schema", err)
	}
	return v, nil
}
