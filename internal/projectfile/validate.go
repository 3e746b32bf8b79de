package projectfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "ganttguild://project.schema.json"

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile(schemaURL)
})

// ValidationError lists every schema violation of a project file.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid project file:\n  " + strings.Join(e.Problems, "\n  ")
}

// Validate checks f against the project file schema. Every format is checked
// through its JSON form so the rules are the same for all of them.
func Validate(f *File) error {
	schema, err := compileSchema()
	if err != nil {
		return fmt.Errorf("compile project schema: %w", err)
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	err = schema.Validate(doc)
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	out := &ValidationError{}
	collect(out, ve)
	return out
}

func collect(out *ValidationError, err *jsonschema.ValidationError) {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		out.Problems = append(out.Problems, loc+": "+err.Message)
		return
	}
	for _, cause := range err.Causes {
		collect(out, cause)
	}
}
