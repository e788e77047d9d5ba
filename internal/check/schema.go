package check

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/wesleyorama2/swarm/internal/session"
)

// MatchesSchema compiles a JSON Schema and returns a validator accepting
// extracted JSON that conforms to it. Schema errors are reported here so
// they surface before any user runs.
func MatchesSchema(schema string) (Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	return ValidatorFunc(func(x Extraction, _ *session.Session) error {
		var doc any
		dec := json.NewDecoder(bytes.NewReader(x.Raw))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return reject(ReasonSchema, "value is not JSON")
		}
		if err := compiled.Validate(doc); err != nil {
			var verr *jsonschema.ValidationError
			if errors.As(err, &verr) {
				return reject(ReasonSchema, "%s", firstCause(verr))
			}
			return reject(ReasonSchema, "%v", err)
		}
		return nil
	}), nil
}

// firstCause walks to the innermost cause, which names the failing location.
func firstCause(err *jsonschema.ValidationError) string {
	for len(err.Causes) > 0 {
		err = err.Causes[0]
	}
	loc := err.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return fmt.Sprintf("at %s: %s", loc, err.Message)
}
