package checkup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrSchemaValidation matches any ValidationError.
var ErrSchemaValidation = errors.New("schema validation failed")

// ValidationError is returned when a payload does not match the record schema.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "schema validation failed: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrSchemaValidation, e.Err}
}

var defaultSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return CompileSchema(BuildHealthCheckupJSONSchema())
})

// CompileSchema compiles a schema map.
func CompileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateJSON validates data against the health checkup schema.
func ValidateJSON(data []byte) error {
	schema, err := defaultSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return &ValidationError{Err: fmt.Errorf("unmarshal data: %w", err)}
	}
	if err := schema.Validate(v); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// Validate checks the record against the schema.
func (r Record) Validate() error {
	b, err := json.Marshal(r)
	if err != nil {
		return &ValidationError{Err: fmt.Errorf("marshal record: %w", err)}
	}
	return ValidateJSON(b)
}

// Decode turns raw model output into a validated record. With lenient set, a
// payload that fails validation is sanitized once and re-validated; the
// returned slice names the keys the sanitizer touched.
func Decode(raw []byte, lenient bool) (Record, []string, error) {
	content := StripCodeFence(raw)

	verr := ValidateJSON(content)
	var changed []string
	if verr != nil {
		if !lenient {
			return Record{}, nil, verr
		}
		cleaned, touched, err := SanitizeLenient(content)
		if err != nil {
			return Record{}, nil, &ValidationError{Err: fmt.Errorf("sanitize: %w", err)}
		}
		if err := ValidateJSON(cleaned); err != nil {
			return Record{}, touched, err
		}
		content, changed = cleaned, touched
	}

	var rec Record
	if err := json.Unmarshal(content, &rec); err != nil {
		return Record{}, changed, &ValidationError{Err: err}
	}
	return rec, changed, nil
}

// StripCodeFence removes a surrounding ```json fence that chat models like to add.
func StripCodeFence(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return []byte(s)
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(strings.TrimSpace(s))
}
