package checkup

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TestResult is one measured value as printed on the document.
type TestResult struct {
	Value *string `json:"value"`
	Unit  *string `json:"unit"`
}

// HasValue reports whether the result carries a non-null value.
func (t *TestResult) HasValue() bool {
	return t != nil && t.Value != nil
}

// Record is a health checkup record. Meta holds top-level metadata keys and
// Tests the test_result object. A key mapped to nil is present with a null
// value; an absent key is absent from the JSON form too.
type Record struct {
	Meta  map[string]*string
	Tests map[string]*TestResult
}

// NewRecord returns a record with no keys set.
func NewRecord() Record {
	return Record{
		Meta:  map[string]*string{},
		Tests: map[string]*TestResult{},
	}
}

// EmptyRecord returns a record where every catalogue key is present and null.
// A strategy that exhausted its retries contributes this.
func EmptyRecord() Record {
	r := NewRecord()
	for _, f := range MetadataFields {
		r.Meta[f.Key] = nil
	}
	for _, f := range TestFields {
		r.Tests[f.Key] = nil
	}
	return r
}

// Value returns the non-null value for a metadata or test key.
func (r Record) Value(key string) (string, bool) {
	if IsMetadataField(key) {
		if v := r.Meta[key]; v != nil {
			return *v, true
		}
		return "", false
	}
	if t := r.Tests[key]; t.HasValue() {
		return *t.Value, true
	}
	return "", false
}

// NonNullKeys returns metadata and test keys holding a value, in catalogue order.
func (r Record) NonNullKeys() []string {
	var keys []string
	for _, f := range MetadataFields {
		if r.Meta[f.Key] != nil {
			keys = append(keys, f.Key)
		}
	}
	for _, f := range TestFields {
		if r.Tests[f.Key].HasValue() {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// MarshalJSON flattens metadata to the top level next to test_result.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Meta)+1)
	for k, v := range r.Meta {
		out[k] = v
	}
	tests := r.Tests
	if tests == nil {
		tests = map[string]*TestResult{}
	}
	out[TestResultKey] = tests
	return json.Marshal(out)
}

// UnmarshalJSON rejects keys outside the catalogue.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rec := NewRecord()
	for k, v := range raw {
		if k == TestResultKey {
			var tests map[string]*TestResult
			if err := json.Unmarshal(v, &tests); err != nil {
				return fmt.Errorf("%s: %w", TestResultKey, err)
			}
			for tk, tv := range tests {
				if !IsTestField(tk) {
					return fmt.Errorf("unknown test field %q", tk)
				}
				rec.Tests[tk] = tv
			}
			continue
		}
		if !IsMetadataField(k) {
			return fmt.Errorf("unknown field %q", k)
		}
		var s *string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		rec.Meta[k] = s
	}
	*r = rec
	return nil
}

// String renders a compact summary for logs.
func (r Record) String() string {
	var b strings.Builder
	b.WriteString("record{")
	for i, k := range r.NonNullKeys() {
		if i > 0 {
			b.WriteByte(' ')
		}
		v, _ := r.Value(k)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	b.WriteByte('}')
	return b.String()
}

// StringPtr is a small helper for building records in code.
func StringPtr(s string) *string { return &s }
