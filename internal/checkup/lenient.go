package checkup

import (
	"encoding/json"
	"strconv"
	"strings"
)

// placeholder strings that mean "not reported"
var nullish = map[string]struct{}{
	"":     {},
	"null": {},
	"none": {},
	"n/a":  {},
	"na":   {},
	"-":    {},
}

// SanitizeLenient normalizes shapes models commonly get wrong so the document
// can still validate: numbers become strings, placeholder strings become null
// and test results missing value/unit get explicit nulls. Unknown keys are
// left alone so validation still rejects them.
func SanitizeLenient(doc []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, err
	}

	var changed []string
	for _, f := range MetadataFields {
		v, ok := m[f.Key]
		if !ok {
			continue
		}
		if nv, touched := normalizeScalar(v); touched {
			m[f.Key] = nv
			changed = append(changed, f.Key)
		}
	}

	if tests, ok := m[TestResultKey].(map[string]any); ok {
		for k, v := range tests {
			if !IsTestField(k) {
				continue
			}
			switch t := v.(type) {
			case map[string]any:
				touched := false
				for _, sub := range []string{"value", "unit"} {
					sv, present := t[sub]
					if !present {
						t[sub] = nil
						touched = true
						continue
					}
					if nv, ok := normalizeScalar(sv); ok {
						t[sub] = nv
						touched = true
					}
				}
				if touched {
					changed = append(changed, k)
				}
			case nil:
			default:
				// bare scalar: treat as value without unit
				nv, _ := normalizeScalar(t)
				tests[k] = map[string]any{"value": nv, "unit": nil}
				changed = append(changed, k)
			}
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, changed, nil
}

// normalizeScalar returns the replacement value and whether it changed.
func normalizeScalar(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case string:
		s := strings.TrimSpace(t)
		if _, ok := nullish[strings.ToLower(s)]; ok {
			return nil, true
		}
		if s != t {
			return s, true
		}
		return t, false
	default:
		return v, false
	}
}
