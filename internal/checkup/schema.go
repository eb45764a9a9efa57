package checkup

// BuildHealthCheckupJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// It is sent to vision models as the output contract and used locally to validate.
func BuildHealthCheckupJSONSchema() map[string]any {
	props := map[string]any{}
	for _, f := range MetadataFields {
		props[f.Key] = nullableString(f.Label)
	}

	testProps := map[string]any{}
	for _, f := range TestFields {
		testProps[f.Key] = testResultProp(f)
	}
	props[TestResultKey] = map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           testProps,
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{TestResultKey},
	}
}

func nullableString(desc string) map[string]any {
	return map[string]any{
		"type":        []string{"string", "null"},
		"description": desc,
	}
}

func testResultProp(f Field) map[string]any {
	desc := f.Label
	if f.Unit != "" {
		desc += " (usually " + f.Unit + ")"
	}
	return map[string]any{
		"type":                 []string{"object", "null"},
		"description":          desc,
		"additionalProperties": false,
		"properties": map[string]any{
			"value": nullableString("value as printed"),
			"unit":  nullableString("unit as printed"),
		},
		"required": []string{"value", "unit"},
	}
}
