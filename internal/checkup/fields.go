// Package checkup defines the health checkup record: the fixed field catalogue,
// its JSON schema, validation, and the page attribution map that accompanies it.
package checkup

// Field describes one schema key.
type Field struct {
	Key   string
	Label string
	Unit  string // typical unit, used as a prompt hint only
}

// MetadataFields are the non-test keys at the top level of a record.
// They are never pruned: a merged record always carries every one of them.
var MetadataFields = []Field{
	{Key: "name", Label: "Patient name"},
	{Key: "gender", Label: "Sex"},
	{Key: "birth_date", Label: "Date of birth"},
	{Key: "age", Label: "Age"},
	{Key: "checkup_date", Label: "Checkup date"},
	{Key: "hospital", Label: "Examining institution"},
}

// TestFields are the keys of the test_result object.
var TestFields = []Field{
	{Key: "height", Label: "Height", Unit: "cm"},
	{Key: "weight", Label: "Weight", Unit: "kg"},
	{Key: "waist_circumference", Label: "Waist circumference", Unit: "cm"},
	{Key: "bmi", Label: "Body mass index", Unit: "kg/m2"},
	{Key: "vision_left", Label: "Visual acuity (left)"},
	{Key: "vision_right", Label: "Visual acuity (right)"},
	{Key: "hearing_left", Label: "Hearing (left)"},
	{Key: "hearing_right", Label: "Hearing (right)"},
	{Key: "systolic_bp", Label: "Systolic blood pressure", Unit: "mmHg"},
	{Key: "diastolic_bp", Label: "Diastolic blood pressure", Unit: "mmHg"},
	{Key: "hemoglobin", Label: "Hemoglobin", Unit: "g/dL"},
	{Key: "hematocrit", Label: "Hematocrit", Unit: "%"},
	{Key: "rbc", Label: "Red blood cell count", Unit: "10^6/uL"},
	{Key: "wbc", Label: "White blood cell count", Unit: "10^3/uL"},
	{Key: "platelet", Label: "Platelet count", Unit: "10^3/uL"},
	{Key: "glucose", Label: "Fasting blood glucose", Unit: "mg/dL"},
	{Key: "hba1c", Label: "Hemoglobin A1c", Unit: "%"},
	{Key: "total_cholesterol", Label: "Total cholesterol", Unit: "mg/dL"},
	{Key: "hdl_cholesterol", Label: "HDL cholesterol", Unit: "mg/dL"},
	{Key: "ldl_cholesterol", Label: "LDL cholesterol", Unit: "mg/dL"},
	{Key: "triglyceride", Label: "Triglycerides", Unit: "mg/dL"},
	{Key: "ast", Label: "AST (SGOT)", Unit: "IU/L"},
	{Key: "alt", Label: "ALT (SGPT)", Unit: "IU/L"},
	{Key: "gamma_gtp", Label: "Gamma-GTP", Unit: "IU/L"},
	{Key: "alp", Label: "Alkaline phosphatase", Unit: "IU/L"},
	{Key: "total_bilirubin", Label: "Total bilirubin", Unit: "mg/dL"},
	{Key: "total_protein", Label: "Total protein", Unit: "g/dL"},
	{Key: "albumin", Label: "Albumin", Unit: "g/dL"},
	{Key: "bun", Label: "Blood urea nitrogen", Unit: "mg/dL"},
	{Key: "creatinine", Label: "Serum creatinine", Unit: "mg/dL"},
	{Key: "egfr", Label: "eGFR", Unit: "mL/min/1.73m2"},
	{Key: "uric_acid", Label: "Uric acid", Unit: "mg/dL"},
	{Key: "sodium", Label: "Sodium", Unit: "mmol/L"},
	{Key: "potassium", Label: "Potassium", Unit: "mmol/L"},
	{Key: "calcium", Label: "Calcium", Unit: "mg/dL"},
	{Key: "tsh", Label: "Thyroid stimulating hormone", Unit: "uIU/mL"},
	{Key: "free_t4", Label: "Free T4", Unit: "ng/dL"},
	{Key: "crp", Label: "C-reactive protein", Unit: "mg/dL"},
	{Key: "hbsag", Label: "Hepatitis B surface antigen"},
	{Key: "hbsab", Label: "Hepatitis B surface antibody"},
	{Key: "urine_protein", Label: "Urine protein"},
	{Key: "urine_glucose", Label: "Urine glucose"},
	{Key: "urine_occult_blood", Label: "Urine occult blood"},
	{Key: "urine_ph", Label: "Urine pH"},
}

// TestResultKey is the top-level key holding test fields.
const TestResultKey = "test_result"

var (
	metadataIndex = indexFields(MetadataFields)
	testIndex     = indexFields(TestFields)
)

func indexFields(fs []Field) map[string]Field {
	m := make(map[string]Field, len(fs))
	for _, f := range fs {
		m[f.Key] = f
	}
	return m
}

// IsMetadataField reports whether key is a top-level metadata key.
func IsMetadataField(key string) bool {
	_, ok := metadataIndex[key]
	return ok
}

// IsTestField reports whether key is a test_result key.
func IsTestField(key string) bool {
	_, ok := testIndex[key]
	return ok
}

// LookupField returns the catalogue entry for a metadata or test key.
func LookupField(key string) (Field, bool) {
	if f, ok := metadataIndex[key]; ok {
		return f, true
	}
	f, ok := testIndex[key]
	return f, ok
}
