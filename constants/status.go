package constants

// RecordStatus is the canonical status for rows in health_record.
type RecordStatus string

// Stable values (store these exact strings).
const (
	RecordStatusParsing   RecordStatus = "PARSING"   // pipeline running
	RecordStatusCompleted RecordStatus = "COMPLETED" // merged record stored
	RecordStatusError     RecordStatus = "ERROR"     // terminal failure, message stored
)

// Terminal reports whether no further transition is expected.
func (s RecordStatus) Terminal() bool {
	return s == RecordStatusCompleted || s == RecordStatusError
}
