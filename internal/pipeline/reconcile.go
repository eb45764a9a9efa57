package pipeline

import (
	"fmt"

	"github.com/joseph-ayodele/checkup-extractor/constants"
	"github.com/joseph-ayodele/checkup-extractor/internal/checkup"
)

// Merged is the reconciled record and the pages its values came from.
type Merged struct {
	Record checkup.Record  `json:"data"`
	Pages  checkup.PageMap `json:"pages"`
}

// Reconcile merges the candidates field by field, taking the first non-null
// value in strategy precedence order. Metadata keys are always present and
// null when no strategy found them; test keys no strategy found are dropped.
// The page of a selected value comes from the strategy it was taken from.
// A merged record that fails schema validation is an error.
func Reconcile(c Candidates) (Merged, error) {
	m := Merged{Record: checkup.NewRecord(), Pages: checkup.PageMap{}}

	for _, f := range checkup.MetadataFields {
		m.Record.Meta[f.Key] = nil
		for _, s := range constants.Strategies {
			r, ok := c[s]
			if !ok {
				continue
			}
			if v := r.Record.Meta[f.Key]; v != nil {
				m.Record.Meta[f.Key] = v
				m.Pages[f.Key] = r.Pages[f.Key]
				break
			}
		}
	}

	for _, f := range checkup.TestFields {
		for _, s := range constants.Strategies {
			r, ok := c[s]
			if !ok {
				continue
			}
			if t := r.Record.Tests[f.Key]; t.HasValue() {
				m.Record.Tests[f.Key] = t
				m.Pages[f.Key] = r.Pages[f.Key]
				break
			}
		}
	}

	if err := m.Record.Validate(); err != nil {
		return Merged{}, fmt.Errorf("reconcile: %w", err)
	}
	return m, nil
}
