package checkup

// PageRef points at a 1-based page number.
type PageRef struct {
	Page int `json:"page"`
}

// PageMap maps field keys to the page their value was found on. A nil entry
// means no page could be determined.
type PageMap map[string]*PageRef

// Page returns a page reference for n.
func Page(n int) *PageRef { return &PageRef{Page: n} }

// Lookup returns the page number for key if one was determined.
func (m PageMap) Lookup(key string) (int, bool) {
	if ref, ok := m[key]; ok && ref != nil {
		return ref.Page, true
	}
	return 0, false
}
