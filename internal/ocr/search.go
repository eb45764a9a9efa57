package ocr

import (
	"sort"
	"strings"
)

// Match is a word that matched a keyword.
type Match struct {
	Page     int // 1-based
	Word     Word
	Distance float64
	Exact    bool
}

// FindMatches searches every page for keyword. Exact matches win; substring
// matches are only returned when nothing matches exactly. Results are sorted
// by centroid distance to the page origin, then page number, then word id.
func FindMatches(res Result, keyword string) []Match {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil
	}

	var exact, partial []Match
	for _, p := range res.Pages {
		for _, w := range p.Words {
			switch {
			case w.Text == keyword:
				exact = append(exact, Match{Page: p.Number(), Word: w, Distance: w.BoundingBox.DistanceToOrigin(), Exact: true})
			case strings.Contains(w.Text, keyword):
				partial = append(partial, Match{Page: p.Number(), Word: w, Distance: w.BoundingBox.DistanceToOrigin()})
			}
		}
	}

	out := exact
	if len(out) == 0 {
		out = partial
	}
	sortMatches(out)
	return out
}

// BestPage returns the page holding the best match for value. Multi-word
// values that match nothing fall back to their first token.
func BestPage(res Result, value string) (int, bool) {
	if m := FindMatches(res, value); len(m) > 0 {
		return m[0].Page, true
	}
	fields := strings.Fields(value)
	if len(fields) > 1 {
		if m := FindMatches(res, fields[0]); len(m) > 0 {
			return m[0].Page, true
		}
	}
	return 0, false
}

// FocusedWords returns the words on one page (1-based) matching keyword,
// exact matches first, falling back to substring matches, nearest first.
func FocusedWords(res Result, page int, keyword string) []Word {
	if page < 1 || page > len(res.Pages) {
		return nil
	}
	single := Result{Pages: []Page{res.Pages[page-1]}}
	matches := FindMatches(single, keyword)
	words := make([]Word, len(matches))
	for i, m := range matches {
		words[i] = m.Word
	}
	return words
}

func sortMatches(ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Distance != ms[j].Distance {
			return ms[i].Distance < ms[j].Distance
		}
		if ms[i].Page != ms[j].Page {
			return ms[i].Page < ms[j].Page
		}
		return ms[i].Word.ID < ms[j].Word.ID
	})
}
