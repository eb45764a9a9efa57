package ocr

import "testing"

func word(id int, text string, l, t float64) Word {
	return Word{ID: id, Text: text, Confidence: 0.98, BoundingBox: Polygon{Vertices: ToVertices(BoundingBox{L: l, T: t, R: l + 10, B: t + 10}, 0, OriginTopLeft)}}
}

func result(pages ...[]Word) Result {
	res := Result{}
	for i, ws := range pages {
		res.Pages = append(res.Pages, Page{ID: i, Width: 1000, Height: 1000, Words: ws})
	}
	return res
}

func TestBestPage(t *testing.T) {
	tests := []struct {
		name     string
		res      Result
		value    string
		wantPage int
		wantOK   bool
	}{
		{
			name:     "single exact match on page 2",
			res:      result([]Word{word(0, "Name", 5, 5)}, []Word{word(0, "120", 10, 10)}),
			value:    "120",
			wantPage: 2,
			wantOK:   true,
		},
		{
			name:     "nearest to origin wins across pages",
			res:      result([]Word{word(0, "95", 800, 900)}, []Word{word(0, "95", 20, 30)}),
			value:    "95",
			wantPage: 2,
			wantOK:   true,
		},
		{
			name:     "equal distance picks lower page",
			res:      result([]Word{word(0, "95", 100, 100)}, []Word{word(0, "95", 100, 100)}, []Word{word(0, "95", 100, 100)}),
			value:    "95",
			wantPage: 1,
			wantOK:   true,
		},
		{
			name:     "exact beats closer substring",
			res:      result([]Word{word(0, "120/80", 0, 0)}, []Word{word(0, "120", 900, 900)}),
			value:    "120",
			wantPage: 2,
			wantOK:   true,
		},
		{
			name:     "substring when no exact",
			res:      result([]Word{word(0, "x", 1, 1), word(1, "120/80", 50, 50)}),
			value:    "120",
			wantPage: 1,
			wantOK:   true,
		},
		{
			name:     "multi-word falls back to first token",
			res:      result([]Word{word(0, "Seoul", 1, 1)}, []Word{}),
			value:    "Seoul Central Clinic",
			wantPage: 1,
			wantOK:   true,
		},
		{
			name:   "no match",
			res:    result([]Word{word(0, "abc", 1, 1)}),
			value:  "95",
			wantOK: false,
		},
		{
			name:   "blank value",
			res:    result([]Word{word(0, "abc", 1, 1)}),
			value:  "  ",
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, ok := BestPage(tt.res, tt.value)
			if ok != tt.wantOK || page != tt.wantPage {
				t.Errorf("BestPage() = %d, %v, want %d, %v", page, ok, tt.wantPage, tt.wantOK)
			}
		})
	}
}

func TestFocusedWords(t *testing.T) {
	res := result(
		[]Word{word(0, "95", 500, 500), word(1, "95", 10, 10), word(2, "195", 0, 0)},
		[]Word{word(0, "195", 0, 0)},
	)

	got := FocusedWords(res, 1, "95")
	if len(got) != 2 {
		t.Fatalf("FocusedWords() len = %d, want 2 exact matches", len(got))
	}
	if got[0].ID != 1 {
		t.Errorf("FocusedWords()[0].ID = %d, want nearest word 1", got[0].ID)
	}

	got = FocusedWords(res, 2, "95")
	if len(got) != 1 || got[0].Text != "195" {
		t.Errorf("FocusedWords(page 2) = %v, want substring match 195", got)
	}

	if got := FocusedWords(res, 3, "95"); got != nil {
		t.Errorf("FocusedWords(out of range) = %v, want nil", got)
	}
}
