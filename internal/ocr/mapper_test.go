package ocr

import (
	"reflect"
	"testing"
)

func TestToVerticesBottomLeft(t *testing.T) {
	tests := []struct {
		name string
		box  BoundingBox
		h    float64
		want []Vertex
	}{
		{
			name: "integer box",
			box:  BoundingBox{L: 10, T: 700, R: 50, B: 680},
			h:    800,
			want: []Vertex{{10, 100}, {50, 100}, {50, 120}, {10, 120}},
		},
		{
			name: "rounds half up",
			box:  BoundingBox{L: 10.5, T: 99.5, R: 20.4, B: 90.2},
			h:    100,
			want: []Vertex{{11, 1}, {20, 1}, {20, 10}, {11, 10}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToVertices(tt.box, tt.h, OriginBottomLeft)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ToVertices() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToVerticesYIsHeightMinusEdge(t *testing.T) {
	const h = 1123.0
	for _, box := range []BoundingBox{
		{L: 0, T: 1123, R: 10, B: 1100},
		{L: 72, T: 640, R: 300, B: 610},
		{L: 5, T: 20, R: 6, B: 0},
	} {
		vs := ToVertices(box, h, OriginBottomLeft)
		if len(vs) != 4 {
			t.Fatalf("ToVertices() returned %d vertices", len(vs))
		}
		wantY := []int{int(h - box.T), int(h - box.T), int(h - box.B), int(h - box.B)}
		for i, v := range vs {
			if v.Y != wantY[i] {
				t.Errorf("box %v vertex %d y = %d, want %d", box, i, v.Y, wantY[i])
			}
		}
		if vs[0].X != int(box.L) || vs[1].X != int(box.R) || vs[2].X != int(box.R) || vs[3].X != int(box.L) {
			t.Errorf("box %v x order = %v", box, vs)
		}
	}
}

func TestToVerticesTopLeftUnchanged(t *testing.T) {
	got := ToVertices(BoundingBox{L: 1, T: 2, R: 3, B: 4}, 100, OriginTopLeft)
	want := []Vertex{{1, 2}, {3, 2}, {3, 4}, {1, 4}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ToVertices() = %v, want %v", got, want)
	}
}

func TestBoxFromVerticesRoundTrip(t *testing.T) {
	vs := []Vertex{{10, 20}, {40, 20}, {40, 35}, {10, 35}}
	box := BoxFromVertices(vs)
	if got := ToVertices(box, 0, OriginTopLeft); !reflect.DeepEqual(got, vs) {
		t.Errorf("round trip = %v, want %v", got, vs)
	}
}

func TestPageAddWordAssignsSequenceIDs(t *testing.T) {
	p := NewPage(1, 100, 200)
	p.AddWord("Glucose", 0.98, BoundingBox{L: 1, T: 190, R: 20, B: 180}, OriginBottomLeft)
	p.AddWord("  ", 0.98, BoundingBox{}, OriginBottomLeft)
	p.AddWord("95", 0.98, BoundingBox{L: 30, T: 190, R: 40, B: 180}, OriginBottomLeft)

	if len(p.Words) != 2 {
		t.Fatalf("len(Words) = %d, want 2 (blank skipped)", len(p.Words))
	}
	if p.Words[0].ID != 0 || p.Words[1].ID != 1 {
		t.Errorf("ids = %d,%d, want 0,1", p.Words[0].ID, p.Words[1].ID)
	}
	if p.Number() != 2 {
		t.Errorf("Number() = %d, want 2", p.Number())
	}

	res := Build("docling", []*Page{p})
	if res.Pages[0].Text != "Glucose 95" {
		t.Errorf("page text = %q", res.Pages[0].Text)
	}
	if len(res.Metadata.Pages) != 1 || res.Metadata.Pages[0].Page != 2 || res.Metadata.Pages[0].Height != 200 {
		t.Errorf("metadata = %+v", res.Metadata)
	}
}
