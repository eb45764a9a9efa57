package ocr

import "math"

// Origin says where a provider puts y=0.
type Origin int

const (
	// OriginTopLeft boxes already grow downward (Upstage, Tesseract).
	OriginTopLeft Origin = iota
	// OriginBottomLeft boxes grow upward from the page bottom (Docling/PDF space).
	OriginBottomLeft
)

// BoundingBox is a provider box: left, top, right, bottom edges.
type BoundingBox struct {
	L float64 `json:"l"`
	T float64 `json:"t"`
	R float64 `json:"r"`
	B float64 `json:"b"`
}

// BoxFromVertices returns the axis-aligned box around a polygon.
func BoxFromVertices(vs []Vertex) BoundingBox {
	if len(vs) == 0 {
		return BoundingBox{}
	}
	b := BoundingBox{L: float64(vs[0].X), R: float64(vs[0].X), T: float64(vs[0].Y), B: float64(vs[0].Y)}
	for _, v := range vs[1:] {
		b.L = math.Min(b.L, float64(v.X))
		b.R = math.Max(b.R, float64(v.X))
		b.T = math.Min(b.T, float64(v.Y))
		b.B = math.Max(b.B, float64(v.Y))
	}
	return b
}

// ToVertices converts a box into four top-left-origin vertices in the order
// (l,t'), (r,t'), (r,b'), (l,b') where y' = pageHeight - y for bottom-left
// boxes and y' = y otherwise. Coordinates round half up.
func ToVertices(box BoundingBox, pageHeight float64, origin Origin) []Vertex {
	top, bottom := box.T, box.B
	if origin == OriginBottomLeft {
		top, bottom = pageHeight-box.T, pageHeight-box.B
	}
	return []Vertex{
		{X: roundHalfUp(box.L), Y: roundHalfUp(top)},
		{X: roundHalfUp(box.R), Y: roundHalfUp(top)},
		{X: roundHalfUp(box.R), Y: roundHalfUp(bottom)},
		{X: roundHalfUp(box.L), Y: roundHalfUp(bottom)},
	}
}

func roundHalfUp(f float64) int {
	return int(math.Floor(f + 0.5))
}

// Centroid is the mean of the polygon's vertices.
func (p Polygon) Centroid() (x, y float64) {
	if len(p.Vertices) == 0 {
		return 0, 0
	}
	for _, v := range p.Vertices {
		x += float64(v.X)
		y += float64(v.Y)
	}
	n := float64(len(p.Vertices))
	return x / n, y / n
}

// DistanceToOrigin is the Euclidean distance from the centroid to (0,0).
func (p Polygon) DistanceToOrigin() float64 {
	x, y := p.Centroid()
	return math.Hypot(x, y)
}
