package geom

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundingRect(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
		want Rect
	}{
		{"down-right", Point{10, 10}, Point{40, 30}, Rect{10, 10, 30, 20}},
		{"up-left", Point{40, 30}, Point{10, 10}, Rect{10, 10, 30, 20}},
		{"mixed", Point{40, 10}, Point{10, 30}, Rect{10, 10, 30, 20}},
		{"same point", Point{5, 5}, Point{5, 5}, Rect{5, 5, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BoundingRect(tt.a, tt.b))
		})
	}
}

func TestContainsIsEdgeInclusive(t *testing.T) {
	r := Rect{X: 0, Y: 0, Width: 100, Height: 50}

	assert.True(t, r.Contains(Point{0, 0}))
	assert.True(t, r.Contains(Point{100, 50}))
	assert.True(t, r.Contains(Point{50, 25}))
	assert.False(t, r.Contains(Point{100.5, 10}))
	assert.False(t, r.Contains(Point{-1, 10}))
}

func TestIntersect(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 100, Height: 100}

	assert.Equal(t, Rect{50, 50, 50, 50}, a.Intersect(Rect{50, 50, 100, 100}))
	assert.Equal(t, Rect{}, a.Intersect(Rect{100, 0, 10, 10}), "touching edges do not overlap")
	assert.True(t, a.Intersect(Rect{200, 200, 10, 10}).Empty())
	assert.Equal(t, 2500.0, a.Intersect(Rect{50, 50, 100, 100}).Area())
	assert.False(t, a.Overlaps(Rect{100, 0, 10, 10}))
}

func TestPixelRectRoundTrip(t *testing.T) {
	p := PixelRect{X: 200, Y: 100, Width: 40, Height: 20}
	assert.Equal(t, image.Rect(200, 100, 240, 120), p.Rectangle())
	assert.Equal(t, p, FromRectangle(p.Rectangle()))
}
