// Package history keeps the rolling gas price series shown on the trend chart and produces
// longer synthetic series for the historical view.
package history

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultSize is the number of points the trend chart retains.
const DefaultSize = 30

// Point is one sample on the trend chart.
type Point struct {
	Timestamp time.Time       `json:"timestamp"`
	Safe      decimal.Decimal `json:"slow"`
	Propose   decimal.Decimal `json:"standard"`
	Fast      decimal.Decimal `json:"fast"`
}

// Buffer is a bounded FIFO of points. Appends beyond capacity evict the oldest entry.
// A Buffer is not safe for concurrent use; the poller guards it.
type Buffer struct {
	size   int
	points []Point
}

// NewBuffer returns an empty buffer holding at most size points.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{size: size, points: make([]Point, 0, size)}
}

// Append adds p and evicts from the front until the buffer fits.
func (b *Buffer) Append(p Point) {
	b.points = append(b.points, p)
	if over := len(b.points) - b.size; over > 0 {
		b.points = append(b.points[:0:0], b.points[over:]...)
	}
}

// Restore replaces the contents with the newest points of pts.
func (b *Buffer) Restore(pts []Point) {
	if over := len(pts) - b.size; over > 0 {
		pts = pts[over:]
	}
	b.points = append(make([]Point, 0, b.size), pts...)
}

// Points returns a copy, oldest first.
func (b *Buffer) Points() []Point {
	out := make([]Point, len(b.points))
	copy(out, b.points)
	return out
}

// Latest returns the most recent point.
func (b *Buffer) Latest() (Point, bool) {
	if len(b.points) == 0 {
		return Point{}, false
	}
	return b.points[len(b.points)-1], true
}

func (b *Buffer) Len() int { return len(b.points) }

func (b *Buffer) Cap() int { return b.size }

// ProposeSeries extracts the standard tier, oldest first.
func (b *Buffer) ProposeSeries() []decimal.Decimal {
	out := make([]decimal.Decimal, len(b.points))
	for i, p := range b.points {
		out[i] = p.Propose
	}
	return out
}
