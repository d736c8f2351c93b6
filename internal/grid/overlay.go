// internal/grid/overlay.go
//
// Obstacle overlay images and their stacking order.
//
// Each painted cell gets the pre-rendered image "{col}_{row}.png" from the
// trial's image path. Images are stacked so that cells nearer the entrance
// column and nearer the back wall sit behind the others. This is cosmetic:
// nothing in scoring depends on it.

package grid

import (
	"fmt"
	"math"
	"path"
	"strings"
)

// DefaultImagePath is used when a trial does not configure one.
const DefaultImagePath = "/static/data/images/stims/"

// Overlay is the image stacked over one painted cell.
type Overlay struct {
	Point  Point   `json:"point"`
	Image  string  `json:"image"`
	ZIndex float64 `json:"zIndex"`
}

// DepthFunc computes an overlay's stacking order from its cell, the
// (possibly fractional) entrance column and the number of rows.
type DepthFunc func(p Point, entrance float64, rows int) float64

// DepthCurrent is the ordering used by the current front-end:
// -zY + (-|entrance - x|) * zY with zY the distance from the last row.
func DepthCurrent(p Point, entrance float64, rows int) float64 {
	zx := -math.Abs(entrance - float64(p.X))
	zy := float64(rows - 1 - p.Y)
	return noNegZero(-zy + zx*zy)
}

// DepthLegacy is the older ordering: -((entrance - x) * zY).
func DepthLegacy(p Point, entrance float64, rows int) float64 {
	zx := entrance - float64(p.X)
	zy := float64(rows - 1 - p.Y)
	return noNegZero(-(zx * zy))
}

func noNegZero(v float64) float64 {
	if v == 0 {
		return 0
	}
	return v
}

// EntranceColumn averages the columns of the entrance cells in the last row.
// Without an entrance it falls back to the centre column.
func EntranceColumn(l Layout) float64 {
	if l.Rows() == 0 {
		return 0
	}
	last := l[len(l)-1]
	sum, n := 0, 0
	for x, s := range last {
		if s == Entrance {
			sum += x
			n++
		}
	}
	if n == 0 {
		return float64(len(last)-1) / 2
	}
	return float64(sum) / float64(n)
}

// OverlayImage returns the image address for a cell under base.
// Duplicate slashes are collapsed; a URL scheme is left intact.
func OverlayImage(base string, p Point) string {
	name := fmt.Sprintf("%d_%d.png", p.X, p.Y)
	if base == "" {
		base = DefaultImagePath
	}
	if i := strings.Index(base, "://"); i >= 0 {
		scheme, rest := base[:i+3], base[i+3:]
		return scheme + strings.TrimPrefix(path.Join(rest, name), "/")
	}
	return path.Join(base, name)
}
