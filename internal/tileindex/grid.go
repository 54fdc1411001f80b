// Package tileindex partitions a polygonal extent into a regular grid of
// rectangular tiles, ranks them in Morton order and persists the result as
// the tile index that scopes per-tile exports.
package tileindex

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Error kinds for index construction. Both are fatal: the index build aborts
// before anything is written.
var (
	ErrInvalidTileSize = eris.New("tileindex: tile width and height must be positive")
	ErrInvalidExtent   = eris.New("tileindex: invalid extent")
)

// Cell is one rectangular tile of the index. Rank and ID stay unset until
// IndexCells assigns them.
type Cell struct {
	Column int
	Row    int
	MinX   float64
	MinY   float64
	MaxX   float64
	MaxY   float64
	Rank   uint64
	ID     string
}

// BuildGrid lays a regular grid of cellWidth x cellHeight cells over the
// bounding rectangle of the extent polygon, starting at the minimum corner,
// and keeps only the cells whose rectangle intersects the polygon itself
// (not merely its bounding box). Cells are returned in column-major scan
// order with rank and id unset.
func BuildGrid(extent *geom.Polygon, cellWidth, cellHeight float64) ([]Cell, error) {
	if cellWidth <= 0 || cellHeight <= 0 {
		return nil, eris.Wrapf(ErrInvalidTileSize, "got %gx%g", cellWidth, cellHeight)
	}
	if extent == nil || extent.NumCoords() == 0 {
		return nil, eris.Wrap(ErrInvalidExtent, "empty extent polygon")
	}

	b := extent.Bounds()
	minX, minY := b.Min(0), b.Min(1)
	maxX, maxY := b.Max(0), b.Max(1)
	if maxX <= minX || maxY <= minY {
		return nil, eris.Wrap(ErrInvalidExtent, "degenerate extent bounds")
	}

	cols := int(math.Ceil((maxX - minX) / cellWidth))
	rows := int(math.Ceil((maxY - minY) / cellHeight))

	rings := extent.Coords()
	var cells []Cell
	for col := 0; col < cols; col++ {
		x1 := minX + float64(col)*cellWidth
		x2 := x1 + cellWidth
		for row := 0; row < rows; row++ {
			y1 := minY + float64(row)*cellHeight
			y2 := y1 + cellHeight
			if !rectIntersectsPolygon(x1, y1, x2, y2, rings) {
				continue
			}
			cells = append(cells, Cell{
				Column: col, Row: row,
				MinX: x1, MinY: y1, MaxX: x2, MaxY: y2,
			})
		}
	}
	return cells, nil
}

// IndexCells assigns every cell its Morton rank and tile identifier and
// sorts the sequence by rank. Identifiers are the base-36 rendering of the
// rank, zero-padded to the width of the grid's largest rank, so id order
// equals Z-order and identical grids always produce identical ids.
func IndexCells(cells []Cell) []Cell {
	if len(cells) == 0 {
		return cells
	}

	var maxRank uint64
	for i := range cells {
		cells[i].Rank = Interleave(uint32(cells[i].Column), uint32(cells[i].Row))
		if cells[i].Rank > maxRank {
			maxRank = cells[i].Rank
		}
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].Rank < cells[j].Rank })

	width := len(strconv.FormatUint(maxRank, 36))
	for i := range cells {
		id := strconv.FormatUint(cells[i].Rank, 36)
		if pad := width - len(id); pad > 0 {
			id = strings.Repeat("0", pad) + id
		}
		cells[i].ID = id
	}
	return cells
}

// rectIntersectsPolygon reports whether the axis-aligned rectangle touches
// the polygon given as its coordinate rings (ring 0 exterior, rest holes).
// go-geom carries no polygon-polygon intersection predicate, so this is the
// standard three-way test: a ring vertex inside the rectangle, a rectangle
// corner inside the polygon, or a ring edge crossing a rectangle edge.
func rectIntersectsPolygon(minX, minY, maxX, maxY float64, rings [][]geom.Coord) bool {
	for _, ring := range rings {
		for _, c := range ring {
			if c[0] >= minX && c[0] <= maxX && c[1] >= minY && c[1] <= maxY {
				return true
			}
		}
	}

	corners := [4][2]float64{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}}
	for _, p := range corners {
		if pointInPolygon(p[0], p[1], rings) {
			return true
		}
	}

	edges := [4][4]float64{
		{minX, minY, maxX, minY},
		{maxX, minY, maxX, maxY},
		{maxX, maxY, minX, maxY},
		{minX, maxY, minX, minY},
	}
	for _, ring := range rings {
		for i := 0; i+1 < len(ring); i++ {
			for _, e := range edges {
				if segmentsIntersect(
					ring[i][0], ring[i][1], ring[i+1][0], ring[i+1][1],
					e[0], e[1], e[2], e[3],
				) {
					return true
				}
			}
		}
	}
	return false
}

// pointInPolygon is an even-odd crossing test over all rings, so points
// inside a hole count as outside.
func pointInPolygon(x, y float64, rings [][]geom.Coord) bool {
	inside := false
	for _, ring := range rings {
		n := len(ring)
		for i, j := 0, n-1; i < n; j, i = i, i+1 {
			xi, yi := ring[i][0], ring[i][1]
			xj, yj := ring[j][0], ring[j][1]
			if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
				inside = !inside
			}
		}
	}
	return inside
}

func segmentsIntersect(ax, ay, bx, by, cx, cy, dx, dy float64) bool {
	d1 := cross(cx, cy, dx, dy, ax, ay)
	d2 := cross(cx, cy, dx, dy, bx, by)
	d3 := cross(ax, ay, bx, by, cx, cy)
	d4 := cross(ax, ay, bx, by, dx, dy)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(cx, cy, dx, dy, ax, ay)) ||
		(d2 == 0 && onSegment(cx, cy, dx, dy, bx, by)) ||
		(d3 == 0 && onSegment(ax, ay, bx, by, cx, cy)) ||
		(d4 == 0 && onSegment(ax, ay, bx, by, dx, dy))
}

func cross(ox, oy, ax, ay, bx, by float64) float64 {
	return (ax-ox)*(by-oy) - (ay-oy)*(bx-ox)
}

func onSegment(ax, ay, bx, by, px, py float64) bool {
	return math.Min(ax, bx) <= px && px <= math.Max(ax, bx) &&
		math.Min(ay, by) <= py && py <= math.Max(ay, by)
}
