package lidar

import (
	"math"
	"sort"

	"github.com/go2ctl/go2ctl/internal/robot/catalog"
)

// Point is one lidar return in the robot frame, in metres.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

const maxDepth = 8

// Extract walks a structured payload and collects every point it exposes,
// either as a map with numeric x, y and z keys or as a three element
// numeric array. Malformed candidates are skipped. Map keys are visited in
// sorted order so the result is deterministic.
func Extract(record any) []Point {
	var out []Point
	extract(record, 0, &out)
	return out
}

func extract(v any, depth int, out *[]Point) {
	if depth > maxDepth {
		return
	}
	switch t := v.(type) {
	case [][3]float64:
		for _, p := range t {
			if finite(p[0]) && finite(p[1]) && finite(p[2]) {
				*out = append(*out, Point{X: p[0], Y: p[1], Z: p[2]})
			}
		}
	case []Point:
		for _, p := range t {
			if finite(p.X) && finite(p.Y) && finite(p.Z) {
				*out = append(*out, p)
			}
		}
	case map[string]any:
		if p, isPoint, ok := mapPoint(t); isPoint {
			if ok {
				*out = append(*out, p)
			}
			return
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			extract(t[k], depth+1, out)
		}
	case []any:
		if scalars(t) {
			if p, ok := arrayPoint(t); ok {
				*out = append(*out, p)
			}
			return
		}
		for _, e := range t {
			extract(e, depth+1, out)
		}
	}
}

// mapPoint reports whether m looks like a point (has any of x, y, z) and,
// if so, whether all three coordinates are valid numbers.
func mapPoint(m map[string]any) (Point, bool, bool) {
	xv, hasX := m["x"]
	yv, hasY := m["y"]
	zv, hasZ := m["z"]
	if !hasX && !hasY && !hasZ {
		return Point{}, false, false
	}
	x, okX := catalog.ToFloat(xv)
	y, okY := catalog.ToFloat(yv)
	z, okZ := catalog.ToFloat(zv)
	if !okX || !okY || !okZ {
		return Point{}, true, false
	}
	return Point{X: x, Y: y, Z: z}, true, true
}

func arrayPoint(a []any) (Point, bool) {
	if len(a) != 3 {
		return Point{}, false
	}
	var c [3]float64
	for i, v := range a {
		f, ok := catalog.ToFloat(v)
		if !ok {
			return Point{}, false
		}
		c[i] = f
	}
	return Point{X: c[0], Y: c[1], Z: c[2]}, true
}

func scalars(a []any) bool {
	if len(a) == 0 {
		return false
	}
	for _, v := range a {
		switch v.(type) {
		case map[string]any, []any, [][3]float64, []Point:
			return false
		}
	}
	return true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
