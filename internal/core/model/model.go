// Package model defines the geometric request types shared by the router and
// the spatial filter.
package model

import "fmt"

// BBox is a lon/lat rectangle in EPSG:4326 degrees.
type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
}

// String matches the bbox query parameter format.
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.X1, b.Y1, b.X2, b.Y2)
}

// Contains is inclusive on every edge.
func (b BBox) Contains(p Point) bool {
	return p.Lon >= b.X1 && p.Lon <= b.X2 && p.Lat >= b.Y1 && p.Lat <= b.Y2
}

// Probes returns the four corners and the center of b.
func (b BBox) Probes() []Point {
	return []Point{
		{Lat: b.Y1, Lon: b.X1},
		{Lat: b.Y1, Lon: b.X2},
		{Lat: b.Y2, Lon: b.X2},
		{Lat: b.Y2, Lon: b.X1},
		{Lat: (b.Y1 + b.Y2) / 2, Lon: (b.X1 + b.X2) / 2},
	}
}

type Point struct {
	Lat, Lon float64
}

// SpatialFilter narrows snapshot records to an area. At most one of Point
// and BBox is set.
type SpatialFilter struct {
	Point *Point
	BBox  *BBox
}

func (f SpatialFilter) Empty() bool { return f.Point == nil && f.BBox == nil }
