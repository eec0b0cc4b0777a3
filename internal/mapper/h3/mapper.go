package h3mapper

import (
	"fmt"

	h3 "github.com/uber/h3-go/v4"

	"github.com/prefeitura-rio/api-dados-rio/internal/core/model"
)

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

// CellInBBox reports whether cell's center falls in bb or cell lies under
// one of bb's corners or its center, so a box smaller than one cell still
// selects the cells it overlaps.
func (m *Mapper) CellInBBox(cell string, bb model.BBox) (bool, error) {
	c, err := parseCell(cell)
	if err != nil {
		return false, err
	}
	center, err := h3.CellToLatLng(c)
	if err != nil {
		return false, fmt.Errorf("h3 center: %w", err)
	}
	if bb.Contains(model.Point{Lat: center.Lat, Lon: center.Lng}) {
		return true, nil
	}
	for _, p := range bb.Probes() {
		ok, err := m.CellContains(cell, p)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// CellContains reports whether p falls inside cell, at cell's resolution.
func (m *Mapper) CellContains(cell string, p model.Point) (bool, error) {
	c, err := parseCell(cell)
	if err != nil {
		return false, err
	}
	at, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat, Lng: p.Lon}, c.Resolution())
	if err != nil {
		return false, fmt.Errorf("h3 point: %w", err)
	}
	return at == c, nil
}

func parseCell(cell string) (h3.Cell, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cell)); err != nil {
		return 0, fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("invalid h3 cell %q", cell)
	}
	return c, nil
}
