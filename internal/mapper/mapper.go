// Package mapper converts between geometric coordinates and H3 cells and
// narrows H3-keyed records to an area.
package mapper

import (
	"github.com/prefeitura-rio/api-dados-rio/internal/core/model"
)

type Interface interface {
	// CellInBBox must cost the same for any box size; callers pass
	// unbounded client input.
	CellInBBox(cell string, bb model.BBox) (bool, error)
	CellContains(cell string, p model.Point) (bool, error)
}
