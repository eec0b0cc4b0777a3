package mapper

import (
	"github.com/prefeitura-rio/api-dados-rio/internal/core/model"
)

// CellField is the record field holding the H3 cell index.
const CellField = "id_h3"

// Filter keeps the records whose cell matches f. Records without a readable
// cell never match. An empty filter returns records unchanged. Each record
// is tested on its own, so the work grows with the records and never with
// the area requested.
func Filter(m Interface, f model.SpatialFilter, records []any) ([]any, error) {
	if f.Empty() {
		return records, nil
	}
	out := make([]any, 0, len(records))
	for _, rec := range records {
		cell := cellOf(rec)
		if cell == "" {
			continue
		}
		var (
			keep bool
			err  error
		)
		switch {
		case f.Point != nil:
			keep, err = m.CellContains(cell, *f.Point)
		case f.BBox != nil:
			keep, err = m.CellInBBox(cell, *f.BBox)
		}
		if err == nil && keep {
			out = append(out, rec)
		}
	}
	return out, nil
}

func cellOf(rec any) string {
	m, ok := rec.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m[CellField].(string)
	return s
}
