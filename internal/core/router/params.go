package router

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/prefeitura-rio/api-dados-rio/internal/core/apperr"
	"github.com/prefeitura-rio/api-dados-rio/internal/core/model"
)

// ParseSpatialFilter reads ?lat=&lon= or ?bbox=minLon,minLat,maxLon,maxLat.
// Both forms together are rejected.
func ParseSpatialFilter(q url.Values) (model.SpatialFilter, error) {
	rawLat := strings.TrimSpace(q.Get("lat"))
	rawLon := strings.TrimSpace(q.Get("lon"))
	rawBBox := strings.TrimSpace(q.Get("bbox"))

	var f model.SpatialFilter
	if rawBBox != "" && (rawLat != "" || rawLon != "") {
		return f, apperr.Invalid("bbox", `Parameters "bbox" and "lat"/"lon" are mutually exclusive.`)
	}
	if rawBBox != "" {
		bb, err := parseBBOX(rawBBox)
		if err != nil {
			return f, apperr.Invalid("bbox", "Invalid bbox: %v.", err)
		}
		f.BBox = &bb
		return f, nil
	}
	if rawLat == "" && rawLon == "" {
		return f, nil
	}
	if rawLat == "" || rawLon == "" {
		return f, apperr.Invalid("lat", `Parameters "lat" and "lon" must be given together.`)
	}
	lat, err := parseFloat(rawLat)
	if err != nil || lat < -90 || lat > 90 {
		return f, apperr.Invalid("lat", `Parameter "lat" must be a number in [-90,90].`)
	}
	lon, err := parseFloat(rawLon)
	if err != nil || lon < -180 || lon > 180 {
		return f, apperr.Invalid("lon", `Parameter "lon" must be a number in [-180,180].`)
	}
	f.Point = &model.Point{Lat: lat, Lon: lon}
	return f, nil
}

// parseBBOX accepts four values and an optional EPSG:4326 suffix.
func parseBBOX(bboxParam string) (model.BBox, error) {
	parts := strings.Split(bboxParam, ",")
	if len(parts) != 4 && len(parts) != 5 {
		return model.BBox{}, errors.New("expected 4 comma-separated values: minLon,minLat,maxLon,maxLat")
	}
	if len(parts) == 5 {
		if srid := strings.ToUpper(strings.TrimSpace(parts[4])); srid != "EPSG:4326" {
			return model.BBox{}, fmt.Errorf("only EPSG:4326 is supported (got %q)", srid)
		}
	}
	xMin, err := parseFloat(parts[0])
	if err != nil {
		return model.BBox{}, fmt.Errorf("minLon: %w", err)
	}
	yMin, err := parseFloat(parts[1])
	if err != nil {
		return model.BBox{}, fmt.Errorf("minLat: %w", err)
	}
	xMax, err := parseFloat(parts[2])
	if err != nil {
		return model.BBox{}, fmt.Errorf("maxLon: %w", err)
	}
	yMax, err := parseFloat(parts[3])
	if err != nil {
		return model.BBox{}, fmt.Errorf("maxLat: %w", err)
	}

	if !(xMin >= -180 && xMin <= 180 && xMax >= -180 && xMax <= 180) {
		return model.BBox{}, errors.New("longitude must be in [-180,180]")
	}
	if !(yMin >= -90 && yMin <= 90 && yMax >= -90 && yMax <= 90) {
		return model.BBox{}, errors.New("latitude must be in [-90,90]")
	}
	if xMax <= xMin || yMax <= yMin {
		return model.BBox{}, errors.New("coordinates must satisfy maxLon>minLon and maxLat>minLat")
	}
	return model.BBox{X1: xMin, Y1: yMin, X2: xMax, Y2: yMax}, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}
