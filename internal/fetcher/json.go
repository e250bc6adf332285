package fetcher

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// DecodeFeatureCollection decodes a GeoJSON FeatureCollection. A bare
// Feature or geometry is rejected; features with null geometry are kept
// with a nil Geometry.
func DecodeFeatureCollection(r io.Reader) (*geojson.FeatureCollection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "geojson: read")
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrap(err, "geojson: decode")
	}
	if head.Type != "FeatureCollection" {
		return nil, eris.Errorf("geojson: expected a FeatureCollection, got %q", head.Type)
	}
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "geojson: decode features")
	}
	return &fc, nil
}
