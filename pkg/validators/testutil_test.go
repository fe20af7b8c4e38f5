package validators

import (
	"fmt"
	"time"

	"github.com/communisaas/boundary-atlas/pkg/geometry"
)

// square returns a closed square ring of the given size with its lower-left
// corner at (lon, lat).
func square(lon, lat, size float64) geometry.Polygon {
	return geometry.Polygon{geometry.Ring{
		{Lon: lon, Lat: lat},
		{Lon: lon + size, Lat: lat},
		{Lon: lon + size, Lat: lat + size},
		{Lon: lon, Lat: lat + size},
		{Lon: lon, Lat: lat},
	}}
}

// namedCollection builds a collection of point-free features carrying only
// display names, for validators that ignore geometry.
func namedCollection(names ...string) *geometry.FeatureCollection {
	fc := &geometry.FeatureCollection{
		Meta: geometry.SourceMetadata{
			SourceURL:      "https://gis.example.gov/layer.geojson",
			Authority:      geometry.AuthorityStateOfficial,
			RetrievedAt:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			JurisdictionID: "portland-or",
		},
	}
	for i, name := range names {
		fc.Features = append(fc.Features, geometry.Feature{
			ID:   fmt.Sprintf("f-%d", i),
			Name: name,
		})
	}
	return fc
}

// portlandCollection builds named features with disjoint squares inside the
// portland-or bounding box.
func portlandCollection(names ...string) *geometry.FeatureCollection {
	fc := namedCollection(names...)
	for i := range fc.Features {
		lon := -122.82 + 0.04*float64(i%9)
		lat := 45.45 + 0.05*float64(i/9)
		fc.Features[i].Polygons = []geometry.Polygon{square(lon, lat, 0.02)}
	}
	return fc
}

// repeatNames produces "prefix 1" .. "prefix n".
func repeatNames(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s %d", prefix, i+1)
	}
	return out
}
