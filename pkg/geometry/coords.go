package geometry

// Coordinate extraction and the cheap aggregate measures used by the
// geographic-bounds validator. The centroid here is the arithmetic mean of
// all ring coordinates, not an area-weighted centroid: it only needs to land
// inside a coarse jurisdiction bounding box.

// AllCoordinates returns every ring coordinate of every feature, in order.
func AllCoordinates(fc *FeatureCollection) []Coordinate {
	var out []Coordinate
	for _, f := range fc.Features {
		for _, poly := range f.Polygons {
			for _, ring := range poly {
				out = append(out, ring...)
			}
		}
	}
	return out
}

// BoundingBox is a lon/lat axis-aligned box.
type BoundingBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Contains reports whether c lies inside the box (inclusive).
func (b BoundingBox) Contains(c Coordinate) bool {
	return c.Lon >= b.MinLon && c.Lon <= b.MaxLon && c.Lat >= b.MinLat && c.Lat <= b.MaxLat
}

// Bounds computes the collection's bounding box. ok is false for a
// collection with no coordinates.
func Bounds(fc *FeatureCollection) (BoundingBox, bool) {
	coords := AllCoordinates(fc)
	if len(coords) == 0 {
		return BoundingBox{}, false
	}
	b := BoundingBox{
		MinLon: coords[0].Lon, MaxLon: coords[0].Lon,
		MinLat: coords[0].Lat, MaxLat: coords[0].Lat,
	}
	for _, c := range coords[1:] {
		if c.Lon < b.MinLon {
			b.MinLon = c.Lon
		}
		if c.Lon > b.MaxLon {
			b.MaxLon = c.Lon
		}
		if c.Lat < b.MinLat {
			b.MinLat = c.Lat
		}
		if c.Lat > b.MaxLat {
			b.MaxLat = c.Lat
		}
	}
	return b, true
}

// Centroid computes the arithmetic-mean centroid over all ring coordinates.
// ok is false for a collection with no coordinates.
func Centroid(fc *FeatureCollection) (Coordinate, bool) {
	coords := AllCoordinates(fc)
	if len(coords) == 0 {
		return Coordinate{}, false
	}
	var sumLon, sumLat float64
	for _, c := range coords {
		sumLon += c.Lon
		sumLat += c.Lat
	}
	n := float64(len(coords))
	return Coordinate{Lon: sumLon / n, Lat: sumLat / n}, true
}
