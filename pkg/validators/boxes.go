package validators

// Curated coarse bounding boxes for the jurisdictions the atlas currently
// tracks, as [minLat, minLon, maxLat, maxLon]. State boxes come from Census
// TIGER state extents rounded outward; city boxes are metro-area boxes, not
// municipal limits — they only need to contain a legitimate dataset's
// centroid.
//
// Read-only reference data. Extend via config, never mutate at runtime.
func DefaultBoxes() map[string][4]float64 {
	return map[string][4]float64{
		// States (USPS codes).
		"AZ": {31.3, -114.9, 37.1, -109.0},
		"CA": {32.5, -124.5, 42.1, -114.1},
		"CO": {36.9, -109.1, 41.1, -102.0},
		"FL": {24.4, -87.7, 31.1, -79.9},
		"GA": {30.3, -85.7, 35.1, -80.7},
		"IL": {36.9, -91.6, 42.6, -87.0},
		"MA": {41.2, -73.6, 42.9, -69.9},
		"MI": {41.6, -90.5, 48.3, -82.3},
		"MN": {43.4, -97.3, 49.4, -89.4},
		"NC": {33.8, -84.4, 36.6, -75.4},
		"NY": {40.4, -79.8, 45.1, -71.8},
		"OH": {38.4, -85.0, 42.0, -80.5},
		"OR": {41.9, -124.6, 46.3, -116.4},
		"PA": {39.7, -80.6, 42.3, -74.6},
		"TX": {25.8, -106.7, 36.6, -93.5},
		"UT": {36.9, -114.1, 42.1, -109.0},
		"WA": {45.5, -124.8, 49.1, -116.9},
		"WI": {42.4, -92.9, 47.1, -86.7},

		// Cities (place-style ids).
		"austin-tx":        {30.0, -98.1, 30.6, -97.5},
		"boston-ma":        {42.2, -71.2, 42.5, -70.9},
		"chicago-il":       {41.6, -87.9, 42.1, -87.5},
		"columbus-oh":      {39.8, -83.2, 40.2, -82.7},
		"denver-co":        {39.5, -105.2, 39.95, -104.6},
		"minneapolis-mn":   {44.85, -93.4, 45.1, -93.15},
		"phoenix-az":       {33.2, -112.4, 33.9, -111.9},
		"portland-or":      {45.4, -122.85, 45.7, -122.45},
		"salt-lake-city-ut": {40.65, -112.1, 40.9, -111.75},
		"san-francisco-ca": {37.6, -122.55, 37.85, -122.3},
		"seattle-wa":       {47.45, -122.45, 47.75, -122.2},
	}
}
