package httpadapter

import "fmt"

// box is an approximate state bounding box in decimal degrees.
type box struct {
	minLat, maxLat, minLon, maxLon float64
}

// boundsTolerance widens every box to absorb border incidents and coarse
// source coordinates.
const boundsTolerance = 0.5

var stateBounds = map[string]box{
	"AK": {51.2, 71.5, -180.0, -129.9},
	"AL": {30.1, 35.1, -88.5, -84.9},
	"AR": {33.0, 36.5, -94.7, -89.6},
	"AZ": {31.3, 37.0, -114.9, -109.0},
	"CA": {32.5, 42.0, -124.5, -114.1},
	"CO": {37.0, 41.0, -109.1, -102.0},
	"CT": {40.9, 42.1, -73.8, -71.8},
	"DC": {38.8, 39.0, -77.2, -76.9},
	"DE": {38.4, 39.9, -75.8, -75.0},
	"FL": {24.4, 31.0, -87.7, -80.0},
	"GA": {30.3, 35.0, -85.7, -80.8},
	"HI": {18.9, 22.3, -160.3, -154.8},
	"IA": {40.3, 43.5, -96.7, -90.1},
	"ID": {41.9, 49.0, -117.3, -111.0},
	"IL": {36.9, 42.5, -91.6, -87.0},
	"IN": {37.7, 41.8, -88.1, -84.8},
	"KS": {36.9, 40.0, -102.1, -94.6},
	"KY": {36.4, 39.2, -89.6, -81.9},
	"LA": {28.9, 33.1, -94.1, -88.8},
	"MA": {41.2, 42.9, -73.5, -69.9},
	"MD": {37.9, 39.8, -79.5, -75.0},
	"ME": {43.0, 47.5, -71.1, -66.9},
	"MI": {41.7, 48.3, -90.4, -82.1},
	"MN": {43.5, 49.4, -97.3, -89.5},
	"MO": {36.0, 40.6, -95.8, -89.1},
	"MS": {30.1, 35.0, -91.7, -88.1},
	"MT": {44.4, 49.0, -116.1, -104.0},
	"NC": {33.8, 36.6, -84.3, -75.4},
	"ND": {45.9, 49.0, -104.1, -96.5},
	"NE": {40.0, 43.0, -104.1, -95.3},
	"NH": {42.7, 45.3, -72.6, -70.6},
	"NJ": {38.9, 41.4, -75.6, -73.9},
	"NM": {31.3, 37.0, -109.1, -103.0},
	"NV": {35.0, 42.0, -120.0, -114.0},
	"NY": {40.5, 45.0, -79.8, -71.8},
	"OH": {38.4, 42.3, -84.8, -80.5},
	"OK": {33.6, 37.0, -103.0, -94.4},
	"OR": {41.9, 46.3, -124.6, -116.5},
	"PA": {39.7, 42.3, -80.5, -74.7},
	"PR": {17.9, 18.5, -67.3, -65.2},
	"RI": {41.1, 42.0, -71.9, -71.1},
	"SC": {32.0, 35.2, -83.4, -78.5},
	"SD": {42.5, 45.9, -104.1, -96.4},
	"TN": {35.0, 36.7, -90.3, -81.6},
	"TX": {25.8, 36.5, -106.6, -93.5},
	"UT": {37.0, 42.0, -114.1, -109.0},
	"VA": {36.5, 39.5, -83.7, -75.2},
	"VT": {42.7, 45.0, -73.4, -71.5},
	"WA": {45.5, 49.0, -124.8, -116.9},
	"WI": {42.5, 47.1, -92.9, -86.2},
	"WV": {37.2, 40.6, -82.6, -77.7},
	"WY": {41.0, 45.0, -111.1, -104.0},
}

// checkLocation rejects coordinates outside the globe and, for a known state,
// outside that state's padded bounding box. Unknown states get the global
// check only.
func checkLocation(state string, lat, lon float64) error {
	if !(lat >= -90 && lat <= 90) {
		return fmt.Errorf("latitude %g out of range", lat)
	}
	if !(lon >= -180 && lon <= 180) {
		return fmt.Errorf("longitude %g out of range", lon)
	}
	b, ok := stateBounds[state]
	if !ok {
		return nil
	}
	if lat < b.minLat-boundsTolerance || lat > b.maxLat+boundsTolerance ||
		lon < b.minLon-boundsTolerance || lon > b.maxLon+boundsTolerance {
		return fmt.Errorf("location %g,%g is outside %s", lat, lon, state)
	}
	return nil
}
