// Package geo converts between local North-East-Down offsets and geodetic
// coordinates on the WGS-84 ellipsoid.
package geo

import (
	"math"

	"github.com/golang/geo/s2"
	"gonum.org/v1/gonum/mat"
)

// WGS-84 ellipsoid parameters
const (
	SemiMajorAxis = 6378137.0         // a, meters
	Flattening    = 1 / 298.257223563 // f
	SemiMinorAxis = SemiMajorAxis * (1 - Flattening)

	// MeanEarthRadius is used for great-circle ground distances
	MeanEarthRadius = 6371008.8
)

var (
	eccSq       = Flattening * (2 - Flattening)
	secondEccSq = eccSq / (1 - eccSq)
)

// Origin is the geodetic anchor of a local tangent-plane frame.
type Origin struct {
	Lat float64 `json:"lat"` // degrees
	Lon float64 `json:"lon"` // degrees
	Alt float64 `json:"alt"` // meters above the ellipsoid
}

// NEDToGeodetic converts a North-East-Down offset in meters from origin into
// latitude, longitude (degrees) and altitude (meters).
//
// A zero offset returns the origin unchanged. NaN and Inf inputs propagate.
func NEDToGeodetic(north, east, down float64, origin Origin) (lat, lon, alt float64) {
	if north == 0 && east == 0 && down == 0 {
		return origin.Lat, origin.Lon, origin.Alt
	}

	x0, y0, z0 := GeodeticToECEF(origin.Lat, origin.Lon, origin.Alt)

	var offset mat.VecDense
	offset.MulVec(nedRotation(origin), mat.NewVecDense(3, []float64{north, east, down}))

	return ECEFToGeodetic(x0+offset.AtVec(0), y0+offset.AtVec(1), z0+offset.AtVec(2))
}

// GeodeticToNED is the inverse of NEDToGeodetic.
func GeodeticToNED(lat, lon, alt float64, origin Origin) (north, east, down float64) {
	x, y, z := GeodeticToECEF(lat, lon, alt)
	x0, y0, z0 := GeodeticToECEF(origin.Lat, origin.Lon, origin.Alt)

	var ned mat.VecDense
	ned.MulVec(nedRotation(origin).T(), mat.NewVecDense(3, []float64{x - x0, y - y0, z - z0}))

	return ned.AtVec(0), ned.AtVec(1), ned.AtVec(2)
}

// nedRotation returns the matrix whose columns are the north, east and down
// unit vectors at origin expressed in ECEF.
func nedRotation(origin Origin) *mat.Dense {
	sinLat, cosLat := math.Sincos(deg2rad(origin.Lat))
	sinLon, cosLon := math.Sincos(deg2rad(origin.Lon))

	return mat.NewDense(3, 3, []float64{
		-sinLat * cosLon, -sinLon, -cosLat * cosLon,
		-sinLat * sinLon, cosLon, -cosLat * sinLon,
		cosLat, 0, -sinLat,
	})
}

// GeodeticToECEF converts geodetic coordinates to Earth-Centered Earth-Fixed
// meters.
func GeodeticToECEF(lat, lon, alt float64) (x, y, z float64) {
	sinLat, cosLat := math.Sincos(deg2rad(lat))
	sinLon, cosLon := math.Sincos(deg2rad(lon))

	// prime vertical radius of curvature
	n := SemiMajorAxis / math.Sqrt(1-eccSq*sinLat*sinLat)

	x = (n + alt) * cosLat * cosLon
	y = (n + alt) * cosLat * sinLon
	z = (n*(1-eccSq) + alt) * sinLat
	return x, y, z
}

// ECEFToGeodetic converts ECEF meters to geodetic coordinates using
// Heikkinen's closed-form solution.
func ECEFToGeodetic(x, y, z float64) (lat, lon, alt float64) {
	a, b := SemiMajorAxis, SemiMinorAxis

	p := math.Hypot(x, y)
	f := 54 * b * b * z * z
	g := p*p + (1-eccSq)*z*z - eccSq*(a*a-b*b)
	c := eccSq * eccSq * f * p * p / (g * g * g)
	s := math.Cbrt(1 + c + math.Sqrt(c*c+2*c))
	k := s + 1 + 1/s
	pp := f / (3 * k * k * g * g)
	q := math.Sqrt(1 + 2*eccSq*eccSq*pp)
	r0 := -(pp*eccSq*p)/(1+q) +
		math.Sqrt(a*a/2*(1+1/q)-pp*(1-eccSq)*z*z/(q*(1+q))-pp*p*p/2)
	u := math.Hypot(p-eccSq*r0, z)
	v := math.Sqrt((p-eccSq*r0)*(p-eccSq*r0) + (1-eccSq)*z*z)
	z0 := b * b * z / (a * v)

	alt = u * (1 - b*b/(a*v))
	lat = rad2deg(math.Atan((z + secondEccSq*z0) / p))
	lon = rad2deg(math.Atan2(y, x))
	return lat, lon, alt
}

// Distance returns the great-circle ground distance in meters between two
// points, ignoring altitude.
func Distance(a, b Origin) float64 {
	angle := s2.LatLngFromDegrees(a.Lat, a.Lon).Distance(s2.LatLngFromDegrees(b.Lat, b.Lon))
	return angle.Radians() * MeanEarthRadius
}

func deg2rad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func rad2deg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
