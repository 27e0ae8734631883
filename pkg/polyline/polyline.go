// Package polyline encodes and decodes the Google encoded polyline format.
// The algorithm is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"math"
)

// Common precisions. Google and OpenRouteService use 5 decimal places,
// Valhalla and OSRM's polyline6 use 6.
const (
	Precision5 = 5
	Precision6 = 6
)

// ErrMalformed is returned when an encoded string ends mid-value or
// contains bytes outside the polyline alphabet.
var ErrMalformed = errors.New("malformed polyline")

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

func factor(precision int) float64 {
	if precision <= 0 {
		precision = Precision5
	}
	return math.Pow10(precision)
}

// Decode decodes an encoded polyline with the given number of decimal
// places. An empty string decodes to nil.
func Decode(encoded string, precision int) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}

	f := factor(precision)
	coords := make([]Coordinate, 0, len(encoded)/4)
	var lat, lon int
	for i := 0; i < len(encoded); {
		dLat, next, err := decodeValue(encoded, i)
		if err != nil {
			return nil, err
		}
		dLon, next, err := decodeValue(encoded, next)
		if err != nil {
			return nil, err
		}
		i = next
		lat += dLat
		lon += dLon
		coords = append(coords, Coordinate{Lat: float64(lat) / f, Lon: float64(lon) / f})
	}
	return coords, nil
}

// decodeValue reads one zig-zag varint starting at i and returns the value
// and the index just past it.
func decodeValue(encoded string, i int) (int, int, error) {
	var result, shift int
	for {
		if i >= len(encoded) {
			return 0, i, ErrMalformed
		}
		b := int(encoded[i]) - 63
		if b < 0 || b > 0x3f {
			return 0, i, ErrMalformed
		}
		i++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	if result&1 != 0 {
		return ^(result >> 1), i, nil
	}
	return result >> 1, i, nil
}

// Encode encodes coordinates with the given number of decimal places.
func Encode(coords []Coordinate, precision int) string {
	if len(coords) == 0 {
		return ""
	}

	f := factor(precision)
	buf := make([]byte, 0, len(coords)*8)
	var prevLat, prevLon int
	for _, c := range coords {
		lat := int(math.Round(c.Lat * f))
		lon := int(math.Round(c.Lon * f))
		buf = encodeValue(buf, lat-prevLat)
		buf = encodeValue(buf, lon-prevLon)
		prevLat, prevLon = lat, lon
	}
	return string(buf)
}

func encodeValue(buf []byte, v int) []byte {
	if v < 0 {
		v = ^(v << 1)
	} else {
		v <<= 1
	}
	for v >= 0x20 {
		buf = append(buf, byte((v&0x1f)|0x20)+63)
		v >>= 5
	}
	return append(buf, byte(v)+63)
}
