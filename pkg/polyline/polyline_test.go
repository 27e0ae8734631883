package polyline

import (
	"errors"
	"math"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		encoded   string
		precision int
		expected  []Coordinate
	}{
		{
			name:      "single point",
			encoded:   "_p~iF~ps|U",
			precision: Precision5,
			expected:  []Coordinate{{Lat: 38.5, Lon: -120.2}},
		},
		{
			name:      "google example",
			encoded:   "_p~iF~ps|U_ulLnnqC_mqNvxq`@",
			precision: Precision5,
			expected: []Coordinate{
				{Lat: 38.5, Lon: -120.2},
				{Lat: 40.7, Lon: -120.95},
				{Lat: 43.252, Lon: -126.453},
			},
		},
		{
			name:      "zero precision falls back to five places",
			encoded:   "_p~iF~ps|U",
			precision: 0,
			expected:  []Coordinate{{Lat: 38.5, Lon: -120.2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Decode(tt.encoded, tt.precision)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d coordinates, got %d", len(tt.expected), len(result))
			}
			for i, coord := range result {
				if !coordsEqual(coord, tt.expected[i], 1e-6) {
					t.Errorf("coordinate %d: expected %+v, got %+v", i, tt.expected[i], coord)
				}
			}
		})
	}
}

func TestDecode_EmptyString(t *testing.T) {
	result, err := Decode("", Precision5)
	if err != nil || result != nil {
		t.Errorf("expected nil result and error, got %v, %v", result, err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{"truncated value", "_p~i"},
		{"missing longitude", "_p~iF"},
		{"byte outside alphabet", "_p~iF~ps|U !"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.encoded, Precision5); !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	coords := []Coordinate{
		{Lat: 38.5, Lon: -120.2},
		{Lat: 40.7, Lon: -120.95},
		{Lat: 43.252, Lon: -126.453},
	}
	if got := Encode(coords, Precision5); got != "_p~iF~ps|U_ulLnnqC_mqNvxq`@" {
		t.Errorf("unexpected encoding %q", got)
	}
	if got := Encode(nil, Precision5); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestRoundTrip(t *testing.T) {
	coords := []Coordinate{
		{Lat: 41.788612, Lon: -87.598734},
		{Lat: 41.790101, Lon: -87.599012},
		{Lat: 41.792305, Lon: -87.600118},
	}

	for _, precision := range []int{Precision5, Precision6} {
		decoded, err := Decode(Encode(coords, precision), precision)
		if err != nil {
			t.Fatalf("precision %d: unexpected error: %v", precision, err)
		}
		tolerance := math.Pow10(-precision)
		for i, coord := range decoded {
			if !coordsEqual(coord, coords[i], tolerance) {
				t.Errorf("precision %d, coordinate %d: expected %+v, got %+v", precision, i, coords[i], coord)
			}
		}
	}
}

func coordsEqual(a, b Coordinate, tolerance float64) bool {
	return math.Abs(a.Lat-b.Lat) <= tolerance && math.Abs(a.Lon-b.Lon) <= tolerance
}

func BenchmarkDecode(b *testing.B) {
	encoded := "_p~iF~ps|U_ulLnnqC_mqNvxq`@"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decode(encoded, Precision5)
	}
}
