package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "fieldwatch/pkg/domain-errors"
)

// abidjan is the reference office center used across the attendance tests.
var abidjan = Coordinate{Latitude: 5.396534, Longitude: -3.981554}

func TestDistanceMeters(t *testing.T) {
	t.Run("identical points are zero", func(t *testing.T) {
		d, err := DistanceMeters(abidjan, abidjan)
		require.NoError(t, err)
		assert.InDelta(t, 0, d, 1e-6)
	})

	t.Run("symmetric", func(t *testing.T) {
		other := Coordinate{Latitude: 48.8566, Longitude: 2.3522}
		d1, err := DistanceMeters(abidjan, other)
		require.NoError(t, err)
		d2, err := DistanceMeters(other, abidjan)
		require.NoError(t, err)
		assert.InDelta(t, d1, d2, 1e-6)
	})

	t.Run("long haul distance", func(t *testing.T) {
		far := Coordinate{Latitude: -1.699557, Longitude: 104.324651}
		d, err := DistanceMeters(abidjan, far)
		require.NoError(t, err)
		assert.InDelta(t, 12051555, d, 1.0)
	})

	t.Run("short distance within a city block", func(t *testing.T) {
		near := Coordinate{Latitude: 5.397534, Longitude: -3.981554}
		d, err := DistanceMeters(abidjan, near)
		require.NoError(t, err)
		// one millidegree of latitude is roughly 111 meters
		assert.InDelta(t, 111.2, d, 0.5)
	})

	t.Run("antipodal points stay finite", func(t *testing.T) {
		a := Coordinate{Latitude: 0, Longitude: 0}
		b := Coordinate{Latitude: 0, Longitude: 180}
		d, err := DistanceMeters(a, b)
		require.NoError(t, err)
		assert.InDelta(t, math.Pi*earthRadiusMeters, d, 1.0)
	})
}

func TestDistanceMetersRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name string
		a, b Coordinate
	}{
		{"latitude above range", Coordinate{Latitude: 90.1}, abidjan},
		{"latitude below range", Coordinate{Latitude: -90.1}, abidjan},
		{"longitude above range", Coordinate{Longitude: 180.1}, abidjan},
		{"longitude below range", Coordinate{Longitude: -180.1}, abidjan},
		{"NaN latitude", Coordinate{Latitude: math.NaN()}, abidjan},
		{"infinite longitude", Coordinate{Longitude: math.Inf(1)}, abidjan},
		{"second operand invalid", abidjan, Coordinate{Latitude: 91}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DistanceMeters(tc.a, tc.b)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestCoordinateValidateAcceptsBoundaries(t *testing.T) {
	for _, c := range []Coordinate{
		{Latitude: 90, Longitude: 180},
		{Latitude: -90, Longitude: -180},
		{Latitude: 0, Longitude: 0},
	} {
		assert.NoError(t, c.Validate())
	}
}
