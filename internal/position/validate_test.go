package position

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(id, ts string, lat, lon *float64) RawRecord {
	return RawRecord{SpaceTrack: Identity{ObjectID: id, CreationDate: ts}, Latitude: lat, Longitude: lon}
}

func TestValidate_CompleteRecord(t *testing.T) {
	rec, err := Validate(raw("2019-029D", "2020-05-24T16:25:06", Float(12.5), Float(-45.25)))
	require.NoError(t, err)

	assert.Equal(t, "2019-029D", rec.ObjectID)
	assert.Equal(t, time.Date(2020, 5, 24, 16, 25, 6, 0, time.UTC), rec.CreationTime)
	assert.True(t, rec.HasCompleteCoordinates())

	pt, ok := rec.Location()
	require.True(t, ok)
	assert.Equal(t, -45.25, pt.Lon())
	assert.Equal(t, 12.5, pt.Lat())
}

func TestValidate_NullCoordinatesAcceptedIndependently(t *testing.T) {
	cases := map[string]RawRecord{
		"both null":      raw("X", "2024-01-01T00:00:00", nil, nil),
		"latitude only":  raw("X", "2024-01-01T00:00:00", Float(10), nil),
		"longitude only": raw("X", "2024-01-01T00:00:00", nil, Float(170)),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			rec, err := Validate(in)
			require.NoError(t, err)
			assert.False(t, rec.HasCompleteCoordinates())
			_, ok := rec.Location()
			assert.False(t, ok)
		})
	}
}

func TestValidate_RangeEnforcement(t *testing.T) {
	cases := []struct {
		name  string
		lat   *float64
		lon   *float64
		field string
	}{
		{"latitude above", Float(90.0001), Float(0), "latitude"},
		{"latitude below", Float(-91), nil, "latitude"},
		{"longitude above", Float(0), Float(180.5), "longitude"},
		{"longitude below", nil, Float(-181), "longitude"},
		{"latitude NaN", Float(math.NaN()), nil, "latitude"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(raw("X", "2024-01-01T00:00:00", tc.lat, tc.lon))
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestValidate_BoundsAreInclusive(t *testing.T) {
	for _, c := range [][2]float64{{90, 180}, {-90, -180}} {
		_, err := Validate(raw("X", "2024-01-01T00:00:00", Float(c[0]), Float(c[1])))
		assert.NoError(t, err)
	}
}

func TestValidate_RequiredIdentity(t *testing.T) {
	_, err := Validate(raw("", "2024-01-01T00:00:00", nil, nil))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "object_id", ve.Field)

	_, err = Validate(raw("X", "", nil, nil))
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "creation_date", ve.Field)
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("2024-01-01T00:00:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), got)

	for _, bad := range []string{"2024-01-01 00:00:00", "01/01/2024", "2024-01-01T00:00:00Z", "2024-01-01T00:00", "",
		"2024-01-01T00:00:00.5", "2024-01-01T00:00:00,999"} {
		_, err := ParseTimestamp(bad)
		var te *InvalidTimestampFormatError
		assert.ErrorAs(t, err, &te, bad)
	}
}

func TestValidate_TimestampFormatIsDistinct(t *testing.T) {
	_, err := Validate(raw("X", "2024-01-01 00:00:00", Float(1), Float(1)))
	var te *InvalidTimestampFormatError
	require.ErrorAs(t, err, &te)
	var ve *ValidationError
	assert.False(t, errors.As(err, &ve))
	assert.True(t, IsClientError(err))
}

func TestFormatTimestamp_RoundTrip(t *testing.T) {
	ts := time.Date(2021, 3, 4, 5, 6, 7, 0, time.FixedZone("x", 3600))
	s := FormatTimestamp(ts)
	assert.Equal(t, "2021-03-04T04:06:07", s)
	back, err := ParseTimestamp(s)
	require.NoError(t, err)
	assert.True(t, back.Equal(ts))
}

func TestDecodeRaw_Aliases(t *testing.T) {
	r, err := DecodeRaw([]byte(`{"spaceTrack":{"OBJECT_ID":"A","CREATION_DATE":"2020-01-01T00:00:00"},"latitude":null,"longitude":3.5,"height_km":550}`))
	require.NoError(t, err)
	assert.Equal(t, "A", r.SpaceTrack.ObjectID)
	assert.Equal(t, "2020-01-01T00:00:00", r.SpaceTrack.CreationDate)
	assert.Nil(t, r.Latitude)
	require.NotNil(t, r.Longitude)
	assert.Equal(t, 3.5, *r.Longitude)

	r, err = DecodeRaw([]byte(`{"spaceTrack":{"object_id":"B","creation_date":"2020-01-01T00:00:01"}}`))
	require.NoError(t, err)
	assert.Equal(t, "B", r.SpaceTrack.ObjectID)
	assert.Equal(t, "2020-01-01T00:00:01", r.SpaceTrack.CreationDate)
}

func TestDecodeRaw_WrongTypeIsValidationError(t *testing.T) {
	_, err := DecodeRaw([]byte(`{"spaceTrack":{"OBJECT_ID":"A","CREATION_DATE":"2020-01-01T00:00:00"},"latitude":"north"}`))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "latitude", ve.Field)
}

func TestCheckCoordinates(t *testing.T) {
	assert.NoError(t, CheckCoordinates(0, 0))
	assert.Error(t, CheckCoordinates(95, 0))
	assert.Error(t, CheckCoordinates(0, -200))
}

func TestValidate_FractionalSecondsRejected(t *testing.T) {
	for _, ts := range []string{"2024-01-01T00:00:00.1", "2024-01-01T00:00:00.9"} {
		_, err := Validate(raw("X", ts, Float(1), Float(1)))
		var te *InvalidTimestampFormatError
		assert.ErrorAs(t, err, &te, ts)
	}
}
