package domain

import (
	"fmt"
	"math"
	"strconv"
)

const earthRadiusMeters = 6371000.0

// Location is a coordinate pair kept as the decimal strings the client sent.
// Parsing happens only where a distance is needed.
type Location struct {
	Lat string `json:"lat" validate:"required,latitude"`
	Lon string `json:"lon" validate:"required,longitude"`
}

// Coordinates parses the location into float degrees.
func (l Location) Coordinates() (lat, lon float64, err error) {
	lat, err = strconv.ParseFloat(l.Lat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse latitude %q: %w", l.Lat, err)
	}
	lon, err = strconv.ParseFloat(l.Lon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse longitude %q: %w", l.Lon, err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("coordinates out of range: %s,%s", l.Lat, l.Lon)
	}
	return lat, lon, nil
}

// DistanceMeters returns the great-circle distance between two locations.
func (l Location) DistanceMeters(other Location) (float64, error) {
	lat1, lon1, err := l.Coordinates()
	if err != nil {
		return 0, err
	}
	lat2, lon2, err := other.Coordinates()
	if err != nil {
		return 0, err
	}

	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	Δφ := (lat2 - lat1) * math.Pi / 180
	Δλ := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(Δφ/2)*math.Sin(Δφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a)), nil
}
