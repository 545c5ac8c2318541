// Package search keeps a geo index of beacons so nearby queries do not scan the store.
package search

import (
	"fmt"

	"github.com/beaconapp/beacon-server/internal/domain"
)

// docTypeBeacon is the only document type in the index.
const docTypeBeacon = "beacon"

// BeaconDocument is the indexed projection of a beacon.
type BeaconDocument struct {
	ID        string
	Title     string
	GroupID   string
	Lat       float64
	Lon       float64
	StartsAt  int64 // unix seconds
	ExpiresAt int64 // unix seconds
}

// NewBeaconDocument projects b. It fails when the beacon's location does not parse.
func NewBeaconDocument(b *domain.Beacon) (*BeaconDocument, error) {
	lat, lon, err := b.Location.Coordinates()
	if err != nil {
		return nil, fmt.Errorf("beacon %s: %w", b.ID, err)
	}
	return &BeaconDocument{
		ID:        b.ID,
		Title:     b.Title,
		GroupID:   b.GroupID,
		Lat:       lat,
		Lon:       lon,
		StartsAt:  b.StartsAt.Unix(),
		ExpiresAt: b.ExpiresAt.Unix(),
	}, nil
}

// ToMap converts the document to the field names used by the mapping.
func (d *BeaconDocument) ToMap() map[string]any {
	return map[string]any{
		"type":       docTypeBeacon,
		"title":      d.Title,
		"group_id":   d.GroupID,
		"location":   map[string]any{"lat": d.Lat, "lon": d.Lon},
		"starts_at":  float64(d.StartsAt),
		"expires_at": float64(d.ExpiresAt),
	}
}
