package search

import (
	"context"
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
	blevesearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
)

// DefaultNearbyRadiusMeters is the radius used by the nearby beacons query.
const DefaultNearbyRadiusMeters = 1500

// maxNearbyHits caps a single nearby query.
const maxNearbyHits = 200

// NearbyParams configures a geo query.
type NearbyParams struct {
	Lat          float64
	Lon          float64
	RadiusMeters float64
	// ActiveAt excludes beacons whose expiry is before this instant.
	ActiveAt time.Time
	Limit    int
}

// NearbyHit is one beacon inside the radius, closest first.
type NearbyHit struct {
	ID      string
	GroupID string
}

// Nearby returns beacons within the radius that have not expired at ActiveAt.
func (s *SearchIndex) Nearby(ctx context.Context, p NearbyParams) ([]NearbyHit, error) {
	if p.RadiusMeters <= 0 {
		p.RadiusMeters = DefaultNearbyRadiusMeters
	}
	if p.Limit <= 0 || p.Limit > maxNearbyHits {
		p.Limit = maxNearbyHits
	}

	geo := bleve.NewGeoDistanceQuery(p.Lon, p.Lat, fmt.Sprintf("%.0fm", p.RadiusMeters))
	geo.SetField("location")

	conjuncts := []query.Query{geo}
	if !p.ActiveAt.IsZero() {
		from := float64(p.ActiveAt.Unix())
		inclusive := true
		active := bleve.NewNumericRangeInclusiveQuery(&from, nil, &inclusive, nil)
		active.SetField("expires_at")
		conjuncts = append(conjuncts, active)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(conjuncts...), p.Limit, 0, false)
	req.Fields = []string{"group_id"}

	byDistance, err := blevesearch.NewSortGeoDistance("location", "m", p.Lon, p.Lat, false)
	if err != nil {
		return nil, fmt.Errorf("build distance sort: %w", err)
	}
	req.SortByCustom(blevesearch.SortOrder{byDistance})

	s.mu.RLock()
	res, err := s.index.SearchInContext(ctx, req)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("nearby search: %w", err)
	}

	hits := make([]NearbyHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := NearbyHit{ID: h.ID}
		if g, ok := h.Fields["group_id"].(string); ok {
			hit.GroupID = g
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
