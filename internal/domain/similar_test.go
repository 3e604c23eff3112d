package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtractKeywords(t *testing.T) {
	got := ExtractKeywords("Huge pothole, huge POTHOLE on Main road near the old bakery and school gate")
	assert.Equal(t, []string{"huge", "pothole", "main", "road", "near"}, got)
	assert.Empty(t, ExtractKeywords("a an the"))
}

func TestSimilarPatternQuotesInput(t *testing.T) {
	p := SimilarPattern(SimilarQuery{Description: "leak (pipe)", Address: "5th Ave."})
	assert.Equal(t, `leak|pipe|5th ave\.`, p)
	assert.Equal(t, "", SimilarPattern(SimilarQuery{}))
	assert.Nil(t, CompileSimilarPattern(SimilarQuery{}))
}

func TestPlanarDistanceKm(t *testing.T) {
	assert.InDelta(t, 111.0, PlanarDistanceKm(0, 0, 1, 0), 1e-9)
	assert.InDelta(t, 0.555, PlanarDistanceKm(10, 10, 10.005, 10), 1e-6)
}

func TestMatchesSimilar(t *testing.T) {
	lat, lng := 12.97, 77.59
	near, farLat := lat+0.005, lat+0.05
	q := SimilarQuery{ServiceType: "Water Leakage", Description: "pipeline burst flooding", Lat: &lat, Lng: &lng}
	pattern := CompileSimilarPattern(q)

	match := &Request{ServiceType: "water leakage", Status: StatusWorking, Description: "Pipeline leaking badly",
		Location: &Location{Lat: &near, Lng: &lng}}
	assert.True(t, MatchesSimilar(match, q, pattern))

	far := match.Clone()
	far.Location.Lat = &farLat
	assert.False(t, MatchesSimilar(far, q, pattern))

	noGeo := match.Clone()
	noGeo.Location = nil
	assert.False(t, MatchesSimilar(noGeo, q, pattern))

	otherType := match.Clone()
	otherType.ServiceType = "Drainage"
	assert.False(t, MatchesSimilar(otherType, q, pattern))

	for _, status := range []RequestStatus{StatusClosed, StatusMerged, StatusInvalid} {
		excluded := match.Clone()
		excluded.Status = status
		assert.False(t, MatchesSimilar(excluded, q, pattern), status)
	}

	unrelated := match.Clone()
	unrelated.Description = "broken bench"
	assert.False(t, MatchesSimilar(unrelated, q, pattern))

	q.Lat, q.Lng = nil, nil
	assert.True(t, MatchesSimilar(noGeo, q, pattern))
}

func TestRankSimilar(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var candidates []*Request
	for i := 0; i < 12; i++ {
		candidates = append(candidates, &Request{
			ID:           fmt.Sprintf("r%d", i),
			SupportCount: i % 3,
			CreatedAt:    base.Add(time.Duration(i) * time.Hour),
		})
	}
	ranked := RankSimilar(candidates)
	assert.Len(t, ranked, MaxSimilarResults)
	assert.Equal(t, "r11", ranked[0].ID)
	assert.Equal(t, "r8", ranked[1].ID)
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].SupportCount, ranked[i].SupportCount)
	}
}
