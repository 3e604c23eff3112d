package domain

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const (
	maxSimilarKeywords = 5
	minKeywordLength   = 4
	MaxSimilarResults  = 10
	SimilarRadiusKm    = 1.0
	kmPerDegree        = 111.0
)

// SimilarQuery is the input for duplicate detection.
type SimilarQuery struct {
	ServiceType string
	Description string
	Address     string
	Lat         *float64
	Lng         *float64
}

// HasCoordinates reports whether the query carries a geo point.
func (q SimilarQuery) HasCoordinates() bool {
	return q.Lat != nil && q.Lng != nil
}

// ExtractKeywords returns up to five distinct lowercase tokens of four or more characters,
// in order of first appearance.
func ExtractKeywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, maxSimilarKeywords)
	for _, f := range fields {
		if len([]rune(f)) < minKeywordLength {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
		if len(out) == maxSimilarKeywords {
			break
		}
	}
	return out
}

// SimilarPattern builds the case-insensitive alternation matched against description and
// address. It returns "" when there is nothing to match on.
func SimilarPattern(q SimilarQuery) string {
	terms := ExtractKeywords(q.Description)
	if addr := strings.TrimSpace(q.Address); addr != "" {
		terms = append(terms, strings.ToLower(addr))
	}
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return strings.Join(quoted, "|")
}

// PlanarDistanceKm approximates distance with a flat-earth degree scale.
func PlanarDistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := lat1 - lat2
	dLng := lng1 - lng2
	return math.Sqrt(dLat*dLat+dLng*dLng) * kmPerDegree
}

// SimilarExcludedStatuses never show up as duplicate candidates. Invalid and merged
// requests cannot be supported, so offering them would send citizens to a dead end.
var SimilarExcludedStatuses = []RequestStatus{StatusClosed, StatusMerged, StatusInvalid}

// MatchesSimilar applies the full similarity filter to one candidate. Storage backends that
// can push the filter down may use it only for the geo step.
func MatchesSimilar(r *Request, q SimilarQuery, pattern *regexp.Regexp) bool {
	if !strings.EqualFold(strings.TrimSpace(r.ServiceType), strings.TrimSpace(q.ServiceType)) {
		return false
	}
	if statusIn(r.Status, SimilarExcludedStatuses) {
		return false
	}
	if pattern != nil {
		addr := ""
		if r.Location != nil {
			addr = r.Location.Address
		}
		if !pattern.MatchString(r.Description) && !pattern.MatchString(addr) {
			return false
		}
	}
	return WithinRadius(r, q)
}

// WithinRadius reports whether r lies inside the similarity radius of q. Queries without
// coordinates match everything.
func WithinRadius(r *Request, q SimilarQuery) bool {
	if !q.HasCoordinates() {
		return true
	}
	if !r.Location.HasCoordinates() {
		return false
	}
	return PlanarDistanceKm(*q.Lat, *q.Lng, *r.Location.Lat, *r.Location.Lng) <= SimilarRadiusKm
}

// CompileSimilarPattern compiles the pattern case-insensitively; nil means match all.
func CompileSimilarPattern(q SimilarQuery) *regexp.Regexp {
	p := SimilarPattern(q)
	if p == "" {
		return nil
	}
	return regexp.MustCompile("(?i)" + p)
}

// RankSimilar orders by supporters then recency and caps the result.
func RankSimilar(candidates []*Request) []*Request {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].SupportCount != candidates[j].SupportCount {
			return candidates[i].SupportCount > candidates[j].SupportCount
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	if len(candidates) > MaxSimilarResults {
		candidates = candidates[:MaxSimilarResults]
	}
	return candidates
}
