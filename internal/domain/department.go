package domain

import (
	"strings"
	"time"
)

// Department represents a municipal unit that owns an SLA policy.
type Department struct {
	ID          string
	Name        string
	Description string
	HeadID      *string
	SLAHours    int
	CategorySLA map[string]int
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CategoryOverride returns the per-category SLA override, matched case-insensitively.
// Rows written before keys were normalized may hold case variants; the strictest wins.
func (d *Department) CategoryOverride(serviceType string) (int, bool) {
	if d == nil {
		return 0, false
	}
	key := NormalizeCategory(serviceType)
	best := 0
	for category, hours := range d.CategorySLA {
		if hours > 0 && NormalizeCategory(category) == key && (best == 0 || hours < best) {
			best = hours
		}
	}
	return best, best > 0
}

// NormalizeCategory is the lookup form of a service category name.
func NormalizeCategory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
