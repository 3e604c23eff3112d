package domain

import (
	"math"
	"time"
)

// DefaultSLAHours applies when neither the category nor the department configure a limit.
const DefaultSLAHours = 72

var builtinCategorySLA = map[string]int{
	"streetlight":        24,
	"water supply":       12,
	"water leakage":      12,
	"garbage collection": 24,
	"sewage overflow":    24,
	"drainage":           48,
	"pothole repair":     72,
	"road repair":        96,
	"tree fall":          24,
	"stray animals":      48,
	"noise complaint":    48,
}

// BuiltinSLAHours returns the platform default for a service category.
func BuiltinSLAHours(serviceType string) (int, bool) {
	hours, ok := builtinCategorySLA[NormalizeCategory(serviceType)]
	return hours, ok
}

// ResolveSLAHours applies the lookup order: department category override, built-in
// category default, department flat hours, then fallback.
func ResolveSLAHours(serviceType string, dept *Department, fallback int) int {
	if hours, ok := dept.CategoryOverride(serviceType); ok {
		return hours
	}
	if hours, ok := BuiltinSLAHours(serviceType); ok {
		return hours
	}
	if dept != nil && dept.SLAHours > 0 {
		return dept.SLAHours
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultSLAHours
}

// SLAEvaluation is the read-only result of checking a request against its SLA.
type SLAEvaluation struct {
	RequestID    string        `json:"request_id"`
	Status       RequestStatus `json:"status"`
	Applicable   bool          `json:"applicable"`
	Breached     bool          `json:"breached"`
	SLAHours     int           `json:"sla_hours"`
	HoursElapsed float64       `json:"hours_elapsed"`
	HoursOverdue float64       `json:"hours_overdue"`
	Deadline     *time.Time    `json:"deadline,omitempty"`
	Escalated    bool          `json:"escalated"`
}

// EvaluateSLA computes breach state without mutating the request.
func EvaluateSLA(r *Request, slaHours int, now time.Time) SLAEvaluation {
	eval := SLAEvaluation{
		RequestID: r.ID,
		Status:    r.Status,
		SLAHours:  slaHours,
		Escalated: r.Escalated,
	}
	if r.Status.IsResolved() {
		return eval
	}
	created := r.TimeLogs.Created
	if created.IsZero() {
		created = r.CreatedAt
	}
	deadline := created.Add(time.Duration(slaHours) * time.Hour)
	elapsed := now.Sub(created).Hours()
	if elapsed < 0 {
		elapsed = 0
	}
	eval.Applicable = true
	eval.Deadline = &deadline
	eval.HoursElapsed = roundHours(elapsed)
	eval.Breached = elapsed > float64(slaHours)
	if eval.Breached {
		eval.HoursOverdue = roundHours(elapsed - float64(slaHours))
	}
	return eval
}

func roundHours(h float64) float64 {
	return math.Round(h*100) / 100
}
