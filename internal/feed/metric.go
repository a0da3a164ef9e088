package feed

import (
	"fmt"
	"slices"
)

// Metric names an engagement counter.
type Metric string

const (
	MetricLike  Metric = "like"
	MetricShare Metric = "share"
	MetricView  Metric = "view"
)

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricLike, MetricShare, MetricView:
		return m, nil
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// ApplyMetric records handle's engagement on p. Likes and shares toggle
// membership; a view is added once and never removed. Returns true when the
// post changed.
func (p *Post) ApplyMetric(m Metric, handle string) bool {
	if handle == "" {
		return false
	}
	switch m {
	case MetricView:
		if slices.Contains(p.ViewedBy, handle) {
			return false
		}
		p.ViewedBy = append(p.ViewedBy, handle)
		p.Views = len(p.ViewedBy)
		return true
	case MetricLike:
		p.LikedBy, p.Likes = toggle(p.LikedBy, p.Likes, handle)
		return true
	case MetricShare:
		p.SharedBy, p.Shares = toggle(p.SharedBy, p.Shares, handle)
		return true
	}
	return false
}

// toggle flips handle's membership in set and moves count with it, floored
// at zero.
func toggle(set []string, count int, handle string) ([]string, int) {
	if slices.Contains(set, handle) {
		return without(set, handle), max(0, count-1)
	}
	return append(set, handle), count + 1
}

func without(set []string, handle string) []string {
	out := make([]string, 0, len(set))
	for _, h := range set {
		if h != handle {
			out = append(out, h)
		}
	}
	return out
}

func withUnique(set []string, handle string) []string {
	if slices.Contains(set, handle) {
		return set
	}
	return append(slices.Clone(set), handle)
}
