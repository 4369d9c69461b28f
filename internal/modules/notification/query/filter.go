package query

import (
	"sort"
	"strings"

	"anoa.com/noticeboard/internal/entity"
)

// RecentLimit is the number of records kept in NotificationStats.Recent.
const RecentLimit = 5

// RemotePredicate is the part of a filter the store evaluates itself.
// Each set field is an equality predicate.
type RemotePredicate struct {
	Type     *entity.NotificationType
	IsRead   *bool
	Priority *entity.Priority
}

func Remote(filter entity.NotificationFilter) RemotePredicate {
	return RemotePredicate{
		Type:     filter.Type,
		IsRead:   filter.IsRead,
		Priority: filter.Priority,
	}
}

// HasLocal reports whether ApplyLocal can drop anything.
func HasLocal(filter entity.NotificationFilter) bool {
	return strings.TrimSpace(filter.SearchQuery) != "" || filter.StartDate != nil || filter.EndDate != nil
}

// ApplyLocal applies the search query and the inclusive created_at range.
// The input slice is never modified.
func ApplyLocal(records []entity.Notification, filter entity.NotificationFilter) []entity.Notification {
	if !HasLocal(filter) {
		out := make([]entity.Notification, len(records))
		copy(out, records)
		return out
	}

	search := strings.ToLower(strings.TrimSpace(filter.SearchQuery))
	out := make([]entity.Notification, 0, len(records))
	for _, n := range records {
		if search != "" &&
			!strings.Contains(strings.ToLower(n.Title), search) &&
			!strings.Contains(strings.ToLower(n.Message), search) {
			continue
		}
		if filter.StartDate != nil && n.CreatedAt.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && n.CreatedAt.After(*filter.EndDate) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Matches evaluates the remote predicate in memory. Used to re-apply a
// predicate to a locally patched list.
func (p RemotePredicate) Matches(n entity.Notification) bool {
	if p.Type != nil && n.Type != *p.Type {
		return false
	}
	if p.IsRead != nil && n.IsRead != *p.IsRead {
		return false
	}
	if p.Priority != nil && n.Priority != *p.Priority {
		return false
	}
	return true
}

// BuildStats folds a full record set into the aggregate. Every type and
// priority tag is present in the maps, zero when unused.
func BuildStats(records []entity.Notification) *entity.NotificationStats {
	stats := &entity.NotificationStats{
		Total:      int64(len(records)),
		ByType:     make(map[entity.NotificationType]int64, len(entity.NotificationTypes)),
		ByPriority: make(map[entity.Priority]int64, len(entity.Priorities)),
		Recent:     []entity.Notification{},
	}
	for _, t := range entity.NotificationTypes {
		stats.ByType[t] = 0
	}
	for _, p := range entity.Priorities {
		stats.ByPriority[p] = 0
	}

	for _, n := range records {
		if !n.IsRead {
			stats.Unread++
		}
		stats.ByType[n.Type]++
		stats.ByPriority[n.Priority]++
	}

	sorted := make([]entity.Notification, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > RecentLimit {
		sorted = sorted[:RecentLimit]
	}
	stats.Recent = append(stats.Recent, sorted...)

	return stats
}
