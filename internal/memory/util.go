package memory

import (
	"sort"

	"privacy-relay-settlement/internal/models"
)

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func sortBalances(b []models.CreditBalance) {
	sort.Slice(b, func(i, j int) bool { return b[i].Currency < b[j].Currency })
}

// page applies limit/offset; a non-positive limit means no limit.
func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
