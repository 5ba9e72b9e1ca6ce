package ports

import (
	"sort"

	"github.com/aretw0/weft/pkg/domain"
)

func sortByCreation(runs []*domain.Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
}
