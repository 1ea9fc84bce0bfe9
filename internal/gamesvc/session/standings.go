package session

import (
	"sort"

	"github.com/avvvet/quiz-services/internal/gamesvc/models"
)

// Standings orders players by score descending, then by least recent score change,
// then by join order. It is the only ordering used for positions and final standings.
func Standings(players map[string]*models.Player, joinOrder map[string]int) []*models.Player {
	ordered := make([]*models.Player, 0, len(players))
	for _, p := range players {
		ordered = append(ordered, p)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return joinOrder[a.ID] < joinOrder[b.ID]
	})
	return ordered
}
