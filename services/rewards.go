package services

import (
	"battle-event-system/models"

	"github.com/google/uuid"
)

// payoutTable maps final rank to the fixed token payout. Ranks beyond the
// table pay zero; the calculator knows nothing about token pricing.
var payoutTable = map[int]float64{
	1: 100,
	2: 50,
	3: 25,
	4: 10,
	5: 5,
}

// PayoutForRank returns the fixed payout for a 1-based final rank.
func PayoutForRank(rank int) float64 {
	return payoutTable[rank]
}

// ComputeRewards emits one entry per ranked fighter, including zero-amount
// entries beyond rank 5 so downstream consumers can record participation.
func ComputeRewards(battleID string, ranking []RankedFighter) []models.RewardEntry {
	entries := make([]models.RewardEntry, 0, len(ranking))
	for _, f := range ranking {
		entries = append(entries, models.RewardEntry{
			ID:       uuid.NewString(),
			BattleID: battleID,
			UserID:   f.UserID,
			Position: f.Position,
			Amount:   PayoutForRank(f.Position),
		})
	}
	return entries
}
