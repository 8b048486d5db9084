package engagement

import "github.com/mindcamp/mindcamp/internal/domain"

// RankTableVersion identifies the threshold table below. Bump it whenever a
// bound moves so UI collaborators can invalidate cached badge copy.
const RankTableVersion = 1

// rankTable is ordered by ascending MinStreak.
var rankTable = []domain.RankTier{
	{Rank: domain.RankGuest, Label: "Guest", MinStreak: 0},
	{Rank: domain.RankMember, Label: "Member", MinStreak: 4},
	{Rank: domain.RankRegular, Label: "Regular", MinStreak: 15},
	{Rank: domain.RankVeteran, Label: "Veteran", MinStreak: 31},
	{Rank: domain.RankFinalWeek, Label: "Final Week", MinStreak: 57},
	{Rank: domain.RankMaster, Label: "Master", MinStreak: 64},
}

// Ranks returns a copy of the rank table.
func Ranks() []domain.RankTier {
	out := make([]domain.RankTier, len(rankTable))
	copy(out, rankTable)
	return out
}

// RankFor returns the tier whose lower bound is the greatest bound <= streak.
// Negative input is clamped to guest so the function stays total; callers
// reject negative streaks before they get here.
func RankFor(streak int) domain.Rank {
	rank := domain.RankGuest
	for _, tier := range rankTable {
		if streak >= tier.MinStreak {
			rank = tier.Rank
		}
	}
	return rank
}

// NextRank describes the next tier above streak, or nil at master.
func NextRank(streak int) *domain.NextRankInfo {
	if streak < 0 {
		streak = 0
	}
	for _, tier := range rankTable {
		if tier.MinStreak > streak {
			return &domain.NextRankInfo{
				Rank:       tier.Rank,
				Label:      tier.Label,
				DaysNeeded: tier.MinStreak - streak,
			}
		}
	}
	return nil
}

// TierOf looks up a rank's row.
func TierOf(r domain.Rank) (domain.RankTier, bool) {
	for _, tier := range rankTable {
		if tier.Rank == r {
			return tier, true
		}
	}
	return domain.RankTier{}, false
}
