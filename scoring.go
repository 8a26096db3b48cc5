package main

import (
	"math"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// tierTable is ordered by ascending threshold; a score maps to the
// highest-threshold tier not exceeding it.
var tierTable = []Tier{
	{Name: "Bronze", Threshold: 0},
	{Name: "Silver", Threshold: 200},
	{Name: "Gold", Threshold: 500},
	{Name: "Platinum", Threshold: 1000},
	{Name: "Diamond", Threshold: 2000},
	{Name: "Master", Threshold: 3500},
	{Name: "Grandmaster", Threshold: 5000},
	{Name: "Legend", Threshold: 7500},
}

// effectiveDifficulty derives the difficulty actually used for generation and
// scoring from the current streak, overriding the base difficulty.
func effectiveDifficulty(streak int, base DifficultyLevel) DifficultyLevel {
	switch {
	case streak >= 10:
		return DifficultyExpert
	case streak >= 6:
		return DifficultyHard
	case streak >= 3:
		return DifficultyMedium
	default:
		return base
	}
}

// difficultyBonus returns the fixed score bonus for a difficulty level.
func difficultyBonus(level DifficultyLevel) int {
	switch level {
	case DifficultyMedium:
		return 30
	case DifficultyHard:
		return 60
	case DifficultyExpert:
		return 100
	default:
		return 0
	}
}

// computeAward calculates the points for a correct guess. The floor of
// MinAwardPoints guarantees a positive reward regardless of penalties.
func computeAward(elapsedRemaining, revealedClues, wrongAttempts, streak int, base DifficultyLevel) int {
	points := BaseAwardPoints +
		elapsedRemaining/5 +
		difficultyBonus(effectiveDifficulty(streak, base)) +
		min(streak*5, StreakBonusCap) -
		CluePenalty*revealedClues -
		WrongAttemptPenalty*wrongAttempts
	return max(MinAwardPoints, points)
}

// tierFor maps a cumulative score onto the tier table.
func tierFor(score int) Tier {
	tier := tierTable[0]
	for _, t := range tierTable {
		if score >= t.Threshold {
			tier = t
		}
	}
	return tier
}

// bestScoresByPlayer reduces a leaderboard snapshot to one best score per
// player name, sorted descending.
func bestScoresByPlayer(snapshot []LeaderboardEntry) []RivalScore {
	best := make(map[string]int)
	for _, entry := range snapshot {
		if current, ok := best[entry.Name]; !ok || entry.Score > current {
			best[entry.Name] = entry.Score
		}
	}
	rivals := lo.MapToSlice(best, func(name string, score int) RivalScore {
		return RivalScore{Name: name, Score: score}
	})
	sort.Slice(rivals, func(i, j int) bool {
		if rivals[i].Score != rivals[j].Score {
			return rivals[i].Score > rivals[j].Score
		}
		return rivals[i].Name < rivals[j].Name
	})
	return rivals
}

// percentileRank returns the percentage of distinct players whose best score
// is strictly below the given score. An empty snapshot ranks at 100.
func percentileRank(score int, snapshot []LeaderboardEntry) int {
	rivals := bestScoresByPlayer(snapshot)
	if len(rivals) == 0 {
		return 100
	}
	lower := lo.CountBy(rivals, func(r RivalScore) bool {
		return r.Score < score
	})
	return int(math.Round(float64(lower) / float64(len(rivals)) * 100))
}

// detectRankOvertake returns the highest-scoring of the top 3 other players
// whose best score the new score now exceeds, if any. Used only for a
// one-shot notification.
func detectRankOvertake(score int, snapshot []LeaderboardEntry, excludePlayer string) *RivalScore {
	rivals := lo.Filter(bestScoresByPlayer(snapshot), func(r RivalScore, _ int) bool {
		return !strings.EqualFold(r.Name, excludePlayer)
	})
	if len(rivals) > 3 {
		rivals = rivals[:3]
	}
	for _, rival := range rivals {
		if score > rival.Score {
			return &RivalScore{Name: rival.Name, Score: rival.Score}
		}
	}
	return nil
}
