package main

import (
	"errors"
	"strings"
	"time"
)

// newRound creates a fresh Round from a generated challenge. All round-scoped
// fields start zeroed: no clues revealed, no attempts, freeze unused.
func newRound(challenge WordChallenge, level DifficultyLevel, now time.Time) *Round {
	return &Round{
		Word:       strings.ToLower(strings.TrimSpace(challenge.Word)),
		Riddle:     challenge.Riddle,
		AllClues:   challenge.Clues,
		Difficulty: level,
		Fallback:   challenge.Fallback,
		StartedAt:  now,
		State:      RoundPlaying,
	}
}

// freezeCredit is the amount of wall-clock time the round clock does not
// count, accrued by the one-shot freeze.
func (r *Round) freezeCredit(now time.Time) time.Duration {
	if r.FrozenAt.IsZero() {
		return 0
	}
	credit := now.Sub(r.FrozenAt)
	if credit < 0 {
		credit = 0
	}
	if credit > FreezeDuration {
		credit = FreezeDuration
	}
	return credit
}

// Frozen reports whether the round clock is currently suspended. The freeze
// auto-expires after FreezeDuration of wall-clock time.
func (r *Round) Frozen(now time.Time) bool {
	if r.State != RoundPlaying || r.FrozenAt.IsZero() {
		return false
	}
	return now.Before(r.FrozenAt.Add(FreezeDuration))
}

// ElapsedSeconds derives the round clock from the start instant, minus freeze
// credit, capped at the budget. Terminal rounds report the pinned value.
func (r *Round) ElapsedSeconds(now time.Time) int {
	if r.State != RoundPlaying {
		return r.FinalElapsed
	}
	elapsed := int((now.Sub(r.StartedAt) - r.freezeCredit(now)) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > RoundBudgetSeconds {
		elapsed = RoundBudgetSeconds
	}
	return elapsed
}

// RemainingSeconds is the budget left on the round clock.
func (r *Round) RemainingSeconds(now time.Time) int {
	return RoundBudgetSeconds - r.ElapsedSeconds(now)
}

// syncClock advances the derived state to the current instant: it reveals
// clues for every crossed checkpoint and transitions Playing to Lost when the
// budget is exhausted. Revealed-clue count only ever grows within a round.
func (r *Round) syncClock(now time.Time) {
	if r.State != RoundPlaying {
		return
	}
	elapsed := r.ElapsedSeconds(now)

	due := 0
	for _, checkpoint := range clueCheckpoints {
		if elapsed >= checkpoint {
			due++
		}
	}
	if due > len(r.AllClues) {
		due = len(r.AllClues)
	}
	if due > r.Revealed {
		r.Revealed = due
	}

	if r.LastWrongGuess != "" && now.Sub(r.LastWrongGuessAt) > WrongGuessFlash {
		r.LastWrongGuess = ""
	}

	if elapsed >= RoundBudgetSeconds {
		r.State = RoundLost
		r.FinalElapsed = RoundBudgetSeconds
	}
}

// RevealedClues returns the visible prefix of the clue list.
func (r *Round) RevealedClues() []string {
	return r.AllClues[:min(r.Revealed, len(r.AllClues))]
}

// submitGuess evaluates one guess against the word. Comparison is
// case-insensitive and trimmed. A correct guess ends the round as Won; a
// wrong guess records transient feedback and keeps the round Playing.
func (r *Round) submitGuess(text string, now time.Time) (bool, error) {
	r.syncClock(now)
	if r.State != RoundPlaying {
		return false, errors.New(ErrorRoundOver)
	}

	guess := strings.ToLower(strings.TrimSpace(text))
	if guess == "" {
		return false, errors.New(ErrorEmptyGuess)
	}

	r.TotalAttempts++
	if guess == r.Word {
		r.FinalElapsed = r.ElapsedSeconds(now)
		r.State = RoundWon
		return true, nil
	}

	r.WrongAttempts++
	r.LastWrongGuess = strings.TrimSpace(text)
	r.LastWrongGuessAt = now
	return false, nil
}

// freezeTime suspends the round clock for FreezeDuration. It is valid once
// per round; FreezeUsed is set immediately and never cleared, so a second
// invocation is rejected even mid-freeze.
func (r *Round) freezeTime(now time.Time) error {
	r.syncClock(now)
	if r.State != RoundPlaying {
		return errors.New(ErrorRoundOver)
	}
	if r.FreezeUsed {
		return errors.New(ErrorFreezeUsed)
	}
	r.FreezeUsed = true
	r.FrozenAt = now
	return nil
}
