package main

import (
	"context"
	"errors"
	"time"
)

// initializeSession builds session progress for an identified player:
// counters reset, no words used, no round yet. The first round starts on the
// first new-round request.
func (app *App) initializeSession(playerID, playerName string) *GameSession {
	session := &GameSession{
		PlayerID:       playerID,
		PlayerName:     playerName,
		BaseDifficulty: DifficultyEasy,
		UsedWords:      make(map[string]struct{}),
		LastAccessTime: time.Now(),
	}
	app.Sessions[playerID] = session
	return session
}

// refreshSnapshot loads the leaderboard view used for percentile and
// overtake calculations. A failed load keeps the previous snapshot; the
// worst case is a stale leaderboard, never a blocked round.
func (app *App) refreshSnapshot(ctx context.Context, session *GameSession) {
	snapshot, err := app.Store.Leaderboard(ctx)

	app.SessionMutex.Lock()
	defer app.SessionMutex.Unlock()
	if err != nil {
		logWarn("Failed to refresh leaderboard snapshot for %s: %v", session.PlayerID, err)
		session.Notice = "leaderboard is temporarily unavailable"
		return
	}
	session.Snapshot = snapshot
}

// startRound acquires a word from the provider, excluding the session's used
// words, and installs a fresh round. Exactly one word request may be in
// flight per session; a result that lands after the session was reset is
// discarded.
func (app *App) startRound(ctx context.Context, session *GameSession) (*Round, error) {
	app.SessionMutex.Lock()
	if session.WordPending {
		app.SessionMutex.Unlock()
		return nil, errors.New(ErrorRoundInFlight)
	}
	session.WordPending = true
	generation := session.Generation
	level := effectiveDifficulty(session.Streak, session.BaseDifficulty)
	exclude := make([]string, 0, len(session.UsedWords))
	for word := range session.UsedWords {
		exclude = append(exclude, word)
	}
	app.SessionMutex.Unlock()

	challenge := app.Words.RequestWord(ctx, level, exclude)

	app.SessionMutex.Lock()
	defer app.SessionMutex.Unlock()
	session.WordPending = false
	if session.Generation != generation {
		logWarn("Discarding superseded word request for %s", session.PlayerID)
		return nil, errors.New(ErrorRoundSuperseded)
	}

	round := newRound(challenge, level, time.Now())
	session.Round = round
	session.UsedWords[round.Word] = struct{}{}
	session.LastAccessTime = time.Now()
	logInfo("Round started for %s: difficulty=%s fallback=%v clues=%d", session.PlayerID, level, round.Fallback, len(round.AllClues))
	return round, nil
}

// NewRound starts the first round of a session or advances past a won round,
// keeping score, streak, and the growing used-word exclusion list. A lost
// round requires an explicit session reset first.
func (app *App) NewRound(ctx context.Context, session *GameSession) (*Round, error) {
	now := time.Now()

	app.SessionMutex.Lock()
	needsSnapshot := session.Snapshot == nil
	if round := session.Round; round != nil {
		round.syncClock(now)
		applyLossLocked(session, round)
		if round.State != RoundWon {
			app.SessionMutex.Unlock()
			return nil, errors.New(ErrorRoundNotWon)
		}
	}
	app.SessionMutex.Unlock()

	if needsSnapshot {
		app.refreshSnapshot(ctx, session)
	}
	return app.startRound(ctx, session)
}

// applyLossLocked resets the streak exactly once per lost round. A wrong
// guess on a still-running round does not touch the streak. Caller holds
// SessionMutex.
func applyLossLocked(session *GameSession, round *Round) {
	if round.State == RoundLost && !round.lossApplied {
		round.lossApplied = true
		session.Streak = 0
		logInfo("Round lost for %s, streak reset (word was %q)", session.PlayerID, round.Word)
	}
}

// PlayGuess applies one guess. On a win it computes the award, updates
// cumulative score and tier, persists the score entry and player stats, and
// ranks the new total against the snapshot taken before this round's result.
// Persistence is best-effort: a failed write is logged and surfaced as a
// notice, and the locally applied score is never rolled back.
func (app *App) PlayGuess(ctx context.Context, session *GameSession, text string) (GuessOutcome, error) {
	now := time.Now()

	app.SessionMutex.Lock()
	round := session.Round
	if round == nil {
		app.SessionMutex.Unlock()
		return GuessOutcome{}, errors.New(ErrorNoActiveRound)
	}
	session.LastAccessTime = now

	correct, err := round.submitGuess(text, now)
	if err != nil {
		applyLossLocked(session, round)
		app.SessionMutex.Unlock()
		return GuessOutcome{}, err
	}

	if !correct {
		outcome := GuessOutcome{
			Correct:    false,
			Score:      session.Score,
			Streak:     session.Streak,
			Tier:       tierFor(session.Score).Name,
			RoundState: round.State,
		}
		app.SessionMutex.Unlock()
		return outcome, nil
	}

	streakBefore := session.Streak
	award := computeAward(round.RemainingSeconds(now), round.Revealed, round.WrongAttempts, streakBefore, session.BaseDifficulty)
	previousTier := tierFor(session.Score)
	session.Score += award
	session.Streak++
	newTier := tierFor(session.Score)
	level := effectiveDifficulty(streakBefore, session.BaseDifficulty)
	date := now.UTC().Format(time.RFC3339)

	entry := LeaderboardEntry{
		Name:               session.PlayerName,
		UserID:             session.PlayerID,
		Score:              session.Score,
		Word:               round.Word,
		Date:               date,
		Difficulty:         string(level),
		ConsecutiveCorrect: session.Streak,
	}
	stats := PlayerStats{
		Score:              session.Score,
		ConsecutiveCorrect: session.Streak,
		Difficulty:         string(session.BaseDifficulty),
		LastWord:           round.Word,
		LastPlayed:         date,
		Tier:               newTier.Name,
	}

	// Percentile and overtake rank against the snapshot that does not yet
	// include this round's result.
	previousSnapshot := session.Snapshot
	outcome := GuessOutcome{
		Correct:    true,
		Award:      award,
		Score:      session.Score,
		Streak:     session.Streak,
		Tier:       newTier.Name,
		TierUp:     newTier.Name != previousTier.Name,
		Percentile: percentileRank(session.Score, previousSnapshot),
		Overtaken:  detectRankOvertake(session.Score, previousSnapshot, session.PlayerName),
		RoundState: RoundWon,
		Word:       round.Word,
	}
	playerID := session.PlayerID
	app.SessionMutex.Unlock()

	logInfo("Player %s won round: word=%q award=%d score=%d streak=%d", playerID, outcome.Word, award, outcome.Score, outcome.Streak)

	notice := ""
	if err := app.Store.AppendScore(ctx, entry); err != nil {
		logWarn("Failed to append score for %s: %v", playerID, err)
		notice = "score could not be saved"
	}
	if err := app.Store.SavePlayerStats(ctx, playerID, stats); err != nil {
		logWarn("Failed to save player stats for %s: %v", playerID, err)
		notice = "progress could not be saved"
	}
	if err := app.Store.RegisterPlayer(ctx, playerID); err != nil {
		logWarn("Failed to register player %s: %v", playerID, err)
	}

	app.SessionMutex.Lock()
	session.Notice = notice
	app.SessionMutex.Unlock()

	app.refreshSnapshot(ctx, session)
	return outcome, nil
}

// FreezeRound invokes the one-shot time freeze on the active round.
func (app *App) FreezeRound(session *GameSession) error {
	app.SessionMutex.Lock()
	defer app.SessionMutex.Unlock()
	if session.Round == nil {
		return errors.New(ErrorNoActiveRound)
	}
	err := session.Round.freezeTime(time.Now())
	applyLossLocked(session, session.Round)
	return err
}

// ResetSession clears cumulative score, streak, used words, and tier back to
// initial, persists the zeroed stats, and starts a fresh round. The
// generation bump discards any word request still in flight.
func (app *App) ResetSession(ctx context.Context, session *GameSession) (*Round, error) {
	now := time.Now()

	app.SessionMutex.Lock()
	session.Score = 0
	session.Streak = 0
	session.UsedWords = make(map[string]struct{})
	session.Round = nil
	session.Generation++
	session.Notice = ""
	session.LastAccessTime = now
	playerID := session.PlayerID
	baseDifficulty := session.BaseDifficulty
	app.SessionMutex.Unlock()

	stats := PlayerStats{
		Difficulty: string(baseDifficulty),
		LastPlayed: now.UTC().Format(time.RFC3339),
		Tier:       tierFor(0).Name,
	}
	if err := app.Store.SavePlayerStats(ctx, playerID, stats); err != nil {
		logWarn("Failed to persist reset stats for %s: %v", playerID, err)
		app.SessionMutex.Lock()
		session.Notice = "progress could not be saved"
		app.SessionMutex.Unlock()
	}

	app.refreshSnapshot(ctx, session)
	return app.startRound(ctx, session)
}
