package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// roundView is the clock-synced round state exposed to the client. The word
// itself is revealed only once the round has ended.
type roundView struct {
	State            RoundState      `json:"state"`
	Difficulty       DifficultyLevel `json:"difficulty"`
	Riddle           string          `json:"riddle"`
	Clues            []string        `json:"clues"`
	TotalClues       int             `json:"totalClues"`
	ElapsedSeconds   int             `json:"elapsedSeconds"`
	RemainingSeconds int             `json:"remainingSeconds"`
	Frozen           bool            `json:"frozen"`
	FreezeUsed       bool            `json:"freezeUsed"`
	WrongAttempts    int             `json:"wrongAttempts"`
	TotalAttempts    int             `json:"totalAttempts"`
	LastWrongGuess   string          `json:"lastWrongGuess,omitempty"`
	Word             string          `json:"word,omitempty"`
}

// sessionView is the full game view for the UI.
type sessionView struct {
	Player     string     `json:"player"`
	Score      int        `json:"score"`
	Streak     int        `json:"streak"`
	Tier       string     `json:"tier"`
	Difficulty string     `json:"difficulty"` // effective difficulty for the next round
	Round      *roundView `json:"round"`
	Notice     string     `json:"notice,omitempty"`
}

// buildSessionView syncs the round clock and assembles the client view.
// Caller must not hold SessionMutex.
func (app *App) buildSessionView(session *GameSession) sessionView {
	now := time.Now()

	app.SessionMutex.Lock()
	defer app.SessionMutex.Unlock()

	view := sessionView{
		Player:     session.PlayerName,
		Score:      session.Score,
		Streak:     session.Streak,
		Tier:       tierFor(session.Score).Name,
		Difficulty: string(effectiveDifficulty(session.Streak, session.BaseDifficulty)),
		Notice:     session.Notice,
	}
	round := session.Round
	if round == nil {
		return view
	}

	round.syncClock(now)
	applyLossLocked(session, round)
	view.Streak = session.Streak

	rv := &roundView{
		State:            round.State,
		Difficulty:       round.Difficulty,
		Riddle:           round.Riddle,
		Clues:            round.RevealedClues(),
		TotalClues:       len(round.AllClues),
		ElapsedSeconds:   round.ElapsedSeconds(now),
		RemainingSeconds: round.RemainingSeconds(now),
		Frozen:           round.Frozen(now),
		FreezeUsed:       round.FreezeUsed,
		WrongAttempts:    round.WrongAttempts,
		TotalAttempts:    round.TotalAttempts,
		LastWrongGuess:   round.LastWrongGuess,
	}
	if round.State != RoundPlaying {
		rv.Word = round.Word
		rv.Clues = round.AllClues
	}
	view.Round = rv
	return view
}

// scoresHandler returns the full leaderboard log.
func (app *App) scoresHandler(c *gin.Context) {
	entries, err := app.Store.Leaderboard(c.Request.Context())
	if err != nil {
		logWarn("Failed to fetch scores: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch scores"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// appendScoreHandler appends one validated entry to the leaderboard log.
func (app *App) appendScoreHandler(c *gin.Context) {
	var entry LeaderboardEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid score data"})
		return
	}
	if err := app.Store.AppendScore(c.Request.Context(), entry); err != nil {
		logWarn("Failed to save score for %s: %v", entry.Name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save score"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// playerStatsHandler returns the stats hash for a player id.
func (app *App) playerStatsHandler(c *gin.Context) {
	playerID := c.Query("name")
	if playerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "player name is required"})
		return
	}
	stats, err := app.Store.PlayerStats(c.Request.Context(), playerID)
	if err != nil {
		logWarn("Failed to fetch player stats for %s: %v", playerID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch player stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// savePlayerStatsHandler overwrites the stats hash for a player id.
func (app *App) savePlayerStatsHandler(c *gin.Context) {
	var payload struct {
		PlayerID string      `json:"playerId" binding:"required"`
		Stats    PlayerStats `json:"stats"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player stats data"})
		return
	}
	if err := app.Store.SavePlayerStats(c.Request.Context(), payload.PlayerID, payload.Stats); err != nil {
		logWarn("Failed to save player stats for %s: %v", payload.PlayerID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save player stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// savePlayerHandler records the player's display name and hands out the
// long-lived identity cookies. An existing userId cookie is kept so the
// browser identity stays stable across name changes.
func (app *App) savePlayerHandler(c *gin.Context) {
	var payload struct {
		PlayerName string `json:"playerName" binding:"required"`
		UserID     string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player name"})
		return
	}

	playerID := payload.UserID
	if playerID == "" {
		if existing, err := c.Cookie(UserIDCookie); err == nil && existing != "" {
			playerID = existing
		} else {
			playerID = uuid.NewString()
		}
	}

	name := trimName(payload.PlayerName)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player name"})
		return
	}

	ctx := c.Request.Context()
	if err := app.Store.SavePlayerName(ctx, playerID, name); err != nil {
		logWarn("Failed to save player name for %s: %v", playerID, err)
	}
	if err := app.Store.RegisterPlayer(ctx, playerID); err != nil {
		logWarn("Failed to register player %s: %v", playerID, err)
	}

	app.setIdentityCookies(c, name, playerID)
	c.JSON(http.StatusOK, gin.H{"success": true, "userId": playerID})
}

// getPlayerHandler echoes the identity cookies back to the client.
func (app *App) getPlayerHandler(c *gin.Context) {
	playerName, _ := c.Cookie(PlayerNameCookie)
	playerID, _ := c.Cookie(UserIDCookie)
	c.JSON(http.StatusOK, gin.H{
		"playerName": playerName,
		"userId":     playerID,
		"success":    true,
	})
}

// newRoundHandler starts the first round or advances past a won one.
func (app *App) newRoundHandler(c *gin.Context) {
	playerID, playerName, err := playerIdentity(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	session := app.getOrCreateSession(playerID, playerName)

	if _, err := app.NewRound(c.Request.Context(), session); err != nil {
		status := http.StatusConflict
		if err.Error() == ErrorRoundSuperseded {
			status = http.StatusGone
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.buildSessionView(session))
}

// gameStateHandler returns the clock-synced session and round view.
func (app *App) gameStateHandler(c *gin.Context) {
	playerID, playerName, err := playerIdentity(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	session := app.getOrCreateSession(playerID, playerName)
	c.JSON(http.StatusOK, app.buildSessionView(session))
}

// guessHandler submits one guess for the active round.
func (app *App) guessHandler(c *gin.Context) {
	playerID, playerName, err := playerIdentity(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	var payload struct {
		Guess string `json:"guess" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guess is required"})
		return
	}

	session := app.getOrCreateSession(playerID, playerName)
	ctx := c.Request.Context()
	outcome, err := app.PlayGuess(ctx, session, payload.Guess)
	if err != nil {
		logWarn("[request_id=%v] Guess rejected for %s: %v", requestID(ctx), playerID, err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// freezeHandler invokes the one-shot time freeze.
func (app *App) freezeHandler(c *gin.Context) {
	playerID, playerName, err := playerIdentity(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	session := app.getOrCreateSession(playerID, playerName)
	if err := app.FreezeRound(session); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.buildSessionView(session))
}

// resetHandler clears session progress and starts a fresh round.
func (app *App) resetHandler(c *gin.Context) {
	playerID, playerName, err := playerIdentity(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	session := app.getOrCreateSession(playerID, playerName)
	if _, err := app.ResetSession(c.Request.Context(), session); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.buildSessionView(session))
}

// backupHandler snapshots the leaderboard and player registry into a
// timestamped backup record. Gated by a bearer token; intended for a cron
// caller, not the game client.
func (app *App) backupHandler(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	if app.BackupToken == "" || token != app.BackupToken {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	entries, err := app.Store.Leaderboard(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create backup"})
		return
	}
	players, err := app.Store.Players(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create backup"})
		return
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	backup := BackupRecord{
		Leaderboard: mustJSON(entries),
		Players:     mustJSON(players),
		Timestamp:   timestamp,
	}
	if err := app.Store.SaveBackup(ctx, backup); err != nil {
		logWarn("Failed to store backup: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create backup"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "timestamp": timestamp})
}

// healthzHandler returns a JSON health check with server stats.
func (app *App) healthzHandler(c *gin.Context) {
	app.SessionMutex.RLock()
	sessions := len(app.Sessions)
	playing := lo.CountBy(lo.Values(app.Sessions), func(s *GameSession) bool {
		return s.Round != nil && s.Round.State == RoundPlaying
	})
	app.SessionMutex.RUnlock()

	uptime := time.Since(app.StartTime)
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"env":            map[bool]string{true: "production", false: "development"}[app.IsProduction],
		"sessions":       sessions,
		"rounds_playing": playing,
		"uptime":         formatUptime(uptime),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
