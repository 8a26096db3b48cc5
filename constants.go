package main

import "time"

// Round configuration constants
const (
	RoundBudgetSeconds = 60               // Time budget per round
	FreezeDuration     = 10 * time.Second // One-shot freeze length
	WrongGuessFlash    = 2 * time.Second  // How long wrong-guess feedback stays visible
	MaxClues           = 5
	MinAwardPoints     = 10
	BaseAwardPoints    = 100
	CluePenalty        = 15
	WrongAttemptPenalty = 10
	StreakBonusCap     = 50
)

// clueCheckpoints are the elapsed-second thresholds at which the next clue
// becomes visible.
var clueCheckpoints = []int{10, 20, 30, 40, 50}

// Cookie constants
const (
	PlayerNameCookie = "playerName"
	UserIDCookie     = "userId"
)

// Route constants
const (
	RouteHome        = "/"
	RouteScores      = "/scores"
	RoutePlayerStats = "/player-stats"
	RouteSavePlayer  = "/save-player"
	RouteGetPlayer   = "/get-player"
	RouteNewRound    = "/game/new-round"
	RouteGameState   = "/game/state"
	RouteGuess       = "/game/guess"
	RouteFreeze      = "/game/freeze"
	RouteReset       = "/game/reset"
	RouteBackup      = "/admin/backup"
)

// Store key constants
const (
	LeaderboardKey  = "leaderboard"
	PlayerKeyPrefix = "player:"
	PlayersSetKey   = "players"
	BackupKeyPrefix = "backup:"
	BackupsSetKey   = "backups"
)

// Error message constants
const (
	ErrorRoundOver       = "round is over"
	ErrorNoActiveRound   = "no active round"
	ErrorRoundInFlight   = "a word request is already in flight"
	ErrorRoundSuperseded = "round request superseded"
	ErrorRoundNotWon     = "current round is not won"
	ErrorEmptyGuess      = "guess is empty"
	ErrorFreezeUsed      = "freeze already used this round"
	ErrorNoJSONObject    = "no JSON object found in response"
	ErrorBadChallenge    = "invalid challenge data in response"
)

// Context key constants
const (
	requestIDKey contextKey = "request_id"
)
