package main

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DifficultyLevel controls vocabulary complexity and score bonus.
type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
	DifficultyExpert DifficultyLevel = "expert"
)

// RoundState is the lifecycle state of a round.
type RoundState string

const (
	RoundPlaying RoundState = "playing"
	RoundWon     RoundState = "won"
	RoundLost    RoundState = "lost"
)

// Round is one word-guessing challenge bounded by a fixed time budget.
// Elapsed time is derived from StartedAt and wall-clock reads, never from a
// counter, so the clock stays correct under delayed or skipped callbacks.
type Round struct {
	Word        string          `json:"word"`
	Riddle      string          `json:"riddle"`
	AllClues    []string        `json:"allClues"`
	Difficulty  DifficultyLevel `json:"difficulty"`
	Fallback    bool            `json:"fallback"`
	StartedAt   time.Time       `json:"startedAt"`
	FrozenAt    time.Time       `json:"frozenAt"` // zero until freeze invoked
	FreezeUsed  bool            `json:"freezeUsed"`
	Revealed    int             `json:"revealed"` // count of revealed clues, prefix of AllClues
	WrongAttempts int           `json:"wrongAttempts"`
	TotalAttempts int           `json:"totalAttempts"`
	State       RoundState      `json:"state"`

	// FinalElapsed pins elapsedSeconds once the round reaches a terminal
	// state, so the clock stops at the winning or losing instant.
	FinalElapsed int `json:"finalElapsed"`

	// LastWrongGuess is transient UI feedback; it expires after
	// WrongGuessFlash and has no effect on scoring.
	LastWrongGuess   string    `json:"lastWrongGuess,omitempty"`
	LastWrongGuessAt time.Time `json:"lastWrongGuessAt"`

	lossApplied bool // streak reset for this loss already handled
}

// Tier is a named rank band derived from cumulative score.
type Tier struct {
	Name      string `json:"name"`
	Threshold int    `json:"threshold"`
}

// LeaderboardEntry is one appended score record. The persisted log is
// append-only; aggregation happens on read.
type LeaderboardEntry struct {
	Name               string `json:"name" binding:"required"`
	UserID             string `json:"userId,omitempty"`
	Score              int    `json:"score"`
	Word               string `json:"word"`
	Date               string `json:"date"`
	Difficulty         string `json:"difficulty"`
	ConsecutiveCorrect int    `json:"consecutiveCorrect"`
}

// PlayerStats is the per-player hash, overwritten in place on every update.
type PlayerStats struct {
	Score              int    `json:"score" redis:"score"`
	ConsecutiveCorrect int    `json:"consecutiveCorrect" redis:"consecutiveCorrect"`
	Difficulty         string `json:"difficulty" redis:"difficulty"`
	LastWord           string `json:"lastWord" redis:"lastWord"`
	LastPlayed         string `json:"lastPlayed" redis:"lastPlayed"`
	Tier               string `json:"tier" redis:"tier"`
}

// RivalScore is a leaderboard opponent used for overtake notifications.
type RivalScore struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// BackupRecord is one admin backup snapshot of the store.
type BackupRecord struct {
	Leaderboard string `redis:"leaderboard"`
	Players     string `redis:"players"`
	Timestamp   string `redis:"timestamp"`
}

// WordChallenge is what the generation service produces for one round.
type WordChallenge struct {
	Word     string   `json:"word"`
	Riddle   string   `json:"riddle"`
	Clues    []string `json:"clues"`
	Fallback bool     `json:"-"`
}

// GameSession holds one player's session progress and the active round.
type GameSession struct {
	PlayerID       string
	PlayerName     string
	BaseDifficulty DifficultyLevel
	Score          int
	Streak         int // consecutive correct guesses, reset on a lost round
	UsedWords      map[string]struct{}
	Round          *Round
	Snapshot       []LeaderboardEntry // leaderboard view used for percentile/overtake

	// WordPending guards against overlapping word requests; Generation
	// increments on reset so a slow stale request cannot install a round
	// into a session that moved on.
	WordPending bool
	Generation  int

	Notice         string // last non-blocking persistence failure, if any
	LastAccessTime time.Time
}

// GuessOutcome is the result of one submitted guess.
type GuessOutcome struct {
	Correct     bool        `json:"correct"`
	Award       int         `json:"award,omitempty"`
	Score       int         `json:"score"`
	Streak      int         `json:"streak"`
	Tier        string      `json:"tier"`
	TierUp      bool        `json:"tierUp,omitempty"`
	Percentile  int         `json:"percentile,omitempty"`
	Overtaken   *RivalScore `json:"overtaken,omitempty"`
	RoundState  RoundState  `json:"roundState"`
	Word        string      `json:"word,omitempty"` // revealed only when the round ends
}

// Generation API request/response shapes.

type GenerationSettings struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generationPart struct {
	Text string `json:"text"`
}

type generationContent struct {
	Parts []generationPart `json:"parts"`
}

type GenerationRequest struct {
	Contents         []generationContent `json:"contents"`
	GenerationConfig GenerationSettings  `json:"generationConfig"`
}

type GenerationResponse struct {
	Candidates []struct {
		Content generationContent `json:"content"`
	} `json:"candidates"`
}

// App bundles server state, configuration, and collaborators.
type App struct {
	Store ScoreStore
	Words WordSource

	Sessions     map[string]*GameSession
	SessionMutex sync.RWMutex

	LimiterMap   map[string]*rate.Limiter
	LimiterMutex sync.Mutex

	IsProduction   bool
	StartTime      time.Time
	CookieMaxAge   time.Duration
	SessionTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int
	BackupToken    string
}

type contextKey string
