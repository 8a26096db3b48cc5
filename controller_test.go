package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// stubWordSource serves canned challenges in order, repeating the last one,
// and records what it was asked for.
type stubWordSource struct {
	challenges  []WordChallenge
	calls       int
	lastLevel   DifficultyLevel
	lastExclude []string
	onRequest   func()
}

func (s *stubWordSource) RequestWord(_ context.Context, level DifficultyLevel, excludeWords []string) WordChallenge {
	s.lastLevel = level
	s.lastExclude = excludeWords
	idx := min(s.calls, len(s.challenges)-1)
	s.calls++
	if s.onRequest != nil {
		s.onRequest()
	}
	return s.challenges[idx]
}

func wordChallenge(word string) WordChallenge {
	return WordChallenge{
		Word:   word,
		Riddle: "a riddle about " + word,
		Clues:  []string{"first", "second", "third"},
	}
}

func newTestApp(words ...WordChallenge) (*App, *stubWordSource) {
	if len(words) == 0 {
		words = []WordChallenge{testChallenge()}
	}
	src := &stubWordSource{challenges: words}
	app := &App{
		Store:          NewMemoryStore(),
		Words:          src,
		Sessions:       make(map[string]*GameSession),
		LimiterMap:     make(map[string]*rate.Limiter),
		StartTime:      time.Now(),
		CookieMaxAge:   time.Hour,
		SessionTimeout: 2 * time.Hour,
		RateLimitRPS:   100,
		RateLimitBurst: 100,
		BackupToken:    "test-token",
	}
	return app, src
}

// winRound submits the active round's word as a guess.
func winRound(t *testing.T, app *App, session *GameSession) GuessOutcome {
	t.Helper()
	app.SessionMutex.RLock()
	word := session.Round.Word
	app.SessionMutex.RUnlock()
	outcome, err := app.PlayGuess(context.Background(), session, word)
	if err != nil {
		t.Fatalf("PlayGuess(%q) failed: %v", word, err)
	}
	if !outcome.Correct {
		t.Fatalf("PlayGuess(%q) not correct: %+v", word, outcome)
	}
	return outcome
}

// TestNewRound_StartsFirstRound checks session bootstrap
func TestNewRound_StartsFirstRound(t *testing.T) {
	app, src := newTestApp(wordChallenge("lantern"))
	session := app.initializeSession("p1", "Tester")

	round, err := app.NewRound(context.Background(), session)
	if err != nil {
		t.Fatalf("NewRound failed: %v", err)
	}
	if round.Word != "lantern" {
		t.Errorf("round word = %q, want %q", round.Word, "lantern")
	}
	if round.State != RoundPlaying {
		t.Errorf("round state = %s, want %s", round.State, RoundPlaying)
	}
	if _, used := session.UsedWords["lantern"]; !used {
		t.Error("round word not recorded as used")
	}
	if session.Snapshot == nil {
		t.Error("leaderboard snapshot not loaded on first round")
	}
	if src.lastLevel != DifficultyEasy {
		t.Errorf("requested difficulty = %s, want %s", src.lastLevel, DifficultyEasy)
	}
}

// TestNewRound_PassesExclusionsAndEffectiveDifficulty checks the word request
func TestNewRound_PassesExclusionsAndEffectiveDifficulty(t *testing.T) {
	app, src := newTestApp(wordChallenge("ember"))
	session := app.initializeSession("p1", "Tester")
	session.Streak = 3
	session.UsedWords["lantern"] = struct{}{}

	if _, err := app.NewRound(context.Background(), session); err != nil {
		t.Fatalf("NewRound failed: %v", err)
	}
	if src.lastLevel != DifficultyMedium {
		t.Errorf("streak 3 on easy should request %s, got %s", DifficultyMedium, src.lastLevel)
	}
	if len(src.lastExclude) != 1 || src.lastExclude[0] != "lantern" {
		t.Errorf("exclusion list = %v, want [lantern]", src.lastExclude)
	}
}

// TestNewRound_RequiresWonRound checks a running round blocks advancing
func TestNewRound_RequiresWonRound(t *testing.T) {
	app, _ := newTestApp(wordChallenge("lantern"))
	session := app.initializeSession("p1", "Tester")
	if _, err := app.NewRound(context.Background(), session); err != nil {
		t.Fatalf("NewRound failed: %v", err)
	}

	_, err := app.NewRound(context.Background(), session)
	if err == nil || err.Error() != ErrorRoundNotWon {
		t.Errorf("NewRound on running round: err = %v, want %q", err, ErrorRoundNotWon)
	}
}

// TestNewRound_AfterWinAdvances checks won rounds chain without a reset
func TestNewRound_AfterWinAdvances(t *testing.T) {
	app, src := newTestApp(wordChallenge("lantern"), wordChallenge("ember"))
	session := app.initializeSession("p1", "Tester")
	if _, err := app.NewRound(context.Background(), session); err != nil {
		t.Fatalf("NewRound failed: %v", err)
	}
	winRound(t, app, session)

	round, err := app.NewRound(context.Background(), session)
	if err != nil {
		t.Fatalf("NewRound after win failed: %v", err)
	}
	if round.Word != "ember" {
		t.Errorf("second round word = %q, want %q", round.Word, "ember")
	}
	if len(src.lastExclude) != 1 || src.lastExclude[0] != "lantern" {
		t.Errorf("exclusions after one round = %v, want [lantern]", src.lastExclude)
	}
	if session.Streak != 1 {
		t.Errorf("streak carried into next round = %d, want 1", session.Streak)
	}
}

// TestNewRound_LostRoundBlocksAndResetsStreak checks the timeout path
func TestNewRound_LostRoundBlocksAndResetsStreak(t *testing.T) {
	app, _ := newTestApp(wordChallenge("lantern"))
	session := app.initializeSession("p1", "Tester")
	if _, err := app.NewRound(context.Background(), session); err != nil {
		t.Fatalf("NewRound failed: %v", err)
	}
	session.Streak = 4
	session.Round.StartedAt = time.Now().Add(-61 * time.Second)

	_, err := app.NewRound(context.Background(), session)
	if err == nil || err.Error() != ErrorRoundNotWon {
		t.Errorf("NewRound on lost round: err = %v, want %q", err, ErrorRoundNotWon)
	}
	if session.Round.State != RoundLost {
		t.Errorf("round state = %s, want %s", session.Round.State, RoundLost)
	}
	if session.Streak != 0 {
		t.Errorf("streak after loss = %d, want 0", session.Streak)
	}
}

// TestStartRound_RejectsOverlappingRequests checks the in-flight guard
func TestStartRound_RejectsOverlappingRequests(t *testing.T) {
	app, _ := newTestApp(wordChallenge("lantern"))
	session := app.initializeSession("p1", "Tester")
	session.WordPending = true
	session.Snapshot = []LeaderboardEntry{}

	_, err := app.NewRound(context.Background(), session)
	if err == nil || err.Error() != ErrorRoundInFlight {
		t.Errorf("err = %v, want %q", err, ErrorRoundInFlight)
	}
}

// TestStartRound_DiscardsSupersededWord checks a reset invalidates a request
// that was already in flight when the generation counter moved on.
func TestStartRound_DiscardsSupersededWord(t *testing.T) {
	app, src := newTestApp(wordChallenge("lantern"))
	session := app.initializeSession("p1", "Tester")
	src.onRequest = func() {
		app.SessionMutex.Lock()
		session.Generation++
		app.SessionMutex.Unlock()
	}

	_, err := app.NewRound(context.Background(), session)
	if err == nil || err.Error() != ErrorRoundSuperseded {
		t.Errorf("err = %v, want %q", err, ErrorRoundSuperseded)
	}
	if session.Round != nil {
		t.Error("superseded word was installed as a round")
	}
	if session.WordPending {
		t.Error("WordPending left set after a discarded request")
	}
}

// TestPlayGuess_WrongKeepsStreakAndScore checks wrong guesses are free of
// streak consequences while the round still runs
func TestPlayGuess_WrongKeepsStreakAndScore(t *testing.T) {
	app, _ := newTestApp(wordChallenge("lantern"))
	session := app.initializeSession("p1", "Tester")
	if _, err := app.NewRound(context.Background(), session); err != nil {
		t.Fatalf("NewRound failed: %v", err)
	}
	session.Streak = 2
	session.Score = 250

	outcome, err := app.PlayGuess(context.Background(), session, "candle")
	if err != nil {
		t.Fatalf("PlayGuess failed: %v", err)
	}
	if outcome.Correct {
		t.Error("wrong guess reported correct")
	}
	if outcome.Streak != 2 || outcome.Score != 250 {
		t.Errorf("outcome = streak %d score %d, want unchanged 2/250", outcome.Streak, outcome.Score)
	}
	if outcome.Word != "" {
		t.Errorf("wrong guess on running round revealed word %q", outcome.Word)
	}
	if session.Round.WrongAttempts != 1 {
		t.Errorf("WrongAttempts = %d, want 1", session.Round.WrongAttempts)
	}
}

// TestPlayGuess_CorrectAwardsAndPersists checks the full win path
func TestPlayGuess_CorrectAwardsAndPersists(t *testing.T) {
	app, _ := newTestApp(wordChallenge("lantern"))
	session := app.initializeSession("p1", "Tester")
	if _, err := app.NewRound(context.Background(), session); err != nil {
		t.Fatalf("NewRound failed: %v", err)
	}
	// Pin the clock so the award is fully deterministic.
	session.Round.StartedAt = time.Now()

	outcome := winRound(t, app, session)

	// Full time remaining, no clues, no wrong attempts, no streak, easy base.
	wantAward := BaseAwardPoints + RoundBudgetSeconds/5
	if outcome.Award != wantAward {
		t.Errorf("award = %d, want %d", outcome.Award, wantAward)
	}
	if outcome.Score != wantAward || session.Score != wantAward {
		t.Errorf("score = %d/%d, want %d", outcome.Score, session.Score, wantAward)
	}
	if outcome.Streak != 1 || session.Streak != 1 {
		t.Errorf("streak = %d/%d, want 1", outcome.Streak, session.Streak)
	}
	if outcome.RoundState != RoundWon || outcome.Word != "lantern" {
		t.Errorf("outcome round = %s %q, want won lantern", outcome.RoundState, outcome.Word)
	}

	entries, err := app.Store.Leaderboard(context.Background())
	if err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "Tester" || entries[0].Score != wantAward {
		t.Errorf("persisted entries = %+v, want one Tester/%d", entries, wantAward)
	}
	stats, err := app.Store.PlayerStats(context.Background(), "p1")
	if err != nil {
		t.Fatalf("PlayerStats failed: %v", err)
	}
	if stats.Score != wantAward || stats.ConsecutiveCorrect != 1 || stats.LastWord != "lantern" {
		t.Errorf("persisted stats = %+v", stats)
	}
	players, err := app.Store.Players(context.Background())
	if err != nil {
		t.Fatalf("Players failed: %v", err)
	}
	if len(players) != 1 || players[0] != "p1" {
		t.Errorf("registered players = %v, want [p1]", players)
	}
}

// TestPlayGuess_RanksAgainstPreRoundSnapshot checks percentile and overtake
// use the leaderboard as it stood before this round's result landed.
func TestPlayGuess_RanksAgainstPreRoundSnapshot(t *testing.T) {
	app, _ := newTestApp(wordChallenge("lantern"))
	ctx := context.Background()
	for _, seed := range []LeaderboardEntry{
		{Name: "Ava", Score: 100},
		{Name: "Bo", Score: 300},
		{Name: "Cy", Score: 500},
	} {
		if err := app.Store.AppendScore(ctx, seed); err != nil {
			t.Fatalf("seeding leaderboard: %v", err)
		}
	}

	session := app.initializeSession("p1", "Tester")
	if _, err := app.NewRound(ctx, session); err != nil {
		t.Fatalf("NewRound failed: %v", err)
	}
	session.Round.StartedAt = time.Now()

	outcome := winRound(t, app, session)

	// Score 112 beats one of three distinct players.
	if outcome.Percentile != 33 {
		t.Errorf("percentile = %d, want 33", outcome.Percentile)
	}
	if outcome.Overtaken == nil || outcome.Overtaken.Name != "Ava" || outcome.Overtaken.Score != 100 {
		t.Errorf("overtaken = %+v, want Ava/100", outcome.Overtaken)
	}
}

// TestPlayGuess_TierPromotion checks the tier-up flag
func TestPlayGuess_TierPromotion(t *testing.T) {
	app, _ := newTestApp(wordChallenge("lantern"))
	session := app.initializeSession("p1", "Tester")
	if _, err := app.NewRound(context.Background(), session); err != nil {
		t.Fatalf("NewRound failed: %v", err)
	}
	session.Score = 150 // Bronze, 50 short of Silver

	outcome := winRound(t, app, session)
	if !outcome.TierUp || outcome.Tier != "Silver" {
		t.Errorf("outcome = tier %s tierUp %v, want Silver promotion", outcome.Tier, outcome.TierUp)
	}
}

// TestPlayGuess_ExpiredRoundResetsStreakOnce checks the loss is applied
// exactly once no matter how many late guesses arrive
func TestPlayGuess_ExpiredRoundResetsStreakOnce(t *testing.T) {
	app, _ := newTestApp(wordChallenge("lantern"))
	session := app.initializeSession("p1", "Tester")
	if _, err := app.NewRound(context.Background(), session); err != nil {
		t.Fatalf("NewRound failed: %v", err)
	}
	session.Streak = 5
	session.Round.StartedAt = time.Now().Add(-61 * time.Second)

	for i := 0; i < 2; i++ {
		_, err := app.PlayGuess(context.Background(), session, "lantern")
		if err == nil || err.Error() != ErrorRoundOver {
			t.Fatalf("guess %d: err = %v, want %q", i+1, err, ErrorRoundOver)
		}
	}
	if session.Streak != 0 {
		t.Errorf("streak = %d, want 0 after loss", session.Streak)
	}
}

// TestPlayGuess_NoActiveRound checks guessing before any round
func TestPlayGuess_NoActiveRound(t *testing.T) {
	app, _ := newTestApp()
	session := app.initializeSession("p1", "Tester")
	_, err := app.PlayGuess(context.Background(), session, "anything")
	if err == nil || err.Error() != ErrorNoActiveRound {
		t.Errorf("err = %v, want %q", err, ErrorNoActiveRound)
	}
}

// TestFreezeRound checks the one-shot freeze via the controller
func TestFreezeRound(t *testing.T) {
	app, _ := newTestApp(wordChallenge("lantern"))
	session := app.initializeSession("p1", "Tester")

	if err := app.FreezeRound(session); err == nil || err.Error() != ErrorNoActiveRound {
		t.Errorf("freeze without round: err = %v, want %q", err, ErrorNoActiveRound)
	}

	if _, err := app.NewRound(context.Background(), session); err != nil {
		t.Fatalf("NewRound failed: %v", err)
	}
	if err := app.FreezeRound(session); err != nil {
		t.Errorf("first freeze failed: %v", err)
	}
	if err := app.FreezeRound(session); err == nil || err.Error() != ErrorFreezeUsed {
		t.Errorf("second freeze: err = %v, want %q", err, ErrorFreezeUsed)
	}
}

// TestResetSession checks the full reset wipes progress and starts over
func TestResetSession(t *testing.T) {
	app, src := newTestApp(wordChallenge("lantern"), wordChallenge("ember"))
	session := app.initializeSession("p1", "Tester")
	if _, err := app.NewRound(context.Background(), session); err != nil {
		t.Fatalf("NewRound failed: %v", err)
	}
	winRound(t, app, session)
	generationBefore := session.Generation

	round, err := app.ResetSession(context.Background(), session)
	if err != nil {
		t.Fatalf("ResetSession failed: %v", err)
	}
	if session.Score != 0 || session.Streak != 0 {
		t.Errorf("progress after reset = score %d streak %d, want 0/0", session.Score, session.Streak)
	}
	if session.Generation != generationBefore+1 {
		t.Errorf("generation = %d, want %d", session.Generation, generationBefore+1)
	}
	if round.Word != "ember" {
		t.Errorf("post-reset round word = %q, want %q", round.Word, "ember")
	}
	// The exclusion list starts empty again; only the new word is tracked.
	if len(session.UsedWords) != 1 {
		t.Errorf("used words after reset = %v", session.UsedWords)
	}
	if len(src.lastExclude) != 0 {
		t.Errorf("reset passed exclusions %v, want none", src.lastExclude)
	}

	stats, err := app.Store.PlayerStats(context.Background(), "p1")
	if err != nil {
		t.Fatalf("PlayerStats failed: %v", err)
	}
	if stats.Score != 0 || stats.ConsecutiveCorrect != 0 || stats.Tier != "Bronze" {
		t.Errorf("persisted reset stats = %+v, want zeroed Bronze", stats)
	}
}

// TestRefreshSnapshot_FailureKeepsPrevious checks a broken store load leaves
// the last snapshot in place and surfaces a notice.
func TestRefreshSnapshot_FailureKeepsPrevious(t *testing.T) {
	app, _ := newTestApp()
	app.Store = failingStore{}
	session := app.initializeSession("p1", "Tester")
	session.Snapshot = []LeaderboardEntry{{Name: "Ava", Score: 100}}

	app.refreshSnapshot(context.Background(), session)
	if len(session.Snapshot) != 1 {
		t.Errorf("snapshot = %v, want previous kept", session.Snapshot)
	}
	if session.Notice == "" {
		t.Error("notice not set after failed refresh")
	}
}

// failingStore errors on every operation.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Leaderboard(context.Context) ([]LeaderboardEntry, error) {
	return nil, errStoreDown
}
func (failingStore) AppendScore(context.Context, LeaderboardEntry) error { return errStoreDown }
func (failingStore) PlayerStats(context.Context, string) (PlayerStats, error) {
	return PlayerStats{}, errStoreDown
}
func (failingStore) SavePlayerStats(context.Context, string, PlayerStats) error { return errStoreDown }
func (failingStore) SavePlayerName(context.Context, string, string) error       { return errStoreDown }
func (failingStore) RegisterPlayer(context.Context, string) error               { return errStoreDown }
func (failingStore) Players(context.Context) ([]string, error)                  { return nil, errStoreDown }
func (failingStore) SaveBackup(context.Context, BackupRecord) error             { return errStoreDown }
