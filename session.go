package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// playerIdentity reads the long-lived identity cookies. Both must be present
// for any game or stats route; the identity guard redirects before handlers
// run, so a miss here is a hard error.
func playerIdentity(c *gin.Context) (playerID, playerName string, err error) {
	playerID, err = c.Cookie(UserIDCookie)
	if err != nil || playerID == "" {
		return "", "", errors.New("missing player identity")
	}
	playerName, err = c.Cookie(PlayerNameCookie)
	if err != nil || playerName == "" {
		return "", "", errors.New("missing player identity")
	}
	return playerID, playerName, nil
}

// setIdentityCookies sets the far-future playerName and userId cookies.
func (app *App) setIdentityCookies(c *gin.Context, playerName, playerID string) {
	maxAge := int(app.CookieMaxAge.Seconds())
	secure := app.IsProduction
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(PlayerNameCookie, playerName, maxAge, "/", "", secure, false)
	c.SetCookie(UserIDCookie, playerID, maxAge, "/", "", secure, true)
}

// getOrCreateSession retrieves the session for a player id, creating fresh
// session progress on first contact.
func (app *App) getOrCreateSession(playerID, playerName string) *GameSession {
	app.SessionMutex.RLock()
	session, exists := app.Sessions[playerID]
	app.SessionMutex.RUnlock()
	if exists {
		app.SessionMutex.Lock()
		session.PlayerName = playerName
		session.LastAccessTime = time.Now()
		app.SessionMutex.Unlock()
		return session
	}

	app.SessionMutex.Lock()
	defer app.SessionMutex.Unlock()
	if session, exists := app.Sessions[playerID]; exists {
		return session
	}
	logInfo("Creating session progress for player: %s", playerID)
	return app.initializeSession(playerID, playerName)
}

// sessionCleanupScheduler drops idle sessions periodically. Persisted player
// stats survive; only in-memory round/session progress is discarded.
func (app *App) sessionCleanupScheduler(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		app.cleanupIdleSessions()
	}
}

func (app *App) cleanupIdleSessions() {
	now := time.Now()
	removed := 0

	app.SessionMutex.Lock()
	for playerID, session := range app.Sessions {
		expired := session.LastAccessTime.IsZero() || now.Sub(session.LastAccessTime) > app.SessionTimeout
		if expired && !session.WordPending {
			delete(app.Sessions, playerID)
			removed++
		}
	}
	app.SessionMutex.Unlock()

	if removed > 0 {
		logInfo("Session cleanup removed %d idle sessions", removed)
	}
}
