package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ScoreStore is the persisted key-value store behind the leaderboard log and
// per-player stats. Implementations may be backed by Redis or by memory; the
// application treats every write as best-effort.
type ScoreStore interface {
	// Leaderboard returns the full append-only score log.
	Leaderboard(ctx context.Context) ([]LeaderboardEntry, error)
	// AppendScore adds one entry to the log. Existing entries are never
	// mutated or pruned.
	AppendScore(ctx context.Context, entry LeaderboardEntry) error
	// PlayerStats loads the stats hash for a player id. A missing player
	// yields zero stats, not an error.
	PlayerStats(ctx context.Context, playerID string) (PlayerStats, error)
	// SavePlayerStats overwrites the stats hash for a player id.
	SavePlayerStats(ctx context.Context, playerID string, stats PlayerStats) error
	// SavePlayerName records the display name in the player hash.
	SavePlayerName(ctx context.Context, playerID, name string) error
	// RegisterPlayer adds the player id to the player registry.
	RegisterPlayer(ctx context.Context, playerID string) error
	// Players lists all registered player ids.
	Players(ctx context.Context) ([]string, error)
	// SaveBackup stores one timestamped backup snapshot.
	SaveBackup(ctx context.Context, backup BackupRecord) error
}

// redisStore talks to the hosted key-value service. The leaderboard lives as
// one JSON-encoded array under a single key, rewritten whole on append, the
// same layout the game has always used.
type redisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the given address and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (ScoreStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &redisStore{client: client}, nil
}

func (s *redisStore) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	raw, err := s.client.Get(ctx, LeaderboardKey).Result()
	if errors.Is(err, redis.Nil) {
		return []LeaderboardEntry{}, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []LeaderboardEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		logWarn("Leaderboard payload is corrupted, treating as empty: %v", err)
		return []LeaderboardEntry{}, nil
	}
	return entries, nil
}

func (s *redisStore) AppendScore(ctx context.Context, entry LeaderboardEntry) error {
	entries, err := s.Leaderboard(ctx)
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	// Set without expiry keeps the log persistent indefinitely.
	return s.client.Set(ctx, LeaderboardKey, data, 0).Err()
}

func (s *redisStore) PlayerStats(ctx context.Context, playerID string) (PlayerStats, error) {
	var stats PlayerStats
	cmd := s.client.HGetAll(ctx, PlayerKeyPrefix+playerID)
	if err := cmd.Err(); err != nil {
		return stats, err
	}
	if err := cmd.Scan(&stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *redisStore) SavePlayerStats(ctx context.Context, playerID string, stats PlayerStats) error {
	return s.client.HSet(ctx, PlayerKeyPrefix+playerID, stats).Err()
}

func (s *redisStore) SavePlayerName(ctx context.Context, playerID, name string) error {
	return s.client.HSet(ctx, PlayerKeyPrefix+playerID, "playerName", name).Err()
}

func (s *redisStore) RegisterPlayer(ctx context.Context, playerID string) error {
	return s.client.SAdd(ctx, PlayersSetKey, playerID).Err()
}

func (s *redisStore) Players(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, PlayersSetKey).Result()
}

func (s *redisStore) SaveBackup(ctx context.Context, backup BackupRecord) error {
	if err := s.client.HSet(ctx, BackupKeyPrefix+backup.Timestamp, backup).Err(); err != nil {
		return err
	}
	return s.client.SAdd(ctx, BackupsSetKey, backup.Timestamp).Err()
}

// memoryStore is the storage-free implementation used in development and
// tests. Same contract, no persistence across restarts.
type memoryStore struct {
	mu          sync.RWMutex
	leaderboard []LeaderboardEntry
	players     map[string]PlayerStats
	names       map[string]string
	registry    map[string]struct{}
	backups     map[string]BackupRecord
}

// NewMemoryStore returns an empty in-memory ScoreStore.
func NewMemoryStore() ScoreStore {
	return &memoryStore{
		players:  make(map[string]PlayerStats),
		names:    make(map[string]string),
		registry: make(map[string]struct{}),
		backups:  make(map[string]BackupRecord),
	}
}

func (s *memoryStore) Leaderboard(_ context.Context) ([]LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]LeaderboardEntry, len(s.leaderboard))
	copy(entries, s.leaderboard)
	return entries, nil
}

func (s *memoryStore) AppendScore(_ context.Context, entry LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaderboard = append(s.leaderboard, entry)
	return nil
}

func (s *memoryStore) PlayerStats(_ context.Context, playerID string) (PlayerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.players[playerID], nil
}

func (s *memoryStore) SavePlayerStats(_ context.Context, playerID string, stats PlayerStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[playerID] = stats
	return nil
}

func (s *memoryStore) SavePlayerName(_ context.Context, playerID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[playerID] = name
	return nil
}

func (s *memoryStore) RegisterPlayer(_ context.Context, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[playerID] = struct{}{}
	return nil
}

func (s *memoryStore) Players(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.registry))
	for id := range s.registry {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memoryStore) SaveBackup(_ context.Context, backup BackupRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backups[backup.Timestamp] = backup
	return nil
}
