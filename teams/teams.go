// Package teams keeps the ephemeral team membership of running sessions.
// Members are registered under composite "socketId-userId" keys; readers
// only ever see the normalized userId -> teamId mapping.
package teams

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// ParseUserID extracts the numeric user id from a composite member key.
// The key is split on '-' and the last segment parsed as an integer.
func ParseUserID(key string) (int, bool) {
	parts := strings.Split(key, "-")
	id, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, false
	}
	return id, true
}

// Normalize converts composite member keys to user ids. Keys without a
// numeric suffix are dropped.
func Normalize(raw map[string]int) map[int]int {
	teamOf := make(map[int]int, len(raw))
	for key, team := range raw {
		if id, ok := ParseUserID(key); ok {
			teamOf[id] = team
		}
	}
	return teamOf
}

// MemberKey builds the composite key for a connection and user
func MemberKey(socketID string, userID int) string {
	return socketID + "-" + strconv.Itoa(userID)
}

// Store is an in-memory team snapshot provider
type Store struct {
	mu    sync.RWMutex
	games map[string]map[string]int
}

// NewStore creates an empty team store
func NewStore() *Store {
	return &Store{games: make(map[string]map[string]int)}
}

// SetTeam records the team of a member in a game
func (s *Store) SetTeam(gameID, memberKey string, team int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.games[gameID]
	if !ok {
		members = make(map[string]int)
		s.games[gameID] = members
	}
	members[memberKey] = team
}

// RemovePlayer forgets a member
func (s *Store) RemovePlayer(gameID, memberKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if members, ok := s.games[gameID]; ok {
		delete(members, memberKey)
		if len(members) == 0 {
			delete(s.games, gameID)
		}
	}
}

// DropGame forgets every member of a game
func (s *Store) DropGame(gameID string) {
	s.mu.Lock()
	delete(s.games, gameID)
	s.mu.Unlock()
}

// Raw returns a copy of the composite-keyed membership of a game
func (s *Store) Raw(gameID string) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw := make(map[string]int, len(s.games[gameID]))
	for k, v := range s.games[gameID] {
		raw[k] = v
	}
	return raw
}

// GetAllTeams returns the userId -> teamId snapshot of a game. Unknown
// games yield an empty mapping.
func (s *Store) GetAllTeams(ctx context.Context, gameID string) (map[int]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Normalize(s.Raw(gameID)), nil
}
