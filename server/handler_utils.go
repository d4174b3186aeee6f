package server

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/lab1702/broadside/game"
	"github.com/pkg/errors"
)

// handlerTimeout bounds how long a request waits for its game's actor
const handlerTimeout = 5 * time.Second

// maxPlayersPerGame caps the player list of a create request
const maxPlayersPerGame = 64

// Handler data structures

// CreateData represents a new game request
type CreateData struct {
	PlayerIDs  []int           `json:"playerIds"`
	Difficulty game.Difficulty `json:"difficulty"`
	Mode       game.Mode       `json:"mode"`
}

// JoinData represents a request to join a game as a player
type JoinData struct {
	GameID string `json:"gameId"`
	UserID int    `json:"userId"`
	Team   *int   `json:"team,omitempty"` // only used in teams mode
}

// ShotData represents a shot command
type ShotData struct {
	Type game.ShotType `json:"type"`
	Row  int           `json:"row"`
	Col  int           `json:"col"`
}

// StatsData represents a statistics request
type StatsData struct {
	GameID  string `json:"gameId,omitempty"`  // defaults to the joined game
	Players []int  `json:"players,omitempty"` // empty means every fleet owner
}

// Response payloads

// CreatedData answers a create request
type CreatedData struct {
	GameID string      `json:"gameId"`
	Board  *game.Board `json:"board"`
}

// JoinedData answers a join request
type JoinedData struct {
	GameID string      `json:"gameId"`
	UserID int         `json:"userId"`
	Board  *game.Board `json:"board"`
}

// MemberData is broadcast when a player joins or leaves
type MemberData struct {
	GameID string `json:"gameId"`
	UserID int    `json:"userId"`
	Team   *int   `json:"team,omitempty"`
}

// StatsReply answers a statistics request
type StatsReply struct {
	GameID string             `json:"gameId"`
	Stats  []game.PlayerStats `json:"stats"`
}

// Utility functions

// decodeData unmarshals a message payload, treating a missing payload as {}
func decodeData(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return errors.Wrap(json.Unmarshal(raw, v), "invalid payload")
}

// validateCreate checks a create request before a board is generated
func validateCreate(data *CreateData) error {
	if len(data.PlayerIDs) == 0 {
		return errors.New("playerIds must not be empty")
	}
	if len(data.PlayerIDs) > maxPlayersPerGame {
		return errors.Errorf("at most %d players per game", maxPlayersPerGame)
	}
	seen := make(map[int]bool, len(data.PlayerIDs))
	for _, id := range data.PlayerIDs {
		if id <= 0 {
			return errors.Errorf("invalid player id %d", id)
		}
		if seen[id] {
			return errors.Errorf("duplicate player id %d", id)
		}
		seen[id] = true
	}

	data.Difficulty = game.Difficulty(strings.ToLower(string(data.Difficulty)))
	if data.Difficulty == "" {
		data.Difficulty = game.DifficultyMedium
	}
	data.Mode = game.Mode(strings.ToLower(string(data.Mode)))
	switch data.Mode {
	case "":
		data.Mode = game.ModeIndividual
	case game.ModeIndividual, game.ModeTeams:
	default:
		return errors.Errorf("unknown mode %q", data.Mode)
	}
	return nil
}

// validateJoin checks a join request
func validateJoin(data *JoinData) error {
	data.GameID = strings.TrimSpace(data.GameID)
	if data.GameID == "" {
		return errors.New("gameId is required")
	}
	if data.UserID <= 0 {
		return errors.Errorf("invalid user id %d", data.UserID)
	}
	if data.Team != nil && *data.Team <= 0 {
		return errors.Errorf("invalid team %d", *data.Team)
	}
	return nil
}

// isFleetOwner reports whether userID owns at least one ship on board
func isFleetOwner(board *game.Board, userID int) bool {
	return len(board.ShipsOf(userID)) > 0
}
