package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/lab1702/broadside/game"
	"github.com/lab1702/broadside/store"
	"github.com/lab1702/broadside/teams"
	"github.com/pkg/errors"
)

// handleCreate generates a board and answers with the new game id
func (c *Client) handleCreate(data json.RawMessage) {
	var req CreateData
	if err := decodeData(data, &req); err != nil {
		c.sendError(err.Error())
		return
	}
	if err := validateCreate(&req); err != nil {
		c.sendError(err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	gameID, board, err := c.server.engine.CreateGame(ctx, req.PlayerIDs, req.Difficulty, req.Mode)
	if err != nil {
		log.Printf("Client %s: create game failed: %v", c.ID, err)
		c.sendError(err.Error())
		return
	}
	c.sendMessage(MsgTypeCreated, CreatedData{GameID: gameID, Board: board})
}

// handleJoin attaches the client to a game as one of its fleet owners
func (c *Client) handleJoin(data json.RawMessage) {
	var req JoinData
	if err := decodeData(data, &req); err != nil {
		c.sendError(err.Error())
		return
	}
	if err := validateJoin(&req); err != nil {
		c.sendError(err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	board, err := c.server.engine.Board(ctx, req.GameID)
	if err != nil {
		c.server.forgetMissingGame(req.GameID, err)
		c.sendError(err.Error())
		return
	}
	if !isFleetOwner(board, req.UserID) {
		c.sendError("user " + strconv.Itoa(req.UserID) + " has no fleet in game " + req.GameID)
		return
	}

	// Switching games leaves the previous one first
	if gameID, _ := c.Membership(); gameID != "" && gameID != req.GameID {
		c.server.leaveGame(c)
	}

	c.setMembership(req.GameID, req.UserID)
	if req.Team != nil {
		c.server.teams.SetTeam(req.GameID, teams.MemberKey(c.ID, req.UserID), *req.Team)
	}
	log.Printf("Client %s joined game %s as user %d", c.ID, req.GameID, req.UserID)

	c.sendMessage(MsgTypeJoined, JoinedData{GameID: req.GameID, UserID: req.UserID, Board: board})
	c.server.Notify(req.GameID, MsgTypePlayerJoined, MemberData{GameID: req.GameID, UserID: req.UserID, Team: req.Team})
}

// handleShot fires a shot for the joined user. The result reaches the
// shooter through the shot broadcast.
func (c *Client) handleShot(data json.RawMessage) {
	gameID, userID := c.Membership()
	if gameID == "" {
		c.sendError("join a game before shooting")
		return
	}

	var req ShotData
	if err := decodeData(data, &req); err != nil {
		c.sendError(err.Error())
		return
	}
	if req.Type == "" {
		req.Type = game.ShotSimple
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	origin := game.Coordinate{Row: req.Row, Col: req.Col}
	if _, err := c.server.engine.Fire(ctx, gameID, userID, req.Type, origin); err != nil {
		log.Printf("Client %s: shot in game %s failed: %v", c.ID, gameID, err)
		c.sendError(err.Error())
	}
}

// handleStats answers with the statistics of a game
func (c *Client) handleStats(data json.RawMessage) {
	var req StatsData
	if err := decodeData(data, &req); err != nil {
		c.sendError(err.Error())
		return
	}
	if req.GameID == "" {
		req.GameID, _ = c.Membership()
	}
	if req.GameID == "" {
		c.sendError("gameId is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	stats, err := c.server.engine.Stats(ctx, req.GameID, req.Players)
	if err != nil {
		c.server.forgetMissingGame(req.GameID, err)
		c.sendError(err.Error())
		return
	}
	c.sendMessage(MsgTypeStats, StatsReply{GameID: req.GameID, Stats: stats})
}

// handleLeave detaches the client from its game
func (c *Client) handleLeave(data json.RawMessage) {
	if gameID, _ := c.Membership(); gameID == "" {
		c.sendError("not in a game")
		return
	}
	c.server.leaveGame(c)
}

// leaveGame removes the client's team entry and tells the remaining members
func (s *Server) leaveGame(c *Client) {
	gameID, userID := c.clearMembership()
	if gameID == "" {
		return
	}
	s.teams.RemovePlayer(gameID, teams.MemberKey(c.ID, userID))
	log.Printf("Client %s left game %s", c.ID, gameID)
	s.Notify(gameID, MsgTypePlayerLeft, MemberData{GameID: gameID, UserID: userID})
}

// forgetMissingGame stops the actor a lookup of an unknown game started
// and drops any team entries recorded for it
func (s *Server) forgetMissingGame(gameID string, err error) {
	if errors.Is(err, store.ErrGameNotFound) {
		s.engine.CloseSession(gameID)
		s.teams.DropGame(gameID)
	}
}

// HandleStats returns the statistics of a game as JSON.
// GET /api/games/{id}/stats?players=1,2
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	gameID := r.PathValue("id")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}
	players, err := parsePlayers(r.URL.Query().Get("players"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	stats, err := s.engine.Stats(ctx, gameID, players)
	if err != nil {
		if errors.Is(err, store.ErrGameNotFound) {
			s.forgetMissingGame(gameID, err)
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}
		log.Printf("Stats for game %s failed: %v", gameID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(StatsReply{GameID: gameID, Stats: stats}); err != nil {
		log.Printf("Error encoding stats: %v", err)
	}
}

// parsePlayers reads a comma separated list of player ids
func parsePlayers(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}
	var players []int
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Errorf("invalid player id %q", part)
		}
		players = append(players, id)
	}
	return players, nil
}
